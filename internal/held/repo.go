package held

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/pos-agent/pkg/db/models"
)

// Repository persists parked carts.
type Repository interface {
	Create(ctx context.Context, sale *models.HeldSale) error
	List(ctx context.Context, terminalID string) ([]models.HeldSale, error)
	Find(ctx context.Context, id int64) (*models.HeldSale, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a held-sale repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, sale *models.HeldSale) error {
	return r.db.WithContext(ctx).Create(sale).Error
}

func (r *repository) List(ctx context.Context, terminalID string) ([]models.HeldSale, error) {
	var rows []models.HeldSale
	q := r.db.WithContext(ctx)
	if terminalID != "" {
		q = q.Where("terminal_id = ?", terminalID)
	}
	err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error
	return rows, err
}

// Find returns nil without error when the sale does not exist.
func (r *repository) Find(ctx context.Context, id int64) (*models.HeldSale, error) {
	var row models.HeldSale
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) Delete(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.HeldSale{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

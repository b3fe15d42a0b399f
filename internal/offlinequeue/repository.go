package offlinequeue

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/pos-agent/pkg/db/models"
)

// Repository is the durable store behind the queue.
type Repository interface {
	Insert(ctx context.Context, row *models.PendingOrder) error
	FindByReference(ctx context.Context, clientReference string) (*models.PendingOrder, error)
	FetchAll(ctx context.Context) ([]models.PendingOrder, error)
	Delete(ctx context.Context, localID int64) (bool, error)
	MarkFailed(ctx context.Context, localID int64, cause error, at time.Time) error
	Count(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, row *models.PendingOrder) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) FindByReference(ctx context.Context, clientReference string) (*models.PendingOrder, error) {
	var row models.PendingOrder
	err := r.db.WithContext(ctx).Where("client_reference = ?", clientReference).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FetchAll returns entries oldest first; local_id breaks ties within a timestamp.
func (r *repository) FetchAll(ctx context.Context) ([]models.PendingOrder, error) {
	var rows []models.PendingOrder
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Order("local_id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) Delete(ctx context.Context, localID int64) (bool, error) {
	res := r.db.WithContext(ctx).Where("local_id = ?", localID).Delete(&models.PendingOrder{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkFailed(ctx context.Context, localID int64, cause error, at time.Time) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return r.db.WithContext(ctx).Model(&models.PendingOrder{}).
		Where("local_id = ?", localID).
		Updates(map[string]any{
			"last_error":      msg,
			"last_attempt_at": at,
			"attempt_count":   gorm.Expr("attempt_count + 1"),
		}).Error
}

func (r *repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PendingOrder{}).Count(&count).Error
	return count, err
}

package held

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-agent/internal/cart"
	"github.com/angelmondragon/pos-agent/pkg/db"
	"github.com/angelmondragon/pos-agent/pkg/db/models"
	dbtypes "github.com/angelmondragon/pos-agent/pkg/db/types"
	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
	"github.com/angelmondragon/pos-agent/pkg/logger"
)

const maxIDCollisions = 3

// HeldSale is a parked cart as shown to the cashier.
type HeldSale struct {
	ID           int64           `json:"id"`
	CreatedAt    time.Time       `json:"createdAt"`
	Items        []cart.Item     `json:"items"`
	Total        decimal.Decimal `json:"total"`
	CustomerName string          `json:"customerName,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

// ActiveCart is the slice of the cart the registry reads and replaces.
type ActiveCart interface {
	IsEmpty() bool
	Snapshot() cart.Snapshot
	Restore(cart.Snapshot)
	Clear()
}

// RegistryParams groups the registry dependencies.
type RegistryParams struct {
	Repository Repository
	Cart       ActiveCart
	Logger     *logger.Logger
	TerminalID string
	Now        func() time.Time
}

// Registry parks and restores carts. It is the only writer to the active
// cart when resuming.
type Registry struct {
	repo       Repository
	cart       ActiveCart
	logg       *logger.Logger
	terminalID string
	now        func() time.Time

	mu     sync.Mutex
	lastID int64
}

func NewRegistry(params RegistryParams) (*Registry, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("held sale repository required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("active cart required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		repo:       params.Repository,
		cart:       params.Cart,
		logg:       params.Logger,
		terminalID: params.TerminalID,
		now:        now,
	}, nil
}

// Hold parks the active cart and clears it.
func (r *Registry) Hold(ctx context.Context) (*HeldSale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cart.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot hold an empty cart")
	}

	snap := r.cart.Snapshot()
	items, err := dbtypes.NewJSONText(snap.Items)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode held items")
	}

	createdAt := r.now().UTC()
	row := &models.HeldSale{
		TerminalID:   r.terminalID,
		Items:        items,
		Total:        snap.Totals.Total,
		CustomerName: optional(snap.CustomerName),
		Notes:        optional(snap.Notes),
		CreatedAt:    createdAt,
	}

	for attempt := 0; ; attempt++ {
		row.ID = r.nextID(createdAt)
		err = r.repo.Create(ctx, row)
		if err == nil {
			break
		}
		if !db.IsUniqueViolation(err, "") || attempt >= maxIDCollisions {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "persist held sale")
		}
	}

	r.cart.Clear()

	ctx = r.logg.WithFields(ctx, map[string]any{
		"held_id":    row.ID,
		"item_count": len(snap.Items),
		"total":      snap.Totals.Total.String(),
	})
	r.logg.Info(ctx, "held sale parked")

	return &HeldSale{
		ID:           row.ID,
		CreatedAt:    createdAt,
		Items:        snap.Items,
		Total:        snap.Totals.Total,
		CustomerName: snap.CustomerName,
		Notes:        snap.Notes,
	}, nil
}

// List returns the parked carts of this terminal, newest first.
func (r *Registry) List(ctx context.Context) ([]HeldSale, error) {
	rows, err := r.repo.List(ctx, r.terminalID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list held sales")
	}
	out := make([]HeldSale, 0, len(rows))
	for i := range rows {
		sale, err := toHeldSale(rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sale)
	}
	return out, nil
}

// Resume replaces the active cart with a held sale and removes the entry.
// A non-empty active cart is only overwritten when confirmOverwrite is set.
func (r *Registry) Resume(ctx context.Context, id int64, confirmOverwrite bool) (*HeldSale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.cart.IsEmpty() && !confirmOverwrite {
		return nil, pkgerrors.New(pkgerrors.CodeConfirmationRequired, "active cart is not empty").
			WithDetails(map[string]any{"action": "resume", "heldId": id})
	}

	row, err := r.repo.Find(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load held sale")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "held sale not found")
	}
	sale, err := toHeldSale(*row)
	if err != nil {
		return nil, err
	}

	removed, err := r.repo.Delete(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "remove held sale")
	}
	if !removed {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "held sale not found")
	}

	r.cart.Restore(cart.Snapshot{
		Items:        sale.Items,
		CustomerName: sale.CustomerName,
		Notes:        sale.Notes,
	})

	ctx = r.logg.WithFields(ctx, map[string]any{"held_id": id, "overwrote_cart": confirmOverwrite})
	r.logg.Info(ctx, "held sale resumed")
	return &sale, nil
}

// Delete discards a held sale; confirmed must be set.
func (r *Registry) Delete(ctx context.Context, id int64, confirmed bool) error {
	if !confirmed {
		return pkgerrors.New(pkgerrors.CodeConfirmationRequired, "deleting a held sale requires confirmation").
			WithDetails(map[string]any{"action": "delete", "heldId": id})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed, err := r.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete held sale")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "held sale not found")
	}

	r.logg.Info(r.logg.WithField(ctx, "held_id", id), "held sale deleted")
	return nil
}

// nextID derives a millisecond timestamp id, bumped to stay strictly increasing.
func (r *Registry) nextID(at time.Time) int64 {
	id := at.UnixMilli()
	if id <= r.lastID {
		id = r.lastID + 1
	}
	r.lastID = id
	return id
}

func toHeldSale(row models.HeldSale) (HeldSale, error) {
	var items []cart.Item
	if err := row.Items.Decode(&items); err != nil {
		return HeldSale{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "decode held items")
	}
	sale := HeldSale{
		ID:        row.ID,
		CreatedAt: row.CreatedAt,
		Items:     items,
		Total:     row.Total,
	}
	if row.CustomerName != nil {
		sale.CustomerName = *row.CustomerName
	}
	if row.Notes != nil {
		sale.Notes = *row.Notes
	}
	return sale, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

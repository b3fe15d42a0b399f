package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/pos-agent/internal/cart"
	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
	"github.com/angelmondragon/pos-agent/pkg/logger"
	"github.com/angelmondragon/pos-agent/pkg/orderapi"
)

// Source is the read-only catalog and tax lookup.
type Source interface {
	FetchCatalog(ctx context.Context) ([]orderapi.ProductRecord, error)
	FetchTaxSettings(ctx context.Context) (*orderapi.TaxSettings, error)
}

// TaxTarget receives tax configuration changes.
type TaxTarget interface {
	SetTaxConfig(cart.TaxConfig) error
}

type Params struct {
	Source    Source
	Logger    *logger.Logger
	TaxTarget TaxTarget
	Now       func() time.Time
}

// Cache keeps the last known catalog and tax configuration so the terminal
// keeps selling while the order service is unreachable.
type Cache struct {
	source Source
	logg   *logger.Logger
	target TaxTarget
	now    func() time.Time

	mu          sync.RWMutex
	products    map[string]cart.Product
	byBarcode   map[string]string
	tax         cart.TaxConfig
	refreshedAt time.Time
}

func New(params Params) (*Cache, error) {
	if params.Source == nil {
		return nil, fmt.Errorf("catalog source required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		source:    params.Source,
		logg:      params.Logger,
		target:    params.TaxTarget,
		now:       now,
		products:  map[string]cart.Product{},
		byBarcode: map[string]string{},
	}, nil
}

// Refresh reloads products and tax. A failed lookup keeps the previous values.
func (c *Cache) Refresh(ctx context.Context) error {
	records, catalogErr := c.source.FetchCatalog(ctx)
	settings, taxErr := c.source.FetchTaxSettings(ctx)

	c.mu.Lock()
	if catalogErr == nil {
		c.products = make(map[string]cart.Product, len(records))
		c.byBarcode = make(map[string]string, len(records))
		for _, rec := range records {
			if strings.TrimSpace(rec.ID) == "" {
				continue
			}
			c.products[rec.ID] = cart.Product{
				ID:         rec.ID,
				Name:       rec.Name,
				Price:      rec.Price,
				Stock:      rec.Stock,
				CategoryID: rec.CategoryID,
				Barcode:    rec.Barcode,
			}
			if rec.Barcode != "" {
				c.byBarcode[rec.Barcode] = rec.ID
			}
		}
	}
	if taxErr == nil && settings != nil {
		c.tax = cart.TaxConfig{Enabled: settings.Enabled, Rate: settings.Rate}
	}
	tax := c.tax
	if catalogErr == nil && taxErr == nil {
		c.refreshedAt = c.now().UTC()
	}
	count := len(c.products)
	c.mu.Unlock()

	if taxErr == nil && settings != nil && c.target != nil {
		if err := c.target.SetTaxConfig(tax); err != nil {
			c.logg.Warn(ctx, "tax configuration rejected by cart")
		}
	}

	if catalogErr != nil || taxErr != nil {
		err := catalogErr
		if err == nil {
			err = taxErr
		}
		c.logg.Warn(c.logg.WithField(ctx, "cached_products", count), "catalog refresh failed; serving cached values")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "catalog refresh failed")
	}

	c.logg.Info(c.logg.WithField(ctx, "products", count), "catalog refreshed")
	return nil
}

// Products returns the cached products ordered by name.
func (c *Cache) Products() []cart.Product {
	c.mu.RLock()
	out := make([]cart.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Find resolves a product by id or barcode.
func (c *Cache) Find(key string) (cart.Product, error) {
	key = strings.TrimSpace(key)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.products[key]; ok {
		return p, nil
	}
	if id, ok := c.byBarcode[key]; ok {
		return c.products[id], nil
	}
	return cart.Product{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
		WithDetails(map[string]any{"product": key})
}

// Tax returns the cached tax configuration.
func (c *Cache) Tax() cart.TaxConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tax
}

// RefreshedAt reports the last fully successful refresh.
func (c *Cache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}

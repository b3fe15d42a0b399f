package catalog

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pos-agent/internal/cart"
	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
	"github.com/angelmondragon/pos-agent/pkg/logger"
	"github.com/angelmondragon/pos-agent/pkg/orderapi"
)

type fakeSource struct {
	products   []orderapi.ProductRecord
	tax        *orderapi.TaxSettings
	catalogErr error
	taxErr     error
}

func (f *fakeSource) FetchCatalog(context.Context) ([]orderapi.ProductRecord, error) {
	return f.products, f.catalogErr
}

func (f *fakeSource) FetchTaxSettings(context.Context) (*orderapi.TaxSettings, error) {
	return f.tax, f.taxErr
}

func newCache(t *testing.T, src Source, target TaxTarget) *Cache {
	t.Helper()
	c, err := New(Params{
		Source:    src,
		Logger:    logger.New(logger.Options{ServiceName: "catalog-test", Output: io.Discard}),
		TaxTarget: target,
		Now:       func() time.Time { return time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return c
}

func TestRefreshLoadsProductsAndTax(t *testing.T) {
	src := &fakeSource{
		products: []orderapi.ProductRecord{
			{ID: "p2", Name: "Sugar", Price: decimal.NewFromInt(150), Barcode: "6161"},
			{ID: "p1", Name: "Bread", Price: decimal.NewFromInt(60)},
		},
		tax: &orderapi.TaxSettings{Enabled: true, Rate: decimal.RequireFromString("0.16")},
	}
	active := cart.New(cart.TaxConfig{})
	c := newCache(t, src, active)

	require.NoError(t, c.Refresh(context.Background()))

	products := c.Products()
	require.Len(t, products, 2)
	assert.Equal(t, "Bread", products[0].Name)

	byBarcode, err := c.Find("6161")
	require.NoError(t, err)
	assert.Equal(t, "p2", byBarcode.ID)

	assert.True(t, c.Tax().Enabled)
	assert.True(t, active.TaxConfig().Rate.Equal(decimal.RequireFromString("0.16")))
	assert.False(t, c.RefreshedAt().IsZero())
}

func TestFailedRefreshKeepsLastValues(t *testing.T) {
	src := &fakeSource{
		products: []orderapi.ProductRecord{{ID: "p1", Name: "Bread", Price: decimal.NewFromInt(60)}},
		tax:      &orderapi.TaxSettings{Enabled: true, Rate: decimal.RequireFromString("0.16")},
	}
	c := newCache(t, src, nil)
	require.NoError(t, c.Refresh(context.Background()))

	src.catalogErr = errors.New("offline")
	src.taxErr = errors.New("offline")
	err := c.Refresh(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	assert.Len(t, c.Products(), 1)
	assert.True(t, c.Tax().Enabled)
}

func TestFindUnknownProduct(t *testing.T) {
	c := newCache(t, &fakeSource{}, nil)
	_, err := c.Find("nope")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

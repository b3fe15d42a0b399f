package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/pos-agent/api/responses"
	"github.com/angelmondragon/pos-agent/internal/cart"
	"github.com/angelmondragon/pos-agent/pkg/logger"
)

// CatalogService is the cached product and tax lookup.
type CatalogService interface {
	Products() []cart.Product
	Tax() cart.TaxConfig
	RefreshedAt() time.Time
	Refresh(ctx context.Context) error
}

type catalogResponse struct {
	Products    []cart.Product `json:"products"`
	Tax         cart.TaxConfig `json:"tax"`
	RefreshedAt *time.Time     `json:"refreshedAt,omitempty"`
}

func newCatalogResponse(svc CatalogService) catalogResponse {
	resp := catalogResponse{Products: svc.Products(), Tax: svc.Tax()}
	if at := svc.RefreshedAt(); !at.IsZero() {
		resp.RefreshedAt = &at
	}
	return resp
}

func CatalogList(svc CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, newCatalogResponse(svc))
	}
}

// CatalogRefresh reloads from the order service. On failure the cached
// catalog stays in use and the error is reported.
func CatalogRefresh(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Refresh(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCatalogResponse(svc))
	}
}

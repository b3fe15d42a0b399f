package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-agent/api/responses"
	"github.com/angelmondragon/pos-agent/api/validators"
	"github.com/angelmondragon/pos-agent/internal/cart"
	"github.com/angelmondragon/pos-agent/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
	"github.com/angelmondragon/pos-agent/pkg/logger"
)

const (
	maxCustomerNameLen = 120
	maxNotesLen        = 500
)

// CartService is the active cart as edited from the till.
type CartService interface {
	Snapshot() cart.Snapshot
	AddItem(product cart.Product) error
	RemoveItem(productID string) error
	SetQuantity(productID string, qty int) error
	ApplyDiscount(productID string, amount decimal.Decimal, discountType enums.DiscountType) error
	SetCustomerName(name string)
	SetNotes(notes string)
}

// ProductLookup resolves a product id or barcode from the catalog cache.
type ProductLookup interface {
	Find(key string) (cart.Product, error)
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required_without=Barcode"`
	Barcode   string `json:"barcode" validate:"required_without=ProductID"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type discountRequest struct {
	Amount decimal.Decimal    `json:"amount" validate:"money"`
	Type   enums.DiscountType `json:"type" validate:"required,oneof=fixed percentage"`
}

type cartDetailsRequest struct {
	CustomerName *string `json:"customerName"`
	Notes        *string `json:"notes"`
}

func CartGet(svc CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, svc.Snapshot())
	}
}

// CartAddItem scans or taps a product into the cart.
func CartAddItem(svc CartService, products ProductLookup, guard EditGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := strings.TrimSpace(payload.ProductID)
		if key == "" {
			key = strings.TrimSpace(payload.Barcode)
		}
		product, err := products.Find(key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := guard.EditCart(func() error { return svc.AddItem(product) }); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, svc.Snapshot())
	}
}

func CartSetQuantity(svc CartService, guard EditGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload setQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID := chi.URLParam(r, "productID")
		if err := guard.EditCart(func() error { return svc.SetQuantity(productID, payload.Quantity) }); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, svc.Snapshot())
	}
}

func CartRemoveItem(svc CartService, guard EditGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := chi.URLParam(r, "productID")
		if err := guard.EditCart(func() error { return svc.RemoveItem(productID) }); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, svc.Snapshot())
	}
}

func CartApplyDiscount(svc CartService, guard EditGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload discountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID := chi.URLParam(r, "productID")
		err := guard.EditCart(func() error {
			return svc.ApplyDiscount(productID, payload.Amount, payload.Type)
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, svc.Snapshot())
	}
}

// CartSetDetails updates the optional customer name and notes.
func CartSetDetails(svc CartService, guard EditGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload cartDetailsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.CustomerName == nil && payload.Notes == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "customerName or notes required"))
			return
		}
		err := guard.EditCart(func() error {
			if payload.CustomerName != nil {
				svc.SetCustomerName(validators.SanitizeReceiptText(*payload.CustomerName, maxCustomerNameLen, false))
			}
			if payload.Notes != nil {
				svc.SetNotes(validators.SanitizeReceiptText(*payload.Notes, maxNotesLen, true))
			}
			return nil
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, svc.Snapshot())
	}
}

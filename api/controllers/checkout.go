package controllers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-agent/api/responses"
	"github.com/angelmondragon/pos-agent/api/validators"
	"github.com/angelmondragon/pos-agent/internal/cart"
	"github.com/angelmondragon/pos-agent/internal/checkout"
	"github.com/angelmondragon/pos-agent/internal/payment"
	"github.com/angelmondragon/pos-agent/internal/receipt"
	"github.com/angelmondragon/pos-agent/pkg/enums"
	"github.com/angelmondragon/pos-agent/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// CheckoutService is the checkout state machine.
type CheckoutService interface {
	Begin(ctx context.Context) (checkout.Status, error)
	SelectMethod(ctx context.Context, req payment.Request) (checkout.Status, error)
	Confirm(ctx context.Context) (*checkout.Outcome, error)
	Cancel(ctx context.Context) (checkout.Status, error)
	ReleaseCapture(ctx context.Context) (checkout.Status, error)
	Acknowledge(ctx context.Context) (checkout.Status, error)
	Status() checkout.Status
	History() []receipt.Receipt
	RunningTotal() decimal.Decimal
}

// CartReader exposes the sale being checked out.
type CartReader interface {
	Snapshot() cart.Snapshot
}

type previewResponse struct {
	Status checkout.Status `json:"status"`
	Sale   cart.Snapshot   `json:"sale"`
}

type historyResponse struct {
	Receipts     []receipt.Receipt `json:"receipts"`
	RunningTotal decimal.Decimal   `json:"runningTotal"`
}

func CheckoutBegin(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.Begin(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func CheckoutSelectMethod(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload payment.Request
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := svc.SelectMethod(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func CheckoutPreview(svc CheckoutService, sale CartReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, previewResponse{Status: svc.Status(), Sale: sale.Snapshot()})
	}
}

// CheckoutConfirm submits the sale. A sale saved offline answers 202 so the
// till can tell it apart from a server-confirmed order.
func CheckoutConfirm(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, err := svc.Confirm(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if outcome.State == enums.CheckoutStateQueuedOffline {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, outcome)
	}
}

func CheckoutCancel(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.Cancel(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// CheckoutReleaseCapture drops a captured card or mobile money payment the
// cashier has already voided with the provider.
func CheckoutReleaseCapture(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.ReleaseCapture(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func CheckoutAcknowledge(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.Acknowledge(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func CheckoutStatus(svc CheckoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, svc.Status())
	}
}

// CheckoutHistory lists the most recent receipts, newest first.
func CheckoutHistory(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		all := svc.History()
		out := make([]receipt.Receipt, 0, limit)
		for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, all[i])
		}
		responses.WriteSuccess(w, historyResponse{Receipts: out, RunningTotal: svc.RunningTotal()})
	}
}

package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/pos-agent/api/responses"
	"github.com/angelmondragon/pos-agent/api/validators"
	"github.com/angelmondragon/pos-agent/internal/held"
	"github.com/angelmondragon/pos-agent/pkg/logger"
)

// HeldService parks and restores carts.
type HeldService interface {
	Hold(ctx context.Context) (*held.HeldSale, error)
	List(ctx context.Context) ([]held.HeldSale, error)
	Resume(ctx context.Context, id int64, confirmOverwrite bool) (*held.HeldSale, error)
	Delete(ctx context.Context, id int64, confirmed bool) error
}

type resumeRequest struct {
	ConfirmOverwrite bool `json:"confirmOverwrite"`
}

func HeldHold(svc HeldService, guard EditGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sale *held.HeldSale
		err := guard.EditCart(func() error {
			var err error
			sale, err = svc.Hold(r.Context())
			return err
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sale)
	}
}

func HeldList(svc HeldService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sales, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sales)
	}
}

// HeldResume restores a held sale. Overwriting a non-empty cart needs
// confirmOverwrite, otherwise CONFIRMATION_REQUIRED is returned.
func HeldResume(svc HeldService, guard EditGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "heldID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload resumeRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		var sale *held.HeldSale
		err = guard.EditCart(func() error {
			var err error
			sale, err = svc.Resume(r.Context(), id, payload.ConfirmOverwrite)
			return err
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sale)
	}
}

func HeldDelete(svc HeldService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "heldID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		confirmed, err := validators.ParseQueryBool(r, "confirm")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id, confirmed); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "status": "deleted"})
	}
}

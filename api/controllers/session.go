package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/pos-agent/api/responses"
	"github.com/angelmondragon/pos-agent/api/validators"
	"github.com/angelmondragon/pos-agent/internal/session"
	"github.com/angelmondragon/pos-agent/pkg/logger"
)

// SessionService is the cashier session lifecycle.
type SessionService interface {
	Start(ctx context.Context, token string) (*session.Context, error)
	End(ctx context.Context)
	Current() (*session.Context, error)
}

// SessionStart signs a cashier in with the token issued by the back office.
func SessionStart(svc SessionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := validators.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		current, err := svc.Start(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, current)
	}
}

func SessionEnd(svc SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.End(r.Context())
		responses.WriteSuccess(w, map[string]string{"status": "signed_out"})
	}
}

func SessionCurrent(svc SessionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current, err := svc.Current()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, current)
	}
}

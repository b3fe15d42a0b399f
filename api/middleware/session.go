package middleware

import (
	"net/http"

	"github.com/angelmondragon/pos-agent/api/responses"
	"github.com/angelmondragon/pos-agent/internal/session"
	"github.com/angelmondragon/pos-agent/pkg/logger"
)

// SessionSource reports the active cashier session.
type SessionSource interface {
	Current() (*session.Context, error)
}

// RequireSession rejects requests while no cashier is signed in, and seeds
// the request context with the cashier and terminal.
func RequireSession(sessions SessionSource, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current, err := sessions.Current()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithCashierID(r.Context(), current.Cashier.ID)
			ctx = WithTerminalID(ctx, current.TerminalID)
			if logg != nil {
				ctx = logg.WithCashierID(ctx, current.Cashier.ID)
				ctx = logg.WithTerminalID(ctx, current.TerminalID)
				if current.Cashier.BranchID != "" {
					ctx = logg.WithBranchID(ctx, current.Cashier.BranchID)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

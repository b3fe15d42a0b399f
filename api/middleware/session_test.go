package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/pos-agent/internal/session"
	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
)

type stubSessions struct {
	current *session.Context
}

func (s stubSessions) Current() (*session.Context, error) {
	if s.current == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no active session")
	}
	return s.current, nil
}

func TestRequireSessionRejectsWithoutCashier(t *testing.T) {
	called := false
	h := RequireSession(stubSessions{}, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if called {
		t.Fatalf("handler should not run without a session")
	}
}

func TestRequireSessionSeedsContext(t *testing.T) {
	sessions := stubSessions{current: &session.Context{
		Cashier:    session.Cashier{ID: "cashier-7", Name: "Baraka"},
		TerminalID: "till-1",
	}}
	var cashierID, terminalID string
	h := RequireSession(sessions, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cashierID = CashierIDFromContext(r.Context())
		terminalID = TerminalIDFromContext(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	if cashierID != "cashier-7" || terminalID != "till-1" {
		t.Fatalf("unexpected context cashier=%q terminal=%q", cashierID, terminalID)
	}
}

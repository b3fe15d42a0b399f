package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
	pkgredis "github.com/angelmondragon/pos-agent/pkg/redis"
)

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"confirm", http.MethodPost, "/api/v1/checkout/confirm", criticalIdempotencyTTL, true},
		{"hold", http.MethodPost, "/api/v1/held", defaultIdempotencyTTL, true},
		{"resume", http.MethodPost, "/api/v1/held/{heldID}/resume", defaultIdempotencyTTL, true},
		{"sync", http.MethodPost, "/api/v1/queue/sync", defaultIdempotencyTTL, true},
		{"begin", http.MethodPost, "/api/v1/checkout/begin", 0, false},
		{"list held", http.MethodGet, "/api/v1/held", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.pattern)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	store := pkgredis.NewMemoryStore()
	mw := Idempotency(store, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/checkout/confirm", "/api/v1/checkout/confirm", strings.NewReader(`{"foo":"bar"}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := pkgredis.NewMemoryStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/checkout/confirm", "/api/v1/checkout/confirm", strings.NewReader(`{"foo":"bar"}`))
	req.Header.Set("Idempotency-Key", "abc")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected first response 202 got %d", resp.Code)
	}

	replay := requestWithPattern(http.MethodPost, "/api/v1/checkout/confirm", "/api/v1/checkout/confirm", strings.NewReader(`{"foo":"bar"}`))
	replay.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected replay status 202 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	store := pkgredis.NewMemoryStore()
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/checkout/confirm", "/api/v1/checkout/confirm", strings.NewReader(`{"foo":"bar"}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := requestWithPattern(http.MethodPost, "/api/v1/checkout/confirm", "/api/v1/checkout/confirm", strings.NewReader(`{"foo":"diff"}`))
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotencyMiddlewareDoesNotPinServerFailures(t *testing.T) {
	store := pkgredis.NewMemoryStore()
	mw := Idempotency(store, nil)
	statuses := []int{http.StatusInsufficientStorage, http.StatusAccepted}
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statuses[calls])
		calls++
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/checkout/confirm", "/api/v1/checkout/confirm", nil)
		req.Header.Set("Idempotency-Key", "retry-me")
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, req)
		if resp.Code != statuses[i] {
			t.Fatalf("attempt %d: expected %d got %d", i, statuses[i], resp.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected the retry to reach the handler, calls=%d", calls)
	}
}

func TestRoutePatternFallsBackToTrimmedPath(t *testing.T) {
	req := requestWithPattern(http.MethodPost, "/api/v1/held/", "/api/v1/*", nil)
	if got := routePattern(req); got != "/api/v1/held" {
		t.Fatalf("expected trimmed path, got %q", got)
	}
}

func TestIdempotencyMiddlewareRejectsConcurrentDuplicate(t *testing.T) {
	store := pkgredis.NewMemoryStore()
	mw := Idempotency(store, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	body := `{"paymentMethod":"cash"}`
	req := requestWithPattern(http.MethodPost, "/api/v1/checkout/confirm", "/api/v1/checkout/confirm", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "double-tap")

	inFlight, err := json.Marshal(idempotencyRecord{RequestHash: hashBody([]byte(body)), InFlight: true})
	if err != nil {
		t.Fatalf("marshal reservation: %v", err)
	}
	key := store.IdempotencyKey(buildScope(req), "double-tap")
	if err := store.Set(context.Background(), key, string(inFlight), time.Minute); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler must not run while the first attempt is in flight")
	}
	if !strings.Contains(resp.Body.String(), string(pkgerrors.CodeConflict)) {
		t.Fatalf("expected CONFLICT code, got %s", resp.Body.String())
	}
}

func TestIdempotencyMiddlewareMarksReplays(t *testing.T) {
	store := pkgredis.NewMemoryStore()
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	first := httptest.NewRecorder()
	req := requestWithPattern(http.MethodPost, "/api/v1/held", "/api/v1/held", strings.NewReader(`{}`))
	req.Header.Set("Idempotency-Key", "hold-1")
	mw(handler).ServeHTTP(first, req)
	if first.Header().Get(replayedHeader) != "" {
		t.Fatalf("first response should not be marked as a replay")
	}

	second := httptest.NewRecorder()
	again := requestWithPattern(http.MethodPost, "/api/v1/held", "/api/v1/held", strings.NewReader(`{}`))
	again.Header.Set("Idempotency-Key", "hold-1")
	mw(handler).ServeHTTP(second, again)
	if second.Code != http.StatusCreated || second.Header().Get(replayedHeader) != "true" {
		t.Fatalf("expected replayed 201, got %d %q", second.Code, second.Header().Get(replayedHeader))
	}
}

func TestIdempotencyMiddlewareReleasesKeyOnPanic(t *testing.T) {
	store := pkgredis.NewMemoryStore()
	mw := Idempotency(store, nil)
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("printer jammed")
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/checkout/confirm", "/api/v1/checkout/confirm", strings.NewReader(`{}`))
	req.Header.Set("Idempotency-Key", "jam")
	func() {
		defer func() { _ = recover() }()
		mw(panicking).ServeHTTP(httptest.NewRecorder(), req)
	}()

	retry := requestWithPattern(http.MethodPost, "/api/v1/checkout/confirm", "/api/v1/checkout/confirm", strings.NewReader(`{}`))
	retry.Header.Set("Idempotency-Key", "jam")
	resp := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})).ServeHTTP(resp, retry)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected retry to run after panic, got %d", resp.Code)
	}
}

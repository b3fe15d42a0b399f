package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pos-agent/internal/cart"
	"github.com/angelmondragon/pos-agent/internal/catalog"
	"github.com/angelmondragon/pos-agent/internal/checkout"
	"github.com/angelmondragon/pos-agent/internal/held"
	"github.com/angelmondragon/pos-agent/internal/offlinequeue"
	"github.com/angelmondragon/pos-agent/internal/payment"
	"github.com/angelmondragon/pos-agent/internal/session"
	"github.com/angelmondragon/pos-agent/internal/syncagent"
	"github.com/angelmondragon/pos-agent/pkg/auth"
	"github.com/angelmondragon/pos-agent/pkg/config"
	"github.com/angelmondragon/pos-agent/pkg/logger"
	"github.com/angelmondragon/pos-agent/pkg/metrics"
	"github.com/angelmondragon/pos-agent/pkg/migrate/migratetest"
	"github.com/angelmondragon/pos-agent/pkg/orderapi"
	pkgredis "github.com/angelmondragon/pos-agent/pkg/redis"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

// orderService fakes the remote back office: catalog, tax and order intake.
type orderService struct {
	down   atomic.Bool
	orders atomic.Int32
}

func (s *orderService) RoundTrip(req *http.Request) (*http.Response, error) {
	switch {
	case strings.HasSuffix(req.URL.Path, "/products"):
		return jsonResponse(http.StatusOK, `{"data":[{"id":"A","name":"Rice 2kg","price":100,"barcode":"6001"}]}`), nil
	case strings.HasSuffix(req.URL.Path, "/settings"):
		return jsonResponse(http.StatusOK, `{"data":{"tax":{"enabled":true,"rate":0.16}}}`), nil
	case strings.HasSuffix(req.URL.Path, "/orders"):
		if s.down.Load() {
			return jsonResponse(http.StatusServiceUnavailable, `upstream down`), nil
		}
		n := s.orders.Add(1)
		return jsonResponse(http.StatusCreated, fmt.Sprintf(`{"data":{"orderNumber":"ORD-%d"}}`, n)), nil
	}
	return jsonResponse(http.StatusNotFound, `{}`), nil
}

type harness struct {
	handler http.Handler
	remote  *orderService
	token   string
	keys    int
}

var testJWT = config.JWTConfig{Secret: "router-secret", Issuer: "pos-backoffice"}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	cfg := &config.Config{
		App:      config.AppConfig{Env: "dev", Port: "0"},
		Terminal: config.TerminalConfig{ID: "till-1"},
		JWT:      testJWT,
	}

	remote := &orderService{}
	client, err := orderapi.NewClient("http://orders.test", orderapi.WithHTTPClient(&http.Client{Transport: remote}))
	require.NoError(t, err)

	db := migratetest.NewSQLite(t)
	registry := prometheus.NewRegistry()
	syncMetrics := metrics.NewSyncMetrics(registry)

	queue, err := offlinequeue.New(offlinequeue.Params{
		Repository: offlinequeue.NewRepository(db.DB()),
		Logger:     log,
		Depth:      syncMetrics,
		TerminalID: "till-1",
	})
	require.NoError(t, err)
	require.NoError(t, queue.Init(context.Background()))

	sessions, err := session.NewManager(session.ManagerParams{JWT: testJWT, Logger: log, TerminalID: "till-1"})
	require.NoError(t, err)

	activeCart := cart.New(cart.TaxConfig{})
	cache, err := catalog.New(catalog.Params{Source: client, Logger: log, TaxTarget: activeCart})
	require.NoError(t, err)

	heldSales, err := held.NewRegistry(held.RegistryParams{
		Repository: held.NewRepository(db.DB()),
		Cart:       activeCart,
		Logger:     log,
		TerminalID: "till-1",
	})
	require.NoError(t, err)

	flow, err := payment.NewFlow(payment.FlowParams{Logger: log, Pusher: client, CountryCode: "254", Currency: "KES"})
	require.NoError(t, err)

	orch, err := checkout.New(checkout.Params{
		Cart:       activeCart,
		Flow:       flow,
		Submitter:  client,
		Queue:      queue,
		Cashiers:   sessions,
		Metrics:    syncMetrics,
		Logger:     log,
		TerminalID: "till-1",
		Currency:   "KES",
		AckDelay:   time.Hour,
	})
	require.NoError(t, err)
	queue.Subscribe(orch.OnPendingCount)

	agent, err := syncagent.New(syncagent.Params{
		Queue:     queue,
		Submitter: client,
		Metrics:   syncMetrics,
		Logger:    log,
	})
	require.NoError(t, err)

	token, err := auth.MintCashierToken(testJWT, time.Now(), time.Hour, auth.CashierPayload{
		CashierID:   "cashier-7",
		CashierName: "Baraka",
		BranchID:    "branch-1",
	})
	require.NoError(t, err)

	handler := NewRouter(Deps{
		Config:      cfg,
		Logger:      log,
		Metrics:     registry,
		Idempotency: pkgredis.NewMemoryStore(),
		Sessions:    sessions,
		Cart:        activeCart,
		Catalog:     cache,
		Held:        heldSales,
		Checkout:    orch,
		Queue:       queue,
		Sync:        agent,
		StaleAfter:  72 * time.Hour,
	})
	return &harness{handler: handler, remote: remote, token: token}
}

func (h *harness) do(t *testing.T, method, path, body string, idempotent bool) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if idempotent {
		h.keys++
		req.Header.Set("Idempotency-Key", fmt.Sprintf("key-%d", h.keys))
	}
	if path == "/api/v1/session" && method == http.MethodPost {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)

	var envelope map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &envelope)
	return resp.Code, envelope
}

func data(envelope map[string]any) map[string]any {
	d, _ := envelope["data"].(map[string]any)
	return d
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(t, http.MethodGet, "/health/live", "", false)
	assert.Equal(t, http.StatusOK, code)
	code, _ = h.do(t, http.MethodGet, "/health/ready", "", false)
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "pos_offline_queue_depth")
}

func TestTillRoutesRequireSession(t *testing.T) {
	h := newHarness(t)

	code, envelope := h.do(t, http.MethodGet, "/api/v1/cart/", "", false)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", envelope["error"].(map[string]any)["code"])
}

func TestOfflineSaleThenSync(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(t, http.MethodPost, "/api/v1/session", "", false)
	require.Equal(t, http.StatusCreated, code)

	code, _ = h.do(t, http.MethodPost, "/api/v1/catalog/refresh", "", false)
	require.Equal(t, http.StatusOK, code)

	code, _ = h.do(t, http.MethodPost, "/api/v1/cart/items", `{"barcode":"6001"}`, false)
	require.Equal(t, http.StatusOK, code)
	code, envelope := h.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"A"}`, false)
	require.Equal(t, http.StatusOK, code)
	totals := data(envelope)["totals"].(map[string]any)
	assert.Equal(t, "232", totals["total"])

	code, _ = h.do(t, http.MethodPost, "/api/v1/checkout/begin", "", false)
	require.Equal(t, http.StatusOK, code)

	code, envelope = h.do(t, http.MethodPost, "/api/v1/checkout/method", `{"method":"cash","amountTendered":200}`, false)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", envelope["error"].(map[string]any)["code"])

	code, envelope = h.do(t, http.MethodPost, "/api/v1/checkout/method", `{"method":"cash","amountTendered":300}`, false)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "68", data(envelope)["change"])

	code, envelope = h.do(t, http.MethodGet, "/api/v1/checkout/preview", "", false)
	require.Equal(t, http.StatusOK, code)
	sale := data(envelope)["sale"].(map[string]any)
	assert.Equal(t, "232", sale["totals"].(map[string]any)["total"])

	code, _ = h.do(t, http.MethodPost, "/api/v1/checkout/confirm", "", false)
	assert.Equal(t, http.StatusBadRequest, code, "confirm needs an idempotency key")

	h.remote.down.Store(true)
	code, envelope = h.do(t, http.MethodPost, "/api/v1/checkout/confirm", "", true)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "queued_offline", data(envelope)["state"])

	code, envelope = h.do(t, http.MethodGet, "/api/v1/queue/", "", false)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, data(envelope)["count"])

	code, envelope = h.do(t, http.MethodGet, "/api/v1/cart/", "", false)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, data(envelope)["items"])

	code, envelope = h.do(t, http.MethodPost, "/api/v1/queue/sync", "", true)
	assert.Equal(t, http.StatusMultiStatus, code)
	assert.EqualValues(t, 1, data(envelope)["failed"])

	h.remote.down.Store(false)
	code, envelope = h.do(t, http.MethodPost, "/api/v1/queue/sync", "", true)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, data(envelope)["success"])

	code, envelope = h.do(t, http.MethodGet, "/api/v1/queue/", "", false)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, data(envelope)["count"])

	code, envelope = h.do(t, http.MethodGet, "/api/v1/checkout/history", "", false)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "232", data(envelope)["runningTotal"])
}

func TestHoldAndResume(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(t, http.MethodPost, "/api/v1/session", "", false)
	require.Equal(t, http.StatusCreated, code)
	code, _ = h.do(t, http.MethodPost, "/api/v1/catalog/refresh", "", false)
	require.Equal(t, http.StatusOK, code)
	code, _ = h.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"A"}`, false)
	require.Equal(t, http.StatusOK, code)

	code, envelope := h.do(t, http.MethodPost, "/api/v1/held/", "", true)
	require.Equal(t, http.StatusCreated, code)
	heldID := int64(data(envelope)["id"].(float64))

	code, _ = h.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":"A"}`, false)
	require.Equal(t, http.StatusOK, code)

	path := fmt.Sprintf("/api/v1/held/%d/resume", heldID)
	code, envelope = h.do(t, http.MethodPost, path, "", true)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFIRMATION_REQUIRED", envelope["error"].(map[string]any)["code"])

	code, _ = h.do(t, http.MethodPost, path, `{"confirmOverwrite":true}`, true)
	require.Equal(t, http.StatusOK, code)

	code, envelope = h.do(t, http.MethodGet, "/api/v1/held/", "", false)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, envelope["data"])
}

func TestReleaseCaptureWithoutCapturedPayment(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(t, http.MethodPost, "/api/v1/session", "", false)
	require.Equal(t, http.StatusCreated, code)

	code, envelope := h.do(t, http.MethodPost, "/api/v1/checkout/capture/release", "", false)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", envelope["error"].(map[string]any)["code"])
}

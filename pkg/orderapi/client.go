package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
	"github.com/angelmondragon/pos-agent/pkg/types"
)

const (
	defaultRequestTimeout       = 15 * time.Second
	defaultPushTimeout          = 90 * time.Second
	responseBodyReadLimit int64 = 4096

	IdempotencyHeader = "Idempotency-Key"
)

var errBaseURLRequired = errors.New("order service base url is required")

// TokenSource returns the bearer token for outgoing requests.
type TokenSource func(ctx context.Context) string

// Client talks to the remote order service.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	timeout     time.Duration
	pushTimeout time.Duration
	token       TokenSource
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout bounds every request except the mobile-money push.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithPushTimeout bounds the mobile-money push, which waits for the customer.
func WithPushTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.pushTimeout = timeout
		}
	}
}

// WithTokenSource sets the bearer token provider.
func WithTokenSource(source TokenSource) Option {
	return func(c *Client) {
		c.token = source
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		httpClient:  &http.Client{},
		baseURL:     trimmed,
		timeout:     defaultRequestTimeout,
		pushTimeout: defaultPushTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{}
	}
	return client, nil
}

// SubmitResult is the order service's acknowledgement of a sale.
type SubmitResult struct {
	OrderNumber string `json:"orderNumber"`
}

// SubmitOrder posts a checkout payload. Network failures and 5xx responses
// come back as TRANSIENT_SERVER_ERROR; other non-2xx responses as
// PERMANENT_CLIENT_ERROR. The client reference doubles as Idempotency-Key.
func (c *Client) SubmitOrder(ctx context.Context, payload types.OrderPayload) (*SubmitResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order client not configured")
	}
	if strings.TrimSpace(payload.ClientReference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client reference is required")
	}

	var envelope struct {
		Data SubmitResult `json:"data"`
	}
	headers := map[string]string{IdempotencyHeader: payload.ClientReference}
	if err := c.do(ctx, c.timeout, http.MethodPost, "orders", payload, headers, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// ProductRecord is a catalog entry.
type ProductRecord struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      *int            `json:"stock,omitempty"`
	CategoryID string          `json:"categoryId,omitempty"`
	Barcode    string          `json:"barcode,omitempty"`
}

// FetchCatalog lists the sellable products of the branch.
func (c *Client) FetchCatalog(ctx context.Context) ([]ProductRecord, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order client not configured")
	}
	var envelope struct {
		Data []ProductRecord `json:"data"`
	}
	if err := c.do(ctx, c.timeout, http.MethodGet, "products", nil, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// TaxSettings mirrors the tax configuration document.
type TaxSettings struct {
	Enabled bool            `json:"enabled"`
	Rate    decimal.Decimal `json:"rate"`
}

// FetchTaxSettings reads the branch tax configuration.
func (c *Client) FetchTaxSettings(ctx context.Context) (*TaxSettings, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order client not configured")
	}
	var envelope struct {
		Data struct {
			Tax TaxSettings `json:"tax"`
		} `json:"data"`
	}
	if err := c.do(ctx, c.timeout, http.MethodGet, "settings", nil, nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data.Tax, nil
}

// PushRequest asks the order service to send a mobile-money payment prompt.
type PushRequest struct {
	PhoneNumber string          `json:"phoneNumber"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference"`
}

func (r PushRequest) MarshalJSON() ([]byte, error) {
	type wire PushRequest
	return json.Marshal(struct {
		wire
		Amount json.Number `json:"amount"`
	}{wire(r), types.MoneyNumber(r.Amount)})
}

// PushResult is the outcome of a mobile-money prompt.
type PushResult struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
	Message       string `json:"message,omitempty"`
}

// RequestMobileMoneyPush sends the prompt and waits for the customer's answer.
func (c *Client) RequestMobileMoneyPush(ctx context.Context, req PushRequest) (*PushResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order client not configured")
	}
	var envelope struct {
		Data PushResult `json:"data"`
	}
	headers := map[string]string{IdempotencyHeader: req.Reference}
	if err := c.do(ctx, c.pushTimeout, http.MethodPost, "payments/mobile-money/push", req, headers, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body any, headers map[string]string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(ctx); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransient, err, fmt.Sprintf("%s %s unreachable", method, path))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeTransient,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			fmt.Sprintf("%s %s failed", method, path)).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodePermanent,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			rejectionMessage(msg, resp.StatusCode)).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode response")
	}
	return nil
}

// rejectionMessage surfaces the server's error message when it sent one.
func rejectionMessage(body []byte, status int) string {
	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && strings.TrimSpace(envelope.Error.Message) != "" {
		return envelope.Error.Message
	}
	return fmt.Sprintf("order service rejected request (status %d)", status)
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}

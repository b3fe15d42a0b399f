package square

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
)

type fakePayments struct {
	req  *sq.CreatePaymentRequest
	resp *sq.CreatePaymentResponse
	err  error
}

func (f *fakePayments) Create(_ context.Context, req *sq.CreatePaymentRequest, _ ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error) {
	f.req = req
	return f.resp, f.err
}

func strPtr(v string) *string { return &v }

func TestEnsureIdempotencyKey(t *testing.T) {
	if got := ensureIdempotencyKey("pref", "custom-key"); got != "custom-key" {
		t.Fatalf("expected provided key, got %q", got)
	}
	if got := ensureIdempotencyKey("prefix", ""); !strings.HasPrefix(got, "prefix-") {
		t.Fatalf("generated idempotency key %q missing prefix", got)
	}
}

func TestRedact(t *testing.T) {
	if out := redact("card_source", "cnon:abc"); out != "[REDACTED]" {
		t.Fatalf("expected redacted value, got %v", out)
	}
	if v := redact("status", "ok"); v != "ok" {
		t.Fatalf("unexpected redaction for safe key")
	}
}

func TestChargeCardConvertsToMinorUnits(t *testing.T) {
	fake := &fakePayments{resp: &sq.CreatePaymentResponse{
		Payment: &sq.Payment{ID: strPtr("pay_1"), Status: strPtr("COMPLETED")},
	}}
	c := &Client{payments: fake, locationID: "LOC1"}

	charge, err := c.ChargeCard(context.Background(), ChargeParams{
		SourceID:    "cnon:card-nonce-ok",
		Amount:      decimal.RequireFromString("232.50"),
		Currency:    "kes",
		ReferenceID: "ref-1",
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if charge.PaymentID != "pay_1" {
		t.Fatalf("unexpected payment id %q", charge.PaymentID)
	}
	if got := *fake.req.AmountMoney.Amount; got != 23250 {
		t.Fatalf("expected 23250 minor units, got %d", got)
	}
	if got := *fake.req.AmountMoney.Currency; got != sq.Currency("KES") {
		t.Fatalf("unexpected currency %s", got)
	}
	if fake.req.LocationID == nil || *fake.req.LocationID != "LOC1" {
		t.Fatalf("location not set")
	}
	if fake.req.IdempotencyKey == "" {
		t.Fatalf("idempotency key missing")
	}
}

func TestChargeCardRejectsUnsettledStatus(t *testing.T) {
	fake := &fakePayments{resp: &sq.CreatePaymentResponse{
		Payment: &sq.Payment{ID: strPtr("pay_2"), Status: strPtr("FAILED")},
	}}
	c := &Client{payments: fake, locationID: "LOC1"}

	_, err := c.ChargeCard(context.Background(), ChargeParams{SourceID: "cnon:x", Amount: decimal.NewFromInt(10)})
	if !pkgerrors.IsCode(err, pkgerrors.CodePaymentFailed) {
		t.Fatalf("expected payment failed, got %v", err)
	}
}

func TestChargeCardValidatesInput(t *testing.T) {
	c := &Client{payments: &fakePayments{}, locationID: "LOC1"}
	if _, err := c.ChargeCard(context.Background(), ChargeParams{Amount: decimal.NewFromInt(10)}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing source, got %v", err)
	}
	if _, err := c.ChargeCard(context.Background(), ChargeParams{SourceID: "cnon:x"}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
}

func TestDomainCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusUnauthorized, pkgerrors.CodeUnauthorized},
		{http.StatusForbidden, pkgerrors.CodeForbidden},
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusConflict, pkgerrors.CodeConflict},
		{http.StatusPaymentRequired, pkgerrors.CodePaymentFailed},
		{http.StatusBadRequest, pkgerrors.CodeValidation},
		{http.StatusInternalServerError, pkgerrors.CodeDependency},
	}
	for _, tt := range tests {
		if got := domainCodeForStatus(tt.status); got != tt.code {
			t.Fatalf("status %d expected %s got %s", tt.status, tt.code, got)
		}
	}
}

func TestMapSquareError(t *testing.T) {
	table := []struct {
		name     string
		status   int
		payload  string
		wantCode pkgerrors.Code
	}{
		{
			name:     "authentication error",
			status:   http.StatusUnauthorized,
			payload:  `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`,
			wantCode: pkgerrors.CodeUnauthorized,
		},
		{
			name:     "idempotency key reused",
			status:   http.StatusConflict,
			payload:  `{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`,
			wantCode: pkgerrors.CodeIdempotency,
		},
		{
			name:     "card declined",
			status:   http.StatusBadRequest,
			payload:  `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CARD_DECLINED","detail":"Card declined."}]}`,
			wantCode: pkgerrors.CodePaymentFailed,
		},
	}
	for _, tt := range table {
		err := sqcore.NewAPIError(tt.status, errors.New(tt.payload))
		typed := pkgerrors.As(mapSquareError(err, "operation"))
		if typed == nil {
			t.Fatalf("%s: result is not pkgerror", tt.name)
		}
		if typed.Code() != tt.wantCode {
			t.Fatalf("%s: expected code %s, got %s", tt.name, tt.wantCode, typed.Code())
		}
	}
}

package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeTransient, status: http.StatusBadGateway, publicMsg: "order service unavailable", retryable: true},
		{code: CodePermanent, status: http.StatusUnprocessableEntity, publicMsg: "order rejected by server", detailsOK: true},
		{code: CodeSyncPartial, status: http.StatusMultiStatus, publicMsg: "some pending sales failed to sync", retryable: true, detailsOK: true},
		{code: CodeStorage, status: http.StatusInsufficientStorage, publicMsg: "local storage unavailable", retryable: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeConfirmationRequired, status: http.StatusConflict, publicMsg: "confirmation required", detailsOK: true},
		{code: CodePaymentFailed, status: http.StatusPaymentRequired, publicMsg: "payment failed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "cart is empty")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "cart is empty" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}
	if base.Retryable() {
		t.Fatalf("validation errors are not retryable")
	}

	base.WithDetails(map[string]any{"field": "items"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("connection refused")
	wrapped := Wrap(CodeTransient, cause, "submit order")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if !wrapped.Retryable() {
		t.Fatalf("transient errors should be retryable")
	}
}

func TestAsAndIsCodeWalkTheChain(t *testing.T) {
	err := fmt.Errorf("enqueue: %w", New(CodeStorage, "disk full"))
	if got := As(err); got == nil || got.Code() != CodeStorage {
		t.Fatalf("As failed to return typed error")
	}
	if !IsCode(err, CodeStorage) {
		t.Fatalf("IsCode should match wrapped storage error")
	}
	if IsCode(err, CodeTransient) {
		t.Fatalf("IsCode should not match a different code")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeStorage, stdErrors.New("database is locked"), "enqueue pending order")
	d := Dump(err)
	if d.Code != CodeStorage {
		t.Fatalf("expected storage code, got %s", d.Code)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %d", len(d.Chain))
	}
}

func TestDumpClassifiesStoreErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		unique bool
		busy   bool
	}{
		{"postgres duplicate", fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "pending_orders_client_reference_key"}), true, false},
		{"sqlite unique", fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}), true, false},
		{"sqlite primary key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, true, false},
		{"sqlite busy", fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrBusy}), false, true},
		{"plain", stdErrors.New("disk full"), false, false},
	}
	for _, tt := range tests {
		d := Dump(tt.err)
		if d.UniqueViolation() != tt.unique {
			t.Fatalf("%s: unique=%v, want %v", tt.name, d.UniqueViolation(), tt.unique)
		}
		if d.StorageBusy() != tt.busy {
			t.Fatalf("%s: busy=%v, want %v", tt.name, d.StorageBusy(), tt.busy)
		}
	}
}

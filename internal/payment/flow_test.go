package payment

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pos-agent/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
	"github.com/angelmondragon/pos-agent/pkg/logger"
	"github.com/angelmondragon/pos-agent/pkg/orderapi"
	"github.com/angelmondragon/pos-agent/pkg/square"
	"github.com/angelmondragon/pos-agent/pkg/types"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

type fakePusher struct {
	got    orderapi.PushRequest
	result *orderapi.PushResult
	err    error
}

func (f *fakePusher) RequestMobileMoneyPush(_ context.Context, req orderapi.PushRequest) (*orderapi.PushResult, error) {
	f.got = req
	return f.result, f.err
}

type fakeCard struct {
	got    square.ChargeParams
	charge *square.Charge
	err    error
}

func (f *fakeCard) ChargeCard(_ context.Context, params square.ChargeParams) (*square.Charge, error) {
	f.got = params
	return f.charge, f.err
}

func newFlow(t *testing.T, pusher PushAuthorizer, card CardProvider) *Flow {
	t.Helper()
	flow, err := NewFlow(FlowParams{
		Logger:      logger.New(logger.Options{ServiceName: "payment-test", Output: io.Discard}),
		Pusher:      pusher,
		Card:        card,
		CountryCode: "254",
		Currency:    "KES",
	})
	require.NoError(t, err)
	return flow
}

func TestCashGatesOnAmountTendered(t *testing.T) {
	flow := newFlow(t, nil, nil)
	total := dec("232")

	err := flow.Validate(Request{Method: enums.PaymentMethodCash, AmountTendered: decPtr("200")}, total)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, "insufficient amount tendered", pkgerrors.As(err).Message())

	req := Request{Method: enums.PaymentMethodCash, AmountTendered: decPtr("300")}
	require.NoError(t, flow.Validate(req, total))

	sel, err := flow.Authorize(context.Background(), req, total, "ref-1")
	require.NoError(t, err)
	require.NotNil(t, sel.Change)
	assert.True(t, sel.Change.Equal(dec("68")), "change %s", sel.Change)
	assert.True(t, sel.Amount.Equal(total))
	assert.False(t, sel.OperatorAttested())
}

func TestCashExactAmountHasZeroChange(t *testing.T) {
	flow := newFlow(t, nil, nil)
	sel, err := flow.Authorize(context.Background(), Request{Method: enums.PaymentMethodCash, AmountTendered: decPtr("232")}, dec("232"), "ref")
	require.NoError(t, err)
	assert.True(t, sel.Change.IsZero())
}

func TestMissingOrUnknownMethod(t *testing.T) {
	flow := newFlow(t, nil, nil)
	assert.True(t, pkgerrors.IsCode(flow.Validate(Request{}, dec("1")), pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.IsCode(flow.Validate(Request{Method: "barter"}, dec("1")), pkgerrors.CodeValidation))
}

func TestMobileMoneyPush(t *testing.T) {
	pusher := &fakePusher{result: &orderapi.PushResult{Status: "success", TransactionID: "QWE123"}}
	flow := newFlow(t, pusher, nil)

	req := Request{Method: enums.PaymentMethodMobileMoney, PhoneNumber: "0712 345 678"}
	sel, err := flow.Authorize(context.Background(), req, dec("232"), "ref-7")
	require.NoError(t, err)

	assert.Equal(t, "254712345678", pusher.got.PhoneNumber)
	assert.Equal(t, "ref-7", pusher.got.Reference)
	assert.Equal(t, "QWE123", sel.ProviderTransactionID)
	assert.Equal(t, types.VerificationAutomated, sel.Verification)
}

func TestMobileMoneyDeclined(t *testing.T) {
	pusher := &fakePusher{result: &orderapi.PushResult{Status: "cancelled", Message: "Request cancelled by user"}}
	flow := newFlow(t, pusher, nil)

	_, err := flow.Authorize(context.Background(), Request{Method: enums.PaymentMethodMobileMoney, PhoneNumber: "+254712345678"}, dec("10"), "ref")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentFailed))
	assert.Equal(t, "Request cancelled by user", pkgerrors.As(err).Message())
}

func TestMobileMoneyRejectsBadPhoneBeforePushing(t *testing.T) {
	pusher := &fakePusher{}
	flow := newFlow(t, pusher, nil)

	err := flow.Validate(Request{Method: enums.PaymentMethodMobileMoney, PhoneNumber: "12345"}, dec("10"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, pusher.got.PhoneNumber)
}

func TestMobileMoneyUnavailableWithoutPusher(t *testing.T) {
	flow := newFlow(t, nil, nil)
	err := flow.Validate(Request{Method: enums.PaymentMethodMobileMoney, PhoneNumber: "0712345678"}, dec("10"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestCardPayment(t *testing.T) {
	card := &fakeCard{charge: &square.Charge{PaymentID: "pay_1", Status: "COMPLETED"}}
	flow := newFlow(t, nil, card)

	sel, err := flow.Authorize(context.Background(), Request{Method: enums.PaymentMethodCard, CardSourceID: "cnon:ok"}, dec("99.50"), "ref-3")
	require.NoError(t, err)
	assert.Equal(t, "pay_1", sel.ProviderTransactionID)
	assert.Equal(t, "KES", card.got.Currency)
	assert.Equal(t, "ref-3", card.got.ReferenceID)
	assert.True(t, card.got.Amount.Equal(dec("99.50")))
}

func TestCardErrorBecomesPaymentFailed(t *testing.T) {
	card := &fakeCard{err: errors.New("connection reset")}
	flow := newFlow(t, nil, card)

	_, err := flow.Authorize(context.Background(), Request{Method: enums.PaymentMethodCard, CardSourceID: "cnon:ok"}, dec("10"), "ref")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentFailed))
}

func TestManualTransferRequiresReferenceAndAttestation(t *testing.T) {
	flow := newFlow(t, nil, nil)
	total := dec("500")

	err := flow.Validate(Request{Method: enums.PaymentMethodManualTransfer, Attested: true}, total)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = flow.Validate(Request{Method: enums.PaymentMethodManualTransfer, Reference: "QK12ABC"}, total)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	sel, err := flow.Authorize(context.Background(), Request{
		Method:    enums.PaymentMethodManualTransfer,
		Reference: " QK12ABC ",
		Attested:  true,
	}, total, "ref")
	require.NoError(t, err)
	assert.Equal(t, "QK12ABC", sel.Reference)
	assert.True(t, sel.OperatorAttested())
	assert.Equal(t, types.VerificationOperatorAttested, sel.Line().Verification)
}

func TestNormalizePhone(t *testing.T) {
	valid := map[string]string{
		"0712345678":       "254712345678",
		"0112345678":       "254112345678",
		"712345678":        "254712345678",
		"+254 712-345-678": "254712345678",
		"254712345678":     "254712345678",
	}
	for in, want := range valid {
		got, err := NormalizePhone(in, "254")
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "0812345678", "07123456", "07123456789", "0712abc678", "25571234567"} {
		_, err := NormalizePhone(in, "254")
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), in)
	}
}

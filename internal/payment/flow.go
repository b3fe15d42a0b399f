package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-agent/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
	"github.com/angelmondragon/pos-agent/pkg/logger"
)

// FlowParams wires the external authorizers. Pusher and Card may be nil, in
// which case those variants report themselves unavailable.
type FlowParams struct {
	Logger      *logger.Logger
	Pusher      PushAuthorizer
	Card        CardProvider
	CountryCode string
	Currency    string
}

// Flow dispatches a payment request to its variant.
type Flow struct {
	logg     *logger.Logger
	variants map[enums.PaymentMethod]Variant
}

func NewFlow(params FlowParams) (*Flow, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	f := &Flow{
		logg:     params.Logger,
		variants: map[enums.PaymentMethod]Variant{},
	}
	f.register(cashVariant{})
	f.register(mobileMoneyVariant{pusher: params.Pusher, countryCode: params.CountryCode})
	f.register(cardVariant{provider: params.Card, currency: params.Currency})
	f.register(manualTransferVariant{logg: params.Logger})
	return f, nil
}

func (f *Flow) register(v Variant) {
	f.variants[v.Method()] = v
}

func (f *Flow) variant(method enums.PaymentMethod) (Variant, error) {
	if method == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}
	v, ok := f.variants[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]any{"method": method})
	}
	return v, nil
}

// Validate checks whether the request may move on to confirmation.
func (f *Flow) Validate(req Request, total decimal.Decimal) error {
	v, err := f.variant(req.Method)
	if err != nil {
		return err
	}
	return v.Validate(req, total)
}

// Authorize settles the payment and returns the normalized selection.
func (f *Flow) Authorize(ctx context.Context, req Request, total decimal.Decimal, reference string) (*Selection, error) {
	v, err := f.variant(req.Method)
	if err != nil {
		return nil, err
	}
	return v.Authorize(ctx, req, total, reference)
}

package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-agent/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
	"github.com/angelmondragon/pos-agent/pkg/logger"
	"github.com/angelmondragon/pos-agent/pkg/orderapi"
	"github.com/angelmondragon/pos-agent/pkg/square"
	"github.com/angelmondragon/pos-agent/pkg/types"
)

const pushStatusSuccess = "success"

// Variant is one way of settling a sale. Validate gates the confirmation
// step; Authorize runs once the cashier confirms.
type Variant interface {
	Method() enums.PaymentMethod
	Validate(req Request, total decimal.Decimal) error
	Authorize(ctx context.Context, req Request, total decimal.Decimal, reference string) (*Selection, error)
}

// PushAuthorizer sends a mobile-money prompt and waits for the customer.
type PushAuthorizer interface {
	RequestMobileMoneyPush(ctx context.Context, req orderapi.PushRequest) (*orderapi.PushResult, error)
}

// CardProvider charges a tokenized card.
type CardProvider interface {
	ChargeCard(ctx context.Context, params square.ChargeParams) (*square.Charge, error)
}

type cashVariant struct{}

func (cashVariant) Method() enums.PaymentMethod { return enums.PaymentMethodCash }

func (cashVariant) Validate(req Request, total decimal.Decimal) error {
	if req.AmountTendered == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount tendered is required")
	}
	if req.AmountTendered.LessThan(total) {
		return pkgerrors.New(pkgerrors.CodeValidation, "insufficient amount tendered").
			WithDetails(map[string]any{
				"total":          total,
				"amountTendered": *req.AmountTendered,
				"shortfall":      total.Sub(*req.AmountTendered),
			})
	}
	return nil
}

func (v cashVariant) Authorize(_ context.Context, req Request, total decimal.Decimal, _ string) (*Selection, error) {
	if err := v.Validate(req, total); err != nil {
		return nil, err
	}
	tendered := *req.AmountTendered
	change := tendered.Sub(total)
	return &Selection{
		Method:         enums.PaymentMethodCash,
		Amount:         total,
		AmountTendered: &tendered,
		Change:         &change,
		Verification:   types.VerificationCountedAtTill,
	}, nil
}

type mobileMoneyVariant struct {
	pusher      PushAuthorizer
	countryCode string
}

func (mobileMoneyVariant) Method() enums.PaymentMethod { return enums.PaymentMethodMobileMoney }

func (v mobileMoneyVariant) Validate(req Request, _ decimal.Decimal) error {
	if v.pusher == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "mobile money is not available on this terminal")
	}
	_, err := NormalizePhone(req.PhoneNumber, v.countryCode)
	return err
}

func (v mobileMoneyVariant) Authorize(ctx context.Context, req Request, total decimal.Decimal, reference string) (*Selection, error) {
	if err := v.Validate(req, total); err != nil {
		return nil, err
	}
	phone, _ := NormalizePhone(req.PhoneNumber, v.countryCode)

	result, err := v.pusher.RequestMobileMoneyPush(ctx, orderapi.PushRequest{
		PhoneNumber: phone,
		Amount:      total,
		Reference:   reference,
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodePermanent {
			return nil, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, typed.Message())
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "mobile money prompt could not be completed")
	}
	if !strings.EqualFold(result.Status, pushStatusSuccess) {
		msg := strings.TrimSpace(result.Message)
		if msg == "" {
			msg = fmt.Sprintf("mobile money payment %s", strings.ToLower(result.Status))
		}
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, msg).
			WithDetails(map[string]any{"status": result.Status})
	}

	return &Selection{
		Method:                enums.PaymentMethodMobileMoney,
		Amount:                total,
		PhoneNumber:           phone,
		ProviderTransactionID: result.TransactionID,
		Verification:          types.VerificationAutomated,
	}, nil
}

type cardVariant struct {
	provider CardProvider
	currency string
}

func (cardVariant) Method() enums.PaymentMethod { return enums.PaymentMethodCard }

func (v cardVariant) Validate(req Request, _ decimal.Decimal) error {
	if v.provider == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "card payments are not available on this terminal")
	}
	if strings.TrimSpace(req.CardSourceID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "card source is required")
	}
	return nil
}

func (v cardVariant) Authorize(ctx context.Context, req Request, total decimal.Decimal, reference string) (*Selection, error) {
	if err := v.Validate(req, total); err != nil {
		return nil, err
	}
	charge, err := v.provider.ChargeCard(ctx, square.ChargeParams{
		SourceID:       req.CardSourceID,
		Amount:         total,
		Currency:       v.currency,
		ReferenceID:    reference,
		IdempotencyKey: "card-" + reference,
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodePaymentFailed) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "card payment could not be completed")
	}
	return &Selection{
		Method:                enums.PaymentMethodCard,
		Amount:                total,
		ProviderTransactionID: charge.PaymentID,
		Verification:          types.VerificationAutomated,
	}, nil
}

type manualTransferVariant struct {
	logg *logger.Logger
}

func (manualTransferVariant) Method() enums.PaymentMethod { return enums.PaymentMethodManualTransfer }

func (manualTransferVariant) Validate(req Request, _ decimal.Decimal) error {
	if strings.TrimSpace(req.Reference) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}
	if !req.Attested {
		return pkgerrors.New(pkgerrors.CodeValidation, "operator must attest the transfer was received")
	}
	return nil
}

func (v manualTransferVariant) Authorize(ctx context.Context, req Request, total decimal.Decimal, reference string) (*Selection, error) {
	if err := v.Validate(req, total); err != nil {
		return nil, err
	}
	transferRef := strings.TrimSpace(req.Reference)
	if v.logg != nil {
		auditCtx := v.logg.WithFields(ctx, map[string]any{
			"payment.method":       string(enums.PaymentMethodManualTransfer),
			"payment.verification": types.VerificationOperatorAttested,
			"payment.reference":    transferRef,
			"payment.amount":       total.String(),
			"client_reference":     reference,
		})
		v.logg.Warn(auditCtx, "manual transfer accepted on operator attestation")
	}
	return &Selection{
		Method:       enums.PaymentMethodManualTransfer,
		Amount:       total,
		Reference:    transferRef,
		Verification: types.VerificationOperatorAttested,
	}, nil
}

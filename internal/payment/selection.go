package payment

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-agent/pkg/enums"
	"github.com/angelmondragon/pos-agent/pkg/types"
)

// Request is what the cashier entered on the payment step.
type Request struct {
	Method         enums.PaymentMethod `json:"method" validate:"required"`
	AmountTendered *decimal.Decimal    `json:"amountTendered,omitempty"`
	PhoneNumber    string              `json:"phoneNumber,omitempty"`
	CardSourceID   string              `json:"cardSourceId,omitempty"`
	Reference      string              `json:"reference,omitempty"`
	Attested       bool                `json:"attested,omitempty"`
}

// Selection is the normalized outcome of a payment variant. The checkout
// orchestrator consumes every variant through this shape.
type Selection struct {
	Method                enums.PaymentMethod `json:"method"`
	Amount                decimal.Decimal     `json:"amount"`
	AmountTendered        *decimal.Decimal    `json:"amountTendered,omitempty"`
	Change                *decimal.Decimal    `json:"change,omitempty"`
	PhoneNumber           string              `json:"phoneNumber,omitempty"`
	Reference             string              `json:"reference,omitempty"`
	ProviderTransactionID string              `json:"providerTransactionId,omitempty"`
	Verification          string              `json:"verification"`
}

// OperatorAttested reports whether the payment rests on the cashier's word
// rather than a provider confirmation.
func (s Selection) OperatorAttested() bool {
	return s.Verification == types.VerificationOperatorAttested
}

// Line converts the selection into the submitted payments entry.
func (s Selection) Line() types.PaymentLine {
	return types.PaymentLine{
		Method:                s.Method,
		Amount:                s.Amount,
		AmountTendered:        s.AmountTendered,
		Change:                s.Change,
		PhoneNumber:           s.PhoneNumber,
		Reference:             s.Reference,
		ProviderTransactionID: s.ProviderTransactionID,
		Verification:          s.Verification,
	}
}

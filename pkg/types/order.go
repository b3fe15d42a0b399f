package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-agent/pkg/enums"
)

const (
	VerificationAutomated        = "automated"
	VerificationCountedAtTill    = "counted_at_till"
	VerificationOperatorAttested = "operator_attested"
)

// OrderItem is one submitted sale line.
type OrderItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Discount  decimal.Decimal `json:"discount"`
}

// MarshalJSON writes money as JSON numbers, the form the order service reads.
func (i OrderItem) MarshalJSON() ([]byte, error) {
	type wire OrderItem
	return json.Marshal(struct {
		wire
		UnitPrice json.Number `json:"unitPrice"`
		Discount  json.Number `json:"discount"`
	}{wire(i), MoneyNumber(i.UnitPrice), MoneyNumber(i.Discount)})
}

// PaymentLine records how (part of) a sale was settled.
type PaymentLine struct {
	Method                enums.PaymentMethod `json:"method"`
	Amount                decimal.Decimal     `json:"amount"`
	AmountTendered        *decimal.Decimal    `json:"amountTendered,omitempty"`
	Change                *decimal.Decimal    `json:"change,omitempty"`
	PhoneNumber           string              `json:"phoneNumber,omitempty"`
	Reference             string              `json:"reference,omitempty"`
	ProviderTransactionID string              `json:"providerTransactionId,omitempty"`
	Verification          string              `json:"verification"`
}

func (l PaymentLine) MarshalJSON() ([]byte, error) {
	type wire PaymentLine
	return json.Marshal(struct {
		wire
		Amount         json.Number  `json:"amount"`
		AmountTendered *json.Number `json:"amountTendered,omitempty"`
		Change         *json.Number `json:"change,omitempty"`
	}{wire(l), MoneyNumber(l.Amount), optionalMoney(l.AmountTendered), optionalMoney(l.Change)})
}

// OrderPayload is the checkout submission body, stored verbatim in the
// offline queue when the order service cannot be reached.
type OrderPayload struct {
	ClientReference string            `json:"clientReference"`
	Items           []OrderItem       `json:"items"`
	TaxRate         decimal.Decimal   `json:"taxRate"`
	Total           decimal.Decimal   `json:"total"`
	Payments        []PaymentLine     `json:"payments"`
	Status          enums.OrderStatus `json:"status"`
	IsOffline       bool              `json:"isOffline"`
	Notes           *string           `json:"notes,omitempty"`
	CustomerName    *string           `json:"customerName,omitempty"`
	CashierID       string            `json:"cashierId"`
	CashierName     string            `json:"cashierName"`
	BranchID        string            `json:"branchId,omitempty"`
	TerminalID      string            `json:"terminalId,omitempty"`
	CapturedAt      time.Time         `json:"capturedAt"`
}

func (p OrderPayload) MarshalJSON() ([]byte, error) {
	type wire OrderPayload
	return json.Marshal(struct {
		wire
		TaxRate json.Number `json:"taxRate"`
		Total   json.Number `json:"total"`
	}{wire(p), MoneyNumber(p.TaxRate), MoneyNumber(p.Total)})
}

// Clone returns a deep copy of the payload.
func (p OrderPayload) Clone() OrderPayload {
	out := p
	out.Items = append([]OrderItem(nil), p.Items...)
	out.Payments = append([]PaymentLine(nil), p.Payments...)
	if p.Notes != nil {
		notes := *p.Notes
		out.Notes = &notes
	}
	if p.CustomerName != nil {
		name := *p.CustomerName
		out.CustomerName = &name
	}
	return out
}

// AsOffline marks a copy of the payload for the offline queue.
func (p OrderPayload) AsOffline() OrderPayload {
	out := p.Clone()
	out.Status = enums.OrderStatusPending
	out.IsOffline = true
	return out
}

// AsCompleted marks a copy of the payload for a live submission or resubmission.
func (p OrderPayload) AsCompleted() OrderPayload {
	out := p.Clone()
	out.Status = enums.OrderStatusCompleted
	out.IsOffline = false
	return out
}

// MoneyNumber renders an amount as a bare JSON number. Only the order service
// wire types use it; the local API keeps decimals quoted.
func MoneyNumber(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func optionalMoney(d *decimal.Decimal) *json.Number {
	if d == nil {
		return nil
	}
	n := MoneyNumber(*d)
	return &n
}

package receipt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-agent/internal/cart"
	"github.com/angelmondragon/pos-agent/internal/payment"
	"github.com/angelmondragon/pos-agent/pkg/enums"
	"github.com/angelmondragon/pos-agent/pkg/logger"
)

// Line is one printed sale line.
type Line struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Discount  decimal.Decimal `json:"discount"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// Receipt is the read-only projection of a completed or offline-accepted sale.
type Receipt struct {
	OrderNumber     string              `json:"orderNumber"`
	ClientReference string              `json:"clientReference"`
	Date            time.Time           `json:"date"`
	Items           []Line              `json:"items"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	DiscountTotal   decimal.Decimal     `json:"discountTotal"`
	Tax             decimal.Decimal     `json:"tax"`
	TaxRate         decimal.Decimal     `json:"taxRate"`
	Total           decimal.Decimal     `json:"total"`
	Currency        string              `json:"currency,omitempty"`
	CustomerName    string              `json:"customerName,omitempty"`
	CashierName     string              `json:"cashierName"`
	PaymentMethod   enums.PaymentMethod `json:"paymentMethod"`
	AmountTendered  *decimal.Decimal    `json:"amountTendered,omitempty"`
	Change          *decimal.Decimal    `json:"change,omitempty"`
	PaymentRef      string              `json:"paymentReference,omitempty"`
	Verification    string              `json:"verification"`
	Notes           string              `json:"notes,omitempty"`
	Offline         bool                `json:"offline"`
}

// Input gathers what a receipt is built from.
type Input struct {
	OrderNumber     string
	ClientReference string
	Date            time.Time
	Sale            cart.Snapshot
	Payment         payment.Selection
	CashierName     string
	Currency        string
	Offline         bool
}

// OfflineOrderNumber is the provisional number printed for a queued sale.
func OfflineOrderNumber(localID int64) string {
	return fmt.Sprintf("OFFLINE-%d", localID)
}

func Build(in Input) Receipt {
	lines := make([]Line, 0, len(in.Sale.Items))
	for _, item := range in.Sale.Items {
		unitDiscount := item.UnitDiscount()
		qty := decimal.NewFromInt(int64(item.Quantity))
		lines = append(lines, Line{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  unitDiscount,
			LineTotal: item.UnitPrice.Sub(unitDiscount).Mul(qty),
		})
	}

	paymentRef := in.Payment.ProviderTransactionID
	if paymentRef == "" {
		paymentRef = in.Payment.Reference
	}

	return Receipt{
		OrderNumber:     in.OrderNumber,
		ClientReference: in.ClientReference,
		Date:            in.Date,
		Items:           lines,
		Subtotal:        in.Sale.Totals.Subtotal,
		DiscountTotal:   in.Sale.Totals.DiscountTotal,
		Tax:             in.Sale.Totals.Tax,
		TaxRate:         in.Sale.Totals.TaxRate,
		Total:           in.Sale.Totals.Total,
		Currency:        in.Currency,
		CustomerName:    strings.TrimSpace(in.Sale.CustomerName),
		CashierName:     in.CashierName,
		PaymentMethod:   in.Payment.Method,
		AmountTendered:  in.Payment.AmountTendered,
		Change:          in.Payment.Change,
		PaymentRef:      paymentRef,
		Verification:    in.Payment.Verification,
		Notes:           strings.TrimSpace(in.Sale.Notes),
		Offline:         in.Offline,
	}
}

// Printer hands a receipt to the print/preview collaborator. No response is
// expected beyond delivery.
type Printer interface {
	Print(ctx context.Context, r Receipt) error
}

// LogPrinter records receipts in the terminal log when no device is attached.
type LogPrinter struct {
	Logger *logger.Logger
}

func (p LogPrinter) Print(ctx context.Context, r Receipt) error {
	if p.Logger == nil {
		return nil
	}
	ctx = p.Logger.WithFields(ctx, map[string]any{
		"order_number":     r.OrderNumber,
		"client_reference": r.ClientReference,
		"total":            r.Total.String(),
		"payment_method":   string(r.PaymentMethod),
		"offline":          r.Offline,
		"lines":            len(r.Items),
	})
	p.Logger.Info(ctx, "receipt issued")
	return nil
}

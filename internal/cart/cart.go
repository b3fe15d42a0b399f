package cart

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-agent/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
)

// taxRoundingPlaces rounds tax to whole currency units.
const taxRoundingPlaces = 0

var hundred = decimal.NewFromInt(100)

// Product is the catalog record used to add a line to the cart.
type Product struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      *int            `json:"stock,omitempty"`
	CategoryID string          `json:"categoryId,omitempty"`
	Barcode    string          `json:"barcode,omitempty"`
}

// Item is a cart line, unique per product.
type Item struct {
	ProductID    string             `json:"productId"`
	Name         string             `json:"name"`
	Quantity     int                `json:"quantity"`
	UnitPrice    decimal.Decimal    `json:"unitPrice"`
	Discount     decimal.Decimal    `json:"discount"`
	DiscountType enums.DiscountType `json:"discountType"`
}

// UnitDiscount resolves the per-unit discount amount.
func (i Item) UnitDiscount() decimal.Decimal {
	if i.DiscountType == enums.DiscountTypePercentage {
		return i.UnitPrice.Mul(i.Discount).Div(hundred)
	}
	return i.Discount
}

// TaxConfig is supplied by the tax configuration lookup.
type TaxConfig struct {
	Enabled bool            `json:"enabled"`
	Rate    decimal.Decimal `json:"rate"`
}

// Totals are always derived from the items and the tax config.
type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discountTotal"`
	Tax           decimal.Decimal `json:"tax"`
	TaxRate       decimal.Decimal `json:"taxRate"`
	Total         decimal.Decimal `json:"total"`
}

// ComputeTotals derives subtotal, discount, tax and total for items.
func ComputeTotals(items []Item, tax TaxConfig) Totals {
	subtotal := decimal.Zero
	discountTotal := decimal.Zero
	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		subtotal = subtotal.Add(item.UnitPrice.Mul(qty))
		discountTotal = discountTotal.Add(item.UnitDiscount().Mul(qty))
	}

	taxable := subtotal.Sub(discountTotal)
	taxAmount := decimal.Zero
	rate := decimal.Zero
	if tax.Enabled {
		rate = tax.Rate
		taxAmount = taxable.Mul(rate).Round(taxRoundingPlaces)
	}

	return Totals{
		Subtotal:      subtotal,
		DiscountTotal: discountTotal,
		Tax:           taxAmount,
		TaxRate:       rate,
		Total:         taxable.Add(taxAmount),
	}
}

// Snapshot is an immutable copy of the cart contents.
type Snapshot struct {
	Items        []Item `json:"items"`
	CustomerName string `json:"customerName,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Totals       Totals `json:"totals"`
}

// Cart holds the current unsubmitted sale. It is safe for concurrent use.
type Cart struct {
	mu           sync.RWMutex
	items        []Item
	customerName string
	notes        string
	tax          TaxConfig
	totals       Totals
}

func New(tax TaxConfig) *Cart {
	c := &Cart{tax: tax}
	c.recompute()
	return c
}

func invalid(message string, details map[string]any) error {
	err := pkgerrors.New(pkgerrors.CodeValidation, message)
	if details != nil {
		err = err.WithDetails(details)
	}
	return err
}

// AddItem increments the line for product, or appends it with quantity 1.
func (c *Cart) AddItem(product Product) error {
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return invalid("product id is required", nil)
	}
	if product.Price.IsNegative() {
		return invalid("product price must not be negative", map[string]any{"productId": id})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexOf(id); idx >= 0 {
		c.items[idx].Quantity++
	} else {
		c.items = append(c.items, Item{
			ProductID:    id,
			Name:         product.Name,
			Quantity:     1,
			UnitPrice:    product.Price,
			Discount:     decimal.Zero,
			DiscountType: enums.DiscountTypeFixed,
		})
	}
	c.recompute()
	return nil
}

func (c *Cart) RemoveItem(productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(productID)
	if idx < 0 {
		return invalid("item not in cart", map[string]any{"productId": productID})
	}
	c.items = append(c.items[:idx], c.items[idx+1:]...)
	c.recompute()
	return nil
}

// SetQuantity replaces the quantity of a line; qty must be a positive integer.
func (c *Cart) SetQuantity(productID string, qty int) error {
	if qty < 1 {
		return invalid("quantity must be a positive integer", map[string]any{"productId": productID, "quantity": qty})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(productID)
	if idx < 0 {
		return invalid("item not in cart", map[string]any{"productId": productID})
	}
	c.items[idx].Quantity = qty
	c.recompute()
	return nil
}

// ApplyDiscount sets the per-unit discount of a line.
func (c *Cart) ApplyDiscount(productID string, amount decimal.Decimal, discountType enums.DiscountType) error {
	if amount.IsNegative() {
		return invalid("discount must not be negative", map[string]any{"productId": productID})
	}
	if !discountType.IsValid() {
		return invalid("invalid discount type", map[string]any{"discountType": discountType})
	}
	if discountType == enums.DiscountTypePercentage && amount.GreaterThan(hundred) {
		return invalid("percentage discount must not exceed 100", map[string]any{"productId": productID})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(productID)
	if idx < 0 {
		return invalid("item not in cart", map[string]any{"productId": productID})
	}
	if discountType == enums.DiscountTypeFixed && amount.GreaterThan(c.items[idx].UnitPrice) {
		return invalid("discount must not exceed the unit price", map[string]any{"productId": productID})
	}
	c.items[idx].Discount = amount
	c.items[idx].DiscountType = discountType
	c.recompute()
	return nil
}

func (c *Cart) SetCustomerName(name string) {
	c.mu.Lock()
	c.customerName = strings.TrimSpace(name)
	c.mu.Unlock()
}

func (c *Cart) SetNotes(notes string) {
	c.mu.Lock()
	c.notes = strings.TrimSpace(notes)
	c.mu.Unlock()
}

// SetTaxConfig replaces the tax configuration and recomputes totals.
func (c *Cart) SetTaxConfig(tax TaxConfig) error {
	if tax.Rate.IsNegative() || tax.Rate.GreaterThan(decimal.NewFromInt(1)) {
		return invalid("tax rate must be between 0 and 1", map[string]any{"rate": tax.Rate.String()})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tax = tax
	c.recompute()
	return nil
}

func (c *Cart) TaxConfig() TaxConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tax
}

func (c *Cart) Items() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Item(nil), c.items...)
}

func (c *Cart) Totals() Totals {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totals
}

func (c *Cart) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items) == 0
}

func (c *Cart) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Items:        append([]Item(nil), c.items...),
		CustomerName: c.customerName,
		Notes:        c.notes,
		Totals:       c.totals,
	}
}

// Restore replaces the cart contents with snapshot, keeping the tax config.
func (c *Cart) Restore(snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]Item(nil), snapshot.Items...)
	c.customerName = snapshot.CustomerName
	c.notes = snapshot.Notes
	c.recompute()
}

// Clear empties the cart, keeping the tax config.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	c.customerName = ""
	c.notes = ""
	c.recompute()
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.items {
		if c.items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// recompute must be called with mu held.
func (c *Cart) recompute() {
	c.totals = ComputeTotals(c.items, c.tax)
}

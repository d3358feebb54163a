package cart

import (
	"errors"
	"fmt"

	"github.com/noah-isme/backend-pos/internal/pricing"
)

// ErrLineNotFound indicates the requested product has no line in the cart.
var ErrLineNotFound = errors.New("cart line not found")

// ErrInvalidQuantity is returned when a quantity would leave a line below one unit.
var ErrInvalidQuantity = errors.New("invalid quantity")

// Product is the catalog reference a line is created from. The cart treats it
// as immutable input owned by the catalog collaborator.
type Product struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	UnitPrice pricing.Money `json:"unitPrice"`
	Unit      string        `json:"unit"`
}

// Line is one product entry in the cart with its own quantity and discount.
type Line struct {
	ProductID      string           `json:"productId"`
	ProductName    string           `json:"productName"`
	Unit           string           `json:"unit"`
	Qty            int              `json:"qty"`
	OriginalPrice  pricing.Money    `json:"originalPrice"`
	Discount       pricing.Discount `json:"discount"`
	UnitPrice      pricing.Money    `json:"unitPrice"`
	DiscountAmount pricing.Money    `json:"discountAmount"`
}

// Subtotal returns the discounted line total.
func (l Line) Subtotal() pricing.Money {
	return pricing.Money(l.Qty) * l.UnitPrice
}

// Cart holds the in-progress, uncommitted lines for one working session.
// It is owned by a single cashier session and is not safe for concurrent use.
type Cart struct {
	lines    []Line
	taxBps   int
	shipping pricing.Money
}

// New constructs an empty cart with branch-level tax and shipping inputs.
func New(taxBps int, shipping pricing.Money) *Cart {
	if shipping < 0 {
		shipping = 0
	}
	return &Cart{taxBps: taxBps, shipping: shipping}
}

// AddItem inserts a new line for the product or increments an existing one.
func (c *Cart) AddItem(p Product, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("qty must be positive: %w", ErrInvalidQuantity)
	}
	if p.ID == "" {
		return fmt.Errorf("product id required: %w", ErrLineNotFound)
	}
	if idx := c.index(p.ID); idx >= 0 {
		c.lines[idx].Qty += qty
		return nil
	}
	applied, err := pricing.ApplyDiscount(p.UnitPrice, pricing.None())
	if err != nil {
		return err
	}
	c.lines = append(c.lines, Line{
		ProductID:      p.ID,
		ProductName:    p.Name,
		Unit:           p.Unit,
		Qty:            qty,
		OriginalPrice:  p.UnitPrice,
		Discount:       pricing.None(),
		UnitPrice:      applied.UnitPrice,
		DiscountAmount: applied.Amount,
	})
	return nil
}

// SetQuantity replaces the quantity of an existing line. Quantities below one
// are rejected; use RemoveItem to delete a line.
func (c *Cart) SetQuantity(productID string, qty int) error {
	idx := c.index(productID)
	if idx < 0 {
		return fmt.Errorf("product %s: %w", productID, ErrLineNotFound)
	}
	if qty < 1 {
		return fmt.Errorf("qty must be at least 1: %w", ErrInvalidQuantity)
	}
	c.lines[idx].Qty = qty
	return nil
}

// RemoveItem deletes the line for the given product.
func (c *Cart) RemoveItem(productID string) error {
	idx := c.index(productID)
	if idx < 0 {
		return fmt.Errorf("product %s: %w", productID, ErrLineNotFound)
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	return nil
}

// SetDiscount applies a discount to a line. The discount replaces any previous
// one and is always computed from the original price, never compounded. On
// validation failure the line is left unchanged.
func (c *Cart) SetDiscount(productID string, d pricing.Discount) error {
	idx := c.index(productID)
	if idx < 0 {
		return fmt.Errorf("product %s: %w", productID, ErrLineNotFound)
	}
	applied, err := pricing.ApplyDiscount(c.lines[idx].OriginalPrice, d)
	if err != nil {
		return err
	}
	c.lines[idx].Discount = d
	c.lines[idx].UnitPrice = applied.UnitPrice
	c.lines[idx].DiscountAmount = applied.Amount
	return nil
}

// ClearDiscount resets a line to its undiscounted price.
func (c *Cart) ClearDiscount(productID string) error {
	return c.SetDiscount(productID, pricing.None())
}

// Totals derives the current cart totals. Totals are never cached; every call
// recomputes from the live lines.
func (c *Cart) Totals() pricing.Summary {
	items := make([]pricing.Line, 0, len(c.lines))
	for _, l := range c.lines {
		items = append(items, pricing.Line{Qty: l.Qty, UnitPrice: l.UnitPrice})
	}
	return pricing.Totals(items, c.taxBps, c.shipping)
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Snapshot returns the lines and totals decoupled from the live cart so a
// committed sale cannot be altered by later mutations.
func (c *Cart) Snapshot() ([]Line, pricing.Summary) {
	return c.Lines(), c.Totals()
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// Clear removes all lines. Called after a confirmed checkout or an explicit cancel.
func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) index(productID string) int {
	for i, l := range c.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

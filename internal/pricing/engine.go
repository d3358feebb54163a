package pricing

import (
	"errors"
	"fmt"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// ErrInvalidDiscount is returned when a discount value is outside its allowed range.
var ErrInvalidDiscount = errors.New("invalid discount")

// ErrInvalidQuantity is returned when a line quantity is not positive.
var ErrInvalidQuantity = errors.New("invalid quantity")

// ErrInvalidPrice is returned when a unit price is negative.
var ErrInvalidPrice = errors.New("invalid price")

// DiscountKind enumerates the supported per-line discount modes.
type DiscountKind string

const (
	// DiscountNone leaves the original unit price untouched.
	DiscountNone DiscountKind = "none"
	// DiscountNominal subtracts a fixed minor-unit amount per unit.
	DiscountNominal DiscountKind = "nominal"
	// DiscountPercentage subtracts a percentage of the unit price, 0-100 inclusive.
	DiscountPercentage DiscountKind = "percentage"
)

// Discount describes a per-line price reduction.
type Discount struct {
	Kind  DiscountKind `json:"kind"`
	Value Money        `json:"value"`
}

// None returns the zero discount.
func None() Discount {
	return Discount{Kind: DiscountNone}
}

// Applied holds the result of applying a discount to a unit price.
type Applied struct {
	UnitPrice Money
	Amount    Money
}

// Line describes a cart line as seen by the totals calculation.
type Line struct {
	Qty       int
	UnitPrice Money
}

// Summary aggregates computed cart totals.
type Summary struct {
	Subtotal Money `json:"subtotal"`
	Tax      Money `json:"tax"`
	Shipping Money `json:"shipping"`
	Total    Money `json:"total"`
}

// ApplyDiscount computes the discounted unit price and the discount amount for
// one unit. The discounted price never drops below zero and the amount never
// exceeds the original price. Input is validated, not silently clamped.
func ApplyDiscount(originalPrice Money, d Discount) (Applied, error) {
	if originalPrice < 0 {
		return Applied{}, fmt.Errorf("original price must not be negative: %w", ErrInvalidPrice)
	}
	var amount Money
	switch d.Kind {
	case DiscountNone, "":
		amount = 0
	case DiscountNominal:
		if d.Value < 0 {
			return Applied{}, fmt.Errorf("nominal discount must not be negative: %w", ErrInvalidDiscount)
		}
		amount = d.Value
		if amount > originalPrice {
			amount = originalPrice
		}
	case DiscountPercentage:
		if d.Value < 0 || d.Value > 100 {
			return Applied{}, fmt.Errorf("percentage discount must be between 0 and 100: %w", ErrInvalidDiscount)
		}
		amount = roundHalfUp(originalPrice*d.Value, 100)
	default:
		return Applied{}, fmt.Errorf("unknown discount kind %q: %w", d.Kind, ErrInvalidDiscount)
	}
	return Applied{UnitPrice: originalPrice - amount, Amount: amount}, nil
}

// LineTotal returns the discounted line total for the given quantity.
func LineTotal(unitPrice Money, qty int) (Money, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("qty must be positive: %w", ErrInvalidQuantity)
	}
	if unitPrice < 0 {
		return 0, fmt.Errorf("unit price must not be negative: %w", ErrInvalidPrice)
	}
	return Money(qty) * unitPrice, nil
}

// Totals calculates cart totals given the provided lines. The tax rate is
// expressed in basis points. Recomputing with identical inputs always yields
// identical output.
func Totals(lines []Line, taxBps int, shipping Money) Summary {
	var subtotal Money
	for _, l := range lines {
		if l.Qty <= 0 || l.UnitPrice < 0 {
			continue
		}
		subtotal += Money(l.Qty) * l.UnitPrice
	}
	if shipping < 0 {
		shipping = 0
	}
	tax := roundHalfUp(subtotal*Money(taxBps), 10000)
	return Summary{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal + tax + shipping,
	}
}

// roundHalfUp divides num by den rounding half away from zero toward positive
// infinity, staying in integer minor units.
func roundHalfUp(num, den Money) Money {
	if den <= 0 {
		return 0
	}
	return (num + den/2) / den
}

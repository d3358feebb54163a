package cart_test

import (
	"errors"
	"testing"

	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

var (
	productA = cart.Product{ID: "prod-a", Name: "Beras 5kg", UnitPrice: 10_000, Unit: "pcs"}
	productB = cart.Product{ID: "prod-b", Name: "Minyak Goreng", UnitPrice: 5_000, Unit: "pcs"}
)

func TestAddItemIncrementsExistingLine(t *testing.T) {
	c := cart.New(1000, 0)
	if err := c.AddItem(productA, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.AddItem(productA, 2); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	lines := c.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	if lines[0].Qty != 3 {
		t.Fatalf("expected qty 3, got %d", lines[0].Qty)
	}
}

func TestAddItemRejectsNonPositiveQty(t *testing.T) {
	c := cart.New(1000, 0)
	if err := c.AddItem(productA, 0); !errors.Is(err, cart.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestSetQuantity(t *testing.T) {
	c := cart.New(1000, 0)
	if err := c.AddItem(productA, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.SetQuantity("prod-a", 5); err != nil {
		t.Fatalf("set qty: %v", err)
	}
	if got := c.Lines()[0].Qty; got != 5 {
		t.Fatalf("expected qty 5, got %d", got)
	}
	if err := c.SetQuantity("prod-a", 0); !errors.Is(err, cart.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if err := c.SetQuantity("missing", 2); !errors.Is(err, cart.ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound, got %v", err)
	}
}

func TestRemoveItem(t *testing.T) {
	c := cart.New(1000, 0)
	if err := c.AddItem(productA, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.RemoveItem("prod-a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !c.Empty() {
		t.Fatal("expected empty cart")
	}
	if err := c.RemoveItem("prod-a"); !errors.Is(err, cart.ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound, got %v", err)
	}
}

func TestSetDiscountReplacesNotCompounds(t *testing.T) {
	c := cart.New(1000, 0)
	if err := c.AddItem(productA, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.SetDiscount("prod-a", pricing.Discount{Kind: pricing.DiscountPercentage, Value: 10}); err != nil {
		t.Fatalf("first discount: %v", err)
	}
	// Applying the same discount again must not stack on the already
	// discounted price.
	if err := c.SetDiscount("prod-a", pricing.Discount{Kind: pricing.DiscountPercentage, Value: 10}); err != nil {
		t.Fatalf("second discount: %v", err)
	}
	line := c.Lines()[0]
	if line.UnitPrice != 9_000 || line.DiscountAmount != 1_000 {
		t.Fatalf("expected 9000/1000, got %d/%d", line.UnitPrice, line.DiscountAmount)
	}
}

func TestSetDiscountInvalidLeavesLineUnchanged(t *testing.T) {
	c := cart.New(1000, 0)
	if err := c.AddItem(productA, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.SetDiscount("prod-a", pricing.Discount{Kind: pricing.DiscountNominal, Value: 2_000}); err != nil {
		t.Fatalf("valid discount: %v", err)
	}
	err := c.SetDiscount("prod-a", pricing.Discount{Kind: pricing.DiscountPercentage, Value: 150})
	if !errors.Is(err, pricing.ErrInvalidDiscount) {
		t.Fatalf("expected ErrInvalidDiscount, got %v", err)
	}
	line := c.Lines()[0]
	if line.UnitPrice != 8_000 || line.Discount.Kind != pricing.DiscountNominal {
		t.Fatalf("line mutated by rejected discount: %+v", line)
	}
}

func TestClearDiscount(t *testing.T) {
	c := cart.New(1000, 0)
	if err := c.AddItem(productA, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.SetDiscount("prod-a", pricing.Discount{Kind: pricing.DiscountPercentage, Value: 50}); err != nil {
		t.Fatalf("discount: %v", err)
	}
	if err := c.ClearDiscount("prod-a"); err != nil {
		t.Fatalf("clear discount: %v", err)
	}
	line := c.Lines()[0]
	if line.UnitPrice != 10_000 || line.DiscountAmount != 0 {
		t.Fatalf("expected undiscounted line, got %+v", line)
	}
}

func TestTotalsScenario(t *testing.T) {
	c := cart.New(1000, 2_000)
	if err := c.AddItem(productA, 2); err != nil {
		t.Fatalf("add A: %v", err)
	}
	if err := c.SetDiscount("prod-a", pricing.Discount{Kind: pricing.DiscountPercentage, Value: 10}); err != nil {
		t.Fatalf("discount A: %v", err)
	}
	if err := c.AddItem(productB, 1); err != nil {
		t.Fatalf("add B: %v", err)
	}
	summary := c.Totals()
	if summary.Subtotal != 23_000 {
		t.Fatalf("expected subtotal 23000, got %d", summary.Subtotal)
	}
	if summary.Tax != 2_300 {
		t.Fatalf("expected tax 2300, got %d", summary.Tax)
	}
	if summary.Total != 27_300 {
		t.Fatalf("expected total 27300, got %d", summary.Total)
	}
}

func TestTotalsAfterClear(t *testing.T) {
	c := cart.New(1000, 2_000)
	if err := c.AddItem(productA, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	c.Clear()
	summary := c.Totals()
	if summary.Subtotal != 0 || summary.Tax != 0 || summary.Total != 2_000 {
		t.Fatalf("expected empty totals with shipping only, got %+v", summary)
	}
}

func TestSnapshotDecoupledFromLiveCart(t *testing.T) {
	c := cart.New(1000, 0)
	if err := c.AddItem(productA, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	lines, totals := c.Snapshot()
	c.Clear()
	if len(lines) != 1 || lines[0].Qty != 2 {
		t.Fatalf("snapshot mutated by clear: %+v", lines)
	}
	if totals.Subtotal != 20_000 {
		t.Fatalf("expected snapshot subtotal 20000, got %d", totals.Subtotal)
	}
}

func TestLinesPreserveInsertionOrder(t *testing.T) {
	c := cart.New(0, 0)
	if err := c.AddItem(productB, 1); err != nil {
		t.Fatalf("add B: %v", err)
	}
	if err := c.AddItem(productA, 1); err != nil {
		t.Fatalf("add A: %v", err)
	}
	lines := c.Lines()
	if lines[0].ProductID != "prod-b" || lines[1].ProductID != "prod-a" {
		t.Fatalf("unexpected order: %s, %s", lines[0].ProductID, lines[1].ProductID)
	}
}

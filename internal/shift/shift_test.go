package shift_test

import (
	"errors"
	"testing"
	"time"

	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/settlement"
	"github.com/noah-isme/backend-pos/internal/shift"
)

func cashSale(amount pricing.Money) settlement.FinalizedSale {
	return settlement.FinalizedSale{
		Reference: "ref",
		Method:    settlement.MethodCash,
		Totals:    pricing.Summary{Total: amount},
		CreatedAt: time.Now(),
	}
}

func TestStartRejectsNegativeBalance(t *testing.T) {
	_, err := shift.Start("sh-1", "branch-1", "user-1", -1, time.Now())
	if !errors.Is(err, shift.ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestExpectedCashAccumulates(t *testing.T) {
	s, err := shift.Start("sh-1", "branch-1", "user-1", 50_000, time.Now())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.RecordSale(cashSale(10_000)); err != nil {
			t.Fatalf("record sale %d: %v", i, err)
		}
	}
	calcs, err := s.PrepareEnd()
	if err != nil {
		t.Fatalf("prepare end: %v", err)
	}
	if calcs.ExpectedCash != 80_000 {
		t.Fatalf("expected cash 80000, got %d", calcs.ExpectedCash)
	}
	if calcs.TotalSales != 30_000 {
		t.Fatalf("expected total sales 30000, got %d", calcs.TotalSales)
	}
}

func TestPrepareEndIsPure(t *testing.T) {
	s, err := shift.Start("sh-1", "branch-1", "user-1", 10_000, time.Now())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.RecordSale(cashSale(5_000)); err != nil {
		t.Fatalf("record: %v", err)
	}
	first, _ := s.PrepareEnd()
	second, _ := s.PrepareEnd()
	if first.ExpectedCash != second.ExpectedCash || first.TotalSales != second.TotalSales {
		t.Fatalf("repeated PrepareEnd diverged: %+v vs %+v", first, second)
	}
}

func TestNonCashSalesDoNotMoveExpectedCash(t *testing.T) {
	s, err := shift.Start("sh-1", "branch-1", "user-1", 20_000, time.Now())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	transfer := cashSale(15_000)
	transfer.Method = settlement.MethodTransfer
	credit := cashSale(7_000)
	credit.Method = settlement.MethodCredit
	if err := s.RecordSale(transfer); err != nil {
		t.Fatalf("record transfer: %v", err)
	}
	if err := s.RecordSale(credit); err != nil {
		t.Fatalf("record credit: %v", err)
	}
	calcs, err := s.PrepareEnd()
	if err != nil {
		t.Fatalf("prepare end: %v", err)
	}
	if calcs.ExpectedCash != 20_000 {
		t.Fatalf("expected cash to stay at starting balance, got %d", calcs.ExpectedCash)
	}
	if calcs.SalesByMethod[settlement.MethodTransfer] != 15_000 {
		t.Fatalf("expected transfer total 15000, got %d", calcs.SalesByMethod[settlement.MethodTransfer])
	}
	if calcs.TotalSales != 22_000 {
		t.Fatalf("expected total sales 22000, got %d", calcs.TotalSales)
	}
}

func TestEndComputesVariance(t *testing.T) {
	s, err := shift.Start("sh-1", "branch-1", "user-1", 50_000, time.Now())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.RecordSale(cashSale(10_000)); err != nil {
		t.Fatalf("record: %v", err)
	}
	snap, err := s.End(59_000, time.Now())
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if snap.Status != shift.StatusEnded {
		t.Fatalf("expected ended status, got %s", snap.Status)
	}
	if *snap.ExpectedCash != 60_000 {
		t.Fatalf("expected cash 60000, got %d", *snap.ExpectedCash)
	}
	// 1000 short in the drawer.
	if *snap.Variance != -1_000 {
		t.Fatalf("expected variance -1000, got %d", *snap.Variance)
	}
}

func TestEndTwiceFails(t *testing.T) {
	s, err := shift.Start("sh-1", "branch-1", "user-1", 0, time.Now())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.End(0, time.Now()); err != nil {
		t.Fatalf("first end: %v", err)
	}
	if _, err := s.End(0, time.Now()); !errors.Is(err, shift.ErrAlreadyEnded) {
		t.Fatalf("expected ErrAlreadyEnded, got %v", err)
	}
}

func TestEndedShiftIsFrozen(t *testing.T) {
	s, err := shift.Start("sh-1", "branch-1", "user-1", 0, time.Now())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.RecordSale(cashSale(4_000)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := s.End(4_000, time.Now()); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := s.RecordSale(cashSale(1_000)); !errors.Is(err, shift.ErrShiftNotActive) {
		t.Fatalf("expected ErrShiftNotActive, got %v", err)
	}
	if _, err := s.PrepareEnd(); !errors.Is(err, shift.ErrShiftNotActive) {
		t.Fatalf("expected ErrShiftNotActive, got %v", err)
	}
	if got := s.Snapshot().SalesByMethod[settlement.MethodCash]; got != 4_000 {
		t.Fatalf("ledger mutated after end: %d", got)
	}
}

func TestRestoreRebuildsLedger(t *testing.T) {
	ledger := []shift.SaleRecord{
		{Reference: "a", Method: settlement.MethodCash, Amount: 10_000},
		{Reference: "b", Method: settlement.MethodCredit, Amount: 3_000},
	}
	s, err := shift.Restore("sh-9", "branch-1", "user-1", 5_000, time.Now(), ledger)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	calcs, err := s.PrepareEnd()
	if err != nil {
		t.Fatalf("prepare end: %v", err)
	}
	if calcs.ExpectedCash != 15_000 {
		t.Fatalf("expected cash 15000, got %d", calcs.ExpectedCash)
	}
	if calcs.SalesByMethod[settlement.MethodCredit] != 3_000 {
		t.Fatalf("expected credit total 3000, got %d", calcs.SalesByMethod[settlement.MethodCredit])
	}
}

package shift

import (
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/settlement"
)

var (
	// ErrAlreadyActive is returned when starting a shift while one is active.
	ErrAlreadyActive = errors.New("shift already active")
	// ErrShiftNotActive is returned for mutations outside the active state.
	ErrShiftNotActive = errors.New("no active shift")
	// ErrAlreadyEnded is returned when ending an already ended shift.
	ErrAlreadyEnded = errors.New("shift already ended")
	// ErrNegativeAmount is returned for negative balances or cash counts.
	ErrNegativeAmount = errors.New("amount must not be negative")
	// ErrWrongShift indicates a sale attributed to a different shift. This is a
	// programming-contract violation, not an operator error.
	ErrWrongShift = errors.New("sale belongs to a different shift")
)

// Status enumerates the shift lifecycle states.
type Status string

const (
	// StatusActive accepts sales.
	StatusActive Status = "active"
	// StatusEnded is terminal; no further sales may be attributed.
	StatusEnded Status = "ended"
)

// SaleRecord is one committed sale in the shift's append-only ledger. Entries
// are never modified or deleted once recorded.
type SaleRecord struct {
	Reference string            `json:"reference"`
	Method    settlement.Method `json:"method"`
	Amount    pricing.Money     `json:"amount"`
	At        time.Time         `json:"at"`
}

// EndCalculations is the pure read produced before closing the drawer.
type EndCalculations struct {
	ExpectedCash  pricing.Money                       `json:"expectedCash"`
	SalesByMethod map[settlement.Method]pricing.Money `json:"salesByMethod"`
	TotalSales    pricing.Money                       `json:"totalSales"`
}

// Snapshot is the plain serializable view of a shift emitted for UI and
// reporting collaborators.
type Snapshot struct {
	ID              string                              `json:"id"`
	BranchID        string                              `json:"branchId"`
	UserID          string                              `json:"userId"`
	Status          Status                              `json:"status"`
	StartingBalance pricing.Money                       `json:"startingBalance"`
	StartedAt       time.Time                           `json:"startedAt"`
	EndedAt         *time.Time                          `json:"endedAt,omitempty"`
	ActualCashAtEnd *pricing.Money                      `json:"actualCashAtEnd,omitempty"`
	ExpectedCash    *pricing.Money                      `json:"expectedCash,omitempty"`
	Variance        *pricing.Money                      `json:"variance,omitempty"`
	SalesByMethod   map[settlement.Method]pricing.Money `json:"salesByMethod"`
	SaleCount       int                                 `json:"saleCount"`
}

// Shift is the cash-drawer session aggregate. All mutation goes through its
// methods; it is owned by one session and is not safe for concurrent use.
type Shift struct {
	id              string
	branchID        string
	userID          string
	status          Status
	startingBalance pricing.Money
	startedAt       time.Time
	endedAt         *time.Time
	actualCash      *pricing.Money
	expectedCash    *pricing.Money
	variance        *pricing.Money
	ledger          []SaleRecord
}

// Start opens a new active shift with the provided opening balance.
func Start(id, branchID, userID string, startingBalance pricing.Money, now time.Time) (*Shift, error) {
	if startingBalance < 0 {
		return nil, fmt.Errorf("starting balance: %w", ErrNegativeAmount)
	}
	return &Shift{
		id:              id,
		branchID:        branchID,
		userID:          userID,
		status:          StatusActive,
		startingBalance: startingBalance,
		startedAt:       now,
	}, nil
}

// Restore rebuilds an active shift aggregate from the persisted record. The
// persisted state is authoritative after a reload (working copy discipline).
func Restore(id, branchID, userID string, startingBalance pricing.Money, startedAt time.Time, ledger []SaleRecord) (*Shift, error) {
	s, err := Start(id, branchID, userID, startingBalance, startedAt)
	if err != nil {
		return nil, err
	}
	s.ledger = append(s.ledger, ledger...)
	return s, nil
}

// ID returns the server-assigned shift identifier.
func (s *Shift) ID() string { return s.id }

// Active reports whether the shift still accepts sales.
func (s *Shift) Active() bool { return s != nil && s.status == StatusActive }

// RecordSale appends a committed sale to the ledger. Only legal while active;
// the caller must have confirmed durable persistence first.
func (s *Shift) RecordSale(sale settlement.FinalizedSale) error {
	if s == nil || s.status != StatusActive {
		return ErrShiftNotActive
	}
	s.ledger = append(s.ledger, SaleRecord{
		Reference: sale.Reference,
		Method:    sale.Method,
		Amount:    sale.Totals.Total,
		At:        sale.CreatedAt,
	})
	return nil
}

// PrepareEnd computes the closing figures without side effects. Callable any
// number of times while the shift is active.
func (s *Shift) PrepareEnd() (EndCalculations, error) {
	if s == nil || s.status != StatusActive {
		return EndCalculations{}, ErrShiftNotActive
	}
	return s.calculations(), nil
}

// End transitions the shift to its terminal state, freezing expected cash and
// recording the counted drawer amount. Variance is positive for a surplus and
// negative for a shortfall; it is reported, never corrected.
func (s *Shift) End(actualCashAtEnd pricing.Money, now time.Time) (Snapshot, error) {
	if s == nil {
		return Snapshot{}, ErrShiftNotActive
	}
	if s.status == StatusEnded {
		return Snapshot{}, ErrAlreadyEnded
	}
	if actualCashAtEnd < 0 {
		return Snapshot{}, fmt.Errorf("actual cash at end: %w", ErrNegativeAmount)
	}
	calcs := s.calculations()
	variance := actualCashAtEnd - calcs.ExpectedCash

	s.status = StatusEnded
	s.endedAt = &now
	s.actualCash = &actualCashAtEnd
	s.expectedCash = &calcs.ExpectedCash
	s.variance = &variance
	return s.Snapshot(), nil
}

// Snapshot returns the serializable view of the shift.
func (s *Shift) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	calcs := s.calculations()
	return Snapshot{
		ID:              s.id,
		BranchID:        s.branchID,
		UserID:          s.userID,
		Status:          s.status,
		StartingBalance: s.startingBalance,
		StartedAt:       s.startedAt,
		EndedAt:         s.endedAt,
		ActualCashAtEnd: s.actualCash,
		ExpectedCash:    s.expectedCash,
		Variance:        s.variance,
		SalesByMethod:   calcs.SalesByMethod,
		SaleCount:       len(s.ledger),
	}
}

// calculations derives per-method totals from the ledger. The ledger is the
// single source of truth; totals are never accumulated separately.
func (s *Shift) calculations() EndCalculations {
	byMethod := make(map[settlement.Method]pricing.Money, len(settlement.Methods()))
	for _, m := range settlement.Methods() {
		byMethod[m] = 0
	}
	var total pricing.Money
	for _, rec := range s.ledger {
		byMethod[rec.Method] += rec.Amount
		total += rec.Amount
	}
	return EndCalculations{
		ExpectedCash:  s.startingBalance + byMethod[settlement.MethodCash],
		SalesByMethod: byMethod,
		TotalSales:    total,
	}
}

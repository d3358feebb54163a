package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/backoffice"
	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/settlement"
	"github.com/noah-isme/backend-pos/internal/shift"
)

// ErrPendingCheckout is returned when an operation conflicts with a finalized
// sale that has not yet been confirmed or cancelled.
var ErrPendingCheckout = errors.New("checkout pending confirmation")

// ShiftGuard is the cross-device singleton registration consumed by the
// orchestrator. Satisfied by shift.Guard.
type ShiftGuard interface {
	Acquire(ctx context.Context, branchID, userID, shiftID string) error
	Holder(ctx context.Context, branchID, userID string) (string, error)
	Release(ctx context.Context, branchID, userID, shiftID string) error
}

// Config carries the collaborators and branch settings of a session.
type Config struct {
	BranchID string
	UserID   string
	TaxBps   int
	Shipping pricing.Money
	Currency string

	Catalog catalog.Lookup
	Store   backoffice.Store
	Guard   ShiftGuard
	Events  *events.Bus
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Session orchestrates cart mutations, payment confirmation and shift
// transitions for one cashier. The engine aggregates it owns are not
// concurrency-safe; the session serializes access with its own mutex so the
// HTTP layer can call it directly.
type Session struct {
	mu sync.Mutex

	cfg   Config
	cart  *cart.Cart
	shift *shift.Shift

	pending        *settlement.FinalizedSale
	pendingPayment settlement.PendingPayment
}

// Receipt is the emitted value handed to printing and display collaborators
// after a committed sale.
type Receipt struct {
	SaleID   string                   `json:"saleId"`
	Sale     settlement.FinalizedSale `json:"sale"`
	Currency string                   `json:"currency"`
}

// CloseReport summarizes a closed shift for the reconciliation report.
type CloseReport struct {
	Shift        shift.Snapshot         `json:"shift"`
	Calculations shift.EndCalculations  `json:"calculations"`
	Persisted    backoffice.ClosedShift `json:"persisted"`
}

// CartView is the serializable cart state returned to the UI layer.
type CartView struct {
	Lines  []cart.Line     `json:"lines"`
	Totals pricing.Summary `json:"totals"`
}

// New constructs a session with an empty cart and no shift.
func New(cfg Config) *Session {
	return &Session{
		cfg:  cfg,
		cart: cart.New(cfg.TaxBps, cfg.Shipping),
	}
}

func (s *Session) now() time.Time {
	if s.cfg.Now != nil {
		return s.cfg.Now()
	}
	return time.Now()
}

// OpenShift starts a cash-drawer session for the cashier. The back office is
// the source of truth; the local aggregate is a working copy of its response.
func (s *Session) OpenShift(ctx context.Context, startingBalance pricing.Money) (shift.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shift.Active() {
		return shift.Snapshot{}, shift.ErrAlreadyActive
	}
	if startingBalance < 0 {
		return shift.Snapshot{}, fmt.Errorf("starting balance: %w", shift.ErrNegativeAmount)
	}
	if s.cfg.Guard != nil {
		holder, err := s.cfg.Guard.Holder(ctx, s.cfg.BranchID, s.cfg.UserID)
		if err != nil {
			return shift.Snapshot{}, err
		}
		if holder != "" {
			return shift.Snapshot{}, shift.ErrAlreadyActive
		}
	}

	record, err := s.cfg.Store.OpenShift(ctx, s.cfg.BranchID, s.cfg.UserID, startingBalance)
	if err != nil {
		s.persistFailure("open_shift")
		return shift.Snapshot{}, err
	}
	if s.cfg.Guard != nil {
		if err := s.cfg.Guard.Acquire(ctx, s.cfg.BranchID, s.cfg.UserID, record.ID); err != nil {
			return shift.Snapshot{}, err
		}
	}

	active, err := shift.Start(record.ID, s.cfg.BranchID, s.cfg.UserID, record.StartingBalance, record.StartedAt)
	if err != nil {
		return shift.Snapshot{}, err
	}
	s.shift = active

	if obs.ShiftsOpenedTotal != nil {
		obs.ShiftsOpenedTotal.Inc()
	}
	s.emit(ctx, events.TopicShiftOpened, record.ID, map[string]any{
		"shiftId":         record.ID,
		"userId":          s.cfg.UserID,
		"startingBalance": record.StartingBalance,
	})
	s.cfg.Logger.Info().Str("shift_id", record.ID).Int64("starting_balance", record.StartingBalance).Msg("shift opened")
	return active.Snapshot(), nil
}

// Resume reinitialises the working shift copy from the persisted active shift
// record. Must be called after a reload before any sale is recorded.
func (s *Session) Resume(ctx context.Context) (shift.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.cfg.Store.ActiveShift(ctx, s.cfg.BranchID, s.cfg.UserID)
	if errors.Is(err, backoffice.ErrNoActiveShift) {
		s.shift = nil
		return shift.Snapshot{}, err
	}
	if err != nil {
		return shift.Snapshot{}, err
	}
	restored, err := shift.Restore(record.ID, record.BranchID, record.UserID, record.StartingBalance, record.StartedAt, record.Sales)
	if err != nil {
		return shift.Snapshot{}, err
	}
	s.shift = restored
	if s.cfg.Guard != nil {
		// Re-register after a reload; an existing registration for the same
		// shift is not an error.
		if err := s.cfg.Guard.Acquire(ctx, s.cfg.BranchID, s.cfg.UserID, record.ID); err != nil && !errors.Is(err, shift.ErrAlreadyActive) {
			return shift.Snapshot{}, err
		}
	}
	s.cfg.Logger.Info().Str("shift_id", record.ID).Int("sales", len(record.Sales)).Msg("shift resumed from back office")
	return restored.Snapshot(), nil
}

// ShiftStatus returns the current shift snapshot and, while active, the
// closing figures preview.
func (s *Session) ShiftStatus() (shift.Snapshot, *shift.EndCalculations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shift == nil {
		return shift.Snapshot{}, nil, shift.ErrShiftNotActive
	}
	snap := s.shift.Snapshot()
	if !s.shift.Active() {
		return snap, nil, nil
	}
	calcs, err := s.shift.PrepareEnd()
	if err != nil {
		return snap, nil, err
	}
	return snap, &calcs, nil
}

// AddProduct resolves the product in the catalog and adds it to the cart.
func (s *Session) AddProduct(ctx context.Context, productID string, qty int) (CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, err := s.cfg.Catalog.Product(ctx, productID)
	if err != nil {
		return CartView{}, err
	}
	if err := s.cart.AddItem(product, qty); err != nil {
		return CartView{}, err
	}
	s.abandonPending()
	return s.cartView(), nil
}

// SetQuantity replaces a line quantity.
func (s *Session) SetQuantity(productID string, qty int) (CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cart.SetQuantity(productID, qty); err != nil {
		return CartView{}, err
	}
	s.abandonPending()
	return s.cartView(), nil
}

// RemoveItem deletes a line.
func (s *Session) RemoveItem(productID string) (CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cart.RemoveItem(productID); err != nil {
		return CartView{}, err
	}
	s.abandonPending()
	return s.cartView(), nil
}

// SetDiscount applies a per-line discount.
func (s *Session) SetDiscount(productID string, d pricing.Discount) (CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cart.SetDiscount(productID, d); err != nil {
		return CartView{}, err
	}
	s.abandonPending()
	return s.cartView(), nil
}

// ClearDiscount resets a line to its undiscounted price.
func (s *Session) ClearDiscount(productID string) (CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cart.ClearDiscount(productID); err != nil {
		return CartView{}, err
	}
	s.abandonPending()
	return s.cartView(), nil
}

// Cart returns the current cart lines and derived totals.
func (s *Session) Cart() CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartView()
}

// ClearCart abandons the sale in progress.
func (s *Session) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart.Clear()
	s.abandonPending()
}

// CancelCheckout discards the pending finalized sale, leaving the cart intact.
func (s *Session) CancelCheckout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandonPending()
}

// Checkout validates the payment, persists the sale and records it against
// the active shift. On persistence failure the cart and the finalized sale
// stay intact so the same payload can be retried under the same idempotency
// reference. The shift is only mutated after the back office confirms the
// write, keeping in-memory totals aligned with persisted sales.
func (s *Session) Checkout(ctx context.Context, p settlement.PendingPayment) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.shift.Active() {
		return Receipt{}, shift.ErrShiftNotActive
	}

	if s.pending == nil || s.pendingPayment != p {
		lines, totals := s.cart.Snapshot()
		sale, err := settlement.Finalize(lines, totals, p, s.now())
		if err != nil {
			s.countCheckout(string(p.Method), "rejected")
			return Receipt{}, err
		}
		s.pending = &sale
		s.pendingPayment = p
	}

	committed, err := s.cfg.Store.CreateSale(ctx, s.shift.ID(), *s.pending)
	if err != nil {
		s.persistFailure("create_sale")
		s.countCheckout(string(s.pending.Method), "persist_failed")
		s.cfg.Logger.Error().Err(err).Str("reference", s.pending.Reference).Msg("sale persistence failed; retry allowed")
		return Receipt{}, err
	}

	sale := *s.pending
	if err := s.shift.RecordSale(sale); err != nil {
		// The sale is durably persisted; a dead shift here is a contract
		// violation, not an operator-recoverable condition.
		return Receipt{}, fmt.Errorf("record persisted sale %s: %w", sale.Reference, err)
	}
	s.cart.Clear()
	s.pending = nil
	s.pendingPayment = settlement.PendingPayment{}

	s.countCheckout(string(sale.Method), "committed")
	if obs.SaleValue != nil {
		obs.SaleValue.WithLabelValues(string(sale.Method)).Observe(float64(sale.Totals.Total))
	}
	s.emit(ctx, events.TopicSaleCommitted, committed.ID, map[string]any{
		"saleId":    committed.ID,
		"reference": sale.Reference,
		"shiftId":   s.shift.ID(),
		"method":    sale.Method,
		"total":     sale.Totals.Total,
	})
	s.cfg.Logger.Info().
		Str("sale_id", committed.ID).
		Str("reference", sale.Reference).
		Str("method", string(sale.Method)).
		Int64("total", sale.Totals.Total).
		Msg("sale committed")

	return Receipt{SaleID: committed.ID, Sale: sale, Currency: s.cfg.Currency}, nil
}

// PrepareClose returns the closing figures without side effects.
func (s *Session) PrepareClose() (shift.EndCalculations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shift == nil {
		return shift.EndCalculations{}, shift.ErrShiftNotActive
	}
	return s.shift.PrepareEnd()
}

// CloseShift reconciles and ends the active shift. The persisted close record
// is authoritative; a divergence from the local calculation is logged and the
// server figures are reported.
func (s *Session) CloseShift(ctx context.Context, actualCashAtEnd pricing.Money) (CloseReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shift == nil || !s.shift.Active() {
		if s.shift != nil && !s.shift.Active() {
			return CloseReport{}, shift.ErrAlreadyEnded
		}
		return CloseReport{}, shift.ErrShiftNotActive
	}
	if s.pending != nil {
		return CloseReport{}, ErrPendingCheckout
	}
	if actualCashAtEnd < 0 {
		return CloseReport{}, fmt.Errorf("actual cash at end: %w", shift.ErrNegativeAmount)
	}

	calcs, err := s.shift.PrepareEnd()
	if err != nil {
		return CloseReport{}, err
	}
	closed, err := s.cfg.Store.CloseShift(ctx, s.shift.ID(), actualCashAtEnd)
	if err != nil {
		s.persistFailure("close_shift")
		return CloseReport{}, err
	}
	snap, err := s.shift.End(actualCashAtEnd, s.now())
	if err != nil {
		return CloseReport{}, err
	}
	if closed.ExpectedCash != calcs.ExpectedCash {
		s.cfg.Logger.Warn().
			Int64("local_expected", calcs.ExpectedCash).
			Int64("server_expected", closed.ExpectedCash).
			Str("shift_id", snap.ID).
			Msg("expected cash diverged; adopting persisted figures")
	}
	if s.cfg.Guard != nil {
		if err := s.cfg.Guard.Release(ctx, s.cfg.BranchID, s.cfg.UserID, snap.ID); err != nil {
			s.cfg.Logger.Error().Err(err).Str("shift_id", snap.ID).Msg("release shift registration")
		}
	}

	if obs.ShiftsClosedTotal != nil {
		obs.ShiftsClosedTotal.Inc()
	}
	if obs.ShiftCashVariance != nil {
		obs.ShiftCashVariance.Observe(float64(closed.Variance))
	}
	s.emit(ctx, events.TopicShiftClosed, snap.ID, map[string]any{
		"shiftId":      snap.ID,
		"expectedCash": closed.ExpectedCash,
		"actualCash":   closed.ActualCashAtEnd,
		"variance":     closed.Variance,
	})
	s.cfg.Logger.Info().
		Str("shift_id", snap.ID).
		Int64("variance", closed.Variance).
		Msg("shift closed")

	return CloseReport{Shift: snap, Calculations: calcs, Persisted: closed}, nil
}

func (s *Session) cartView() CartView {
	lines, totals := s.cart.Snapshot()
	return CartView{Lines: lines, Totals: totals}
}

// abandonPending discards an unconfirmed finalized sale. Cart mutations make
// the snapshot stale, so the next checkout must finalize again.
func (s *Session) abandonPending() {
	s.pending = nil
	s.pendingPayment = settlement.PendingPayment{}
}

func (s *Session) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if s.cfg.Events == nil {
		return
	}
	if _, err := s.cfg.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.cfg.Logger.Error().Err(err).Str("topic", topic).Msg("emit event")
	}
}

func (s *Session) countCheckout(method, result string) {
	if obs.SalesCommittedTotal != nil {
		obs.SalesCommittedTotal.WithLabelValues(method, result).Inc()
	}
}

func (s *Session) persistFailure(operation string) {
	if obs.BackofficePersistFailures != nil {
		obs.BackofficePersistFailures.WithLabelValues(operation).Inc()
	}
}

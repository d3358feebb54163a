package settlement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

var (
	// ErrEmptyCart is returned when checkout is attempted with no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInsufficientCash indicates the tendered cash does not cover the total due.
	ErrInsufficientCash = errors.New("cash tendered less than total due")
	// ErrMissingBankReference indicates a transfer without a bank reference or account.
	ErrMissingBankReference = errors.New("bank reference required")
	// ErrMissingCustomer indicates a credit sale without a selected customer.
	ErrMissingCustomer = errors.New("customer required for credit sale")
	// ErrUnknownMethod is returned for payment methods outside the supported set.
	ErrUnknownMethod = errors.New("unknown payment method")
)

// Method enumerates the supported payment methods.
type Method string

const (
	// MethodCash settles immediately against the drawer.
	MethodCash Method = "cash"
	// MethodTransfer settles against a bank account with an operator-supplied reference.
	MethodTransfer Method = "transfer"
	// MethodCredit defers payment to a registered customer account.
	MethodCredit Method = "credit"
)

// Methods lists every supported method in display order.
func Methods() []Method {
	return []Method{MethodCash, MethodTransfer, MethodCredit}
}

// PendingPayment is the transient payment decision validated at checkout. It
// is never persisted on its own: on success it becomes part of the finalized
// sale, on failure it is discarded and the cart stays untouched.
type PendingPayment struct {
	Method        Method        `json:"method"`
	CashTendered  pricing.Money `json:"cashTendered"`
	BankReference string        `json:"bankReference"`
	BankAccountID string        `json:"bankAccountId"`
	CustomerID    string        `json:"customerId"`
}

// Details carries the method-specific fields of a committed sale.
type Details struct {
	CashTendered  pricing.Money `json:"cashTendered,omitempty"`
	Change        pricing.Money `json:"change,omitempty"`
	BankReference string        `json:"bankReference,omitempty"`
	BankAccountID string        `json:"bankAccountId,omitempty"`
	CustomerID    string        `json:"customerId,omitempty"`
	Deferred      bool          `json:"deferred,omitempty"`
}

// FinalizedSale is an immutable snapshot of cart and payment decision, ready
// for persistence. Reference is client-generated and doubles as the
// idempotency key when the orchestrator retries a failed persistence call.
type FinalizedSale struct {
	Reference string          `json:"reference"`
	Lines     []cart.Line     `json:"lines"`
	Totals    pricing.Summary `json:"totals"`
	Method    Method          `json:"method"`
	Details   Details         `json:"details"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Finalize validates the payment decision against the cart snapshot and
// produces a finalized sale. It has no side effects; an abandoned attempt
// leaves no state behind.
func Finalize(lines []cart.Line, totals pricing.Summary, p PendingPayment, now time.Time) (FinalizedSale, error) {
	if len(lines) == 0 {
		return FinalizedSale{}, ErrEmptyCart
	}

	var details Details
	switch p.Method {
	case MethodCash:
		if p.CashTendered < totals.Total {
			return FinalizedSale{}, fmt.Errorf("tendered %d against total %d: %w", p.CashTendered, totals.Total, ErrInsufficientCash)
		}
		details.CashTendered = p.CashTendered
		details.Change = p.CashTendered - totals.Total
	case MethodTransfer:
		if strings.TrimSpace(p.BankReference) == "" || strings.TrimSpace(p.BankAccountID) == "" {
			return FinalizedSale{}, ErrMissingBankReference
		}
		details.BankReference = strings.TrimSpace(p.BankReference)
		details.BankAccountID = strings.TrimSpace(p.BankAccountID)
	case MethodCredit:
		if strings.TrimSpace(p.CustomerID) == "" {
			return FinalizedSale{}, ErrMissingCustomer
		}
		details.CustomerID = strings.TrimSpace(p.CustomerID)
		details.Deferred = true
	default:
		return FinalizedSale{}, fmt.Errorf("method %q: %w", p.Method, ErrUnknownMethod)
	}

	snapshot := make([]cart.Line, len(lines))
	copy(snapshot, lines)
	return FinalizedSale{
		Reference: uuid.NewString(),
		Lines:     snapshot,
		Totals:    totals,
		Method:    p.Method,
		Details:   details,
		CreatedAt: now,
	}, nil
}

package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen allows a single probe to determine recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker trips after a number of consecutive failures and probes the
// dependency again once the cool-off period has passed.
type Breaker struct {
	mu          sync.Mutex
	state       State
	consecutive int
	threshold   int
	openedAt    time.Time
	openFor     time.Duration
	onChange    func(State)
}

// NewBreaker constructs a breaker that opens after threshold consecutive
// failures and stays open for openFor before probing.
func NewBreaker(threshold int, openFor time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{state: Closed, threshold: threshold, openFor: openFor}
}

// OnStateChange registers a callback invoked on every transition.
func (b *Breaker) OnStateChange(fn func(State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// Allow reports whether a request is permitted in the current state.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open {
		if time.Since(b.openedAt) < b.openFor {
			return false
		}
		b.transition(HalfOpen)
	}
	return true
}

// Report records the outcome of a request.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.consecutive = 0
		if b.state != Closed {
			b.transition(Closed)
		}
		return
	}
	b.consecutive++
	if b.state == HalfOpen || b.consecutive >= b.threshold {
		b.openedAt = time.Now()
		b.transition(Open)
	}
}

// CurrentState returns the breaker state for metrics and health reporting.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(next State) {
	b.state = next
	if b.onChange != nil {
		b.onChange(next)
	}
}

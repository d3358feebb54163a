package session

import (
	"sync"
)

// Factory builds a session for a cashier the registry has not seen yet.
type Factory func(userID string) *Session

// Registry hands out one session per cashier. Sessions live for the process
// lifetime; shift state is reconciled with the back office on resume rather
// than persisted locally.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  Factory
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

// Get returns the cashier's session, creating it on first use.
func (r *Registry) Get(userID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		return s
	}
	s := r.factory(userID)
	r.sessions[userID] = s
	return s
}

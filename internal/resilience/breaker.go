// Package resilience guards repeated calls to external services. The
// remote backend uses it to keep status polling from hammering a task
// API that is already failing.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker's current disposition.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects every call until the reset timeout elapses.
	StateOpen
	// StateHalfOpen lets one probe call through; its result decides
	// whether the circuit closes again or reopens.
	StateHalfOpen
)

// Breaker opens after maxFailures consecutive failures and stays open
// for the reset timeout before probing with a half-open call.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	reset       time.Duration
	openedAt    time.Time
	now         func() time.Time // for testing
}

// NewBreaker creates a closed breaker.
func NewBreaker(maxFailures int, reset time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		reset:       reset,
		now:         time.Now,
	}
}

// Execute runs fn unless the circuit is open. fn's error both propagates
// to the caller and feeds the failure count.
func (b *Breaker) Execute(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.state = StateOpen
			b.openedAt = b.now()
		}
		return err
	}
	b.failures = 0
	b.state = StateClosed
	return nil
}

// State reports the breaker's current state, accounting for a reset
// timeout that has elapsed since the circuit opened.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.reset {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.reset {
			b.state = StateHalfOpen
			return true
		}
	}
	return false
}

// internal/consultation/breaker.go
package consultation

import (
	"sync"
	"time"

	"biolens-workers/internal/common/errors"
)

// BreakerState is the circuit breaker's tri-state mode.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

const (
	DefaultBreakerThreshold       = 5
	DefaultBreakerRecoveryTimeout = 60 * time.Second
)

// ErrCircuitOpen is returned when a call is rejected without invoking the
// wrapped operation.
var ErrCircuitOpen = errors.NewServiceUnavailableError("circuit breaker is open")

// CircuitBreaker tracks consecutive failures of the external AI call and
// gates access to it. Shared across concurrent requests; all state
// transitions are serialized under the mutex.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           BreakerState
	failures        int
	lastFailure     time.Time
	threshold       int
	recoveryTimeout time.Duration
	now             func() time.Time
}

func NewCircuitBreaker(threshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultBreakerRecoveryTimeout
	}
	return &CircuitBreaker{
		state:           BreakerClosed,
		threshold:       threshold,
		recoveryTimeout: recoveryTimeout,
		now:             time.Now,
	}
}

// Allow reports whether a call may proceed. While open, it rejects until the
// recovery timeout has elapsed since the recorded failure; the first caller
// after that window becomes the single half-open trial, and everyone else is
// rejected until the trial's outcome is recorded.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) >= b.recoveryTimeout {
			b.state = BreakerHalfOpen
			return nil
		}
		return ErrCircuitOpen
	default: // half-open, trial already in flight
		return ErrCircuitOpen
	}
}

// RecordSuccess resets the failure counter and closes the breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = BreakerClosed
}

// RecordFailure counts a failed call. A failed half-open trial reopens the
// breaker immediately; in closed state the breaker opens once the threshold
// is reached.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.lastFailure = b.now()
		return
	}

	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.threshold {
		b.state = BreakerOpen
	}
}

// State returns the current mode.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *CircuitBreaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset zeroes the counter and closes the breaker. Maintenance operation,
// not part of normal transitions.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.lastFailure = time.Time{}
	b.state = BreakerClosed
}

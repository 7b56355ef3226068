// internal/consultation/breaker_test.go
package consultation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBreaker(threshold int, recovery time.Duration) (*CircuitBreaker, *time.Time) {
	b := NewCircuitBreaker(threshold, recovery)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.Equal(t, BreakerClosed, b.State())
	}

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	assert.Equal(t, 0, b.Failures())

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, BreakerClosed, b.State())
}

func TestCircuitBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.Error(t, b.Allow())

	// Just before the window: still rejecting.
	*now = now.Add(59 * time.Second)
	assert.Error(t, b.Allow())

	// Window elapsed: a single trial is admitted.
	*now = now.Add(2 * time.Second)
	assert.NoError(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())

	// Concurrent callers are rejected while the trial is in flight.
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestCircuitBreaker_TrialSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	*now = now.Add(2 * time.Minute)
	assert.NoError(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestCircuitBreaker_TrialFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	*now = now.Add(2 * time.Minute)
	assert.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())

	// The recovery window restarts from the trial failure.
	assert.Error(t, b.Allow())
	*now = now.Add(2 * time.Minute)
	assert.NoError(t, b.Allow())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, 0, b.Failures())
	assert.NoError(t, b.Allow())
}

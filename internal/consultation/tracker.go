// internal/consultation/tracker.go
package consultation

import (
	"sync"
	"time"

	"biolens-workers/internal/common/errors"
	"biolens-workers/internal/models"
)

// DefaultErrorHistorySize bounds the tracker's failure history.
const DefaultErrorHistorySize = 100

// Statistics summarizes the tracked failure history.
type Statistics struct {
	TotalErrors  int                     `json:"totalErrors"`
	RecentErrors int                     `json:"recentErrors"` // trailing 5 minutes
	BreakerState BreakerState            `json:"breakerState"`
	ByCategory   map[errors.Category]int `json:"byCategory"`
}

// Health is the derived health signal.
type Health struct {
	Healthy           bool   `json:"healthy"`
	RecommendedAction string `json:"recommendedAction"`
}

// ErrorTracker records categorized failures in a bounded, insertion-ordered
// history. Shared across concurrent requests; appends and evictions are
// serialized under the mutex.
type ErrorTracker struct {
	mu       sync.Mutex
	records  []models.ErrorRecord
	capacity int
	breaker  *CircuitBreaker
	now      func() time.Time
}

func NewErrorTracker(capacity int, breaker *CircuitBreaker) *ErrorTracker {
	if capacity <= 0 {
		capacity = DefaultErrorHistorySize
	}
	return &ErrorTracker{
		capacity: capacity,
		breaker:  breaker,
		now:      time.Now,
	}
}

// Record appends a categorized, timestamped failure, evicting the oldest
// entry once capacity is exceeded.
func (t *ErrorTracker) Record(err error) {
	if err == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = append(t.records, models.ErrorRecord{
		Timestamp: t.now(),
		Message:   err.Error(),
		Category:  string(errors.Categorize(err)),
	})
	if len(t.records) > t.capacity {
		t.records = t.records[len(t.records)-t.capacity:]
	}
}

// Statistics returns counts over the full history and a trailing 5-minute
// window, grouped by category, plus the current breaker state.
func (t *ErrorTracker) Statistics() Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Statistics{
		TotalErrors:  len(t.records),
		BreakerState: t.breaker.State(),
		ByCategory:   map[errors.Category]int{},
	}

	cutoff := t.now().Add(-5 * time.Minute)
	for _, rec := range t.records {
		stats.ByCategory[errors.Category(rec.Category)]++
		if rec.Timestamp.After(cutoff) {
			stats.RecentErrors++
		}
	}

	return stats
}

// HealthStatus reports unhealthy when three or more errors occurred in the
// trailing minute or the breaker is open, with a recommended action.
func (t *ErrorTracker) HealthStatus() Health {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.breaker.State()
	cutoff := t.now().Add(-1 * time.Minute)
	recent := 0
	for _, rec := range t.records {
		if rec.Timestamp.After(cutoff) {
			recent++
		}
	}

	switch {
	case state == BreakerOpen:
		return Health{
			Healthy:           false,
			RecommendedAction: "AI service circuit is open; consultations are served from the local fallback until the recovery window elapses",
		}
	case recent >= 3:
		return Health{
			Healthy:           false,
			RecommendedAction: "elevated AI service error rate; monitor the error history and verify provider status",
		}
	default:
		return Health{
			Healthy:           true,
			RecommendedAction: "no action required",
		}
	}
}

// Recent returns a copy of the most recent n records, newest last.
func (t *ErrorTracker) Recent(n int) []models.ErrorRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n <= 0 || n > len(t.records) {
		n = len(t.records)
	}
	out := make([]models.ErrorRecord, n)
	copy(out, t.records[len(t.records)-n:])
	return out
}

// Reset clears the history and resets the breaker.
func (t *ErrorTracker) Reset() {
	t.mu.Lock()
	t.records = nil
	t.mu.Unlock()

	t.breaker.Reset()
}

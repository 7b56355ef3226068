// internal/consultation/orchestrator_test.go
package consultation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biolens-workers/internal/common/errors"
	"biolens-workers/internal/common/genai"
	"biolens-workers/internal/common/logger"
	"biolens-workers/internal/models"
)

// scriptedGenerator returns the queued outcomes in order, then repeats the
// last one.
type scriptedGenerator struct {
	calls    int
	results  []*genai.Result
	errs     []error
	lastBody string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt, systemInstruction string) (*genai.Result, error) {
	i := g.calls
	if i >= len(g.errs) {
		i = len(g.errs) - 1
	}
	g.calls++
	g.lastBody = prompt
	if g.errs[i] != nil {
		return nil, g.errs[i]
	}
	return g.results[i], nil
}

func scriptedOutcomes(outcomes ...interface{}) *scriptedGenerator {
	g := &scriptedGenerator{}
	for _, outcome := range outcomes {
		switch v := outcome.(type) {
		case error:
			g.errs = append(g.errs, v)
			g.results = append(g.results, nil)
		case *genai.Result:
			g.errs = append(g.errs, nil)
			g.results = append(g.results, v)
		}
	}
	return g
}

func goodResult() *genai.Result {
	return &genai.Result{
		Content:  structuredResponse,
		Metadata: genai.Metadata{ModelUsed: "gemini-2.0-flash", ProcessingTimeMs: 420},
	}
}

func newTestOrchestrator(t *testing.T, gen genai.Generator) (*Orchestrator, *[]time.Duration) {
	t.Helper()
	o := NewOrchestrator(DefaultConfig(), gen, logger.NewNoOpLogger())
	var sleeps []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return o, &sleeps
}

func TestOrchestrator_PrimaryPath(t *testing.T) {
	gen := scriptedOutcomes(goodResult())
	o, _ := newTestOrchestrator(t, gen)

	resp := o.GenerateConsultation(context.Background(), eczemaInput())
	require.NotNil(t, resp)

	assert.Equal(t, 1, gen.calls)
	assert.False(t, resp.Metadata.FallbackUsed)
	assert.True(t, resp.Metadata.SafetyValidated)
	assert.Equal(t, "gemini-2.0-flash", resp.Metadata.ModelUsed)
	assert.Equal(t, int64(420), resp.Metadata.ProcessingTimeMs)
	assert.NotEmpty(t, resp.Consultation.Recommendations)
	assert.NotEmpty(t, resp.EmergencyContacts)
}

func TestOrchestrator_AuthenticationNeverRetried(t *testing.T) {
	gen := scriptedOutcomes(errors.NewAuthenticationError("status 401"))
	o, sleeps := newTestOrchestrator(t, gen)

	resp := o.GenerateConsultation(context.Background(), eczemaInput())

	assert.Equal(t, 1, gen.calls)
	assert.Empty(t, *sleeps)
	assert.True(t, resp.Metadata.FallbackUsed)
	assert.Equal(t, string(errors.CategoryAuthentication), resp.Metadata.ErrorCategory)
}

func TestOrchestrator_NetworkErrorsExhaustRetries(t *testing.T) {
	gen := scriptedOutcomes(errors.NewNetworkError(fmt.Errorf("connection refused")))
	o, sleeps := newTestOrchestrator(t, gen)

	resp := o.GenerateConsultation(context.Background(), eczemaInput())

	assert.Equal(t, 3, gen.calls)
	// Exponential backoff between attempts: base, then doubled.
	require.Len(t, *sleeps, 2)
	assert.Equal(t, DefaultBaseDelay, (*sleeps)[0])
	assert.Equal(t, 2*DefaultBaseDelay, (*sleeps)[1])

	assert.True(t, resp.Metadata.FallbackUsed)
	assert.Equal(t, string(errors.CategoryNetwork), resp.Metadata.ErrorCategory)
}

func TestOrchestrator_RetrySucceedsMidway(t *testing.T) {
	gen := scriptedOutcomes(
		errors.NewServiceUnavailableError("status 503"),
		goodResult(),
	)
	o, _ := newTestOrchestrator(t, gen)

	resp := o.GenerateConsultation(context.Background(), eczemaInput())

	assert.Equal(t, 2, gen.calls)
	assert.False(t, resp.Metadata.FallbackUsed)
}

func TestOrchestrator_RateLimitWaitsWithoutConsumingAttempts(t *testing.T) {
	gen := scriptedOutcomes(
		errors.NewRateLimitError("status 429", 2*time.Second),
		errors.NewRateLimitError("status 429", 0),
		goodResult(),
	)
	o, sleeps := newTestOrchestrator(t, gen)

	resp := o.GenerateConsultation(context.Background(), eczemaInput())

	assert.Equal(t, 3, gen.calls)
	assert.False(t, resp.Metadata.FallbackUsed)

	// First wait honors Retry-After; second falls back to the configured delay.
	require.Len(t, *sleeps, 2)
	assert.Equal(t, 2*time.Second, (*sleeps)[0])
	assert.Equal(t, DefaultRateLimitDelay, (*sleeps)[1])
}

func TestOrchestrator_RateLimitWaitsAreBounded(t *testing.T) {
	gen := scriptedOutcomes(errors.NewRateLimitError("status 429", 0))
	o, sleeps := newTestOrchestrator(t, gen)

	resp := o.GenerateConsultation(context.Background(), eczemaInput())

	// Three waits, then the fourth rate limit gives up.
	assert.Equal(t, DefaultMaxRateLimitRetries+1, gen.calls)
	assert.Len(t, *sleeps, DefaultMaxRateLimitRetries)
	assert.True(t, resp.Metadata.FallbackUsed)
	assert.Equal(t, string(errors.CategoryRateLimit), resp.Metadata.ErrorCategory)
}

func TestOrchestrator_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	gen := scriptedOutcomes(errors.NewNetworkError(fmt.Errorf("connection refused")))
	o, _ := newTestOrchestrator(t, gen)

	// Two full generations at 3 attempts each cross the threshold of 5.
	o.GenerateConsultation(context.Background(), eczemaInput())
	o.GenerateConsultation(context.Background(), eczemaInput())
	assert.Equal(t, BreakerOpen, o.breaker.State())

	callsBefore := gen.calls
	resp := o.GenerateConsultation(context.Background(), eczemaInput())

	// Rejected without touching the AI service.
	assert.Equal(t, callsBefore, gen.calls)
	assert.True(t, resp.Metadata.FallbackUsed)
	assert.Equal(t, string(errors.CategoryServiceUnavailable), resp.Metadata.ErrorCategory)
}

func TestOrchestrator_RateLimitedHalfOpenTrialReopensBreaker(t *testing.T) {
	gen := scriptedOutcomes(
		errors.NewNetworkError(fmt.Errorf("connection refused")),
		errors.NewRateLimitError("status 429", 0),
		errors.NewRateLimitError("status 429", 0),
		goodResult(),
	)

	cfg := DefaultConfig()
	cfg.BreakerThreshold = 1
	cfg.MaxAttempts = 1
	cfg.MaxRateLimitRetries = 1
	o := NewOrchestrator(cfg, gen, logger.NewNoOpLogger())
	o.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	now := time.Now()
	o.breaker.now = func() time.Time { return now }

	// A single network failure trips the breaker at threshold 1.
	o.GenerateConsultation(context.Background(), eczemaInput())
	require.Equal(t, BreakerOpen, o.breaker.State())

	// After the recovery window the trial gets rate limited until the wait
	// budget runs out; abandoning the trial must reopen the breaker rather
	// than leave it half-open with no trial in flight.
	now = now.Add(DefaultBreakerRecoveryTimeout)
	resp := o.GenerateConsultation(context.Background(), eczemaInput())

	assert.Equal(t, 3, gen.calls)
	assert.True(t, resp.Metadata.FallbackUsed)
	assert.Equal(t, string(errors.CategoryRateLimit), resp.Metadata.ErrorCategory)
	assert.Equal(t, BreakerOpen, o.breaker.State())

	// The reopened breaker still recovers: the next window's trial succeeds
	// and closes it.
	now = now.Add(DefaultBreakerRecoveryTimeout)
	resp = o.GenerateConsultation(context.Background(), eczemaInput())

	assert.Equal(t, 4, gen.calls)
	assert.False(t, resp.Metadata.FallbackUsed)
	assert.Equal(t, BreakerClosed, o.breaker.State())
}

func TestOrchestrator_CancelledHalfOpenTrialReopensBreaker(t *testing.T) {
	gen := scriptedOutcomes(
		errors.NewNetworkError(fmt.Errorf("connection refused")),
		errors.NewRateLimitError("status 429", 0),
	)

	cfg := DefaultConfig()
	cfg.BreakerThreshold = 1
	cfg.MaxAttempts = 1
	o := NewOrchestrator(cfg, gen, logger.NewNoOpLogger())
	o.sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }
	now := time.Now()
	o.breaker.now = func() time.Time { return now }

	o.GenerateConsultation(context.Background(), eczemaInput())
	require.Equal(t, BreakerOpen, o.breaker.State())

	// The trial's rate-limit wait is cut short by cancellation; the trial
	// outcome is still recorded.
	now = now.Add(DefaultBreakerRecoveryTimeout)
	resp := o.GenerateConsultation(context.Background(), eczemaInput())

	assert.True(t, resp.Metadata.FallbackUsed)
	assert.Equal(t, string(errors.CategoryRateLimit), resp.Metadata.ErrorCategory)
	assert.Equal(t, BreakerOpen, o.breaker.State())
}

func TestOrchestrator_SafetyViolationFallsBack(t *testing.T) {
	bad := &genai.Result{
		Content:  "Condition Assessment\nThis is definitely cancer.",
		Metadata: genai.Metadata{ModelUsed: "gemini-2.0-flash"},
	}
	gen := scriptedOutcomes(bad)
	o, _ := newTestOrchestrator(t, gen)

	resp := o.GenerateConsultation(context.Background(), eczemaInput())

	assert.True(t, resp.Metadata.FallbackUsed)
	assert.Equal(t, string(errors.CategoryValidation), resp.Metadata.ErrorCategory)
	assert.NotContains(t, resp.Consultation.ConditionAssessment, "definitely cancer")
}

func TestOrchestrator_EmptyInputYieldsValidationResponse(t *testing.T) {
	gen := scriptedOutcomes(goodResult())
	o, _ := newTestOrchestrator(t, gen)

	resp := o.GenerateConsultation(context.Background(), &models.ConsultationInput{})

	assert.Equal(t, 0, gen.calls)
	assert.True(t, resp.Metadata.FallbackUsed)
	assert.Equal(t, string(errors.CategoryValidation), resp.Metadata.ErrorCategory)
	assert.NotEmpty(t, resp.Consultation.Recommendations)

	resp = o.GenerateConsultation(context.Background(), nil)
	assert.NotNil(t, resp)
	assert.Equal(t, 0, gen.calls)
}

func TestOrchestrator_RecommendationCountBounds(t *testing.T) {
	inputs := []*models.ConsultationInput{
		eczemaInput(),
		melanomaInput(),
		{Predictions: []models.Prediction{{Condition: "X", Confidence: 0.1}}, RiskLevel: "low"},
	}
	generators := []genai.Generator{
		scriptedOutcomes(goodResult()),
		scriptedOutcomes(errors.NewNetworkError(fmt.Errorf("down"))),
	}

	for _, gen := range generators {
		for _, input := range inputs {
			o, _ := newTestOrchestrator(t, gen.(*scriptedGenerator))
			resp := o.GenerateConsultation(context.Background(), input)
			assert.GreaterOrEqual(t, len(resp.Consultation.Recommendations), 1)
			assert.LessOrEqual(t, len(resp.Consultation.Recommendations), MaxRecommendations)
		}
	}
}

func TestOrchestrator_TracksFailures(t *testing.T) {
	gen := scriptedOutcomes(errors.NewNetworkError(fmt.Errorf("connection refused")))
	o, _ := newTestOrchestrator(t, gen)

	o.GenerateConsultation(context.Background(), eczemaInput())

	stats := o.Statistics()
	assert.Equal(t, 1, stats.TotalErrors)
	assert.Equal(t, 1, stats.ByCategory[errors.CategoryNetwork])

	recent := o.RecentErrors(10)
	require.Len(t, recent, 1)
	assert.Equal(t, string(errors.CategoryNetwork), recent[0].Category)
}

func TestOrchestrator_ResetRestoresService(t *testing.T) {
	gen := scriptedOutcomes(errors.NewNetworkError(fmt.Errorf("down")))
	o, _ := newTestOrchestrator(t, gen)

	o.GenerateConsultation(context.Background(), eczemaInput())
	o.GenerateConsultation(context.Background(), eczemaInput())
	assert.Equal(t, BreakerOpen, o.breaker.State())
	assert.False(t, o.Health().Healthy)

	o.Reset()

	assert.Equal(t, BreakerClosed, o.breaker.State())
	assert.True(t, o.Health().Healthy)
	assert.Equal(t, 0, o.Statistics().TotalErrors)
}

func TestOrchestrator_PromptCarriesAnalysisContext(t *testing.T) {
	gen := scriptedOutcomes(goodResult())
	o, _ := newTestOrchestrator(t, gen)

	o.GenerateConsultation(context.Background(), eczemaInput())

	assert.Contains(t, gen.lastBody, "Eczema")
	assert.Contains(t, gen.lastBody, "78% confidence")
	assert.Contains(t, gen.lastBody, "itching")
	assert.Contains(t, gen.lastBody, "moderate risk")
}

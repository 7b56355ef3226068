// internal/consultation/orchestrator.go
package consultation

import (
	"context"
	"time"

	"biolens-workers/internal/common/errors"
	"biolens-workers/internal/common/genai"
	"biolens-workers/internal/common/logger"
	"biolens-workers/internal/common/metrics"
	"biolens-workers/internal/models"
)

// Retry and rate-limit defaults.
const (
	DefaultMaxAttempts         = 3
	DefaultBaseDelay           = 1 * time.Second
	DefaultRateLimitDelay      = 5 * time.Second
	DefaultMaxRateLimitRetries = 3
)

// Config tunes the orchestrator's retry, breaker, and input-handling
// behavior. Zero values fall back to the documented defaults.
type Config struct {
	MaxAttempts            int
	BaseDelay              time.Duration
	RateLimitDelay         time.Duration
	MaxRateLimitRetries    int
	BreakerThreshold       int
	BreakerRecoveryTimeout time.Duration
	MaxSymptomLength       int
	ErrorHistorySize       int
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:            DefaultMaxAttempts,
		BaseDelay:              DefaultBaseDelay,
		RateLimitDelay:         DefaultRateLimitDelay,
		MaxRateLimitRetries:    DefaultMaxRateLimitRetries,
		BreakerThreshold:       DefaultBreakerThreshold,
		BreakerRecoveryTimeout: DefaultBreakerRecoveryTimeout,
		MaxSymptomLength:       DefaultMaxSymptomLength,
		ErrorHistorySize:       DefaultErrorHistorySize,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.RateLimitDelay <= 0 {
		c.RateLimitDelay = DefaultRateLimitDelay
	}
	if c.MaxRateLimitRetries <= 0 {
		c.MaxRateLimitRetries = DefaultMaxRateLimitRetries
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = DefaultBreakerThreshold
	}
	if c.BreakerRecoveryTimeout <= 0 {
		c.BreakerRecoveryTimeout = DefaultBreakerRecoveryTimeout
	}
	if c.MaxSymptomLength <= 0 {
		c.MaxSymptomLength = DefaultMaxSymptomLength
	}
	if c.ErrorHistorySize <= 0 {
		c.ErrorHistorySize = DefaultErrorHistorySize
	}
}

// Orchestrator coordinates the full consultation pipeline: input
// sanitization, risk assessment, the retried AI call behind the circuit
// breaker, response parsing with safety validation, and local fallback
// generation. GenerateConsultation always returns a usable response.
type Orchestrator struct {
	config   Config
	logger   logger.Logger
	gen      genai.Generator
	breaker  *CircuitBreaker
	tracker  *ErrorTracker
	parser   *ResponseParser
	fallback *FallbackGenerator

	// sleep is swapped out in tests to skip real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(config Config, gen genai.Generator, log logger.Logger) *Orchestrator {
	config.applyDefaults()

	breaker := NewCircuitBreaker(config.BreakerThreshold, config.BreakerRecoveryTimeout)
	fallback := NewFallbackGenerator()

	return &Orchestrator{
		config:   config,
		logger:   log.WithFields(map[string]interface{}{"component": "consultation-orchestrator"}),
		gen:      gen,
		breaker:  breaker,
		tracker:  NewErrorTracker(config.ErrorHistorySize, breaker),
		parser:   NewResponseParser(fallback),
		fallback: fallback,
		sleep:    sleepCtx,
	}
}

// GenerateConsultation runs the pipeline end to end. Invalid input yields a
// validation-category response, AI failures yield a fallback response, and
// a healthy AI call yields the parsed primary response. It never returns an
// error; every path produces a complete, disclaimer-bearing consultation.
func (o *Orchestrator) GenerateConsultation(ctx context.Context, input *models.ConsultationInput) *models.ConsultationResponse {
	start := time.Now()
	log := o.logger.WithFields(map[string]interface{}{"sessionId": sessionID(input)})

	if input == nil || len(input.Predictions) == 0 {
		log.Warn("consultation rejected: no predictions in input", nil)
		metrics.ConsultationsCompleted.WithLabelValues("validation_error").Inc()
		return o.validationFailure(input)
	}

	symptoms := SanitizeSymptoms(input.Symptoms, o.config.MaxSymptomLength)
	assessment := AssessRisk(input)

	log.Info("generating consultation", map[string]interface{}{
		"predictions": len(input.Predictions),
		"riskLevel":   string(assessment.Level),
	})

	result, err := o.callWithRetry(ctx, input, symptoms, assessment)
	o.publishBreakerState()

	if err != nil {
		o.tracker.Record(err)
		category := errors.Categorize(err)
		metrics.ConsultationErrors.WithLabelValues(string(category)).Inc()
		metrics.ConsultationsCompleted.WithLabelValues("fallback").Inc()
		metrics.ConsultationDuration.WithLabelValues("fallback").Observe(time.Since(start).Seconds())

		log.Warn("AI consultation failed, serving fallback", map[string]interface{}{
			"category": string(category),
			"error":    err.Error(),
		})
		return o.fallback.Generate(input, symptoms, assessment, category)
	}

	body := o.parser.Parse(result.Content, input, symptoms, assessment)
	if violations := o.parser.SafetyViolations(&body); len(violations) > 0 {
		safetyErr := errors.NewValidationError("safety validation failed: " + violations[0])
		o.tracker.Record(safetyErr)
		metrics.ConsultationErrors.WithLabelValues(string(errors.CategoryValidation)).Inc()
		metrics.ConsultationsCompleted.WithLabelValues("fallback").Inc()
		metrics.ConsultationDuration.WithLabelValues("fallback").Observe(time.Since(start).Seconds())

		log.Warn("AI response failed safety validation, serving fallback", map[string]interface{}{
			"violations": violations,
		})
		return o.fallback.Generate(input, symptoms, assessment, errors.CategoryValidation)
	}

	confidence := 0.0
	if top := input.TopPrediction(); top != nil {
		confidence = top.Confidence
	}

	metrics.ConsultationsCompleted.WithLabelValues("primary").Inc()
	metrics.ConsultationDuration.WithLabelValues("primary").Observe(time.Since(start).Seconds())

	return &models.ConsultationResponse{
		Consultation: body,
		Metadata: models.ResponseMetadata{
			ModelUsed:        result.Metadata.ModelUsed,
			ProcessingTimeMs: result.Metadata.ProcessingTimeMs,
			ConfidenceScore:  confidence,
			FallbackUsed:     false,
			SafetyValidated:  true,
		},
		EmergencyContacts: o.fallback.Contacts(assessment),
	}
}

// callWithRetry drives attempts against the AI service under the breaker.
// Authentication failures abort immediately. Rate limits wait out the
// provider's Retry-After (or the configured delay) without consuming an
// attempt, up to MaxRateLimitRetries waits. Other retryable categories back
// off exponentially from BaseDelay. A half-open trial always has its outcome
// recorded before this function returns, so the breaker can never be left
// half-open with no trial in flight.
func (o *Orchestrator) callWithRetry(ctx context.Context, input *models.ConsultationInput, symptoms string, assessment models.RiskAssessment) (*genai.Result, error) {
	prompt := buildConsultationPrompt(input, symptoms, assessment)

	var lastErr error
	rateLimitWaits := 0
	trial := false

	for attempt := 1; attempt <= o.config.MaxAttempts; {
		if !trial {
			if err := o.breaker.Allow(); err != nil {
				o.logger.Warn("circuit breaker rejected consultation attempt", map[string]interface{}{
					"attempt": attempt,
				})
				return nil, err
			}
			// Allow leaves the breaker half-open only for the single
			// recovery trial, which this call now owns.
			trial = o.breaker.State() == BreakerHalfOpen
		}

		result, err := o.gen.Generate(ctx, prompt, consultationSystemInstruction)
		if err == nil {
			o.breaker.RecordSuccess()
			return result, nil
		}
		lastErr = err
		category := errors.Categorize(err)

		switch category {
		case errors.CategoryAuthentication:
			// Credentials won't fix themselves between attempts.
			o.breaker.RecordFailure()
			return nil, err

		case errors.CategoryRateLimit:
			if rateLimitWaits >= o.config.MaxRateLimitRetries {
				if trial {
					o.breaker.RecordFailure()
				}
				return nil, err
			}
			rateLimitWaits++
			delay := o.config.RateLimitDelay
			if after, ok := errors.RetryAfter(err); ok && after > 0 {
				delay = after
			}
			o.logger.Warn("rate limited, waiting before retry", map[string]interface{}{
				"attempt":   attempt,
				"waitCount": rateLimitWaits,
				"delayMs":   delay.Milliseconds(),
			})
			if err := o.sleep(ctx, delay); err != nil {
				if trial {
					o.breaker.RecordFailure()
				}
				return nil, lastErr
			}
			// Attempt counter is not advanced; the wait itself is bounded.
			// A rate-limited trial keeps its slot across the wait.
			continue

		default:
			o.breaker.RecordFailure()
			trial = false
			if attempt == o.config.MaxAttempts || !errors.IsRetryable(err) {
				return nil, err
			}
			delay := o.config.BaseDelay << (attempt - 1)
			o.logger.Warn("consultation attempt failed, backing off", map[string]interface{}{
				"attempt":  attempt,
				"category": string(category),
				"delayMs":  delay.Milliseconds(),
				"error":    err.Error(),
			})
			if err := o.sleep(ctx, delay); err != nil {
				return nil, lastErr
			}
			attempt++
		}
	}

	return nil, lastErr
}

// validationFailure builds the response for input that never reached the AI
// call: a locally generated consultation tagged with the validation category.
func (o *Orchestrator) validationFailure(input *models.ConsultationInput) *models.ConsultationResponse {
	if input == nil {
		input = &models.ConsultationInput{}
	}
	assessment := models.RiskAssessment{Level: models.RiskModerate}
	resp := o.fallback.Generate(input, "", assessment, errors.CategoryValidation)
	return resp
}

// Health reports the orchestrator's derived health signal.
func (o *Orchestrator) Health() Health {
	return o.tracker.HealthStatus()
}

// Statistics reports the tracked failure history.
func (o *Orchestrator) Statistics() Statistics {
	return o.tracker.Statistics()
}

// RecentErrors returns the most recent n tracked failures.
func (o *Orchestrator) RecentErrors(n int) []models.ErrorRecord {
	return o.tracker.Recent(n)
}

// Reset clears the failure history and closes the breaker.
func (o *Orchestrator) Reset() {
	o.tracker.Reset()
	o.publishBreakerState()
}

func (o *Orchestrator) publishBreakerState() {
	switch o.breaker.State() {
	case BreakerOpen:
		metrics.CircuitBreakerState.Set(2)
	case BreakerHalfOpen:
		metrics.CircuitBreakerState.Set(1)
	default:
		metrics.CircuitBreakerState.Set(0)
	}
}

func sessionID(input *models.ConsultationInput) string {
	if input == nil {
		return ""
	}
	return input.SessionID
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

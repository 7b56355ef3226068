// Package errors provides standardized error handling for the consultation pipeline.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Error Categories
// ==========================

// Category classifies a failure of the consultation pipeline or the
// external generative-AI service.
type Category string

const (
	CategoryValidation         Category = "validation"
	CategoryAuthentication     Category = "authentication"
	CategoryRateLimit          Category = "rate_limit"
	CategoryNetwork            Category = "network"
	CategoryServiceUnavailable Category = "service_unavailable"
	CategoryUnknown            Category = "unknown"
)

// ==========================
// 2. Standard Error Type
// ==========================

// ServiceError represents a structured application error.
type ServiceError struct {
	Category   Category      `json:"category"`
	Message    string        `json:"message"`
	Details    string        `json:"details,omitempty"`
	Retryable  bool          `json:"retryable"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("ServiceError[%s]: %s", e.Category, e.Message)
}

// ==========================
// 3. Error Constructors
// ==========================

// NewValidationError creates a non-retryable input validation error.
func NewValidationError(details string) *ServiceError {
	return &ServiceError{
		Category:  CategoryValidation,
		Message:   "Consultation input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuthenticationError creates a non-retryable credential error.
func NewAuthenticationError(details string) *ServiceError {
	return &ServiceError{
		Category:  CategoryAuthentication,
		Message:   "AI service authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitError creates a retryable throttling error. retryAfter carries
// the provider-supplied wait hint, zero when the provider gave none.
func NewRateLimitError(details string, retryAfter time.Duration) *ServiceError {
	return &ServiceError{
		Category:   CategoryRateLimit,
		Message:    "AI service rate limit exceeded",
		Details:    details,
		Retryable:  true,
		RetryAfter: retryAfter,
		Timestamp:  time.Now().UTC(),
	}
}

// NewNetworkError creates a retryable connectivity/timeout error.
func NewNetworkError(err error) *ServiceError {
	return &ServiceError{
		Category:  CategoryNetwork,
		Message:   "AI service connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewServiceUnavailableError creates a retryable provider-outage error.
func NewServiceUnavailableError(details string) *ServiceError {
	return &ServiceError{
		Category:  CategoryServiceUnavailable,
		Message:   "AI service unavailable",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownError wraps an unclassified failure.
func NewUnknownError(err error) *ServiceError {
	return &ServiceError{
		Category:  CategoryUnknown,
		Message:   "Unexpected consultation error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Categorization
// ==========================

// Categorize derives the error category. Typed ServiceErrors keep their own
// category; anything else is matched by message signature, so errors surfaced
// in-band by the provider (plain strings) classify the same way as typed ones.
func Categorize(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Category
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "403"):
		return CategoryAuthentication
	case strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "429"):
		return CategoryRateLimit
	case strings.Contains(msg, "service unavailable") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "bad gateway") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503"):
		return CategoryServiceUnavailable
	case strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "eof"):
		return CategoryNetwork
	default:
		return CategoryUnknown
	}
}

// IsRetryable reports whether the failure is worth re-attempting.
// Authentication and validation failures never are.
func IsRetryable(err error) bool {
	switch Categorize(err) {
	case CategoryAuthentication, CategoryValidation:
		return false
	default:
		return true
	}
}

// RetryAfter extracts the provider-supplied wait hint from a rate-limit
// error, if one was carried.
func RetryAfter(err error) (time.Duration, bool) {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.RetryAfter > 0 {
		return svcErr.RetryAfter, true
	}
	return 0, false
}

// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConsultationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultations_completed_total",
			Help: "Total number of consultations generated, by path",
		},
		[]string{"path"}, // "primary", "fallback", "validation_error"
	)

	ConsultationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultation_errors_total",
			Help: "Total number of AI service failures, by category",
		},
		[]string{"category"},
	)

	ConsultationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "consultation_duration_seconds",
			Help: "Duration of consultation generation in seconds",
		},
		[]string{"path"},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "consultation_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)
)

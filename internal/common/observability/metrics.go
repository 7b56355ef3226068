// internal/common/observability/metrics.go
package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider        *metric.MeterProvider
	meter                otelmetric.Meter
	consultationCounter  otelmetric.Int64Counter
	consultationDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	consultationCounter, _ := meter.Int64Counter(
		"consultations.processed",
		otelmetric.WithDescription("Number of consultations processed"),
	)

	consultationDuration, _ := meter.Float64Histogram(
		"consultations.duration",
		otelmetric.WithDescription("Consultation processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:        provider,
		meter:                meter,
		consultationCounter:  consultationCounter,
		consultationDuration: consultationDuration,
	}
}

func (o *Observability) RecordConsultation(ctx context.Context, path string) {
	if o.consultationCounter != nil {
		o.consultationCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("path", path),
		))
	}
}

func (o *Observability) RecordDuration(ctx context.Context, duration time.Duration, path string) {
	if o.consultationDuration != nil {
		o.consultationDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("path", path),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}

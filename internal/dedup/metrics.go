package dedup

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/a-marczewski/huntdedup/internal/dedup"

type loopMetrics struct {
	attempts        metric.Int64Counter
	rejections      metric.Int64Counter
	generatorErrors metric.Int64Counter
	duration        metric.Float64Histogram
}

func newLoopMetrics(meter metric.Meter) *loopMetrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	attempts, _ := meter.Int64Counter("huntdedup_attempts_total")
	rejections, _ := meter.Int64Counter("huntdedup_rejections_total")
	generatorErrors, _ := meter.Int64Counter("huntdedup_generator_errors_total")
	duration, _ := meter.Float64Histogram("huntdedup_generation_duration_ms")
	return &loopMetrics{
		attempts:        attempts,
		rejections:      rejections,
		generatorErrors: generatorErrors,
		duration:        duration,
	}
}

func (m *loopMetrics) attempt(ctx context.Context) {
	if m.attempts != nil {
		m.attempts.Add(ctx, 1)
	}
}

// rejection is labelled with the check that rejected the candidate.
func (m *loopMetrics) rejection(ctx context.Context, reason string) {
	if m.rejections != nil {
		m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *loopMetrics) generatorError(ctx context.Context) {
	if m.generatorErrors != nil {
		m.generatorErrors.Add(ctx, 1)
	}
}

func (m *loopMetrics) finished(ctx context.Context, status Status, d time.Duration) {
	if m.duration != nil {
		m.duration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(attribute.String("status", string(status))))
	}
}

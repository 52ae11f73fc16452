package llm

import (
	"context"
	"sync"
	"time"

	"github.com/compozy/nutrilens/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	outcomeSuccess = "success"
	outcomeTimeout = "timeout"
	outcomeError   = "error"
)

var (
	metricsOnce    sync.Once
	metricsInitErr error
	callDuration   metric.Float64Histogram
	callCounter    metric.Int64Counter
)

func recordCall(ctx context.Context, role Role, outcome string, d time.Duration) {
	if err := ensureMetrics(); err != nil || callDuration == nil || callCounter == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("role", string(role)),
		attribute.String("outcome", outcome),
	)
	callDuration.Record(ctx, d.Seconds(), attrs)
	callCounter.Add(ctx, 1, attrs)
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("nutrilens.llm")
		var err error
		callDuration, err = meter.Float64Histogram(
			metrics.MetricNameWithSubsystem("llm", "call_duration_seconds"),
			metric.WithDescription("Duration of model invocations including retries"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(.25, .5, 1, 2.5, 5, 10, 30, 60, 120),
		)
		if err != nil {
			metricsInitErr = err
			return
		}
		callCounter, err = meter.Int64Counter(
			metrics.MetricNameWithSubsystem("llm", "calls_total"),
			metric.WithDescription("Model invocations by role and outcome"),
		)
		if err != nil {
			metricsInitErr = err
		}
	})
	return metricsInitErr
}

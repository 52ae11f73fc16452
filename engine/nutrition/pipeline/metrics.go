package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/compozy/nutrilens/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce    sync.Once
	metricsInitErr error
	runDuration    metric.Float64Histogram
	runCounter     metric.Int64Counter
)

func recordRun(ctx context.Context, modality, outcome string, d time.Duration) {
	if err := ensureMetrics(); err != nil || runDuration == nil || runCounter == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("modality", modality),
		attribute.String("outcome", outcome),
	)
	runDuration.Record(ctx, d.Seconds(), attrs)
	runCounter.Add(ctx, 1, attrs)
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("nutrilens.nutrition.pipeline")
		var err error
		runDuration, err = meter.Float64Histogram(
			metrics.MetricNameWithSubsystem("pipeline", "run_duration_seconds"),
			metric.WithDescription("End to end duration of analysis runs"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
		)
		if err != nil {
			metricsInitErr = err
			return
		}
		runCounter, err = meter.Int64Counter(
			metrics.MetricNameWithSubsystem("pipeline", "runs_total"),
			metric.WithDescription("Analysis runs by modality and outcome"),
		)
		if err != nil {
			metricsInitErr = err
		}
	})
	return metricsInitErr
}

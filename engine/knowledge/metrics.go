package knowledge

import (
	"context"
	"sync"
	"time"

	"github.com/compozy/nutrilens/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// File outcomes of an ingestion run.
const (
	OutcomeIngested         = "ingested"
	OutcomeSkippedDuplicate = "skipped_duplicate"
	OutcomeSkippedEmpty     = "skipped_empty"
	OutcomeFailed           = "failed"
)

var (
	metricsOnce           sync.Once
	metricsMu             sync.Mutex
	metricsInitErr        error
	ingestDurationHist    metric.Float64Histogram
	chunkCounter          metric.Int64Counter
	fileOutcomeCounter    metric.Int64Counter
	queryLatencyHist      metric.Float64Histogram
	retrievalEmptyCounter metric.Int64Counter
	embedCacheCounter     metric.Int64Counter
)

func RecordIngestDuration(ctx context.Context, d time.Duration) {
	if err := ensureMetrics(); err != nil || ingestDurationHist == nil {
		return
	}
	ingestDurationHist.Record(ctx, d.Seconds())
}

func RecordIngestChunks(ctx context.Context, extension string, chunks int) {
	if chunks <= 0 {
		return
	}
	if err := ensureMetrics(); err != nil || chunkCounter == nil {
		return
	}
	chunkCounter.Add(ctx, int64(chunks), metric.WithAttributes(attribute.String("extension", extension)))
}

func RecordFileOutcome(ctx context.Context, outcome string) {
	if err := ensureMetrics(); err != nil || fileOutcomeCounter == nil {
		return
	}
	fileOutcomeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordQueryLatency(ctx context.Context, d time.Duration) {
	if err := ensureMetrics(); err != nil || queryLatencyHist == nil {
		return
	}
	queryLatencyHist.Record(ctx, d.Seconds())
}

func RecordRetrievalEmpty(ctx context.Context) {
	if err := ensureMetrics(); err != nil || retrievalEmptyCounter == nil {
		return
	}
	retrievalEmptyCounter.Add(ctx, 1)
}

func RecordEmbedCache(ctx context.Context, hit bool) {
	if err := ensureMetrics(); err != nil || embedCacheCounter == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	embedCacheCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func ResetMetricsForTesting() {
	metricsMu.Lock()
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	ingestDurationHist = nil
	chunkCounter = nil
	fileOutcomeCounter = nil
	queryLatencyHist = nil
	retrievalEmptyCounter = nil
	embedCacheCounter = nil
	metricsMu.Unlock()
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("nutrilens.knowledge")
		if err := initIngestMetrics(meter); err != nil {
			metricsInitErr = err
			return
		}
		if err := initRetrievalMetrics(meter); err != nil {
			metricsInitErr = err
		}
	})
	return metricsInitErr
}

func initIngestMetrics(meter metric.Meter) error {
	var err error
	ingestDurationHist, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("knowledge", "ingest_duration_seconds"),
		metric.WithDescription("Latency of knowledge base ingestion runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return err
	}
	chunkCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "chunks_total"),
		metric.WithDescription("Number of chunks persisted to the embedding index"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	fileOutcomeCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "files_total"),
		metric.WithDescription("Number of source files processed by outcome"),
		metric.WithUnit("1"),
	)
	return err
}

func initRetrievalMetrics(meter metric.Meter) error {
	var err error
	queryLatencyHist, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("knowledge", "query_latency_seconds"),
		metric.WithDescription("Latency of embedding index queries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5),
	)
	if err != nil {
		return err
	}
	retrievalEmptyCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "retrieval_empty_total"),
		metric.WithDescription("Number of queries that returned no hits"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	embedCacheCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "embed_cache_total"),
		metric.WithDescription("Embedding cache lookups by result"),
		metric.WithUnit("1"),
	)
	return err
}

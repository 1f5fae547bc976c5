package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	JobsStarted       metric.Int64Counter
	JobsFinished      metric.Int64Counter
	ItemsProcessed    metric.Int64Counter
	ItemsFailed       metric.Int64Counter
	EmbeddingDuration metric.Float64Histogram
	RetrievalDuration metric.Float64Histogram
	RetrievalResults  metric.Int64Counter
}

var global *Metrics

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("knowledge-platform")

	jobsStarted, err := meter.Int64Counter(
		"ingest.jobs.started",
		metric.WithDescription("Ingestion jobs started"),
	)
	if err != nil {
		return nil, err
	}

	jobsFinished, err := meter.Int64Counter(
		"ingest.jobs.finished",
		metric.WithDescription("Ingestion jobs finished, by terminal status"),
	)
	if err != nil {
		return nil, err
	}

	itemsProcessed, err := meter.Int64Counter(
		"ingest.items.processed",
		metric.WithDescription("Content units processed successfully"),
	)
	if err != nil {
		return nil, err
	}

	itemsFailed, err := meter.Int64Counter(
		"ingest.items.failed",
		metric.WithDescription("Content units that failed processing"),
	)
	if err != nil {
		return nil, err
	}

	embeddingDuration, err := meter.Float64Histogram(
		"embedding.request.duration",
		metric.WithDescription("Embedding request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	retrievalDuration, err := meter.Float64Histogram(
		"retrieval.query.duration",
		metric.WithDescription("Retrieval query duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	retrievalResults, err := meter.Int64Counter(
		"retrieval.results.returned",
		metric.WithDescription("Chunks returned to retrieval callers"),
	)
	if err != nil {
		return nil, err
	}

	global = &Metrics{
		JobsStarted:       jobsStarted,
		JobsFinished:      jobsFinished,
		ItemsProcessed:    itemsProcessed,
		ItemsFailed:       itemsFailed,
		EmbeddingDuration: embeddingDuration,
		RetrievalDuration: retrievalDuration,
		RetrievalResults:  retrievalResults,
	}
	return global, nil
}

// RecordJobStarted counts one job claim.
func RecordJobStarted(ctx context.Context, tenantID, sourceType string) {
	if global == nil {
		return
	}
	global.JobsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("source.type", sourceType),
	))
}

// RecordJobFinished counts one terminal job with its item tallies.
func RecordJobFinished(ctx context.Context, tenantID, status string, processed, failed int) {
	if global == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("job.status", status),
	)
	global.JobsFinished.Add(ctx, 1, attrs)
	global.ItemsProcessed.Add(ctx, int64(processed), attrs)
	global.ItemsFailed.Add(ctx, int64(failed), attrs)
}

// RecordEmbedding records one embedding call duration.
func RecordEmbedding(ctx context.Context, batchSize int, duration time.Duration) {
	if global == nil {
		return
	}
	global.EmbeddingDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Int("embedding.batch_size", batchSize),
	))
}

// RecordRetrieval records one retrieval query.
func RecordRetrieval(ctx context.Context, tenantID string, results int, duration time.Duration) {
	if global == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tenant.id", tenantID))
	global.RetrievalDuration.Record(ctx, duration.Seconds(), attrs)
	global.RetrievalResults.Add(ctx, int64(results), attrs)
}

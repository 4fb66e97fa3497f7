// Package worker provides OpenTelemetry instrumentation for the extraction
// lifecycle worker: per-job timing and counting around the handler, so batch
// throughput and failure rates are observable without touching the services.
package worker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names following OpenTelemetry semantic conventions.
const (
	JobDurationHistogramName = "worker_job_duration_seconds"
	JobCounterName           = "worker_jobs_total"
	JobBillsCounterName      = "worker_job_bills_total"
)

// Common attribute keys for consistent labeling.
const (
	AttrJobAction    = "job_action"    // extract, retrieve
	AttrJobResult    = "job_result"    // success, failure
	AttrRetryAttempt = "retry_attempt" // 0 for first submissions
	AttrWorkerID     = "worker_id"     // worker instance identifier
)

// Job result attribute values.
const (
	JobResultSuccess = "success"
	JobResultFailure = "failure"
)

// LifecycleMetrics collects per-job metrics for the lifecycle worker.
type LifecycleMetrics struct {
	jobDuration metric.Float64Histogram
	jobTotal    metric.Int64Counter
	jobBills    metric.Int64Counter

	workerID       string
	baseWorkerAttr attribute.KeyValue
}

// NewLifecycleMetrics creates a metrics collector using the global meter
// provider.
func NewLifecycleMetrics(workerID string) (*LifecycleMetrics, error) {
	return NewLifecycleMetricsWithProvider(workerID, otel.GetMeterProvider())
}

// NewLifecycleMetricsWithProvider creates a metrics collector with a specific
// meter provider.
func NewLifecycleMetricsWithProvider(workerID string, provider metric.MeterProvider) (*LifecycleMetrics, error) {
	meter := provider.Meter("billevents/worker", metric.WithInstrumentationVersion("1.0.0"))

	// jobLatencyBuckets covers the spread between a quick in-progress poll
	// and a submission or demultiplex round that makes several upstream
	// calls (100ms to 10min range).
	jobLatencyBuckets := []float64{
		0.1,   // 100ms
		0.25,  // 250ms
		0.5,   // 500ms
		1.0,   // 1s
		2.5,   // 2.5s
		5.0,   // 5s
		10.0,  // 10s
		30.0,  // 30s
		60.0,  // 1min
		120.0, // 2min
		300.0, // 5min
		600.0, // 10min
	}

	jobDuration, err := meter.Float64Histogram(
		JobDurationHistogramName,
		metric.WithDescription("Duration of lifecycle job handling in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobLatencyBuckets...),
	)
	if err != nil {
		return nil, err
	}

	jobTotal, err := meter.Int64Counter(
		JobCounterName,
		metric.WithDescription("Total number of lifecycle jobs handled"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	jobBills, err := meter.Int64Counter(
		JobBillsCounterName,
		metric.WithDescription("Total number of bills carried by handled jobs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &LifecycleMetrics{
		jobDuration:    jobDuration,
		jobTotal:       jobTotal,
		jobBills:       jobBills,
		workerID:       workerID,
		baseWorkerAttr: attribute.String(AttrWorkerID, workerID),
	}, nil
}

// RecordJob records one handled job with its timing, outcome, and the number
// of bills the payload carried.
func (m *LifecycleMetrics) RecordJob(
	ctx context.Context,
	action string,
	retryAttempt int,
	billCount int,
	duration time.Duration,
	jobErr error,
) {
	result := JobResultSuccess
	if jobErr != nil {
		result = JobResultFailure
	}
	attributes := []attribute.KeyValue{
		attribute.String(AttrJobAction, action),
		attribute.String(AttrJobResult, result),
		attribute.Int(AttrRetryAttempt, retryAttempt),
		m.baseWorkerAttr,
	}

	m.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attributes...))
	m.jobTotal.Add(ctx, 1, metric.WithAttributes(attributes...))
	if billCount > 0 {
		m.jobBills.Add(ctx, int64(billCount), metric.WithAttributes(attributes...))
	}
}

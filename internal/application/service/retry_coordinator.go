package service

import (
	"billevents/internal/application/common/slogger"
	"billevents/internal/domain/entity"
	"billevents/internal/domain/messaging"
	"billevents/internal/port/outbound"
	"context"
	"errors"
	"fmt"
)

// RetryCoordinator decides what happens to a batch's failed records after
// retrieval: resubmission in a fresh batch, or hand-off to the dead letter
// subject once the retry ceiling is reached.
type RetryCoordinator struct {
	jobs       outbound.BatchJobRepository
	publisher  outbound.MessagePublisher
	maxRetries int
}

// NewRetryCoordinator creates a RetryCoordinator. MaxRetries is the number
// of resubmission rounds allowed after the initial attempt.
func NewRetryCoordinator(jobs outbound.BatchJobRepository, publisher outbound.MessagePublisher, maxRetries int) (*RetryCoordinator, error) {
	if jobs == nil {
		return nil, errors.New("batch job repository cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("message publisher cannot be nil")
	}
	if maxRetries < 0 {
		return nil, errors.New("retry ceiling cannot be negative")
	}
	return &RetryCoordinator{jobs: jobs, publisher: publisher, maxRetries: maxRetries}, nil
}

// Coordinate inspects a retrieval report and resubmits the bills whose
// records failed. Abandoned batches carry no per-record results, so every
// bill of the original submission is retried. Reports that finalized
// nothing are left alone.
//
// Success records are never resubmitted, and neither are records whose
// only failure was linking events back onto the bill: their content is
// already persisted, and regeneration would duplicate it.
func (c *RetryCoordinator) Coordinate(ctx context.Context, report *RetrievalReport, originalKeys []string, retryAttempt int) error {
	var retryKeys []string
	var outcomes map[string]string

	switch report.Status {
	case RetrievalStatusNotReady, RetrievalStatusAlreadyProcessed:
		return nil
	case RetrievalStatusExpired, RetrievalStatusCancelled:
		retryKeys = originalKeys
		outcomes = abandonedOutcomes(originalKeys, report.Status)
	case RetrievalStatusCompleted:
		retryKeys, outcomes = failedRecords(report.Records)
	default:
		return fmt.Errorf("unknown retrieval status %q for batch %s", report.Status, report.BatchHandle)
	}

	if len(retryKeys) == 0 {
		slogger.Debug(ctx, "No records to retry", slogger.Fields{
			"batch_handle": report.BatchHandle,
		})
		return nil
	}

	job, err := c.jobs.GetByHandle(ctx, report.BatchHandle)
	if err != nil {
		return fmt.Errorf("failed to load batch job %s: %w", report.BatchHandle, err)
	}
	if job != nil && (job.Status() == entity.JobStatusRetried || job.Status() == entity.JobStatusExhausted) {
		slogger.Info(ctx, "Batch retry already coordinated", slogger.Fields{
			"batch_handle": report.BatchHandle,
			"status":       job.Status(),
		})
		return nil
	}

	if retryAttempt >= c.maxRetries {
		return c.deadLetter(ctx, report, job, retryKeys, outcomes, retryAttempt)
	}
	return c.resubmit(ctx, report, job, retryKeys, retryAttempt)
}

// resubmit publishes a fresh extract job covering the failed bills with an
// incremented attempt counter.
func (c *RetryCoordinator) resubmit(
	ctx context.Context,
	report *RetrievalReport,
	job *entity.BatchJob,
	retryKeys []string,
	retryAttempt int,
) error {
	envelope, err := messaging.CreateRetryExtract(retryKeys, retryAttempt, c.maxRetries)
	if err != nil {
		return fmt.Errorf("failed to build retry for batch %s: %w", report.BatchHandle, err)
	}
	if err := c.publisher.PublishExtract(ctx, envelope); err != nil {
		return fmt.Errorf("failed to publish retry for batch %s: %w", report.BatchHandle, err)
	}

	c.markRetried(ctx, job)

	slogger.Info(ctx, "Failed records resubmitted", slogger.Fields{
		"batch_handle": report.BatchHandle,
		"bill_count":   len(retryKeys),
		"next_attempt": retryAttempt + 1,
	})
	return nil
}

// deadLetter hands records whose retry ceiling is reached to the operator
// queue. The job is marked exhausted only after the dead letter publish
// succeeds, so a failed publish leaves the delivery retryable.
func (c *RetryCoordinator) deadLetter(
	ctx context.Context,
	report *RetrievalReport,
	job *entity.BatchJob,
	retryKeys []string,
	outcomes map[string]string,
	retryAttempt int,
) error {
	reason := fmt.Sprintf("retry ceiling of %d reached", c.maxRetries)
	payload := messaging.DeadLetterPayload{
		BatchID:      report.BatchHandle,
		BillKeys:     retryKeys,
		Outcomes:     outcomes,
		RetryAttempt: retryAttempt,
		Reason:       reason,
	}
	if err := c.publisher.PublishDeadLetter(ctx, payload); err != nil {
		return fmt.Errorf("failed to dead letter batch %s: %w", report.BatchHandle, err)
	}

	c.markExhausted(ctx, job, reason)

	slogger.Error(ctx, "Retry ceiling reached, records dead lettered", slogger.Fields{
		"batch_handle":  report.BatchHandle,
		"bill_count":    len(retryKeys),
		"retry_attempt": retryAttempt,
	})
	return nil
}

func (c *RetryCoordinator) markRetried(ctx context.Context, job *entity.BatchJob) {
	if job == nil {
		return
	}
	if err := job.MarkRetried(); err != nil {
		slogger.Warn(ctx, "Failed to mark batch job retried", slogger.Fields{
			"batch_handle": job.BatchHandle(),
			"status":       job.Status(),
			"error":        err.Error(),
		})
		return
	}
	if err := c.jobs.Update(ctx, job); err != nil {
		slogger.Warn(ctx, "Failed to update batch job", slogger.Fields{
			"batch_handle": job.BatchHandle(),
			"error":        err.Error(),
		})
	}
}

func (c *RetryCoordinator) markExhausted(ctx context.Context, job *entity.BatchJob, reason string) {
	if job == nil {
		return
	}
	if err := job.MarkExhausted(reason); err != nil {
		slogger.Warn(ctx, "Failed to mark batch job exhausted", slogger.Fields{
			"batch_handle": job.BatchHandle(),
			"status":       job.Status(),
			"error":        err.Error(),
		})
		return
	}
	if err := c.jobs.Update(ctx, job); err != nil {
		slogger.Warn(ctx, "Failed to update batch job", slogger.Fields{
			"batch_handle": job.BatchHandle(),
			"error":        err.Error(),
		})
	}
}

// failedRecords filters a completed report down to the bills worth
// resubmitting, keyed with their last observed outcome.
func failedRecords(records []RecordResult) ([]string, map[string]string) {
	var keys []string
	outcomes := make(map[string]string)
	for _, record := range records {
		if record.Outcome.ShouldRetry() {
			keys = append(keys, record.BillKey)
			outcomes[record.BillKey] = record.Outcome.String()
		}
	}
	return keys, outcomes
}

func abandonedOutcomes(keys []string, status string) map[string]string {
	outcomes := make(map[string]string, len(keys))
	for _, key := range keys {
		outcomes[key] = status
	}
	return outcomes
}

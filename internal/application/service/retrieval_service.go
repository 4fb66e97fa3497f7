package service

import (
	"billevents/internal/application/common/slogger"
	"billevents/internal/domain/entity"
	"billevents/internal/domain/messaging"
	"billevents/internal/domain/valueobject"
	"billevents/internal/port/outbound"
	"context"
	"errors"
	"fmt"
	"time"
)

// Retrieval report statuses.
const (
	RetrievalStatusCompleted        = "completed"
	RetrievalStatusNotReady         = "not_ready"
	RetrievalStatusExpired          = "expired"
	RetrievalStatusCancelled        = "cancelled"
	RetrievalStatusAlreadyProcessed = "already_processed"
)

// RecordResult is the outcome of demultiplexing one bill's record from an
// ended batch.
type RecordResult struct {
	BillKey        string                    `json:"bill_key"`
	Outcome        valueobject.RecordOutcome `json:"outcome"`
	Message        string                    `json:"message,omitempty"`
	EventsInserted int                       `json:"events_inserted"`
}

// RetrievalReport summarizes one poll of a batch. Records are only present
// for completed retrievals.
type RetrievalReport struct {
	BatchHandle string               `json:"batch_handle"`
	Status      string               `json:"status"`
	Counts      entity.RequestCounts `json:"counts"`
	Records     []RecordResult       `json:"records,omitempty"`
	Processed   int                  `json:"processed"`
}

// RetrievalService checks submitted batches against the provider and, once
// a batch ends, demultiplexes its per-record results into persisted policy
// events. It implements the retrieve side of the job handler.
type RetrievalService struct {
	bills     outbound.BillRepository
	events    outbound.PolicyEventRepository
	jobs      outbound.BatchJobRepository
	inference outbound.InferenceBatchClient
	scheduler outbound.PollScheduler
	decoder   *EventDecoder
	enricher  *EventEnricher
	retry     *RetryCoordinator
}

// NewRetrievalService creates a RetrievalService.
func NewRetrievalService(
	bills outbound.BillRepository,
	events outbound.PolicyEventRepository,
	jobs outbound.BatchJobRepository,
	inference outbound.InferenceBatchClient,
	scheduler outbound.PollScheduler,
	decoder *EventDecoder,
	enricher *EventEnricher,
	retry *RetryCoordinator,
) (*RetrievalService, error) {
	if bills == nil {
		return nil, errors.New("bill repository cannot be nil")
	}
	if events == nil {
		return nil, errors.New("policy event repository cannot be nil")
	}
	if jobs == nil {
		return nil, errors.New("batch job repository cannot be nil")
	}
	if inference == nil {
		return nil, errors.New("inference batch client cannot be nil")
	}
	if scheduler == nil {
		return nil, errors.New("poll scheduler cannot be nil")
	}
	if decoder == nil {
		return nil, errors.New("event decoder cannot be nil")
	}
	if enricher == nil {
		return nil, errors.New("event enricher cannot be nil")
	}
	if retry == nil {
		return nil, errors.New("retry coordinator cannot be nil")
	}
	return &RetrievalService{
		bills:     bills,
		events:    events,
		jobs:      jobs,
		inference: inference,
		scheduler: scheduler,
		decoder:   decoder,
		enricher:  enricher,
		retry:     retry,
	}, nil
}

// HandleRetrieve implements inbound.RetrieveHandler. After retrieval the
// retry coordinator decides whether failed records go back onto the queue.
func (s *RetrievalService) HandleRetrieve(ctx context.Context, payload messaging.RetrievePayload) error {
	report, err := s.Retrieve(ctx, payload.BatchID)
	if err != nil {
		return err
	}
	return s.retry.Coordinate(ctx, report, payload.BillKeys, payload.RetryAttempt)
}

// Retrieve checks one batch against the provider. In-progress batches
// produce a not_ready report and keep their poll trigger. Terminal batches
// get their trigger cancelled and their job row finalized; ended batches
// additionally have their results demultiplexed, guarded by a finalization
// claim so concurrent poll deliveries process results exactly once.
func (s *RetrievalService) Retrieve(ctx context.Context, batchHandle string) (*RetrievalReport, error) {
	info, err := s.inference.GetBatch(ctx, batchHandle)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %s: %w", batchHandle, err)
	}

	switch {
	case !info.State.IsTerminal():
		return s.reportInProgress(ctx, info), nil
	case info.State.IsAbandoned():
		return s.finishAbandoned(ctx, info), nil
	default:
		return s.finalizeEnded(ctx, info)
	}
}

// reportInProgress records the latest provider counts on the job row and
// leaves the poll trigger running.
func (s *RetrievalService) reportInProgress(ctx context.Context, info *outbound.BatchInfo) *RetrievalReport {
	if job, err := s.jobs.GetByHandle(ctx, info.Handle); err == nil && job != nil {
		job.UpdateCounts(info.Counts)
		if err := s.jobs.Update(ctx, job); err != nil {
			slogger.Warn(ctx, "Failed to record poll counts", slogger.Fields{
				"batch_handle": info.Handle,
				"error":        err.Error(),
			})
		}
	}

	slogger.Debug(ctx, "Batch still in progress", slogger.Fields{
		"batch_handle": info.Handle,
		"processing":   info.Counts.Processing,
		"succeeded":    info.Counts.Succeeded,
		"errored":      info.Counts.Errored,
	})
	return &RetrievalReport{
		BatchHandle: info.Handle,
		Status:      RetrievalStatusNotReady,
		Counts:      info.Counts,
	}
}

// finishAbandoned handles expired and cancelled batches. No per-record
// results exist for them, so there is nothing to demultiplex; the retry
// coordinator resubmits the whole original key list.
func (s *RetrievalService) finishAbandoned(ctx context.Context, info *outbound.BatchInfo) *RetrievalReport {
	s.cancelTrigger(ctx, info.Handle)
	s.recordAbandoned(ctx, info)

	status := RetrievalStatusExpired
	if info.State == valueobject.BatchStateCancelled {
		status = RetrievalStatusCancelled
	}

	slogger.Warn(ctx, "Batch abandoned by provider", slogger.Fields{
		"batch_handle": info.Handle,
		"state":        info.State.String(),
	})
	return &RetrievalReport{
		BatchHandle: info.Handle,
		Status:      status,
		Counts:      info.Counts,
	}
}

// finalizeEnded demultiplexes the results of an ended batch. The
// finalization claim is released on result listing failure so a later poll
// delivery can finish the batch.
func (s *RetrievalService) finalizeEnded(ctx context.Context, info *outbound.BatchInfo) (*RetrievalReport, error) {
	won, err := s.jobs.ClaimFinalization(ctx, info.Handle)
	if err != nil {
		return nil, fmt.Errorf("failed to claim finalization of batch %s: %w", info.Handle, err)
	}
	if !won {
		slogger.Info(ctx, "Batch already finalized by another delivery", slogger.Fields{
			"batch_handle": info.Handle,
		})
		return &RetrievalReport{
			BatchHandle: info.Handle,
			Status:      RetrievalStatusAlreadyProcessed,
			Counts:      info.Counts,
		}, nil
	}

	results, err := s.inference.ListResults(ctx, info.Handle)
	if err != nil {
		if releaseErr := s.jobs.ReleaseFinalization(ctx, info.Handle); releaseErr != nil {
			slogger.Error(ctx, "Failed to release finalization claim", slogger.Fields{
				"batch_handle": info.Handle,
				"error":        releaseErr.Error(),
			})
		}
		return nil, fmt.Errorf("failed to list results of batch %s: %w", info.Handle, err)
	}

	records := make([]RecordResult, 0, len(results))
	succeeded := 0
	for _, result := range results {
		record := s.processRecord(ctx, result)
		if record.Outcome == valueobject.OutcomeSuccess {
			succeeded++
		}
		records = append(records, record)
	}

	s.cancelTrigger(ctx, info.Handle)
	s.recordEnded(ctx, info)

	slogger.Info(ctx, "Batch results processed", slogger.Fields{
		"batch_handle": info.Handle,
		"records":      len(records),
		"succeeded":    succeeded,
	})
	return &RetrievalReport{
		BatchHandle: info.Handle,
		Status:      RetrievalStatusCompleted,
		Counts:      info.Counts,
		Records:     records,
		Processed:   len(records),
	}, nil
}

// processRecord demultiplexes one result: decode the model output, enrich
// each event, persist them, and link the inserted identifiers back onto the
// bill. Each record is isolated so one bad record never blocks the rest of
// the batch.
func (s *RetrievalService) processRecord(ctx context.Context, result outbound.BatchResult) RecordResult {
	record := RecordResult{BillKey: result.CustomID}

	if result.Type != outbound.BatchResultSucceeded {
		record.Outcome = valueobject.OutcomeAPIError
		record.Message = providerErrorMessage(result)
		slogger.Warn(ctx, "Batch record failed at provider", slogger.Fields{
			"bill_key": result.CustomID,
			"type":     string(result.Type),
			"message":  record.Message,
		})
		return record
	}

	bill, err := s.bills.FindByKey(ctx, result.CustomID)
	if err != nil {
		record.Outcome = valueobject.OutcomeProcessingError
		record.Message = err.Error()
		return record
	}
	if bill == nil {
		record.Outcome = valueobject.OutcomeBillNotFound
		record.Message = "bill no longer exists"
		slogger.Warn(ctx, "Batch record references missing bill", slogger.Fields{
			"bill_key": result.CustomID,
		})
		return record
	}

	raws, err := s.decoder.Decode(result.Text)
	if err != nil {
		record.Outcome = valueobject.OutcomeDecodeError
		record.Message = err.Error()
		slogger.Warn(ctx, "Failed to decode batch record output", slogger.Fields{
			"bill_key": result.CustomID,
			"error":    err.Error(),
		})
		return record
	}

	inserted, failures := s.persistEvents(ctx, bill, raws)
	if len(raws) > 0 && len(inserted) == 0 {
		record.Outcome = valueobject.OutcomeProcessingError
		record.Message = fmt.Sprintf("all %d events failed: %s", len(raws), failures[0])
		return record
	}

	if len(inserted) > 0 {
		if err := s.bills.AppendEventIDs(ctx, bill.Key(), inserted); err != nil {
			record.Outcome = valueobject.OutcomeDatabaseUpdateFailed
			record.Message = err.Error()
			record.EventsInserted = len(inserted)
			slogger.Error(ctx, "Failed to link events to bill", slogger.Fields{
				"bill_key": bill.Key(),
				"events":   len(inserted),
				"error":    err.Error(),
			})
			return record
		}
	}

	record.Outcome = valueobject.OutcomeSuccess
	record.EventsInserted = len(inserted)
	if len(failures) > 0 {
		record.Message = fmt.Sprintf("%d of %d events failed enrichment", len(failures), len(raws))
	}
	return record
}

// persistEvents enriches and stores the raw events one at a time so a
// single bad event does not discard its siblings. Returns the inserted
// event identifiers and the per-event failure messages.
func (s *RetrievalService) persistEvents(ctx context.Context, bill *entity.Bill, raws []RawEvent) ([]string, []string) {
	inserted := make([]string, 0, len(raws))
	var failures []string

	for i, raw := range raws {
		event, err := s.enricher.Enrich(ctx, bill, raw)
		if err != nil {
			failures = append(failures, fmt.Sprintf("event %d: %v", i, err))
			slogger.Warn(ctx, "Failed to enrich extracted event", slogger.Fields{
				"bill_key": bill.Key(),
				"index":    i,
				"error":    err.Error(),
			})
			continue
		}

		if err := s.events.SaveAll(ctx, []*entity.PolicyEvent{event}); err != nil {
			failures = append(failures, fmt.Sprintf("event %d: %v", i, err))
			slogger.Warn(ctx, "Failed to persist extracted event", slogger.Fields{
				"bill_key": bill.Key(),
				"event_id": event.ID(),
				"error":    err.Error(),
			})
			continue
		}
		inserted = append(inserted, event.ID())
	}
	return inserted, failures
}

func (s *RetrievalService) cancelTrigger(ctx context.Context, batchHandle string) {
	if err := s.scheduler.Cancel(ctx, batchHandle); err != nil {
		slogger.Warn(ctx, "Failed to cancel poll trigger", slogger.Fields{
			"batch_handle": batchHandle,
			"error":        err.Error(),
		})
	}
}

// recordAbandoned moves the job row to the expired or cancelled status. A
// job still in submitted never had its trigger registered; it passes
// through polling first so the transition stays legal.
func (s *RetrievalService) recordAbandoned(ctx context.Context, info *outbound.BatchInfo) {
	job := s.loadJob(ctx, info.Handle)
	if job == nil {
		return
	}
	if job.Status() == entity.JobStatusSubmitted {
		_ = job.MarkPolling()
	}

	var markErr error
	if info.State == valueobject.BatchStateCancelled {
		markErr = job.MarkCancelled()
	} else {
		markErr = job.MarkExpired()
	}
	if markErr != nil {
		slogger.Warn(ctx, "Batch job already finalized", slogger.Fields{
			"batch_handle": info.Handle,
			"status":       job.Status(),
		})
		return
	}

	job.UpdateCounts(info.Counts)
	s.updateJob(ctx, job)
}

// recordEnded moves the job row to the ended status with the provider's
// final counts.
func (s *RetrievalService) recordEnded(ctx context.Context, info *outbound.BatchInfo) {
	job := s.loadJob(ctx, info.Handle)
	if job == nil {
		return
	}
	if job.Status() == entity.JobStatusSubmitted {
		_ = job.MarkPolling()
	}

	endedAt := time.Now()
	if info.EndedAt != nil {
		endedAt = *info.EndedAt
	}
	if err := job.MarkEnded(info.Counts, endedAt); err != nil {
		slogger.Warn(ctx, "Batch job already finalized", slogger.Fields{
			"batch_handle": info.Handle,
			"status":       job.Status(),
		})
		return
	}
	s.updateJob(ctx, job)
}

func (s *RetrievalService) loadJob(ctx context.Context, batchHandle string) *entity.BatchJob {
	job, err := s.jobs.GetByHandle(ctx, batchHandle)
	if err != nil {
		slogger.Warn(ctx, "Failed to load batch job", slogger.Fields{
			"batch_handle": batchHandle,
			"error":        err.Error(),
		})
		return nil
	}
	if job == nil {
		slogger.Warn(ctx, "No batch job recorded for batch", slogger.Fields{
			"batch_handle": batchHandle,
		})
	}
	return job
}

func (s *RetrievalService) updateJob(ctx context.Context, job *entity.BatchJob) {
	if err := s.jobs.Update(ctx, job); err != nil {
		slogger.Warn(ctx, "Failed to update batch job", slogger.Fields{
			"batch_handle": job.BatchHandle(),
			"status":       job.Status(),
			"error":        err.Error(),
		})
	}
}

func providerErrorMessage(result outbound.BatchResult) string {
	switch {
	case result.ErrorType != "" && result.ErrorMessage != "":
		return result.ErrorType + ": " + result.ErrorMessage
	case result.ErrorMessage != "":
		return result.ErrorMessage
	default:
		return "result type " + string(result.Type)
	}
}

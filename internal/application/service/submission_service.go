package service

import (
	"billevents/internal/application/common/slogger"
	"billevents/internal/domain/entity"
	domainerrors "billevents/internal/domain/errors/domain"
	"billevents/internal/domain/messaging"
	"billevents/internal/port/outbound"
	"context"
	"errors"
	"fmt"
	"time"
)

// SubmissionSummary is the caller-facing view of one accepted batch
// submission.
type SubmissionSummary struct {
	BatchHandle string               `json:"batch_handle"`
	Status      string               `json:"status"`
	Counts      entity.RequestCounts `json:"counts"`
	CreatedAt   time.Time            `json:"created_at"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
	ResultsURL  string               `json:"results_url,omitempty"`
	BillKeys    []string             `json:"bill_keys"`
}

// SubmissionService builds and submits inference batches for bills and
// registers the poll trigger that drives result retrieval. It implements
// the extract side of the job handler.
type SubmissionService struct {
	bills     outbound.BillRepository
	events    outbound.PolicyEventRepository
	jobs      outbound.BatchJobRepository
	inference outbound.InferenceBatchClient
	scheduler outbound.PollScheduler
	builder   *BatchRequestBuilder
}

// NewSubmissionService creates a SubmissionService.
func NewSubmissionService(
	bills outbound.BillRepository,
	events outbound.PolicyEventRepository,
	jobs outbound.BatchJobRepository,
	inference outbound.InferenceBatchClient,
	scheduler outbound.PollScheduler,
	builder *BatchRequestBuilder,
) (*SubmissionService, error) {
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
	if builder == nil {
		return nil, errors.New("batch request builder cannot be nil")
	}
	return &SubmissionService{
		bills:     bills,
		events:    events,
		jobs:      jobs,
		inference: inference,
		scheduler: scheduler,
		builder:   builder,
	}, nil
}

// HandleExtract implements inbound.ExtractHandler.
func (s *SubmissionService) HandleExtract(ctx context.Context, payload messaging.ExtractPayload) error {
	_, err := s.Submit(ctx, payload)
	return err
}

// Submit loads the payload's bills, clears prior events when the payload is
// an update, and submits one batch covering every bill with a text body.
// Bills missing from the store are logged and dropped from the submission.
func (s *SubmissionService) Submit(ctx context.Context, payload messaging.ExtractPayload) (*SubmissionSummary, error) {
	bills, err := s.bills.FindByKeys(ctx, payload.BillKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to load bills: %w", err)
	}
	logMissingBills(ctx, payload.BillKeys, bills)
	if len(bills) == 0 {
		return nil, fmt.Errorf("%w: none of the %d requested bills exist", domainerrors.ErrEmptyBatch, len(payload.BillKeys))
	}

	if payload.IsUpdate() {
		if err := s.clearPriorEvents(ctx, bills); err != nil {
			return nil, err
		}
	}

	requests, err := s.builder.BuildRequests(ctx, bills)
	if err != nil {
		return nil, err
	}

	info, err := s.inference.CreateBatch(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference batch: %w", err)
	}

	submittedKeys := make([]string, len(requests))
	for i, request := range requests {
		submittedKeys[i] = request.CustomID
	}

	job, err := s.recordSubmission(ctx, info, submittedKeys, payload.RetryAttempt)
	if err != nil {
		return nil, err
	}

	slogger.Info(ctx, "Inference batch submitted", slogger.Fields{
		"batch_handle":  info.Handle,
		"bill_count":    len(submittedKeys),
		"retry_attempt": payload.RetryAttempt,
		"job_status":    job.Status(),
	})

	return &SubmissionSummary{
		BatchHandle: info.Handle,
		Status:      job.Status(),
		Counts:      info.Counts,
		CreatedAt:   info.CreatedAt,
		ExpiresAt:   info.ExpiresAt,
		ResultsURL:  info.ResultsURL,
		BillKeys:    submittedKeys,
	}, nil
}

// recordSubmission persists the job row for an accepted batch and registers
// its poll trigger. Trigger registration failure is not fatal: the provider
// is already processing, and the job stays submitted until a worker restart
// re-registers triggers for unfinished jobs.
func (s *SubmissionService) recordSubmission(
	ctx context.Context,
	info *outbound.BatchInfo,
	submittedKeys []string,
	retryAttempt int,
) (*entity.BatchJob, error) {
	job, err := entity.NewBatchJob(info.Handle, submittedKeys, retryAttempt)
	if err != nil {
		return nil, fmt.Errorf("provider returned an unusable batch: %w", err)
	}
	job.UpdateCounts(info.Counts)
	if info.ExpiresAt != nil {
		job.SetExpiresAt(*info.ExpiresAt)
	}
	if info.ResultsURL != "" {
		job.SetResultsURL(info.ResultsURL)
	}

	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist batch job %s: %w", info.Handle, err)
	}

	if err := s.scheduler.Schedule(ctx, info.Handle, submittedKeys, retryAttempt); err != nil {
		slogger.Error(ctx, "Failed to register poll trigger", slogger.Fields{
			"batch_handle": info.Handle,
			"error":        err.Error(),
		})
		return job, nil
	}

	if err := job.MarkPolling(); err != nil {
		return job, nil
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		slogger.Warn(ctx, "Failed to record polling status", slogger.Fields{
			"batch_handle": info.Handle,
			"error":        err.Error(),
		})
	}
	return job, nil
}

// clearPriorEvents deletes the existing events of updated bills so the new
// extraction replaces rather than duplicates them.
func (s *SubmissionService) clearPriorEvents(ctx context.Context, bills []*entity.Bill) error {
	keys := billKeysOf(bills)

	deleted, err := s.events.DeleteByBillKeys(ctx, keys)
	if err != nil {
		return fmt.Errorf("failed to delete prior events: %w", err)
	}
	if err := s.bills.ClearEventIDs(ctx, keys); err != nil {
		return fmt.Errorf("failed to clear bill event lists: %w", err)
	}

	slogger.Info(ctx, "Cleared prior events for updated bills", slogger.Fields{
		"bill_count":     len(keys),
		"deleted_events": deleted,
	})
	return nil
}

func billKeysOf(bills []*entity.Bill) []string {
	keys := make([]string, len(bills))
	for i, bill := range bills {
		keys[i] = bill.Key()
	}
	return keys
}

func logMissingBills(ctx context.Context, requested []string, found []*entity.Bill) {
	if len(found) == len(requested) {
		return
	}
	present := make(map[string]bool, len(found))
	for _, bill := range found {
		present[bill.Key()] = true
	}
	for _, key := range requested {
		if !present[key] {
			slogger.Warn(ctx, "Requested bill not found", slogger.Fields{
				"bill_key": key,
			})
		}
	}
}

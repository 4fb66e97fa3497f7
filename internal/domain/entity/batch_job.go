package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Batch job lifecycle status constants. The row in the job store is the
// durable trace of the lifecycle; the inference provider stays
// authoritative for processing state.
const (
	JobStatusSubmitted = "submitted"
	JobStatusPolling   = "polling"
	JobStatusEnded     = "ended"
	JobStatusExpired   = "expired"
	JobStatusCancelled = "cancelled"
	JobStatusRetried   = "retried"
	JobStatusExhausted = "exhausted"
)

// Batch handle validation constants.
const (
	BatchHandlePrefix    = "msgbatch_"
	batchHandleMinLength = len(BatchHandlePrefix)
)

// Batch job validation errors.
var (
	ErrInvalidBatchHandle   = errors.New("invalid batch handle")
	ErrNoBatchBills         = errors.New("batch job must reference at least one bill")
	ErrInvalidJobTransition = errors.New("invalid batch job status transition")
)

// jobTransitions enumerates the legal lifecycle moves.
var jobTransitions = map[string][]string{
	JobStatusSubmitted: {JobStatusPolling},
	JobStatusPolling:   {JobStatusEnded, JobStatusExpired, JobStatusCancelled},
	JobStatusEnded:     {JobStatusRetried, JobStatusExhausted},
	JobStatusExpired:   {JobStatusRetried, JobStatusExhausted},
	JobStatusCancelled: {JobStatusRetried, JobStatusExhausted},
	JobStatusRetried:   {},
	JobStatusExhausted: {},
}

// RequestCounts mirrors the provider's per-outcome request tally.
type RequestCounts struct {
	Processing int
	Succeeded  int
	Errored    int
}

// Total returns the total number of requests accounted for.
func (c RequestCounts) Total() int {
	return c.Processing + c.Succeeded + c.Errored
}

// BatchJob is the persisted finite-state record of one batch submission.
type BatchJob struct {
	id           uuid.UUID
	batchHandle  string
	status       string
	billKeys     []string
	counts       RequestCounts
	resultsURL   *string
	retryAttempt int
	errorMessage *string
	createdAt    time.Time
	updatedAt    time.Time
	endedAt      *time.Time
	expiresAt    *time.Time
}

// NewBatchJob creates a batch job record for a freshly created provider
// batch. Returns an error if the handle format is invalid (must start with
// "msgbatch_") or the bill key list is empty.
func NewBatchJob(batchHandle string, billKeys []string, retryAttempt int) (*BatchJob, error) {
	if len(batchHandle) <= batchHandleMinLength || !strings.HasPrefix(batchHandle, BatchHandlePrefix) {
		return nil, fmt.Errorf("%w: expected '%s<id>', got '%s'", ErrInvalidBatchHandle, BatchHandlePrefix, batchHandle)
	}
	if len(billKeys) == 0 {
		return nil, ErrNoBatchBills
	}
	if retryAttempt < 0 {
		return nil, errors.New("retry attempt cannot be negative")
	}
	now := time.Now()
	keys := make([]string, len(billKeys))
	copy(keys, billKeys)
	return &BatchJob{
		id:           uuid.New(),
		batchHandle:  batchHandle,
		status:       JobStatusSubmitted,
		billKeys:     keys,
		retryAttempt: retryAttempt,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// RestoreBatchJob creates a BatchJob entity from stored data.
func RestoreBatchJob(
	id uuid.UUID,
	batchHandle string,
	status string,
	billKeys []string,
	counts RequestCounts,
	resultsURL *string,
	retryAttempt int,
	errorMessage *string,
	createdAt, updatedAt time.Time,
	endedAt, expiresAt *time.Time,
) *BatchJob {
	return &BatchJob{
		id:           id,
		batchHandle:  batchHandle,
		status:       status,
		billKeys:     billKeys,
		counts:       counts,
		resultsURL:   resultsURL,
		retryAttempt: retryAttempt,
		errorMessage: errorMessage,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
		endedAt:      endedAt,
		expiresAt:    expiresAt,
	}
}

// ID returns the batch job ID.
func (j *BatchJob) ID() uuid.UUID {
	return j.id
}

// BatchHandle returns the provider's opaque batch identifier.
func (j *BatchJob) BatchHandle() string {
	return j.batchHandle
}

// Status returns the current lifecycle status.
func (j *BatchJob) Status() string {
	return j.status
}

// BillKeys returns the ordered bill keys included in the submission.
func (j *BatchJob) BillKeys() []string {
	return j.billKeys
}

// Counts returns the last observed per-outcome request counts.
func (j *BatchJob) Counts() RequestCounts {
	return j.counts
}

// ResultsURL returns the provider's results location, if reported.
func (j *BatchJob) ResultsURL() *string {
	return j.resultsURL
}

// RetryAttempt returns which resubmission round produced this job. The
// first submission is attempt zero.
func (j *BatchJob) RetryAttempt() int {
	return j.retryAttempt
}

// ErrorMessage returns the recorded failure description.
func (j *BatchJob) ErrorMessage() *string {
	return j.errorMessage
}

// CreatedAt returns the creation timestamp.
func (j *BatchJob) CreatedAt() time.Time {
	return j.createdAt
}

// UpdatedAt returns the last update timestamp.
func (j *BatchJob) UpdatedAt() time.Time {
	return j.updatedAt
}

// EndedAt returns when the provider reported the batch terminal.
func (j *BatchJob) EndedAt() *time.Time {
	return j.endedAt
}

// ExpiresAt returns the provider's expiration deadline for the batch.
func (j *BatchJob) ExpiresAt() *time.Time {
	return j.expiresAt
}

// SetExpiresAt records the provider expiration deadline.
func (j *BatchJob) SetExpiresAt(expiresAt time.Time) {
	j.expiresAt = &expiresAt
	j.updatedAt = time.Now()
}

// SetResultsURL records the provider results location.
func (j *BatchJob) SetResultsURL(url string) {
	j.resultsURL = &url
	j.updatedAt = time.Now()
}

// UpdateCounts records the counts observed on a poll without changing
// lifecycle status.
func (j *BatchJob) UpdateCounts(counts RequestCounts) {
	j.counts = counts
	j.updatedAt = time.Now()
}

// IsTerminal returns true once the job can no longer change outcome.
func (j *BatchJob) IsTerminal() bool {
	switch j.status {
	case JobStatusEnded, JobStatusExpired, JobStatusCancelled, JobStatusRetried, JobStatusExhausted:
		return true
	default:
		return false
	}
}

// MarkPolling records that the poll trigger is registered and the job is
// being monitored.
func (j *BatchJob) MarkPolling() error {
	return j.transition(JobStatusPolling)
}

// MarkEnded records that the provider finished processing the batch.
func (j *BatchJob) MarkEnded(counts RequestCounts, endedAt time.Time) error {
	if err := j.transition(JobStatusEnded); err != nil {
		return err
	}
	j.counts = counts
	j.endedAt = &endedAt
	return nil
}

// MarkExpired records that the batch expired before completion.
func (j *BatchJob) MarkExpired() error {
	return j.transition(JobStatusExpired)
}

// MarkCancelled records that the batch was cancelled.
func (j *BatchJob) MarkCancelled() error {
	return j.transition(JobStatusCancelled)
}

// MarkRetried records that the failed portion of the batch was resubmitted
// as a new job.
func (j *BatchJob) MarkRetried() error {
	return j.transition(JobStatusRetried)
}

// MarkExhausted records that the retry ceiling was reached and the failing
// records were handed to the operator queue instead of resubmitted.
func (j *BatchJob) MarkExhausted(reason string) error {
	if err := j.transition(JobStatusExhausted); err != nil {
		return err
	}
	j.errorMessage = &reason
	return nil
}

// transition moves the job to target if the move is legal.
func (j *BatchJob) transition(target string) error {
	for _, allowed := range jobTransitions[j.status] {
		if allowed == target {
			j.status = target
			j.updatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidJobTransition, j.status, target)
}

// Validate ensures the batch job entity is in a valid state.
func (j *BatchJob) Validate() error {
	if j.id == uuid.Nil {
		return errors.New("invalid batch job ID")
	}
	if !strings.HasPrefix(j.batchHandle, BatchHandlePrefix) {
		return ErrInvalidBatchHandle
	}
	if len(j.billKeys) == 0 {
		return ErrNoBatchBills
	}
	if j.retryAttempt < 0 {
		return errors.New("retry attempt cannot be negative")
	}
	if _, known := jobTransitions[j.status]; !known {
		return errors.New("invalid status")
	}
	return nil
}

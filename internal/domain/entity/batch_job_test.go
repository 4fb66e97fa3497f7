package entity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatchJob(t *testing.T) {
	t.Run("should create job in submitted state", func(t *testing.T) {
		// Arrange
		keys := []string{"HR-1-119", "S-2-119"}

		// Act
		job, err := NewBatchJob("msgbatch_01AbCdEf", keys, 0)

		// Assert
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.NotEqual(t, uuid.Nil, job.ID())
		assert.Equal(t, "msgbatch_01AbCdEf", job.BatchHandle())
		assert.Equal(t, JobStatusSubmitted, job.Status())
		assert.Equal(t, keys, job.BillKeys())
		assert.Equal(t, 0, job.RetryAttempt())
		assert.False(t, job.IsTerminal())
		assert.WithinDuration(t, time.Now(), job.CreatedAt(), time.Second)
	})

	t.Run("should copy the bill key slice", func(t *testing.T) {
		keys := []string{"HR-1-119"}

		job, err := NewBatchJob("msgbatch_01AbCdEf", keys, 0)
		require.NoError(t, err)

		keys[0] = "mutated"
		assert.Equal(t, []string{"HR-1-119"}, job.BillKeys())
	})

	t.Run("should reject handle without provider prefix", func(t *testing.T) {
		_, err := NewBatchJob("batch-123", []string{"HR-1-119"}, 0)

		require.ErrorIs(t, err, ErrInvalidBatchHandle)
	})

	t.Run("should reject empty bill key list", func(t *testing.T) {
		_, err := NewBatchJob("msgbatch_01AbCdEf", nil, 0)

		require.ErrorIs(t, err, ErrNoBatchBills)
	})

	t.Run("should reject negative retry attempt", func(t *testing.T) {
		_, err := NewBatchJob("msgbatch_01AbCdEf", []string{"HR-1-119"}, -1)

		require.Error(t, err)
	})
}

func TestBatchJobTransitions(t *testing.T) {
	newJob := func(t *testing.T) *BatchJob {
		t.Helper()
		job, err := NewBatchJob("msgbatch_01AbCdEf", []string{"HR-1-119"}, 0)
		require.NoError(t, err)
		return job
	}

	t.Run("should walk submitted through polling to ended", func(t *testing.T) {
		job := newJob(t)

		require.NoError(t, job.MarkPolling())
		assert.Equal(t, JobStatusPolling, job.Status())

		counts := RequestCounts{Succeeded: 3, Errored: 1}
		require.NoError(t, job.MarkEnded(counts, time.Now()))
		assert.Equal(t, JobStatusEnded, job.Status())
		assert.Equal(t, counts, job.Counts())
		assert.NotNil(t, job.EndedAt())
		assert.True(t, job.IsTerminal())
	})

	t.Run("should allow expiry and cancellation while polling", func(t *testing.T) {
		expired := newJob(t)
		require.NoError(t, expired.MarkPolling())
		require.NoError(t, expired.MarkExpired())
		assert.Equal(t, JobStatusExpired, expired.Status())

		cancelled := newJob(t)
		require.NoError(t, cancelled.MarkPolling())
		require.NoError(t, cancelled.MarkCancelled())
		assert.Equal(t, JobStatusCancelled, cancelled.Status())
	})

	t.Run("should move terminal provider states to retried", func(t *testing.T) {
		job := newJob(t)
		require.NoError(t, job.MarkPolling())
		require.NoError(t, job.MarkExpired())

		require.NoError(t, job.MarkRetried())
		assert.Equal(t, JobStatusRetried, job.Status())
	})

	t.Run("should record exhaustion reason", func(t *testing.T) {
		job := newJob(t)
		require.NoError(t, job.MarkPolling())
		require.NoError(t, job.MarkEnded(RequestCounts{Errored: 1}, time.Now()))

		require.NoError(t, job.MarkExhausted("retry ceiling reached after 3 attempts"))

		assert.Equal(t, JobStatusExhausted, job.Status())
		require.NotNil(t, job.ErrorMessage())
		assert.Contains(t, *job.ErrorMessage(), "retry ceiling")
	})

	t.Run("should reject skipping polling", func(t *testing.T) {
		job := newJob(t)

		err := job.MarkEnded(RequestCounts{}, time.Now())

		require.ErrorIs(t, err, ErrInvalidJobTransition)
		assert.Equal(t, JobStatusSubmitted, job.Status())
	})

	t.Run("should reject transitions out of retried", func(t *testing.T) {
		job := newJob(t)
		require.NoError(t, job.MarkPolling())
		require.NoError(t, job.MarkCancelled())
		require.NoError(t, job.MarkRetried())

		require.ErrorIs(t, job.MarkExhausted("x"), ErrInvalidJobTransition)
	})
}

func TestBatchJobCounts(t *testing.T) {
	t.Run("should update counts without changing status", func(t *testing.T) {
		job, err := NewBatchJob("msgbatch_01AbCdEf", []string{"HR-1-119"}, 0)
		require.NoError(t, err)
		require.NoError(t, job.MarkPolling())

		job.UpdateCounts(RequestCounts{Processing: 2, Succeeded: 1})

		assert.Equal(t, JobStatusPolling, job.Status())
		assert.Equal(t, 3, job.Counts().Total())
	})
}

func TestRestoreBatchJob(t *testing.T) {
	t.Run("should restore all fields", func(t *testing.T) {
		id := uuid.New()
		created := time.Now().Add(-time.Hour)
		updated := time.Now().Add(-time.Minute)
		ended := time.Now().Add(-30 * time.Minute)
		resultsURL := "https://api.anthropic.com/v1/messages/batches/msgbatch_01AbCdEf/results"
		errMsg := "expired before completion"

		job := RestoreBatchJob(
			id, "msgbatch_01AbCdEf", JobStatusExpired,
			[]string{"HR-1-119", "S-2-119"},
			RequestCounts{Processing: 1, Succeeded: 1},
			&resultsURL, 2, &errMsg,
			created, updated, &ended, nil,
		)

		assert.Equal(t, id, job.ID())
		assert.Equal(t, JobStatusExpired, job.Status())
		assert.Equal(t, 2, job.RetryAttempt())
		assert.Equal(t, &resultsURL, job.ResultsURL())
		assert.Equal(t, &errMsg, job.ErrorMessage())
		assert.Equal(t, created, job.CreatedAt())
		assert.NoError(t, job.Validate())
	})

	t.Run("should flag unknown restored status", func(t *testing.T) {
		job := RestoreBatchJob(
			uuid.New(), "msgbatch_01AbCdEf", "draining",
			[]string{"HR-1-119"}, RequestCounts{}, nil, 0, nil,
			time.Now(), time.Now(), nil, nil,
		)

		require.Error(t, job.Validate())
	})
}

package repository

import (
	"context"
	"testing"
	"time"

	"billevents/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgreSQLBatchJobRepository_SaveAndGet(t *testing.T) {
	pool := setupTestDB(t)
	cleanupTestData(t, pool)
	repo := NewPostgreSQLBatchJobRepository(pool)
	ctx := context.Background()

	job, err := entity.NewBatchJob("msgbatch_01AbC", []string{"hb-1001-2025", "sb-0042-2025"}, 0)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, job))

	t.Run("should round trip by handle", func(t *testing.T) {
		restored, err := repo.GetByHandle(ctx, "msgbatch_01AbC")

		require.NoError(t, err)
		require.NotNil(t, restored)
		assert.Equal(t, job.ID(), restored.ID())
		assert.Equal(t, entity.JobStatusSubmitted, restored.Status())
		assert.Equal(t, []string{"hb-1001-2025", "sb-0042-2025"}, restored.BillKeys())
		assert.Zero(t, restored.RetryAttempt())
	})

	t.Run("should round trip by ID", func(t *testing.T) {
		restored, err := repo.GetByID(ctx, job.ID())

		require.NoError(t, err)
		require.NotNil(t, restored)
		assert.Equal(t, "msgbatch_01AbC", restored.BatchHandle())
	})

	t.Run("should return nil for unknown handle", func(t *testing.T) {
		restored, err := repo.GetByHandle(ctx, "msgbatch_unknown")

		require.NoError(t, err)
		assert.Nil(t, restored)
	})

	t.Run("should reject duplicate handles", func(t *testing.T) {
		duplicate, err := entity.NewBatchJob("msgbatch_01AbC", []string{"hb-1003-2025"}, 0)
		require.NoError(t, err)

		assert.ErrorIs(t, repo.Save(ctx, duplicate), ErrAlreadyExists)
	})
}

func TestPostgreSQLBatchJobRepository_Update(t *testing.T) {
	pool := setupTestDB(t)
	cleanupTestData(t, pool)
	repo := NewPostgreSQLBatchJobRepository(pool)
	ctx := context.Background()

	job, err := entity.NewBatchJob("msgbatch_02XyZ", []string{"hb-2001-2025"}, 1)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, job))

	require.NoError(t, job.MarkPolling())
	require.NoError(t, job.MarkEnded(entity.RequestCounts{Succeeded: 1}, time.Now()))
	job.SetResultsURL("https://api.example.com/results/msgbatch_02XyZ")

	require.NoError(t, repo.Update(ctx, job))

	restored, err := repo.GetByHandle(ctx, "msgbatch_02XyZ")
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, entity.JobStatusEnded, restored.Status())
	assert.Equal(t, 1, restored.Counts().Succeeded)
	require.NotNil(t, restored.ResultsURL())
	assert.Equal(t, "https://api.example.com/results/msgbatch_02XyZ", *restored.ResultsURL())
	assert.NotNil(t, restored.EndedAt())

	t.Run("should report missing job", func(t *testing.T) {
		ghost, err := entity.NewBatchJob("msgbatch_ghost1", []string{"hb-1-2025"}, 0)
		require.NoError(t, err)

		assert.ErrorIs(t, repo.Update(ctx, ghost), ErrNotFound)
	})
}

func TestPostgreSQLBatchJobRepository_GetUnfinished(t *testing.T) {
	pool := setupTestDB(t)
	cleanupTestData(t, pool)
	repo := NewPostgreSQLBatchJobRepository(pool)
	ctx := context.Background()

	submitted, err := entity.NewBatchJob("msgbatch_sub001", []string{"hb-1-2025"}, 0)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, submitted))

	polling, err := entity.NewBatchJob("msgbatch_pol001", []string{"hb-2-2025"}, 0)
	require.NoError(t, err)
	require.NoError(t, polling.MarkPolling())
	require.NoError(t, repo.Save(ctx, polling))

	done, err := entity.NewBatchJob("msgbatch_don001", []string{"hb-3-2025"}, 0)
	require.NoError(t, err)
	require.NoError(t, done.MarkPolling())
	require.NoError(t, done.MarkEnded(entity.RequestCounts{Succeeded: 1}, time.Now()))
	require.NoError(t, repo.Save(ctx, done))

	unfinished, err := repo.GetUnfinished(ctx)

	require.NoError(t, err)
	require.Len(t, unfinished, 2)
	handles := []string{unfinished[0].BatchHandle(), unfinished[1].BatchHandle()}
	assert.Contains(t, handles, "msgbatch_sub001")
	assert.Contains(t, handles, "msgbatch_pol001")
}

func TestPostgreSQLBatchJobRepository_Claims(t *testing.T) {
	pool := setupTestDB(t)
	cleanupTestData(t, pool)
	repo := NewPostgreSQLBatchJobRepository(pool)
	ctx := context.Background()

	t.Run("should win first claim and lose second", func(t *testing.T) {
		won, err := repo.ClaimFinalization(ctx, "msgbatch_claim1")
		require.NoError(t, err)
		assert.True(t, won)

		won, err = repo.ClaimFinalization(ctx, "msgbatch_claim1")
		require.NoError(t, err)
		assert.False(t, won)
	})

	t.Run("should allow reclaim after release", func(t *testing.T) {
		require.NoError(t, repo.ReleaseFinalization(ctx, "msgbatch_claim1"))

		won, err := repo.ClaimFinalization(ctx, "msgbatch_claim1")
		require.NoError(t, err)
		assert.True(t, won)
	})

	t.Run("should reject empty handle", func(t *testing.T) {
		_, err := repo.ClaimFinalization(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

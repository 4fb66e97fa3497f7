package outbound

import (
	"billevents/internal/domain/entity"
	"context"

	"github.com/google/uuid"
)

// BatchJobRepository defines the interface for batch job persistence.
type BatchJobRepository interface {
	// Save persists a new batch job record.
	Save(ctx context.Context, job *entity.BatchJob) error

	// Update persists the current state of an existing batch job.
	Update(ctx context.Context, job *entity.BatchJob) error

	// GetByID retrieves a batch job by its ID.
	// Returns (nil, nil) when no job exists for the ID.
	GetByID(ctx context.Context, id uuid.UUID) (*entity.BatchJob, error)

	// GetByHandle retrieves a batch job by its provider batch handle.
	// Returns (nil, nil) when no job exists for the handle.
	GetByHandle(ctx context.Context, batchHandle string) (*entity.BatchJob, error)

	// GetUnfinished retrieves all jobs still waiting on the provider, meaning
	// jobs in the submitted or polling status. Used to re-register poll
	// triggers after a worker restart.
	GetUnfinished(ctx context.Context) ([]*entity.BatchJob, error)

	// ClaimFinalization records that this worker is finalizing the batch.
	// Returns true when the claim was won and false when another worker
	// already holds it.
	ClaimFinalization(ctx context.Context, batchHandle string) (bool, error)

	// ReleaseFinalization drops a previously won claim so that a later
	// delivery can finalize the batch.
	ReleaseFinalization(ctx context.Context, batchHandle string) error
}

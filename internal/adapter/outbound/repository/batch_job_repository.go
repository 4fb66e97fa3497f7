package repository

import (
	"billevents/internal/domain/entity"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQL query constants to avoid repetition
const (
	batchJobFields = `
		id, batch_handle, status, bill_keys, processing_count, succeeded_count, errored_count,
		results_url, retry_attempt, error_message, created_at, updated_at, ended_at, expires_at`
	batchJobsTable        = "billevents.batch_jobs"
	processedBatchesTable = "billevents.processed_batches"
)

// PostgreSQLBatchJobRepository implements the BatchJobRepository interface.
type PostgreSQLBatchJobRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLBatchJobRepository creates a new PostgreSQL batch job repository.
func NewPostgreSQLBatchJobRepository(pool *pgxpool.Pool) *PostgreSQLBatchJobRepository {
	return &PostgreSQLBatchJobRepository{
		pool: pool,
	}
}

// buildSelectQuery builds a SELECT query with optional WHERE and ORDER BY clauses.
func (r *PostgreSQLBatchJobRepository) buildSelectQuery(whereClause, orderClause string) string {
	query := fmt.Sprintf("SELECT %s FROM %s", batchJobFields, batchJobsTable)
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	if orderClause != "" {
		query += " ORDER BY " + orderClause
	}
	return query
}

// Save persists a new batch job record.
func (r *PostgreSQLBatchJobRepository) Save(ctx context.Context, job *entity.BatchJob) error {
	if job == nil {
		return ErrInvalidArgument
	}

	query := `
		INSERT INTO ` + batchJobsTable + ` (
			id, batch_handle, status, bill_keys, processing_count, succeeded_count, errored_count,
			results_url, retry_attempt, error_message, created_at, updated_at, ended_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`

	counts := job.Counts()
	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		job.ID(),
		job.BatchHandle(),
		job.Status(),
		job.BillKeys(),
		counts.Processing,
		counts.Succeeded,
		counts.Errored,
		job.ResultsURL(),
		job.RetryAttempt(),
		job.ErrorMessage(),
		job.CreatedAt(),
		job.UpdatedAt(),
		job.EndedAt(),
		job.ExpiresAt(),
	)
	if err != nil {
		return WrapError(err, "save batch job")
	}

	return nil
}

// Update persists the current state of an existing batch job.
func (r *PostgreSQLBatchJobRepository) Update(ctx context.Context, job *entity.BatchJob) error {
	if job == nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE ` + batchJobsTable + ` SET
			status = $2,
			processing_count = $3,
			succeeded_count = $4,
			errored_count = $5,
			results_url = $6,
			error_message = $7,
			updated_at = $8,
			ended_at = $9,
			expires_at = $10
		WHERE id = $1`

	counts := job.Counts()
	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query,
		job.ID(),
		job.Status(),
		counts.Processing,
		counts.Succeeded,
		counts.Errored,
		job.ResultsURL(),
		job.ErrorMessage(),
		job.UpdatedAt(),
		job.EndedAt(),
		job.ExpiresAt(),
	)
	if err != nil {
		return WrapError(err, "update batch job")
	}

	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "update batch job")
	}

	return nil
}

// GetByID retrieves a batch job by its ID.
func (r *PostgreSQLBatchJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.BatchJob, error) {
	query := r.buildSelectQuery("id = $1", "")

	qi := GetQueryInterface(ctx, r.pool)
	row := qi.QueryRow(ctx, query, id)

	job, err := r.scanBatchJob(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil //nolint:nilnil // Not found is not an error condition for Get methods
		}
		return nil, WrapError(err, "get batch job by ID")
	}

	return job, nil
}

// GetByHandle retrieves a batch job by its provider batch handle.
func (r *PostgreSQLBatchJobRepository) GetByHandle(ctx context.Context, batchHandle string) (*entity.BatchJob, error) {
	if batchHandle == "" {
		return nil, ErrInvalidArgument
	}

	query := r.buildSelectQuery("batch_handle = $1", "")

	qi := GetQueryInterface(ctx, r.pool)
	row := qi.QueryRow(ctx, query, batchHandle)

	job, err := r.scanBatchJob(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil //nolint:nilnil // Not found is not an error condition for Get methods
		}
		return nil, WrapError(err, "get batch job by handle")
	}

	return job, nil
}

// GetUnfinished retrieves all jobs still waiting on the provider.
func (r *PostgreSQLBatchJobRepository) GetUnfinished(ctx context.Context) ([]*entity.BatchJob, error) {
	query := r.buildSelectQuery(
		"status IN ('"+entity.JobStatusSubmitted+"', '"+entity.JobStatusPolling+"')",
		"created_at ASC",
	)

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query)
	if err != nil {
		return nil, WrapError(err, "get unfinished batch jobs")
	}
	defer rows.Close()

	var jobs []*entity.BatchJob
	for rows.Next() {
		job, scanErr := r.scanBatchJob(rows)
		if scanErr != nil {
			return nil, WrapError(scanErr, "get unfinished batch jobs")
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate batch job rows")
	}

	if jobs == nil {
		return []*entity.BatchJob{}, nil
	}

	return jobs, nil
}

// ClaimFinalization records that this worker is finalizing the batch. The
// insert is the claim: whichever worker gets the row in wins, every other
// attempt conflicts and returns false.
func (r *PostgreSQLBatchJobRepository) ClaimFinalization(ctx context.Context, batchHandle string) (bool, error) {
	if batchHandle == "" {
		return false, ErrInvalidArgument
	}

	query := `
		INSERT INTO ` + processedBatchesTable + ` (batch_handle, claimed_at)
		VALUES ($1, CURRENT_TIMESTAMP)
		ON CONFLICT (batch_handle) DO NOTHING`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query, batchHandle)
	if err != nil {
		return false, WrapError(err, "claim batch finalization")
	}

	return result.RowsAffected() == 1, nil
}

// ReleaseFinalization drops a previously won claim so that a later delivery
// can finalize the batch.
func (r *PostgreSQLBatchJobRepository) ReleaseFinalization(ctx context.Context, batchHandle string) error {
	if batchHandle == "" {
		return ErrInvalidArgument
	}

	query := "DELETE FROM " + processedBatchesTable + " WHERE batch_handle = $1"

	qi := GetQueryInterface(ctx, r.pool)
	if _, err := qi.Exec(ctx, query, batchHandle); err != nil {
		return WrapError(err, "release batch finalization")
	}

	return nil
}

// scanBatchJob is a helper to scan a row into a BatchJob entity.
func (r *PostgreSQLBatchJobRepository) scanBatchJob(row interface {
	Scan(...interface{}) error
},
) (*entity.BatchJob, error) {
	var id uuid.UUID
	var batchHandle, status string
	var billKeys []string
	var processingCount, succeededCount, erroredCount, retryAttempt int
	var resultsURL, errorMessage *string
	var createdAt, updatedAt time.Time
	var endedAt, expiresAt *time.Time

	err := row.Scan(
		&id, &batchHandle, &status, &billKeys, &processingCount, &succeededCount, &erroredCount,
		&resultsURL, &retryAttempt, &errorMessage, &createdAt, &updatedAt, &endedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}

	counts := entity.RequestCounts{
		Processing: processingCount,
		Succeeded:  succeededCount,
		Errored:    erroredCount,
	}

	return entity.RestoreBatchJob(
		id, batchHandle, status, billKeys, counts,
		resultsURL, retryAttempt, errorMessage,
		createdAt, updatedAt, endedAt, expiresAt,
	), nil
}

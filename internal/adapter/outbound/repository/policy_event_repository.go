package repository

import (
	"billevents/internal/domain/entity"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SQL query constants to avoid repetition
const (
	policyEventFields = `
		id, bill_key, text, topics, tags, summary, title, embedding, snapshot, status, created_at`
	policyEventsTable   = "billevents.policy_events"
	policyEventColCount = 11
)

// PostgreSQLPolicyEventRepository implements the PolicyEventRepository interface.
type PostgreSQLPolicyEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLPolicyEventRepository creates a new PostgreSQL policy event repository.
func NewPostgreSQLPolicyEventRepository(pool *pgxpool.Pool) *PostgreSQLPolicyEventRepository {
	return &PostgreSQLPolicyEventRepository{
		pool: pool,
	}
}

// SaveAll persists the given events with a single multi-row insert.
func (r *PostgreSQLPolicyEventRepository) SaveAll(ctx context.Context, events []*entity.PolicyEvent) error {
	if len(events) == 0 {
		return nil
	}

	query, args, err := buildEventInsertQuery(events)
	if err != nil {
		return err
	}

	qi := GetQueryInterface(ctx, r.pool)
	if _, err := qi.Exec(ctx, query, args...); err != nil {
		return WrapError(err, "save policy events")
	}

	return nil
}

// buildEventInsertQuery builds a multi-row INSERT statement for the given
// events. Multi-row inserts keep a whole extraction result in one round trip.
func buildEventInsertQuery(events []*entity.PolicyEvent) (string, []interface{}, error) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO " + policyEventsTable + " (" + policyEventFields + "\n\t) VALUES ")

	args := make([]interface{}, 0, len(events)*policyEventColCount)
	for i, event := range events {
		if event == nil {
			return "", nil, ErrInvalidArgument
		}

		snapshotData, err := json.Marshal(event.Snapshot())
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode snapshot for event %s: %w", event.ID(), err)
		}

		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * policyEventColCount
		sb.WriteString("(")
		for col := 1; col <= policyEventColCount; col++ {
			if col > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+col)
		}
		sb.WriteString(")")

		args = append(args,
			event.ID(),
			event.BillKey(),
			event.Text(),
			event.Topics(),
			event.Tags(),
			event.Summary(),
			event.Title(),
			event.Embedding(),
			snapshotData,
			event.Status(),
			event.CreatedAt(),
		)
	}

	return sb.String(), args, nil
}

// FindByBillKey retrieves all events attached to a bill.
func (r *PostgreSQLPolicyEventRepository) FindByBillKey(
	ctx context.Context,
	billKey string,
) ([]*entity.PolicyEvent, error) {
	if billKey == "" {
		return nil, ErrInvalidArgument
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE bill_key = $1 ORDER BY created_at ASC, id ASC",
		policyEventFields, policyEventsTable,
	)

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, billKey)
	if err != nil {
		return nil, WrapError(err, "find policy events by bill key")
	}
	defer rows.Close()

	var events []*entity.PolicyEvent
	for rows.Next() {
		event, scanErr := r.scanPolicyEvent(rows)
		if scanErr != nil {
			return nil, WrapError(scanErr, "find policy events by bill key")
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate policy event rows")
	}

	if events == nil {
		return []*entity.PolicyEvent{}, nil
	}

	return events, nil
}

// DeleteByBillKeys removes every event attached to the given bills and
// returns the number of deleted events.
func (r *PostgreSQLPolicyEventRepository) DeleteByBillKeys(ctx context.Context, billKeys []string) (int64, error) {
	if len(billKeys) == 0 {
		return 0, nil
	}

	query := "DELETE FROM " + policyEventsTable + " WHERE bill_key = ANY($1)"

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query, billKeys)
	if err != nil {
		return 0, WrapError(err, "delete policy events by bill keys")
	}

	return result.RowsAffected(), nil
}

// scanPolicyEvent is a helper to scan a row into a PolicyEvent entity.
func (r *PostgreSQLPolicyEventRepository) scanPolicyEvent(row interface {
	Scan(...interface{}) error
},
) (*entity.PolicyEvent, error) {
	var id, billKey, text, summary, title, status string
	var topics, tags []string
	var embedding []float32
	var snapshotData []byte
	var createdAt time.Time

	err := row.Scan(&id, &billKey, &text, &topics, &tags, &summary, &title, &embedding, &snapshotData, &status, &createdAt)
	if err != nil {
		return nil, err
	}

	var snapshot entity.BillSnapshot
	if len(snapshotData) > 0 {
		if unmarshalErr := json.Unmarshal(snapshotData, &snapshot); unmarshalErr != nil {
			return nil, fmt.Errorf("failed to decode snapshot for event %s: %w", id, unmarshalErr)
		}
	}

	return entity.RestorePolicyEvent(id, billKey, text, topics, tags, summary, title, embedding, snapshot, status, createdAt), nil
}

package repository

import (
	"billevents/internal/domain/entity"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SQL query constants to avoid repetition
const (
	billFields = `
		key, title, body, status, actions, event_ids, created_at, updated_at`
	billsTable = "billevents.bills"
)

// PostgreSQLBillRepository implements the BillRepository interface.
type PostgreSQLBillRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLBillRepository creates a new PostgreSQL bill repository.
func NewPostgreSQLBillRepository(pool *pgxpool.Pool) *PostgreSQLBillRepository {
	return &PostgreSQLBillRepository{
		pool: pool,
	}
}

// FindByKey retrieves a single bill by its key. Returns (nil, nil) when no
// bill exists for the key.
func (r *PostgreSQLBillRepository) FindByKey(ctx context.Context, key string) (*entity.Bill, error) {
	if key == "" {
		return nil, ErrInvalidArgument
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE key = $1", billFields, billsTable)

	qi := GetQueryInterface(ctx, r.pool)
	row := qi.QueryRow(ctx, query, key)

	bill, err := r.scanBill(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil //nolint:nilnil // Not found is not an error condition for Find methods
		}
		return nil, WrapError(err, "find bill by key")
	}

	return bill, nil
}

// FindByKeys retrieves the bills for the given keys. Keys without a matching
// bill are absent from the result.
func (r *PostgreSQLBillRepository) FindByKeys(ctx context.Context, keys []string) ([]*entity.Bill, error) {
	if len(keys) == 0 {
		return []*entity.Bill{}, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE key = ANY($1) ORDER BY key ASC", billFields, billsTable)

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, keys)
	if err != nil {
		return nil, WrapError(err, "find bills by keys")
	}
	defer rows.Close()

	var bills []*entity.Bill
	for rows.Next() {
		bill, scanErr := r.scanBill(rows)
		if scanErr != nil {
			return nil, WrapError(scanErr, "find bills by keys")
		}
		bills = append(bills, bill)
	}

	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate bill rows")
	}

	if bills == nil {
		return []*entity.Bill{}, nil
	}

	return bills, nil
}

// AppendEventIDs adds event identifiers to a bill's event list.
func (r *PostgreSQLBillRepository) AppendEventIDs(ctx context.Context, key string, eventIDs []string) error {
	if key == "" {
		return ErrInvalidArgument
	}
	if len(eventIDs) == 0 {
		return nil
	}

	query := `
		UPDATE ` + billsTable + `
		SET event_ids = event_ids || $2::text[], updated_at = CURRENT_TIMESTAMP
		WHERE key = $1`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query, key, eventIDs)
	if err != nil {
		return WrapError(err, "append bill event IDs")
	}

	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "append bill event IDs")
	}

	return nil
}

// ClearEventIDs empties the event list of every given bill.
func (r *PostgreSQLBillRepository) ClearEventIDs(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	query := `
		UPDATE ` + billsTable + `
		SET event_ids = '{}', updated_at = CURRENT_TIMESTAMP
		WHERE key = ANY($1)`

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query, keys)
	if err != nil {
		return WrapError(err, "clear bill event IDs")
	}

	return nil
}

// scanBill is a helper to scan a row into a Bill entity.
func (r *PostgreSQLBillRepository) scanBill(row interface {
	Scan(...interface{}) error
},
) (*entity.Bill, error) {
	var key, title, body string
	var status *string
	var actionsData []byte
	var eventIDs []string
	var createdAt, updatedAt time.Time

	err := row.Scan(&key, &title, &body, &status, &actionsData, &eventIDs, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	var actions []entity.BillAction
	if len(actionsData) > 0 {
		if unmarshalErr := json.Unmarshal(actionsData, &actions); unmarshalErr != nil {
			return nil, fmt.Errorf("failed to decode bill actions for %s: %w", key, unmarshalErr)
		}
	}

	billStatus := ""
	if status != nil {
		billStatus = *status
	}

	return entity.RestoreBill(key, title, body, billStatus, actions, eventIDs, createdAt, updatedAt), nil
}

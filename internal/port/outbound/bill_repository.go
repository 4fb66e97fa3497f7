package outbound

import (
	"billevents/internal/domain/entity"
	"context"
)

// BillRepository defines the interface for bill persistence.
type BillRepository interface {
	// FindByKey retrieves a single bill by its key.
	// Returns (nil, nil) when no bill exists for the key.
	FindByKey(ctx context.Context, key string) (*entity.Bill, error)

	// FindByKeys retrieves the bills for the given keys. Keys without a
	// matching bill are silently absent from the result.
	FindByKeys(ctx context.Context, keys []string) ([]*entity.Bill, error)

	// AppendEventIDs adds event identifiers to a bill's event list.
	AppendEventIDs(ctx context.Context, key string, eventIDs []string) error

	// ClearEventIDs empties the event list of every given bill.
	ClearEventIDs(ctx context.Context, keys []string) error
}

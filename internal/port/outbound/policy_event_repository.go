package outbound

import (
	"billevents/internal/domain/entity"
	"context"
)

// PolicyEventRepository defines the interface for policy event persistence.
type PolicyEventRepository interface {
	// SaveAll persists the given events in a single transaction.
	SaveAll(ctx context.Context, events []*entity.PolicyEvent) error

	// FindByBillKey retrieves all events attached to a bill.
	FindByBillKey(ctx context.Context, billKey string) ([]*entity.PolicyEvent, error)

	// DeleteByBillKeys removes every event attached to the given bills and
	// returns the number of deleted events.
	DeleteByBillKeys(ctx context.Context, billKeys []string) (int64, error)
}

package outbound

import (
	"billevents/internal/domain/messaging"
	"context"
)

// MessagePublisher defines the interface for publishing job messages.
type MessagePublisher interface {
	// PublishExtract publishes an extraction job envelope.
	PublishExtract(ctx context.Context, envelope messaging.Envelope) error

	// PublishRetrieve publishes a batch poll notification envelope.
	PublishRetrieve(ctx context.Context, envelope messaging.Envelope) error

	// PublishDeadLetter publishes an exhausted batch onto the dead letter
	// subject for manual inspection.
	PublishDeadLetter(ctx context.Context, payload messaging.DeadLetterPayload) error
}

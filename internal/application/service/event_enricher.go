package service

import (
	"billevents/internal/domain/entity"
	"billevents/internal/port/outbound"
	"context"
	"errors"
	"fmt"
	"strings"
)

// EventEnricher turns raw extracted events into persistable policy events:
// it assigns identifiers, captures the parent bill snapshot, and attaches a
// unit-normalized embedding vector.
type EventEnricher struct {
	embeddings outbound.EmbeddingService
	dimensions int
}

// NewEventEnricher creates an EventEnricher. Dimensions is the expected
// embedding vector length, enforced on attachment.
func NewEventEnricher(embeddings outbound.EmbeddingService, dimensions int) (*EventEnricher, error) {
	if embeddings == nil {
		return nil, errors.New("embedding service cannot be nil")
	}
	if dimensions <= 0 {
		return nil, errors.New("embedding dimensions must be positive")
	}
	return &EventEnricher{embeddings: embeddings, dimensions: dimensions}, nil
}

// Enrich builds the policy event for one raw extracted object. Embedding
// generation or normalization failures abort the single event, leaving
// sibling events of the same bill unaffected.
func (e *EventEnricher) Enrich(ctx context.Context, bill *entity.Bill, raw RawEvent) (*entity.PolicyEvent, error) {
	event, err := entity.NewPolicyEvent(bill, raw.Text, raw.Topics, raw.Tags, raw.Summary, raw.Title)
	if err != nil {
		return nil, err
	}

	result, err := e.embeddings.GenerateEmbedding(ctx, embeddingContent(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding for event %s: %w", event.ID(), err)
	}

	normalized, err := entity.NormalizeEmbedding(result.Vector)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize embedding for event %s: %w", event.ID(), err)
	}

	if err := event.AttachEmbedding(normalized, e.dimensions); err != nil {
		return nil, fmt.Errorf("failed to attach embedding to event %s: %w", event.ID(), err)
	}
	return event, nil
}

// embeddingContent is the text embedded for an event: its topics, tags, and
// summary joined by spaces. The excerpt itself is not embedded.
func embeddingContent(raw RawEvent) string {
	parts := make([]string, 0, len(raw.Topics)+len(raw.Tags)+1)
	parts = append(parts, raw.Topics...)
	parts = append(parts, raw.Tags...)
	parts = append(parts, raw.Summary)
	return strings.Join(parts, " ")
}

package service

import (
	"billevents/internal/application/common/slogger"
	"billevents/internal/config"
	"billevents/internal/domain/entity"
	domainerrors "billevents/internal/domain/errors/domain"
	"billevents/internal/port/outbound"
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// BatchRequestBuilder turns bills into inference batch requests. Model
// selection is two-tier by body length: short bills go to the small fast
// model, long bills to the large model with a bigger token budget.
type BatchRequestBuilder struct {
	config *config.ExtractionConfig
}

// NewBatchRequestBuilder creates a BatchRequestBuilder.
func NewBatchRequestBuilder(cfg *config.ExtractionConfig) (*BatchRequestBuilder, error) {
	if cfg == nil {
		return nil, errors.New("extraction config cannot be nil")
	}
	return &BatchRequestBuilder{config: cfg}, nil
}

// BuildRequests builds one batch request per bill. Bills without a text
// body cannot be analyzed and are skipped with a warning. Returns
// ErrEmptyBatch when no bill yields a request.
func (b *BatchRequestBuilder) BuildRequests(ctx context.Context, bills []*entity.Bill) ([]outbound.BatchRequest, error) {
	requests := make([]outbound.BatchRequest, 0, len(bills))

	for _, bill := range bills {
		if !bill.HasBody() {
			slogger.Warn(ctx, "Skipping bill without text body", slogger.Fields{
				"bill_key": bill.Key(),
			})
			continue
		}
		requests = append(requests, b.buildRequest(bill))
	}

	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: no bill carries a text body", domainerrors.ErrEmptyBatch)
	}
	return requests, nil
}

// buildRequest assembles the request for one bill. The bill key doubles as
// the custom ID so results demultiplex back to their bill. Body length is
// measured in characters, not bytes.
func (b *BatchRequestBuilder) buildRequest(bill *entity.Bill) outbound.BatchRequest {
	tier := b.config.TierFor(utf8.RuneCountInString(bill.Body()))
	model, maxTokens := b.config.ModelForTier(tier)

	return outbound.BatchRequest{
		CustomID:         bill.Key(),
		Model:            model,
		MaxTokens:        maxTokens,
		Temperature:      b.config.Temperature,
		System:           b.systemPrompt(),
		UserPrompt:       fmt.Sprintf(userPromptFormat, bill.Body()),
		AssistantPrefill: assistantPrefill,
	}
}

func (b *BatchRequestBuilder) systemPrompt() string {
	if b.config.SystemPrompt != "" {
		return b.config.SystemPrompt
	}
	return defaultSystemPrompt
}

package service

import (
	"billevents/internal/domain/entity"
	domainerrors "billevents/internal/domain/errors/domain"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatchRequestBuilder(t *testing.T) {
	t.Run("nil config is rejected", func(t *testing.T) {
		builder, err := NewBatchRequestBuilder(nil)
		require.Error(t, err)
		assert.Nil(t, builder)
	})

	t.Run("valid config", func(t *testing.T) {
		builder, err := NewBatchRequestBuilder(testExtractionConfig())
		require.NoError(t, err)
		assert.NotNil(t, builder)
	})
}

func TestBuildRequestsModelTiers(t *testing.T) {
	builder, err := NewBatchRequestBuilder(testExtractionConfig())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("bill below the threshold goes to the small model", func(t *testing.T) {
		bill := testBill(t, "hr-100-119", strings.Repeat("a", 9999))

		requests, err := builder.BuildRequests(ctx, []*entity.Bill{bill})
		require.NoError(t, err)
		require.Len(t, requests, 1)
		assert.Equal(t, "claude-3-5-haiku-latest", requests[0].Model)
		assert.Equal(t, 8192, requests[0].MaxTokens)
	})

	t.Run("bill at the threshold goes to the large model", func(t *testing.T) {
		bill := testBill(t, "hr-101-119", strings.Repeat("a", 10000))

		requests, err := builder.BuildRequests(ctx, []*entity.Bill{bill})
		require.NoError(t, err)
		require.Len(t, requests, 1)
		assert.Equal(t, "claude-sonnet-4-5", requests[0].Model)
		assert.Equal(t, 12000, requests[0].MaxTokens)
	})

	t.Run("length is measured in characters not bytes", func(t *testing.T) {
		// 9999 two-byte runes stay below the 10000 character threshold.
		bill := testBill(t, "hr-102-119", strings.Repeat("é", 9999))

		requests, err := builder.BuildRequests(ctx, []*entity.Bill{bill})
		require.NoError(t, err)
		require.Len(t, requests, 1)
		assert.Equal(t, "claude-3-5-haiku-latest", requests[0].Model)
	})
}

func TestBuildRequestsPromptShape(t *testing.T) {
	ctx := context.Background()

	t.Run("request carries the default prompt and prefill", func(t *testing.T) {
		builder, err := NewBatchRequestBuilder(testExtractionConfig())
		require.NoError(t, err)
		bill := testBill(t, "s-2806-119", "The Secretary shall negotiate drug prices.")

		requests, err := builder.BuildRequests(ctx, []*entity.Bill{bill})
		require.NoError(t, err)
		require.Len(t, requests, 1)

		request := requests[0]
		assert.Equal(t, "s-2806-119", request.CustomID)
		assert.InEpsilon(t, 0.7, request.Temperature, 1e-9)
		assert.Equal(t, defaultSystemPrompt, request.System)
		assert.Equal(t, "[", request.AssistantPrefill)
		assert.True(t, strings.HasPrefix(request.UserPrompt, "Bill text to analyze:\n"))
		assert.Contains(t, request.UserPrompt, bill.Body())
		assert.Contains(t, request.UserPrompt, "Only include this list, no comments or introduction.")
	})

	t.Run("configured system prompt overrides the default", func(t *testing.T) {
		cfg := testExtractionConfig()
		cfg.SystemPrompt = "Extract events tersely."
		builder, err := NewBatchRequestBuilder(cfg)
		require.NoError(t, err)
		bill := testBill(t, "s-1-119", "Some bill text.")

		requests, err := builder.BuildRequests(ctx, []*entity.Bill{bill})
		require.NoError(t, err)
		assert.Equal(t, "Extract events tersely.", requests[0].System)
	})
}

func TestBuildRequestsEmptyBodies(t *testing.T) {
	builder, err := NewBatchRequestBuilder(testExtractionConfig())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("bills without a body are skipped", func(t *testing.T) {
		withBody := testBill(t, "hr-1-119", "Substantive text.")
		withoutBody := testBill(t, "hr-2-119", "")

		requests, err := builder.BuildRequests(ctx, []*entity.Bill{withBody, withoutBody})
		require.NoError(t, err)
		require.Len(t, requests, 1)
		assert.Equal(t, "hr-1-119", requests[0].CustomID)
	})

	t.Run("all bills empty yields ErrEmptyBatch", func(t *testing.T) {
		first := testBill(t, "hr-3-119", "")
		second := testBill(t, "hr-4-119", "")

		requests, err := builder.BuildRequests(ctx, []*entity.Bill{first, second})
		require.ErrorIs(t, err, domainerrors.ErrEmptyBatch)
		assert.Nil(t, requests)
	})
}

package outbound

import (
	"billevents/internal/domain/entity"
	"billevents/internal/domain/valueobject"
	"context"
	"time"
)

// InferenceBatchClient defines the interface for the asynchronous inference
// batch API of the model provider.
type InferenceBatchClient interface {
	// CreateBatch submits the given requests as one asynchronous batch and
	// returns the provider's view of the new batch.
	CreateBatch(ctx context.Context, requests []BatchRequest) (*BatchInfo, error)

	// GetBatch fetches the current provider-side state of a batch.
	GetBatch(ctx context.Context, batchHandle string) (*BatchInfo, error)

	// ListResults retrieves the per-request results of an ended batch.
	ListResults(ctx context.Context, batchHandle string) ([]BatchResult, error)

	// CancelBatch asks the provider to cancel an in-progress batch.
	CancelBatch(ctx context.Context, batchHandle string) (*BatchInfo, error)
}

// BatchRequest describes a single inference request inside a batch.
type BatchRequest struct {
	CustomID         string  `json:"custom_id"`         // Caller-chosen identifier echoed back in the result
	Model            string  `json:"model"`             // Model to run the request on
	MaxTokens        int     `json:"max_tokens"`        // Response token budget
	Temperature      float64 `json:"temperature"`       // Sampling temperature
	System           string  `json:"system,omitempty"`  // System prompt
	UserPrompt       string  `json:"user_prompt"`       // User turn content
	AssistantPrefill string  `json:"prefill,omitempty"` // Pre-seeded start of the assistant turn
}

// BatchInfo is the provider's view of a batch.
type BatchInfo struct {
	Handle     string                 `json:"handle"`                // Provider batch identifier
	State      valueobject.BatchState `json:"state"`                 // Processing state
	Counts     entity.RequestCounts   `json:"counts"`                // Per-request tallies
	ResultsURL string                 `json:"results_url,omitempty"` // Where results can be fetched once ended
	CreatedAt  time.Time              `json:"created_at"`
	EndedAt    *time.Time             `json:"ended_at,omitempty"`
	ExpiresAt  *time.Time             `json:"expires_at,omitempty"`
}

// BatchResultType classifies a single request's result within a batch.
type BatchResultType string

const (
	BatchResultSucceeded BatchResultType = "succeeded"
	BatchResultErrored   BatchResultType = "errored"
	BatchResultCanceled  BatchResultType = "canceled"
	BatchResultExpired   BatchResultType = "expired"
)

// BatchResult is the outcome of one request inside an ended batch.
type BatchResult struct {
	CustomID     string          `json:"custom_id"`
	Type         BatchResultType `json:"type"`
	Text         string          `json:"text,omitempty"`          // Model output for succeeded results
	StopReason   string          `json:"stop_reason,omitempty"`   // Why generation stopped
	ErrorType    string          `json:"error_type,omitempty"`    // Provider error class for errored results
	ErrorMessage string          `json:"error_message,omitempty"` // Provider error detail for errored results
}

// InferenceError represents an error from the inference batch API.
type InferenceError struct {
	Code      string `json:"code"`                 // Error code
	Message   string `json:"message"`              // Error message
	Type      string `json:"type"`                 // Error type (auth, rate_limit, invalid_request, server)
	RequestID string `json:"request_id,omitempty"` // Request ID for tracing
	Retryable bool   `json:"retryable"`            // Whether the error is retryable
	Cause     error  `json:"cause,omitempty"`      // Underlying error
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	if e.Cause != nil {
		return "inference batch error (" + e.Type + "/" + e.Code + "): " + e.Message + ": " + e.Cause.Error()
	}
	return "inference batch error (" + e.Type + "/" + e.Code + "): " + e.Message
}

// Unwrap returns the underlying cause error.
func (e *InferenceError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether the error is retryable.
func (e *InferenceError) IsRetryable() bool {
	return e.Retryable
}

// IsAuthenticationError returns whether the error is an authentication error.
func (e *InferenceError) IsAuthenticationError() bool {
	return e.Type == "auth" || e.Code == "authentication_error" || e.Code == "permission_error"
}

// IsRateLimitError returns whether the error is a rate limit error.
func (e *InferenceError) IsRateLimitError() bool {
	return e.Type == "rate_limit" || e.Code == "rate_limit_error"
}

// IsInvalidRequestError returns whether the request itself was rejected.
func (e *InferenceError) IsInvalidRequestError() bool {
	return e.Type == "invalid_request" || e.Code == "invalid_request_error"
}

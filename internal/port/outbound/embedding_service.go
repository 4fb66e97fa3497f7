package outbound

import (
	"context"
	"time"
)

// EmbeddingService defines the interface for generating embedding vectors
// from event text.
type EmbeddingService interface {
	// GenerateEmbedding generates an embedding vector for the given text.
	GenerateEmbedding(ctx context.Context, text string) (*EmbeddingResult, error)

	// GenerateBatchEmbeddings generates embeddings for multiple texts,
	// returned in input order.
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([]*EmbeddingResult, error)
}

// EmbeddingResult represents the result of an embedding generation request.
type EmbeddingResult struct {
	Vector      []float32 `json:"vector"`     // The raw embedding vector
	Dimensions  int       `json:"dimensions"` // Vector dimensions
	Model       string    `json:"model"`      // Model used for embedding
	GeneratedAt time.Time `json:"generated_at"`
}

// EmbeddingError represents an error from the embedding service.
type EmbeddingError struct {
	Code      string `json:"code"`                 // Error code
	Message   string `json:"message"`              // Error message
	Type      string `json:"type"`                 // Error type (auth, quota, validation, server)
	RequestID string `json:"request_id,omitempty"` // Request ID for tracing
	Retryable bool   `json:"retryable"`            // Whether the error is retryable
	Cause     error  `json:"cause,omitempty"`      // Underlying error
}

// Error implements the error interface.
func (e *EmbeddingError) Error() string {
	if e.Cause != nil {
		return "embedding service error (" + e.Type + "/" + e.Code + "): " + e.Message + ": " + e.Cause.Error()
	}
	return "embedding service error (" + e.Type + "/" + e.Code + "): " + e.Message
}

// Unwrap returns the underlying cause error.
func (e *EmbeddingError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether the error is retryable.
func (e *EmbeddingError) IsRetryable() bool {
	return e.Retryable
}

// IsAuthenticationError returns whether the error is an authentication error.
func (e *EmbeddingError) IsAuthenticationError() bool {
	return e.Type == "auth" || e.Code == "invalid_api_key" || e.Code == "unauthorized"
}

// IsQuotaError returns whether the error is a quota/rate limit error.
func (e *EmbeddingError) IsQuotaError() bool {
	return e.Type == "quota" || e.Code == "quota_exceeded" || e.Code == "rate_limit_exceeded"
}

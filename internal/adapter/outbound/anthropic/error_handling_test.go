package anthropic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newErrorResponse(statusCode int, body string, headers map[string]string) *http.Response {
	header := http.Header{}
	for key, value := range headers {
		header.Set(key, value)
	}
	return &http.Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newErrorTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(&ClientConfig{APIKey: "test-api-key"})
	require.NoError(t, err)
	return client
}

func TestHandleHTTPError(t *testing.T) {
	authBody := `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`
	permBody := `{"type":"error","error":{"type":"permission_error","message":"key lacks batch access"}}`
	invalidBody := `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens is required"}}`
	rateBody := `{"type":"error","error":{"type":"rate_limit_error","message":"too many requests"}}`
	overloadedBody := `{"type":"error","error":{"type":"overloaded_error","message":"temporarily over capacity"}}`

	tests := []struct {
		name          string
		statusCode    int
		body          string
		headers       map[string]string
		wantCode      string
		wantType      string
		wantRetryable bool
	}{
		{
			name:          "401 authentication error",
			statusCode:    http.StatusUnauthorized,
			body:          authBody,
			wantCode:      "authentication_error",
			wantType:      "auth",
			wantRetryable: false,
		},
		{
			name:          "403 permission error",
			statusCode:    http.StatusForbidden,
			body:          permBody,
			wantCode:      "permission_error",
			wantType:      "auth",
			wantRetryable: false,
		},
		{
			name:          "400 invalid request",
			statusCode:    http.StatusBadRequest,
			body:          invalidBody,
			wantCode:      "invalid_request_error",
			wantType:      "invalid_request",
			wantRetryable: false,
		},
		{
			name:          "404 not found",
			statusCode:    http.StatusNotFound,
			body:          `{"type":"error","error":{"type":"not_found_error","message":"no such batch"}}`,
			wantCode:      "not_found_error",
			wantType:      "invalid_request",
			wantRetryable: false,
		},
		{
			name:          "429 rate limited",
			statusCode:    http.StatusTooManyRequests,
			body:          rateBody,
			headers:       map[string]string{"Retry-After": "30"},
			wantCode:      "rate_limit_error",
			wantType:      "rate_limit",
			wantRetryable: true,
		},
		{
			name:          "500 server error",
			statusCode:    http.StatusInternalServerError,
			body:          `{"type":"error","error":{"type":"api_error","message":"internal error"}}`,
			wantCode:      "api_error",
			wantType:      "server",
			wantRetryable: true,
		},
		{
			name:          "529 overloaded",
			statusCode:    statusOverloaded,
			body:          overloadedBody,
			wantCode:      "overloaded_error",
			wantType:      "server",
			wantRetryable: true,
		},
		{
			name:          "unparseable body falls back to status-derived code",
			statusCode:    http.StatusUnauthorized,
			body:          "not json at all",
			wantCode:      "authentication_error",
			wantType:      "auth",
			wantRetryable: false,
		},
		{
			name:          "unexpected 4xx is not retryable",
			statusCode:    http.StatusTeapot,
			body:          "",
			wantCode:      "http_error",
			wantType:      "server",
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newErrorTestClient(t)
			response := newErrorResponse(tt.statusCode, tt.body, tt.headers)

			infErr := client.HandleHTTPError(context.Background(), response)
			require.NotNil(t, infErr)

			assert.Equal(t, tt.wantCode, infErr.Code)
			assert.Equal(t, tt.wantType, infErr.Type)
			assert.Equal(t, tt.wantRetryable, infErr.IsRetryable())
		})
	}

	t.Run("429 arms the rate limiter backoff", func(t *testing.T) {
		client := newErrorTestClient(t)
		require.True(t, client.limiter.Allow())

		response := newErrorResponse(http.StatusTooManyRequests, rateBody, map[string]string{"Retry-After": "30"})
		infErr := client.HandleHTTPError(context.Background(), response)

		assert.True(t, infErr.IsRateLimitError())
		assert.Contains(t, infErr.Message, "30")
		assert.False(t, client.limiter.Allow())
	})

	t.Run("classification helpers match the mapped errors", func(t *testing.T) {
		client := newErrorTestClient(t)

		authErr := client.HandleHTTPError(context.Background(), newErrorResponse(http.StatusUnauthorized, authBody, nil))
		assert.True(t, authErr.IsAuthenticationError())
		assert.False(t, authErr.IsRateLimitError())

		invalidErr := client.HandleHTTPError(context.Background(), newErrorResponse(http.StatusBadRequest, invalidBody, nil))
		assert.True(t, invalidErr.IsInvalidRequestError())
		assert.False(t, invalidErr.IsAuthenticationError())
	})

	t.Run("carries the provider request id", func(t *testing.T) {
		client := newErrorTestClient(t)
		response := newErrorResponse(http.StatusInternalServerError, "", map[string]string{"request-id": "req_011CQ"})

		infErr := client.HandleHTTPError(context.Background(), response)
		assert.Equal(t, "req_011CQ", infErr.RequestID)
	})
}

// timeoutError fakes a transport timeout.
type timeoutError struct{}

func (timeoutError) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestHandleNetworkError(t *testing.T) {
	client := newErrorTestClient(t)

	t.Run("context cancellation is not retryable", func(t *testing.T) {
		infErr := client.HandleNetworkError(context.Background(), context.Canceled)
		assert.Equal(t, "request_canceled", infErr.Code)
		assert.False(t, infErr.IsRetryable())
	})

	t.Run("deadline exceeded is retryable", func(t *testing.T) {
		infErr := client.HandleNetworkError(context.Background(), context.DeadlineExceeded)
		assert.Equal(t, "request_timeout", infErr.Code)
		assert.True(t, infErr.IsRetryable())
	})

	t.Run("transport timeout is retryable", func(t *testing.T) {
		infErr := client.HandleNetworkError(context.Background(), timeoutError{})
		assert.Equal(t, "connection_timeout", infErr.Code)
		assert.True(t, infErr.IsRetryable())
	})

	t.Run("connection refused is retryable", func(t *testing.T) {
		err := errors.New("dial tcp 127.0.0.1:8080: connect: connection refused")
		infErr := client.HandleNetworkError(context.Background(), err)
		assert.Equal(t, "connection_refused", infErr.Code)
		assert.True(t, infErr.IsRetryable())
	})

	t.Run("unknown network failure defaults to retryable", func(t *testing.T) {
		err := errors.New("read: connection reset by peer")
		infErr := client.HandleNetworkError(context.Background(), err)
		assert.Equal(t, "network_error", infErr.Code)
		assert.True(t, infErr.IsRetryable())
	})

	t.Run("wrapped cause stays reachable", func(t *testing.T) {
		infErr := client.HandleNetworkError(context.Background(), context.Canceled)
		assert.True(t, errors.Is(infErr, context.Canceled))
	})
}

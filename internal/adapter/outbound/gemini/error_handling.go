package gemini

import (
	"billevents/internal/application/common/slogger"
	"billevents/internal/port/outbound"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// HandleHTTPError converts a non-success HTTP response into an EmbeddingError.
// The response body is consumed and closed.
func (c *Client) HandleHTTPError(ctx context.Context, response *http.Response) *outbound.EmbeddingError {
	body, readErr := io.ReadAll(response.Body)
	defer func() {
		if closeErr := response.Body.Close(); closeErr != nil {
			slogger.Error(ctx, "Failed to close response body", slogger.Fields{
				"error": closeErr.Error(),
			})
		}
	}()

	var errorResp ErrorResponse
	var apiErrorMessage string

	// Try to parse the API error response for more context
	if readErr == nil && len(body) > 0 {
		if unmarshalErr := json.Unmarshal(body, &errorResp); unmarshalErr == nil {
			if errorResp.Error.Message != "" {
				apiErrorMessage = errorResp.Error.Message
			}
		}
	}

	slogger.Error(ctx, "HTTP error received from embedding API", slogger.Fields{
		"status_code":     response.StatusCode,
		"status":          response.Status,
		"response_length": len(body),
		"api_message":     apiErrorMessage,
	})

	switch response.StatusCode {
	case http.StatusUnauthorized:
		message := fmt.Sprintf("Invalid API key provided (HTTP %d)", response.StatusCode)
		if apiErrorMessage != "" {
			message = fmt.Sprintf("Authentication failed (HTTP %d): %s", response.StatusCode, apiErrorMessage)
		}
		return &outbound.EmbeddingError{
			Code:      "invalid_api_key",
			Type:      "auth",
			Message:   message,
			Retryable: false,
		}

	case http.StatusTooManyRequests:
		message := fmt.Sprintf("Rate limit exceeded (HTTP %d). Please retry after some time", response.StatusCode)
		retryAfter := response.Header.Get("Retry-After")
		if retryAfter != "" {
			message = fmt.Sprintf(
				"Rate limit exceeded (HTTP %d). Retry after %s seconds",
				response.StatusCode,
				retryAfter,
			)
		}
		if apiErrorMessage != "" {
			message = fmt.Sprintf("%s: %s", message, apiErrorMessage)
		}
		c.recordRateLimitBackoff(retryAfter)
		return &outbound.EmbeddingError{
			Code:      "rate_limit_exceeded",
			Type:      "quota",
			Message:   message,
			Retryable: true,
		}

	case http.StatusBadRequest:
		message := fmt.Sprintf("Invalid request parameters (HTTP %d)", response.StatusCode)
		if apiErrorMessage != "" {
			message = fmt.Sprintf("Bad request (HTTP %d): %s", response.StatusCode, apiErrorMessage)
		}
		return &outbound.EmbeddingError{
			Code:      "invalid_request",
			Type:      "validation",
			Message:   message,
			Retryable: false,
		}

	case http.StatusForbidden:
		message := fmt.Sprintf("Access denied (HTTP %d). Check API key permissions", response.StatusCode)
		if apiErrorMessage != "" {
			message = fmt.Sprintf("Access forbidden (HTTP %d): %s", response.StatusCode, apiErrorMessage)
		}
		return &outbound.EmbeddingError{
			Code:      "access_denied",
			Type:      "auth",
			Message:   message,
			Retryable: false,
		}

	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		message := fmt.Sprintf("Server error (HTTP %d) occurred. Please retry", response.StatusCode)
		if apiErrorMessage != "" {
			message = fmt.Sprintf("Server error (HTTP %d): %s", response.StatusCode, apiErrorMessage)
		}
		return &outbound.EmbeddingError{
			Code:      "server_error",
			Type:      "server",
			Message:   message,
			Retryable: true,
		}

	default:
		message := fmt.Sprintf("HTTP error: %s", response.Status)
		if apiErrorMessage != "" {
			message = fmt.Sprintf("%s - %s", message, apiErrorMessage)
		}
		return &outbound.EmbeddingError{
			Code:      "http_error",
			Type:      "server",
			Message:   message,
			Retryable: response.StatusCode >= 500,
		}
	}
}

// recordRateLimitBackoff feeds a Retry-After header value into the rate limiter.
func (c *Client) recordRateLimitBackoff(retryAfter string) {
	seconds := 0
	if retryAfter != "" {
		if parsed, err := strconv.Atoi(retryAfter); err == nil {
			seconds = parsed
		}
	}
	c.limiter.RecordRateLimitError(seconds)
}

// HandleNetworkError converts a transport-level error into an EmbeddingError.
func (c *Client) HandleNetworkError(_ context.Context, err error) *outbound.EmbeddingError {
	if errors.Is(err, context.Canceled) {
		return &outbound.EmbeddingError{
			Code:      "request_canceled",
			Type:      "network",
			Message:   "request was canceled",
			Retryable: false,
			Cause:     err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &outbound.EmbeddingError{
			Code:      "request_timeout",
			Type:      "network",
			Message:   "request deadline exceeded",
			Retryable: true,
			Cause:     err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &outbound.EmbeddingError{
			Code:      "connection_timeout",
			Type:      "network",
			Message:   "connection timeout",
			Retryable: true,
			Cause:     err,
		}
	}

	if strings.Contains(err.Error(), "connection refused") {
		return &outbound.EmbeddingError{
			Code:      "connection_refused",
			Type:      "network",
			Message:   "connection refused",
			Retryable: true,
			Cause:     err,
		}
	}

	return &outbound.EmbeddingError{
		Code:      "network_error",
		Type:      "network",
		Message:   err.Error(),
		Retryable: true,
		Cause:     err,
	}
}

package anthropic

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

// apiErrorResponse is the error envelope returned by the API.
type apiErrorResponse struct {
	Type  string       `json:"type"`
	Error errorPayload `json:"error"`
}

// errorPayload carries the provider's error class and detail.
type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// HandleHTTPError converts a non-success HTTP response into an InferenceError.
// The response body is consumed and closed.
func (c *Client) HandleHTTPError(ctx context.Context, response *http.Response) *outbound.InferenceError {
	body, readErr := io.ReadAll(response.Body)
	defer func() {
		if closeErr := response.Body.Close(); closeErr != nil {
			slogger.Error(ctx, "Failed to close response body", slogger.Fields{
				"error": closeErr.Error(),
			})
		}
	}()

	var errorResp apiErrorResponse
	var apiErrorType string
	var apiErrorMessage string

	// Try to parse the API error response for more context
	if readErr == nil && len(body) > 0 {
		if unmarshalErr := json.Unmarshal(body, &errorResp); unmarshalErr == nil {
			apiErrorType = errorResp.Error.Type
			apiErrorMessage = errorResp.Error.Message
		}
	}

	requestID := response.Header.Get("request-id")

	slogger.Error(ctx, "HTTP error received from batch API", slogger.Fields{
		"status_code":     response.StatusCode,
		"status":          response.Status,
		"response_length": len(body),
		"api_error_type":  apiErrorType,
		"api_message":     apiErrorMessage,
		"request_id":      requestID,
	})

	switch response.StatusCode {
	case http.StatusUnauthorized:
		message := fmt.Sprintf("Invalid API key provided (HTTP %d)", response.StatusCode)
		if apiErrorMessage != "" {
			message = fmt.Sprintf("Authentication failed (HTTP %d): %s", response.StatusCode, apiErrorMessage)
		}
		return &outbound.InferenceError{
			Code:      errorCodeOr(apiErrorType, "authentication_error"),
			Type:      "auth",
			Message:   message,
			RequestID: requestID,
			Retryable: false,
		}

	case http.StatusForbidden:
		message := fmt.Sprintf("Access denied (HTTP %d). Check API key permissions", response.StatusCode)
		if apiErrorMessage != "" {
			message = fmt.Sprintf("Access forbidden (HTTP %d): %s", response.StatusCode, apiErrorMessage)
		}
		return &outbound.InferenceError{
			Code:      errorCodeOr(apiErrorType, "permission_error"),
			Type:      "auth",
			Message:   message,
			RequestID: requestID,
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
		return &outbound.InferenceError{
			Code:      errorCodeOr(apiErrorType, "rate_limit_error"),
			Type:      "rate_limit",
			Message:   message,
			RequestID: requestID,
			Retryable: true,
		}

	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		message := fmt.Sprintf("Invalid request parameters (HTTP %d)", response.StatusCode)
		if apiErrorMessage != "" {
			message = fmt.Sprintf("Bad request (HTTP %d): %s", response.StatusCode, apiErrorMessage)
		}
		return &outbound.InferenceError{
			Code:      errorCodeOr(apiErrorType, "invalid_request_error"),
			Type:      "invalid_request",
			Message:   message,
			RequestID: requestID,
			Retryable: false,
		}

	case http.StatusNotFound:
		message := fmt.Sprintf("Resource not found (HTTP %d)", response.StatusCode)
		if apiErrorMessage != "" {
			message = fmt.Sprintf("Not found (HTTP %d): %s", response.StatusCode, apiErrorMessage)
		}
		return &outbound.InferenceError{
			Code:      errorCodeOr(apiErrorType, "not_found_error"),
			Type:      "invalid_request",
			Message:   message,
			RequestID: requestID,
			Retryable: false,
		}

	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		statusOverloaded:
		message := fmt.Sprintf("Server error (HTTP %d) occurred. Please retry", response.StatusCode)
		if apiErrorMessage != "" {
			message = fmt.Sprintf("Server error (HTTP %d): %s", response.StatusCode, apiErrorMessage)
		}
		return &outbound.InferenceError{
			Code:      errorCodeOr(apiErrorType, "api_error"),
			Type:      "server",
			Message:   message,
			RequestID: requestID,
			Retryable: true,
		}

	default:
		message := fmt.Sprintf("HTTP error: %s", response.Status)
		if apiErrorMessage != "" {
			message = fmt.Sprintf("%s - %s", message, apiErrorMessage)
		}
		return &outbound.InferenceError{
			Code:      errorCodeOr(apiErrorType, "http_error"),
			Type:      "server",
			Message:   message,
			RequestID: requestID,
			Retryable: response.StatusCode >= 500,
		}
	}
}

// statusOverloaded is returned by the API when it is temporarily over capacity.
const statusOverloaded = 529

// errorCodeOr returns the provider's error type when present, the fallback otherwise.
func errorCodeOr(apiErrorType, fallback string) string {
	if apiErrorType != "" {
		return apiErrorType
	}
	return fallback
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

// HandleNetworkError converts a transport-level error into an InferenceError.
func (c *Client) HandleNetworkError(_ context.Context, err error) *outbound.InferenceError {
	if errors.Is(err, context.Canceled) {
		return &outbound.InferenceError{
			Code:      "request_canceled",
			Type:      "network",
			Message:   "request was canceled",
			Retryable: false,
			Cause:     err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &outbound.InferenceError{
			Code:      "request_timeout",
			Type:      "network",
			Message:   "request deadline exceeded",
			Retryable: true,
			Cause:     err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &outbound.InferenceError{
			Code:      "connection_timeout",
			Type:      "network",
			Message:   "connection timeout",
			Retryable: true,
			Cause:     err,
		}
	}

	if strings.Contains(err.Error(), "connection refused") {
		return &outbound.InferenceError{
			Code:      "connection_refused",
			Type:      "network",
			Message:   "connection refused",
			Retryable: true,
			Cause:     err,
		}
	}

	return &outbound.InferenceError{
		Code:      "network_error",
		Type:      "network",
		Message:   err.Error(),
		Retryable: true,
		Cause:     err,
	}
}

package anthropic

import (
	"billevents/internal/application/common/slogger"
	"billevents/internal/domain/entity"
	"billevents/internal/domain/valueobject"
	"billevents/internal/port/outbound"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"

	// resultScanBufferSize bounds a single JSONL result line. Model outputs
	// for large bills can run to hundreds of kilobytes.
	resultScanBufferSize = 10 * 1024 * 1024
)

// batchCreateRequest is the payload for creating a message batch.
type batchCreateRequest struct {
	Requests []batchRequestItem `json:"requests"`
}

// batchRequestItem pairs a caller-chosen identifier with message parameters.
type batchRequestItem struct {
	CustomID string        `json:"custom_id"`
	Params   messageParams `json:"params"`
}

// messageParams are the inference parameters for one request in a batch.
type messageParams struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float64        `json:"temperature,omitempty"`
	System      string         `json:"system,omitempty"`
	Messages    []messageParam `json:"messages"`
}

// messageParam is a single conversation turn.
type messageParam struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// batchResponse is the provider's representation of a message batch.
type batchResponse struct {
	ID               string               `json:"id"`
	Type             string               `json:"type"`
	ProcessingStatus string               `json:"processing_status"`
	RequestCounts    requestCountsPayload `json:"request_counts"`
	EndedAt          *time.Time           `json:"ended_at"`
	CreatedAt        time.Time            `json:"created_at"`
	ExpiresAt        *time.Time           `json:"expires_at"`
	ResultsURL       string               `json:"results_url"`
}

// requestCountsPayload is the provider's five-bucket request tally.
type requestCountsPayload struct {
	Processing int `json:"processing"`
	Succeeded  int `json:"succeeded"`
	Errored    int `json:"errored"`
	Canceled   int `json:"canceled"`
	Expired    int `json:"expired"`
}

// resultEnvelope is one line of the JSONL results stream.
type resultEnvelope struct {
	CustomID string        `json:"custom_id"`
	Result   resultPayload `json:"result"`
}

// resultPayload is the typed outcome of a single request.
type resultPayload struct {
	Type    string           `json:"type"`
	Message *messagePayload  `json:"message,omitempty"`
	Error   *apiErrorWrapper `json:"error,omitempty"`
}

// messagePayload is the completed model response for a succeeded request.
type messagePayload struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// contentBlock is one block of model output.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// apiErrorWrapper nests the error payload the way errored results carry it.
type apiErrorWrapper struct {
	Type  string       `json:"type"`
	Error errorPayload `json:"error"`
}

// CreateBatch submits the given requests as one asynchronous batch.
func (c *Client) CreateBatch(ctx context.Context, requests []outbound.BatchRequest) (*outbound.BatchInfo, error) {
	if len(requests) == 0 {
		return nil, &outbound.InferenceError{
			Code:      "empty_batch",
			Type:      "invalid_request",
			Message:   "batch must contain at least one request",
			Retryable: false,
		}
	}

	payload := batchCreateRequest{Requests: make([]batchRequestItem, 0, len(requests))}
	for _, request := range requests {
		payload.Requests = append(payload.Requests, toBatchRequestItem(request))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &outbound.InferenceError{
			Code:      "serialization_error",
			Type:      "invalid_request",
			Message:   fmt.Sprintf("failed to serialize batch request: %v", err),
			Retryable: false,
			Cause:     err,
		}
	}

	slogger.Info(ctx, "Submitting message batch", slogger.Fields{
		"request_count": len(requests),
		"payload_bytes": len(body),
	})

	resp, err := c.doRequest(ctx, http.MethodPost, batchesEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	info, err := c.decodeBatchResponse(ctx, resp)
	if err != nil {
		return nil, err
	}

	slogger.Info(ctx, "Message batch created", slogger.Fields{
		"batch_handle":  info.Handle,
		"batch_state":   info.State.String(),
		"request_count": len(requests),
	})

	return info, nil
}

// GetBatch fetches the current provider-side state of a batch.
func (c *Client) GetBatch(ctx context.Context, batchHandle string) (*outbound.BatchInfo, error) {
	if err := validateBatchHandle(batchHandle); err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodGet, batchesEndpoint+"/"+batchHandle, nil)
	if err != nil {
		return nil, err
	}

	return c.decodeBatchResponse(ctx, resp)
}

// ListResults retrieves the per-request results of an ended batch. Results
// stream back as JSON lines and are returned in stream order.
func (c *Client) ListResults(ctx context.Context, batchHandle string) ([]outbound.BatchResult, error) {
	if err := validateBatchHandle(batchHandle); err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodGet, batchesEndpoint+"/"+batchHandle+"/results", nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slogger.Error(ctx, "Failed to close results body", slogger.Fields{
				"error": closeErr.Error(),
			})
		}
	}()

	var results []outbound.BatchResult
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), resultScanBufferSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var envelope resultEnvelope
		if err := json.Unmarshal(line, &envelope); err != nil {
			return nil, &outbound.InferenceError{
				Code:      "result_parse_error",
				Type:      "server",
				Message:   fmt.Sprintf("failed to parse result line %d: %v", len(results)+1, err),
				Retryable: false,
				Cause:     err,
			}
		}

		results = append(results, toBatchResult(envelope))
	}

	if err := scanner.Err(); err != nil {
		return nil, c.HandleNetworkError(ctx, err)
	}

	slogger.Info(ctx, "Fetched batch results", slogger.Fields{
		"batch_handle": batchHandle,
		"result_count": len(results),
	})

	return results, nil
}

// CancelBatch asks the provider to cancel an in-progress batch. Requests that
// already finished keep their results; the rest are marked canceled.
func (c *Client) CancelBatch(ctx context.Context, batchHandle string) (*outbound.BatchInfo, error) {
	if err := validateBatchHandle(batchHandle); err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, batchesEndpoint+"/"+batchHandle+"/cancel", nil)
	if err != nil {
		return nil, err
	}

	info, err := c.decodeBatchResponse(ctx, resp)
	if err != nil {
		return nil, err
	}

	slogger.Info(ctx, "Requested batch cancellation", slogger.Fields{
		"batch_handle": batchHandle,
		"batch_state":  info.State.String(),
	})

	return info, nil
}

// doRequest paces, builds, and executes one API call, mapping transport and
// HTTP failures to InferenceError. Callers own the response body on success.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.HandleNetworkError(ctx, err)
	}

	req, err := c.CreateRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, &outbound.InferenceError{
			Code:      "request_build_error",
			Type:      "invalid_request",
			Message:   err.Error(),
			Retryable: false,
			Cause:     err,
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.HandleNetworkError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.HandleHTTPError(ctx, resp)
	}

	return resp, nil
}

// decodeBatchResponse reads and converts a batch API response body.
func (c *Client) decodeBatchResponse(ctx context.Context, resp *http.Response) (*outbound.BatchInfo, error) {
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slogger.Error(ctx, "Failed to close response body", slogger.Fields{
				"error": closeErr.Error(),
			})
		}
	}()

	var batch batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, &outbound.InferenceError{
			Code:      "response_parse_error",
			Type:      "server",
			Message:   fmt.Sprintf("failed to parse batch response: %v", err),
			Retryable: false,
			Cause:     err,
		}
	}

	return toBatchInfo(batch)
}

// toBatchRequestItem converts a port-level request into the wire shape. An
// assistant prefill becomes a trailing assistant turn the model continues from.
func toBatchRequestItem(request outbound.BatchRequest) batchRequestItem {
	messages := []messageParam{
		{Role: roleUser, Content: request.UserPrompt},
	}
	if request.AssistantPrefill != "" {
		messages = append(messages, messageParam{Role: roleAssistant, Content: request.AssistantPrefill})
	}

	return batchRequestItem{
		CustomID: request.CustomID,
		Params: messageParams{
			Model:       request.Model,
			MaxTokens:   request.MaxTokens,
			Temperature: request.Temperature,
			System:      request.System,
			Messages:    messages,
		},
	}
}

// toBatchInfo converts a wire batch into the port-level view. The provider's
// canceled and expired tallies fold into the errored count because neither
// carries a usable result.
func toBatchInfo(batch batchResponse) (*outbound.BatchInfo, error) {
	state, err := mapBatchState(batch.ProcessingStatus)
	if err != nil {
		return nil, &outbound.InferenceError{
			Code:      "unknown_batch_state",
			Type:      "server",
			Message:   err.Error(),
			Retryable: false,
			Cause:     err,
		}
	}

	return &outbound.BatchInfo{
		Handle: batch.ID,
		State:  state,
		Counts: entity.RequestCounts{
			Processing: batch.RequestCounts.Processing,
			Succeeded:  batch.RequestCounts.Succeeded,
			Errored:    batch.RequestCounts.Errored + batch.RequestCounts.Canceled + batch.RequestCounts.Expired,
		},
		ResultsURL: batch.ResultsURL,
		CreatedAt:  batch.CreatedAt,
		EndedAt:    batch.EndedAt,
		ExpiresAt:  batch.ExpiresAt,
	}, nil
}

// mapBatchState converts a provider processing status to a BatchState.
// A cancellation still being worked through counts as in progress.
func mapBatchState(processingStatus string) (valueobject.BatchState, error) {
	switch processingStatus {
	case "in_progress", "canceling":
		return valueobject.BatchStateInProgress, nil
	case "ended":
		return valueobject.BatchStateEnded, nil
	case "expired":
		return valueobject.BatchStateExpired, nil
	case "canceled", "cancelled":
		return valueobject.BatchStateCancelled, nil
	default:
		return "", fmt.Errorf("unknown batch processing status: %q", processingStatus)
	}
}

// toBatchResult flattens one JSONL result envelope. Text blocks concatenate
// in order; non-text blocks are skipped.
func toBatchResult(envelope resultEnvelope) outbound.BatchResult {
	result := outbound.BatchResult{
		CustomID: envelope.CustomID,
		Type:     outbound.BatchResultType(envelope.Result.Type),
	}

	if envelope.Result.Message != nil {
		var text strings.Builder
		for _, block := range envelope.Result.Message.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		result.Text = text.String()
		result.StopReason = envelope.Result.Message.StopReason
	}

	if envelope.Result.Error != nil {
		result.ErrorType = envelope.Result.Error.Error.Type
		result.ErrorMessage = envelope.Result.Error.Error.Message
	}

	return result
}

// validateBatchHandle rejects blank handles before they reach the wire.
func validateBatchHandle(batchHandle string) error {
	if strings.TrimSpace(batchHandle) == "" {
		return errors.New("batch handle cannot be empty")
	}
	return nil
}

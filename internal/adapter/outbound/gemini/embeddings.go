package gemini

import (
	"billevents/internal/application/common/slogger"
	"billevents/internal/port/outbound"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// GenerateEmbedding generates an embedding vector for the given text.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) (*outbound.EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &outbound.EmbeddingError{
			Code:      "empty_text",
			Type:      "validation",
			Message:   "text content cannot be empty",
			Retryable: false,
		}
	}

	request := c.newEmbedRequest(text)

	body, err := json.Marshal(request)
	if err != nil {
		return nil, &outbound.EmbeddingError{
			Code:      "serialization_error",
			Type:      "validation",
			Message:   fmt.Sprintf("failed to serialize request: %v", err),
			Retryable: false,
			Cause:     err,
		}
	}

	endpoint := fmt.Sprintf("models/%s:embedContent", c.config.Model)
	resp, err := c.doRequest(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	var response EmbedContentResponse
	if decodeErr := c.decodeResponse(ctx, resp, &response); decodeErr != nil {
		return nil, decodeErr
	}

	result, err := c.toEmbeddingResult(response.Embedding)
	if err != nil {
		return nil, err
	}

	slogger.Debug(ctx, "Generated embedding", slogger.Fields{
		"text_length": len(text),
		"dimensions":  result.Dimensions,
		"model":       result.Model,
	})

	return result, nil
}

// GenerateBatchEmbeddings generates embeddings for multiple texts in a single
// request, returned in input order.
func (c *Client) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([]*outbound.EmbeddingResult, error) {
	if len(texts) == 0 {
		return nil, &outbound.EmbeddingError{
			Code:      "empty_texts",
			Type:      "validation",
			Message:   "texts cannot be empty",
			Retryable: false,
		}
	}

	request := BatchEmbedContentRequest{Requests: make([]EmbedContentRequest, 0, len(texts))}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &outbound.EmbeddingError{
				Code:      "empty_text",
				Type:      "validation",
				Message:   "text content cannot be empty",
				Retryable: false,
			}
		}
		request.Requests = append(request.Requests, c.newEmbedRequest(text))
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, &outbound.EmbeddingError{
			Code:      "serialization_error",
			Type:      "validation",
			Message:   fmt.Sprintf("failed to serialize batch request: %v", err),
			Retryable: false,
			Cause:     err,
		}
	}

	endpoint := fmt.Sprintf("models/%s:batchEmbedContents", c.config.Model)
	resp, err := c.doRequest(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	var response BatchEmbedContentResponse
	if decodeErr := c.decodeResponse(ctx, resp, &response); decodeErr != nil {
		return nil, decodeErr
	}

	if len(response.Embeddings) != len(texts) {
		return nil, &outbound.EmbeddingError{
			Code:    "embedding_count_mismatch",
			Type:    "server",
			Message: fmt.Sprintf("requested %d embeddings, received %d", len(texts), len(response.Embeddings)),
			// A partial response will not improve on resend of the same input.
			Retryable: false,
		}
	}

	results := make([]*outbound.EmbeddingResult, 0, len(response.Embeddings))
	for _, embedding := range response.Embeddings {
		result, resultErr := c.toEmbeddingResult(embedding)
		if resultErr != nil {
			return nil, resultErr
		}
		results = append(results, result)
	}

	slogger.Debug(ctx, "Generated batch embeddings", slogger.Fields{
		"text_count": len(texts),
		"model":      c.config.Model,
	})

	return results, nil
}

// newEmbedRequest builds the wire request for one text.
func (c *Client) newEmbedRequest(text string) EmbedContentRequest {
	return EmbedContentRequest{
		Model: "models/" + c.config.Model,
		Content: Content{
			Parts: []Part{{Text: text}},
		},
		OutputDimensionality: c.config.Dimensions,
	}
}

// doRequest paces and executes one embedding API call. Callers own the
// response body on success.
func (c *Client) doRequest(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.HandleNetworkError(ctx, err)
	}

	req, err := c.CreateRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &outbound.EmbeddingError{
			Code:      "request_build_error",
			Type:      "validation",
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

// decodeResponse reads and closes the response body into target.
func (c *Client) decodeResponse(ctx context.Context, resp *http.Response, target interface{}) *outbound.EmbeddingError {
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slogger.Error(ctx, "Failed to close response body", slogger.Fields{
				"error": closeErr.Error(),
			})
		}
	}()

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return &outbound.EmbeddingError{
			Code:      "parse_error",
			Type:      "validation",
			Message:   fmt.Sprintf("failed to parse response JSON: %v", err),
			Retryable: false,
			Cause:     err,
		}
	}
	return nil
}

// toEmbeddingResult validates one wire embedding and wraps it for the port.
func (c *Client) toEmbeddingResult(embedding ContentEmbedding) (*outbound.EmbeddingResult, *outbound.EmbeddingError) {
	if len(embedding.Values) == 0 {
		return nil, &outbound.EmbeddingError{
			Code:      "missing_embedding",
			Type:      "server",
			Message:   "response missing required embedding field or embedding is empty",
			Retryable: false,
		}
	}

	return &outbound.EmbeddingResult{
		Vector:      embedding.Values,
		Dimensions:  len(embedding.Values),
		Model:       c.config.Model,
		GeneratedAt: time.Now(),
	}, nil
}

// Package messaging provides the queue message schema for the extraction
// lifecycle: submission requests, poll deliveries, retry threading, and the
// dead-letter payload for exhausted records. Every message is an Envelope
// whose payload shape is selected by the action field.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message actions routed by the dispatcher.
const (
	ActionExtract  = "extract"
	ActionRetrieve = "retrieve"
)

// Constants for validation limits and values.
const (
	maxMessageIDLength = 255
	maxRetryLimit      = 20
	maxBillsPerMessage = 100000
	maxMessageBytes    = 1048576 // 1MB, JetStream default max payload
)

// Error messages for validation.
const (
	errorMessageIDRequired  = "message_id is required"
	errorMessageIDTooLong   = "message_id too long"
	errorActionUnknown      = "action must be extract or retrieve"
	errorBillKeysRequired   = "ids cannot be empty"
	errorBillKeysTooMany    = "ids exceed maximum allowed"
	errorBillKeyEmpty       = "ids cannot contain empty keys"
	errorBatchIDRequired    = "batch_id is required"
	errorRetryNegative      = "retry_attempt cannot be negative"
	errorRetryExceedsLimit  = "retry_attempt exceeds maximum allowed"
	errorTimestampRequired  = "timestamp is required"
	errorPayloadRequired    = "payload is required"
	errorKindUnknown        = "kind must be new or update"
	errorRetryExceedsMaxMsg = "retry attempt exceeds retry ceiling"
)

// SubmissionKind distinguishes fresh submissions from updates. Updates clear
// the bill's existing policy events before extraction; retries are tagged
// new so regenerated content is appended, not wiped.
type SubmissionKind string

// SubmissionKind constants.
const (
	KindNew    SubmissionKind = "new"
	KindUpdate SubmissionKind = "update"
)

// Envelope is the wire form of every queue message: an action selecting the
// payload schema plus tracking identifiers generated at publish time.
type Envelope struct {
	MessageID     string          `json:"message_id"`
	CorrelationID string          `json:"correlation_id"`
	Action        string          `json:"action"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// ExtractPayload asks for a set of bills to be submitted as one batch.
type ExtractPayload struct {
	BillKeys     []string       `json:"ids"`
	Kind         SubmissionKind `json:"kind,omitempty"`
	RetryAttempt int            `json:"retry_attempt,omitempty"`
}

// RetrievePayload asks for one batch job's status to be checked. It carries
// the originating bill keys so a poll delivery is self-describing, and the
// retry attempt so resubmission rounds stay bounded.
type RetrievePayload struct {
	BatchID      string   `json:"batch_id"`
	BillKeys     []string `json:"bill_ids"`
	RetryAttempt int      `json:"retry_attempt,omitempty"`
}

// DeadLetterPayload carries records whose retry ceiling was reached to the
// operator queue, with their last observed outcomes.
type DeadLetterPayload struct {
	BatchID      string            `json:"batch_id"`
	BillKeys     []string          `json:"ids"`
	Outcomes     map[string]string `json:"outcomes,omitempty"`
	RetryAttempt int               `json:"retry_attempt"`
	Reason       string            `json:"reason"`
}

// GenerateCorrelationID generates a correlation ID for distributed tracing.
// The ID format is "corr-{timestamp}-{uuid}" to ensure uniqueness while
// keeping correlation visible in logs.
func GenerateCorrelationID() string {
	return fmt.Sprintf("corr-%d-%s", time.Now().UnixNano(), uuid.New().String()[:8])
}

// GenerateUniqueMessageID generates a unique message ID for each message
// instance. The ID format is "msg-{timestamp}-{uuid}" for temporal ordering
// and deduplication.
func GenerateUniqueMessageID() string {
	return fmt.Sprintf("msg-%d-%s", time.Now().UnixNano(), uuid.New().String()[:8])
}

// NewExtractEnvelope wraps an ExtractPayload with fresh tracking fields.
func NewExtractEnvelope(payload ExtractPayload) (Envelope, error) {
	if err := payload.Validate(); err != nil {
		return Envelope{}, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal extract payload: %w", err)
	}
	return Envelope{
		MessageID:     GenerateUniqueMessageID(),
		CorrelationID: GenerateCorrelationID(),
		Action:        ActionExtract,
		Timestamp:     time.Now(),
		Payload:       raw,
	}, nil
}

// NewRetrieveEnvelope wraps a RetrievePayload with fresh tracking fields,
// reusing the submission's correlation ID so one batch's lifecycle shares a
// single trace.
func NewRetrieveEnvelope(payload RetrievePayload, correlationID string) (Envelope, error) {
	if err := payload.Validate(); err != nil {
		return Envelope{}, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal retrieve payload: %w", err)
	}
	if correlationID == "" {
		correlationID = GenerateCorrelationID()
	}
	return Envelope{
		MessageID:     GenerateUniqueMessageID(),
		CorrelationID: correlationID,
		Action:        ActionRetrieve,
		Timestamp:     time.Now(),
		Payload:       raw,
	}, nil
}

// CreateRetryExtract builds the resubmission message for a failed record
// set. The attempt counter is incremented and checked against the ceiling;
// the kind is forced to new so the cleared-events path is bypassed.
func CreateRetryExtract(billKeys []string, previousAttempt, maxRetries int) (Envelope, error) {
	if previousAttempt+1 > maxRetries {
		return Envelope{}, errors.New(errorRetryExceedsMaxMsg)
	}
	return NewExtractEnvelope(ExtractPayload{
		BillKeys:     billKeys,
		Kind:         KindNew,
		RetryAttempt: previousAttempt + 1,
	})
}

// ParseEnvelope decodes and validates a raw queue delivery.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Validate checks envelope-level fields.
func (e Envelope) Validate() error {
	if e.MessageID == "" {
		return errors.New(errorMessageIDRequired)
	}
	if len(e.MessageID) > maxMessageIDLength {
		return errors.New(errorMessageIDTooLong)
	}
	if e.Action != ActionExtract && e.Action != ActionRetrieve {
		return errors.New(errorActionUnknown)
	}
	if e.Timestamp.IsZero() {
		return errors.New(errorTimestampRequired)
	}
	if len(e.Payload) == 0 {
		return errors.New(errorPayloadRequired)
	}
	return nil
}

// ExtractPayload decodes the payload as an ExtractPayload.
func (e Envelope) ExtractPayload() (ExtractPayload, error) {
	if e.Action != ActionExtract {
		return ExtractPayload{}, fmt.Errorf("action %q does not carry an extract payload", e.Action)
	}
	var payload ExtractPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return ExtractPayload{}, fmt.Errorf("unmarshal extract payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return ExtractPayload{}, err
	}
	return payload, nil
}

// RetrievePayload decodes the payload as a RetrievePayload.
func (e Envelope) RetrievePayload() (RetrievePayload, error) {
	if e.Action != ActionRetrieve {
		return RetrievePayload{}, fmt.Errorf("action %q does not carry a retrieve payload", e.Action)
	}
	var payload RetrievePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return RetrievePayload{}, fmt.Errorf("unmarshal retrieve payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return RetrievePayload{}, err
	}
	return payload, nil
}

// Validate checks an extract payload.
func (p ExtractPayload) Validate() error {
	if err := validateBillKeys(p.BillKeys); err != nil {
		return err
	}
	if p.Kind != "" && p.Kind != KindNew && p.Kind != KindUpdate {
		return errors.New(errorKindUnknown)
	}
	return validateRetryAttempt(p.RetryAttempt)
}

// IsUpdate returns true when the submission should clear existing events
// first.
func (p ExtractPayload) IsUpdate() bool {
	return p.Kind == KindUpdate
}

// Validate checks a retrieve payload.
func (p RetrievePayload) Validate() error {
	if p.BatchID == "" {
		return errors.New(errorBatchIDRequired)
	}
	if err := validateBillKeys(p.BillKeys); err != nil {
		return err
	}
	return validateRetryAttempt(p.RetryAttempt)
}

// ValidateSize rejects envelopes that would exceed the queue's payload
// limit once serialized.
func (e Envelope) ValidateSize() error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if len(raw) > maxMessageBytes {
		return fmt.Errorf("message size %d bytes exceeds maximum %d bytes", len(raw), maxMessageBytes)
	}
	return nil
}

func validateBillKeys(keys []string) error {
	if len(keys) == 0 {
		return errors.New(errorBillKeysRequired)
	}
	if len(keys) > maxBillsPerMessage {
		return errors.New(errorBillKeysTooMany)
	}
	for _, key := range keys {
		if key == "" {
			return errors.New(errorBillKeyEmpty)
		}
	}
	return nil
}

func validateRetryAttempt(attempt int) error {
	if attempt < 0 {
		return errors.New(errorRetryNegative)
	}
	if attempt > maxRetryLimit {
		return errors.New(errorRetryExceedsLimit)
	}
	return nil
}

package entity

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Policy event validation errors.
var (
	ErrEmptyEventID        = errors.New("policy event ID cannot be empty")
	ErrEmptyEventBillKey   = errors.New("policy event must reference a bill")
	ErrEmptyEmbedding      = errors.New("embedding vector cannot be empty")
	ErrZeroEmbedding       = errors.New("embedding vector has zero norm")
	ErrEmbeddingNotUnit    = errors.New("embedding vector is not unit-normalized")
	ErrEmbeddingDimensions = errors.New("embedding vector has wrong dimensionality")
)

// EmbeddingNormTolerance is the allowed deviation of a stored embedding's
// Euclidean norm from 1.0.
const EmbeddingNormTolerance = 1e-6

// BillSnapshot is the denormalized view of a bill captured at enrichment
// time. It is a snapshot, not a live reference: later changes to the bill
// do not propagate to its events.
type BillSnapshot struct {
	BillKey      string `json:"id"`
	Title        string `json:"title"`
	ActionDate   string `json:"date"`
	LatestAction string `json:"latest_action"`
}

// SnapshotOf captures the parent fields a policy event denormalizes.
func SnapshotOf(bill *Bill) BillSnapshot {
	snapshot := BillSnapshot{
		BillKey: bill.Key(),
		Title:   bill.Title(),
	}
	if action, ok := bill.LatestAction(); ok {
		snapshot.ActionDate = action.Date
		snapshot.LatestAction = action.Text
	}
	return snapshot
}

// NewPolicyEventID assigns a globally unique event identifier derived from
// the parent bill key. Identifiers are never reused.
func NewPolicyEventID(billKey string) string {
	return fmt.Sprintf("%s-%s", billKey, uuid.NewString())
}

// PolicyEvent is one extraction item derived from a bill's text. A bill
// yields zero or more policy events per batch.
type PolicyEvent struct {
	id        string
	billKey   string
	text      string
	topics    []string
	tags      []string
	summary   string
	title     string
	embedding []float32
	snapshot  BillSnapshot
	status    string
	createdAt time.Time
}

// NewPolicyEvent creates a policy event from a raw extracted object and its
// parent bill. The embedding is attached separately by the enricher.
func NewPolicyEvent(bill *Bill, text string, topics, tags []string, summary, title string) (*PolicyEvent, error) {
	if bill == nil || bill.Key() == "" {
		return nil, ErrEmptyEventBillKey
	}
	return &PolicyEvent{
		id:        NewPolicyEventID(bill.Key()),
		billKey:   bill.Key(),
		text:      text,
		topics:    topics,
		tags:      tags,
		summary:   summary,
		title:     title,
		snapshot:  SnapshotOf(bill),
		status:    bill.Status(),
		createdAt: time.Now(),
	}, nil
}

// RestorePolicyEvent creates a PolicyEvent entity from stored data.
func RestorePolicyEvent(
	id, billKey, text string,
	topics, tags []string,
	summary, title string,
	embedding []float32,
	snapshot BillSnapshot,
	status string,
	createdAt time.Time,
) *PolicyEvent {
	return &PolicyEvent{
		id:        id,
		billKey:   billKey,
		text:      text,
		topics:    topics,
		tags:      tags,
		summary:   summary,
		title:     title,
		embedding: embedding,
		snapshot:  snapshot,
		status:    status,
		createdAt: createdAt,
	}
}

// ID returns the globally unique event identifier.
func (e *PolicyEvent) ID() string {
	return e.id
}

// BillKey returns the parent bill's identifier.
func (e *PolicyEvent) BillKey() string {
	return e.billKey
}

// Text returns the extracted excerpt.
func (e *PolicyEvent) Text() string {
	return e.text
}

// Topics returns the topic list.
func (e *PolicyEvent) Topics() []string {
	return e.topics
}

// Tags returns the tag list.
func (e *PolicyEvent) Tags() []string {
	return e.tags
}

// Summary returns the extracted summary.
func (e *PolicyEvent) Summary() string {
	return e.summary
}

// Title returns the extracted title.
func (e *PolicyEvent) Title() string {
	return e.title
}

// Embedding returns the attached embedding vector.
func (e *PolicyEvent) Embedding() []float32 {
	return e.embedding
}

// Snapshot returns the denormalized parent snapshot.
func (e *PolicyEvent) Snapshot() BillSnapshot {
	return e.snapshot
}

// Status returns the event status mirrored from the parent at enrichment.
func (e *PolicyEvent) Status() string {
	return e.status
}

// CreatedAt returns the creation timestamp.
func (e *PolicyEvent) CreatedAt() time.Time {
	return e.createdAt
}

// AttachEmbedding stores an L2-normalized embedding vector, rejecting
// vectors whose Euclidean norm deviates from 1.0 beyond tolerance.
func (e *PolicyEvent) AttachEmbedding(vector []float32, wantDims int) error {
	if len(vector) == 0 {
		return ErrEmptyEmbedding
	}
	if wantDims > 0 && len(vector) != wantDims {
		return fmt.Errorf("%w: got %d, want %d", ErrEmbeddingDimensions, len(vector), wantDims)
	}
	norm := EmbeddingNorm(vector)
	if math.Abs(norm-1.0) > EmbeddingNormTolerance {
		return fmt.Errorf("%w: norm %.9f", ErrEmbeddingNotUnit, norm)
	}
	e.embedding = vector
	return nil
}

// EmbeddingNorm computes the Euclidean norm of a vector in float64
// precision.
func EmbeddingNorm(vector []float32) float64 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// NormalizeEmbedding L2-normalizes a raw vector in place-safe fashion,
// returning a new slice. A zero vector cannot be normalized.
func NormalizeEmbedding(vector []float32) ([]float32, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyEmbedding
	}
	norm := EmbeddingNorm(vector)
	if norm == 0 {
		return nil, ErrZeroEmbedding
	}
	normalized := make([]float32, len(vector))
	for i, v := range vector {
		normalized[i] = float32(float64(v) / norm)
	}
	return normalized, nil
}

// Validate ensures the policy event entity is in a valid state.
func (e *PolicyEvent) Validate() error {
	if e.id == "" {
		return ErrEmptyEventID
	}
	if e.billKey == "" {
		return ErrEmptyEventBillKey
	}
	if len(e.embedding) > 0 {
		norm := EmbeddingNorm(e.embedding)
		if math.Abs(norm-1.0) > EmbeddingNormTolerance {
			return fmt.Errorf("%w: norm %.9f", ErrEmbeddingNotUnit, norm)
		}
	}
	return nil
}

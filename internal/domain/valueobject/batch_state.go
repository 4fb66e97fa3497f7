package valueobject

import "fmt"

// BatchState represents the processing state of a batch job as observed
// from the inference provider.
type BatchState string

// Batch state constants.
const (
	BatchStateInProgress BatchState = "in_progress"
	BatchStateEnded      BatchState = "ended"
	BatchStateExpired    BatchState = "expired"
	BatchStateCancelled  BatchState = "cancelled"
)

// validBatchStates contains all valid batch states.
var validBatchStates = map[BatchState]bool{
	BatchStateInProgress: true,
	BatchStateEnded:      true,
	BatchStateExpired:    true,
	BatchStateCancelled:  true,
}

// NewBatchState creates a new BatchState with validation.
func NewBatchState(state string) (BatchState, error) {
	s := BatchState(state)
	if !validBatchStates[s] {
		return "", fmt.Errorf("invalid batch state: %s", state)
	}
	return s, nil
}

// String returns the string representation of the state.
func (s BatchState) String() string {
	return string(s)
}

// IsTerminal returns true if no further polling will change the outcome.
func (s BatchState) IsTerminal() bool {
	return s == BatchStateEnded || s == BatchStateExpired || s == BatchStateCancelled
}

// IsAbandoned returns true for terminal states that carry no retrievable
// results. Abandoned batches are retried wholesale.
func (s BatchState) IsAbandoned() bool {
	return s == BatchStateExpired || s == BatchStateCancelled
}

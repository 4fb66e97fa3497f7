package valueobject

import "fmt"

// RecordOutcome classifies the result of processing a single bill's batch
// item after the batch reaches the ended state.
type RecordOutcome string

// Record outcome constants.
const (
	OutcomeSuccess              RecordOutcome = "success"
	OutcomeDecodeError          RecordOutcome = "decode_error"
	OutcomeBillNotFound         RecordOutcome = "bill_not_found"
	OutcomeAPIError             RecordOutcome = "api_error"
	OutcomeDatabaseUpdateFailed RecordOutcome = "database_update_failed"
	OutcomeProcessingError      RecordOutcome = "processing_error"
)

// validRecordOutcomes contains all valid record outcomes.
var validRecordOutcomes = map[RecordOutcome]bool{
	OutcomeSuccess:              true,
	OutcomeDecodeError:          true,
	OutcomeBillNotFound:         true,
	OutcomeAPIError:             true,
	OutcomeDatabaseUpdateFailed: true,
	OutcomeProcessingError:      true,
}

// NewRecordOutcome creates a new RecordOutcome with validation.
func NewRecordOutcome(outcome string) (RecordOutcome, error) {
	o := RecordOutcome(outcome)
	if !validRecordOutcomes[o] {
		return "", fmt.Errorf("invalid record outcome: %s", outcome)
	}
	return o, nil
}

// String returns the string representation of the outcome.
func (o RecordOutcome) String() string {
	return string(o)
}

// ShouldRetry returns true if the record should be resubmitted in a fresh
// batch. Database update failures are excluded: the extraction content was
// produced and persisted, only the parent write failed, so regenerating the
// content would duplicate items rather than repair the record.
func (o RecordOutcome) ShouldRetry() bool {
	return o != OutcomeSuccess && o != OutcomeDatabaseUpdateFailed
}

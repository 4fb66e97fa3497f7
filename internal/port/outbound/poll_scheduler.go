package outbound

import "context"

// PollScheduler manages the recurring poll triggers that drive batch result
// retrieval. One trigger exists per outstanding batch and fires a retrieve
// message at a fixed interval until cancelled.
type PollScheduler interface {
	// Schedule registers a recurring trigger for the given batch. The bill
	// keys and retry attempt are carried into every retrieve message the
	// trigger emits. Scheduling an already scheduled batch is an error.
	Schedule(ctx context.Context, batchHandle string, billKeys []string, retryAttempt int) error

	// Cancel removes the trigger for the given batch. Cancelling a batch
	// with no registered trigger is a no-op.
	Cancel(ctx context.Context, batchHandle string) error

	// ActiveTriggers returns the batch handles with a registered trigger.
	ActiveTriggers() []string
}

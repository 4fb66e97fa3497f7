package inbound

import (
	"billevents/internal/domain/messaging"
	"context"
)

// ExtractHandler accepts extraction jobs and submits inference batches.
type ExtractHandler interface {
	// HandleExtract builds and submits an inference batch covering the bills
	// named in the payload. A successful return means the batch was accepted
	// by the provider and a poll trigger was requested for it.
	HandleExtract(ctx context.Context, payload messaging.ExtractPayload) error
}

// RetrieveHandler processes poll notifications for submitted batches.
type RetrieveHandler interface {
	// HandleRetrieve checks the batch named in the payload and, when the
	// batch has reached a terminal state, demultiplexes its results and
	// persists the extracted events.
	HandleRetrieve(ctx context.Context, payload messaging.RetrievePayload) error
}

// JobHandler combines the two message-driven entry points of the worker.
type JobHandler interface {
	ExtractHandler
	RetrieveHandler
}

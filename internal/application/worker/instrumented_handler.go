package worker

import (
	"billevents/internal/domain/messaging"
	"billevents/internal/port/inbound"
	"context"
	"errors"
	"time"
)

// InstrumentedHandler wraps a job handler and records lifecycle metrics for
// every dispatch. It satisfies inbound.JobHandler so the consumer needs no
// knowledge of the instrumentation.
type InstrumentedHandler struct {
	next    inbound.JobHandler
	metrics *LifecycleMetrics
}

// NewInstrumentedHandler wraps next with metrics recording.
func NewInstrumentedHandler(next inbound.JobHandler, metrics *LifecycleMetrics) (*InstrumentedHandler, error) {
	if next == nil {
		return nil, errors.New("job handler cannot be nil")
	}
	if metrics == nil {
		return nil, errors.New("lifecycle metrics cannot be nil")
	}
	return &InstrumentedHandler{next: next, metrics: metrics}, nil
}

// HandleExtract implements inbound.ExtractHandler.
func (h *InstrumentedHandler) HandleExtract(ctx context.Context, payload messaging.ExtractPayload) error {
	start := time.Now()
	err := h.next.HandleExtract(ctx, payload)
	h.metrics.RecordJob(ctx, messaging.ActionExtract, payload.RetryAttempt, len(payload.BillKeys), time.Since(start), err)
	return err
}

// HandleRetrieve implements inbound.RetrieveHandler.
func (h *InstrumentedHandler) HandleRetrieve(ctx context.Context, payload messaging.RetrievePayload) error {
	start := time.Now()
	err := h.next.HandleRetrieve(ctx, payload)
	h.metrics.RecordJob(ctx, messaging.ActionRetrieve, payload.RetryAttempt, len(payload.BillKeys), time.Since(start), err)
	return err
}

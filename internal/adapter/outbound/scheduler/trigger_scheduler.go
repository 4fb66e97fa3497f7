// Package scheduler provides the in-process poll trigger registry. Each
// outstanding batch gets one recurring trigger that publishes a retrieve
// message until the batch reaches a terminal state and the trigger is
// cancelled.
package scheduler

import (
	"billevents/internal/application/common/slogger"
	"billevents/internal/domain/messaging"
	"billevents/internal/port/outbound"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// triggerNamePrefix prefixes every trigger name so operator tooling can list
// poll triggers apart from other scheduled work.
const triggerNamePrefix = "batch-check-"

// DefaultPollInterval is how often a batch is polled when no interval is
// configured.
const DefaultPollInterval = 2 * time.Minute

// TriggerName returns the trigger name for a batch handle.
func TriggerName(batchHandle string) string {
	return triggerNamePrefix + batchHandle
}

// pollTrigger is one registered recurring trigger.
type pollTrigger struct {
	name          string
	correlationID string
	payload       messaging.RetrievePayload
	cancel        context.CancelFunc
	done          chan struct{}
}

// TriggerScheduler implements PollScheduler with per-batch ticker goroutines.
type TriggerScheduler struct {
	publisher outbound.MessagePublisher
	interval  time.Duration
	mu        sync.Mutex
	triggers  map[string]*pollTrigger
}

// NewTriggerScheduler creates a scheduler publishing retrieve messages
// through the given publisher. A non-positive interval falls back to
// DefaultPollInterval.
func NewTriggerScheduler(publisher outbound.MessagePublisher, interval time.Duration) (*TriggerScheduler, error) {
	if publisher == nil {
		return nil, errors.New("message publisher cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &TriggerScheduler{
		publisher: publisher,
		interval:  interval,
		triggers:  make(map[string]*pollTrigger),
	}, nil
}

// Schedule registers a recurring trigger for the given batch. The first poll
// fires one interval after registration.
func (s *TriggerScheduler) Schedule(ctx context.Context, batchHandle string, billKeys []string, retryAttempt int) error {
	payload := messaging.RetrievePayload{
		BatchID:      batchHandle,
		BillKeys:     billKeys,
		RetryAttempt: retryAttempt,
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid poll trigger for batch %s: %w", batchHandle, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.triggers[batchHandle]; exists {
		return fmt.Errorf("trigger %s already scheduled", TriggerName(batchHandle))
	}

	// The trigger outlives the scheduling call, so it runs on its own
	// context and stops only on Cancel.
	triggerCtx, cancel := context.WithCancel(context.Background())
	trigger := &pollTrigger{
		name:          TriggerName(batchHandle),
		correlationID: messaging.GenerateCorrelationID(),
		payload:       payload,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	s.triggers[batchHandle] = trigger

	go s.run(triggerCtx, trigger)

	slogger.Info(ctx, "Scheduled poll trigger", slogger.Fields{
		"trigger":    trigger.name,
		"batch_id":   batchHandle,
		"bill_count": len(billKeys),
		"interval":   s.interval.String(),
	})
	return nil
}

// Cancel removes the trigger for the given batch and waits for its goroutine
// to exit. Cancelling an unknown batch is a no-op.
func (s *TriggerScheduler) Cancel(ctx context.Context, batchHandle string) error {
	s.mu.Lock()
	trigger, exists := s.triggers[batchHandle]
	if exists {
		delete(s.triggers, batchHandle)
	}
	s.mu.Unlock()

	if !exists {
		return nil
	}

	trigger.cancel()
	<-trigger.done

	slogger.Info(ctx, "Cancelled poll trigger", slogger.Fields{
		"trigger":  trigger.name,
		"batch_id": batchHandle,
	})
	return nil
}

// ActiveTriggers returns the batch handles with a registered trigger.
func (s *TriggerScheduler) ActiveTriggers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles := make([]string, 0, len(s.triggers))
	for handle := range s.triggers {
		handles = append(handles, handle)
	}
	sort.Strings(handles)
	return handles
}

// run fires the trigger every interval until cancelled. A failed publish is
// logged and retried on the next tick; the batch stays polled either way.
func (s *TriggerScheduler) run(ctx context.Context, trigger *pollTrigger) {
	defer close(trigger.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			envelope, err := messaging.NewRetrieveEnvelope(trigger.payload, trigger.correlationID)
			if err != nil {
				slogger.ErrorNoCtx("Failed to build retrieve envelope", slogger.Fields{
					"trigger": trigger.name,
					"error":   err.Error(),
				})
				continue
			}
			if err := s.publisher.PublishRetrieve(ctx, envelope); err != nil {
				slogger.WarnNoCtx("Poll trigger publish failed", slogger.Fields{
					"trigger":  trigger.name,
					"batch_id": trigger.payload.BatchID,
					"error":    err.Error(),
				})
			}
		}
	}
}

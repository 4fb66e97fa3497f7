package service

import (
	"billevents/internal/application/common/slogger"
	"billevents/internal/port/inbound"
	"billevents/internal/port/outbound"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Worker service defaults.
const (
	defaultHealthCheckInterval = 30 * time.Second
	triggerRecoveryConcurrency = 4
	consumerStoppedMessage     = "consumer stopped unexpectedly"
)

// BatchWorkerService runs the message consumer and the poll trigger
// scheduler as one unit. Starting it re-registers poll triggers for jobs
// that were awaiting provider results when the previous worker stopped, so
// no batch is left unmonitored across restarts.
type BatchWorkerService struct {
	consumer            inbound.Consumer
	scheduler           outbound.PollScheduler
	jobs                outbound.BatchJobRepository
	healthCheckInterval time.Duration

	mu        sync.RWMutex
	running   bool
	startTime time.Time
	lastCheck time.Time
	lastError string
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewBatchWorkerService creates a BatchWorkerService.
func NewBatchWorkerService(
	consumer inbound.Consumer,
	scheduler outbound.PollScheduler,
	jobs outbound.BatchJobRepository,
	healthCheckInterval time.Duration,
) (*BatchWorkerService, error) {
	if consumer == nil {
		return nil, errors.New("consumer cannot be nil")
	}
	if scheduler == nil {
		return nil, errors.New("poll scheduler cannot be nil")
	}
	if jobs == nil {
		return nil, errors.New("batch job repository cannot be nil")
	}
	if healthCheckInterval <= 0 {
		healthCheckInterval = defaultHealthCheckInterval
	}
	return &BatchWorkerService{
		consumer:            consumer,
		scheduler:           scheduler,
		jobs:                jobs,
		healthCheckInterval: healthCheckInterval,
	}, nil
}

// Start recovers poll triggers for unfinished jobs, connects the consumer,
// and launches the health monitor. Trigger recovery failure does not abort
// startup: new submissions still register fresh triggers, and the failure
// is surfaced through Health until the next restart.
func (w *BatchWorkerService) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("worker service already running")
	}
	w.running = true
	w.startTime = time.Now()
	w.lastCheck = w.startTime
	w.lastError = ""
	w.mu.Unlock()

	recovered, err := w.recoverPollTriggers(ctx)
	if err != nil {
		slogger.Error(ctx, "Failed to recover poll triggers", slogger.Fields{
			"error": err.Error(),
		})
		w.mu.Lock()
		w.lastError = err.Error()
		w.mu.Unlock()
	} else if recovered > 0 {
		slogger.Info(ctx, "Recovered poll triggers", slogger.Fields{
			"count": recovered,
		})
	}

	if err := w.consumer.Start(ctx); err != nil {
		w.cancelAllTriggers(ctx)
		w.mu.Lock()
		w.running = false
		w.lastError = err.Error()
		w.mu.Unlock()
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w.mu.Lock()
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()
	go w.monitor(runCtx, done)

	slogger.Info(ctx, "Worker service started", slogger.Fields{
		"subject":         w.consumer.Subject(),
		"queue_group":     w.consumer.QueueGroup(),
		"active_triggers": len(w.scheduler.ActiveTriggers()),
	})
	return nil
}

// Stop halts the health monitor, cancels all poll triggers, and disconnects
// the consumer. Stopping a stopped service is a no-op.
func (w *BatchWorkerService) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	w.cancelAllTriggers(ctx)

	if err := w.consumer.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop consumer: %w", err)
	}

	slogger.Info(ctx, "Worker service stopped", nil)
	return nil
}

// Health implements inbound.WorkerService.
func (w *BatchWorkerService) Health() inbound.WorkerServiceHealthStatus {
	w.mu.RLock()
	running := w.running
	startTime := w.startTime
	lastCheck := w.lastCheck
	lastError := w.lastError
	w.mu.RUnlock()

	status := inbound.WorkerServiceHealthStatus{
		IsRunning:       running,
		Consumer:        w.consumer.Health(),
		ActiveTriggers:  len(w.scheduler.ActiveTriggers()),
		LastHealthCheck: lastCheck,
		LastError:       lastError,
	}
	if running {
		status.ServiceUptime = time.Since(startTime)
	}
	return status
}

// recoverPollTriggers re-registers a poll trigger for every job still
// waiting on the provider. Registration fans out with bounded concurrency
// and the first failure cancels the rest.
func (w *BatchWorkerService) recoverPollTriggers(ctx context.Context) (int, error) {
	unfinished, err := w.jobs.GetUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load unfinished batch jobs: %w", err)
	}
	if len(unfinished) == 0 {
		return 0, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(triggerRecoveryConcurrency)
	for _, job := range unfinished {
		job := job
		group.Go(func() error {
			if err := w.scheduler.Schedule(groupCtx, job.BatchHandle(), job.BillKeys(), job.RetryAttempt()); err != nil {
				return fmt.Errorf("failed to schedule trigger for batch %s: %w", job.BatchHandle(), err)
			}
			slogger.Info(groupCtx, "Recovered poll trigger", slogger.Fields{
				"batch_handle":  job.BatchHandle(),
				"bill_count":    len(job.BillKeys()),
				"retry_attempt": job.RetryAttempt(),
			})
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return len(w.scheduler.ActiveTriggers()), err
	}
	return len(unfinished), nil
}

func (w *BatchWorkerService) cancelAllTriggers(ctx context.Context) {
	for _, handle := range w.scheduler.ActiveTriggers() {
		if err := w.scheduler.Cancel(ctx, handle); err != nil {
			slogger.Warn(ctx, "Failed to cancel poll trigger", slogger.Fields{
				"batch_handle": handle,
				"error":        err.Error(),
			})
		}
	}
}

// monitor refreshes the health snapshot until the service stops.
func (w *BatchWorkerService) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refreshHealth()
		}
	}
}

// refreshHealth notes when the consumer has stopped underneath a running
// service.
func (w *BatchWorkerService) refreshHealth() {
	consumerHealth := w.consumer.Health()

	w.mu.Lock()
	w.lastCheck = time.Now()
	notify := w.running && !consumerHealth.IsRunning && w.lastError != consumerStoppedMessage
	if notify {
		w.lastError = consumerStoppedMessage
	}
	w.mu.Unlock()

	if notify {
		slogger.ErrorNoCtx("Consumer stopped unexpectedly", slogger.Fields{
			"subject": w.consumer.Subject(),
		})
	}
}

package messaging

import (
	"billevents/internal/application/common/slogger"
	"billevents/internal/config"
	"billevents/internal/domain/messaging"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Stream and subject layout. Extract and retrieve jobs share one work-queue
// subject and are told apart by the envelope action; exhausted records go to
// a separate dead letter subject so operator tooling can consume them without
// competing with the worker.
const (
	StreamName        = "BILLS"
	SubjectJobs       = "bills.job"
	SubjectDeadLetter = "bills.deadletter"
)

const (
	// NATS connection timeout.
	natsConnectionTimeoutSeconds = 5

	// Stream configuration.
	streamMaxAgeHours = 24

	// Circuit breaker tuning.
	maxPublishFailures  = 3
	circuitOpenDuration = 30 * time.Second
)

// ConnectionHealthStatus represents the health status of the NATS connection.
type ConnectionHealthStatus struct {
	Connected    bool          `json:"connected"`
	LastError    string        `json:"last_error,omitempty"`
	Uptime       time.Duration `json:"uptime"`
	Reconnects   int           `json:"reconnects"`
	LastPingTime time.Time     `json:"last_ping_time"`
}

// MessageMetrics tracks message publishing metrics.
type MessageMetrics struct {
	PublishedCount    int64         `json:"published_count"`
	FailedCount       int64         `json:"failed_count"`
	AverageLatency    time.Duration `json:"average_latency"`
	LastPublishedTime time.Time     `json:"last_published_time"`
}

// deadLetterMessage is the wire form of a dead letter delivery.
type deadLetterMessage struct {
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
	messaging.DeadLetterPayload
}

// NATSMessagePublisher provides the NATS JetStream implementation of
// MessagePublisher.
type NATSMessagePublisher struct {
	config           config.NATSConfig
	conn             *nats.Conn
	js               nats.JetStreamContext
	connectionHealth ConnectionHealthStatus
	messageMetrics   MessageMetrics
	mutex            sync.RWMutex
	connectedAt      time.Time
	reconnectCount   int
	lastError        error
	// Circuit breaker state
	circuitBreakerOpen bool
	lastFailureTime    time.Time
	failureCount       int
}

// NewNATSMessagePublisher creates a new NATS message publisher.
func NewNATSMessagePublisher(cfg config.NATSConfig) (*NATSMessagePublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if !strings.HasPrefix(cfg.URL, "nats://") {
		return nil, errors.New("invalid NATS URL scheme")
	}
	if cfg.MaxReconnects < 0 {
		return nil, errors.New("max reconnects cannot be negative")
	}
	if cfg.ReconnectWait < 0 {
		return nil, errors.New("reconnect wait cannot be negative")
	}

	return &NATSMessagePublisher{
		config:           cfg,
		connectionHealth: ConnectionHealthStatus{},
		messageMetrics:   MessageMetrics{},
	}, nil
}

// Connect establishes the connection to the NATS server.
func (n *NATSMessagePublisher) Connect() error {
	opts := []nats.Option{
		nats.MaxReconnects(n.config.MaxReconnects),
		nats.ReconnectWait(n.config.ReconnectWait),
		nats.Timeout(natsConnectionTimeoutSeconds * time.Second),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			n.mutex.Lock()
			n.reconnectCount++
			n.mutex.Unlock()
			n.updateConnectionHealth(true, nil)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, _ error) {
			n.updateConnectionHealth(false, errors.New("connection lost"))
		}),
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		n.updateConnectionHealth(false, err)
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		n.updateConnectionHealth(false, err)
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	n.conn = conn
	n.js = js
	n.updateConnectionHealth(true, nil)
	return nil
}

// Disconnect closes the NATS connection.
func (n *NATSMessagePublisher) Disconnect() error {
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
		n.js = nil
	}
	n.updateConnectionHealth(false, nil)
	return nil
}

// EnsureStream creates the JetStream stream if it doesn't exist.
func (n *NATSMessagePublisher) EnsureStream() error {
	if n.js == nil {
		return errors.New("not connected to NATS server")
	}

	streamConfig := &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"bills.>"},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
		MaxAge:    streamMaxAgeHours * time.Hour, // Jobs expire after 1 day
		Replicas:  1,
	}

	if _, err := n.js.AddStream(streamConfig); err != nil {
		// Stream may already exist with the same configuration
		if _, infoErr := n.js.StreamInfo(StreamName); infoErr == nil {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// PublishExtract publishes an extraction job envelope to the jobs subject.
func (n *NATSMessagePublisher) PublishExtract(ctx context.Context, envelope messaging.Envelope) error {
	if envelope.Action != messaging.ActionExtract {
		return fmt.Errorf("envelope action %q is not an extract job", envelope.Action)
	}
	return n.publishEnvelope(ctx, envelope)
}

// PublishRetrieve publishes a batch poll envelope to the jobs subject.
func (n *NATSMessagePublisher) PublishRetrieve(ctx context.Context, envelope messaging.Envelope) error {
	if envelope.Action != messaging.ActionRetrieve {
		return fmt.Errorf("envelope action %q is not a retrieve job", envelope.Action)
	}
	return n.publishEnvelope(ctx, envelope)
}

// PublishDeadLetter publishes an exhausted record set to the dead letter
// subject for manual inspection.
func (n *NATSMessagePublisher) PublishDeadLetter(ctx context.Context, payload messaging.DeadLetterPayload) error {
	message := deadLetterMessage{
		MessageID:         messaging.GenerateUniqueMessageID(),
		Timestamp:         time.Now(),
		DeadLetterPayload: payload,
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter message: %w", err)
	}

	slogger.Warn(ctx, "Publishing dead letter message", slogger.Fields{
		"batch_id":      payload.BatchID,
		"bill_count":    len(payload.BillKeys),
		"retry_attempt": payload.RetryAttempt,
		"reason":        payload.Reason,
	})

	return n.publish(ctx, SubjectDeadLetter, data)
}

// publishEnvelope validates, serializes, and publishes one job envelope.
func (n *NATSMessagePublisher) publishEnvelope(ctx context.Context, envelope messaging.Envelope) error {
	if err := envelope.Validate(); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}
	if err := envelope.ValidateSize(); err != nil {
		return err
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return n.publish(ctx, SubjectJobs, data)
}

// publish sends one message and waits for the JetStream ack. Lifecycle
// messages drive retries and polling, so fire-and-forget is not enough.
func (n *NATSMessagePublisher) publish(ctx context.Context, subject string, data []byte) error {
	start := time.Now()

	select {
	case <-ctx.Done():
		n.updateMetrics(false, time.Since(start))
		return ctx.Err()
	default:
	}

	if n.isCircuitBreakerOpen() {
		n.updateMetrics(false, time.Since(start))
		return errors.New("circuit breaker open: too many recent failures")
	}

	if n.js == nil {
		n.updateMetrics(false, time.Since(start))
		return errors.New("publish failed: not connected to NATS")
	}

	if _, err := n.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		n.updateMetrics(false, time.Since(start))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	n.updateMetrics(true, time.Since(start))
	return nil
}

// GetConnectionHealth returns the current connection health status.
func (n *NATSMessagePublisher) GetConnectionHealth() ConnectionHealthStatus {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	status := n.connectionHealth
	if status.Connected {
		status.Uptime = time.Since(n.connectedAt)
	}
	status.Reconnects = n.reconnectCount
	return status
}

// GetMessageMetrics returns current message publishing metrics.
func (n *NATSMessagePublisher) GetMessageMetrics() MessageMetrics {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.messageMetrics
}

// updateConnectionHealth updates the connection health status.
func (n *NATSMessagePublisher) updateConnectionHealth(connected bool, err error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.connectionHealth.Connected = connected
	n.connectionHealth.LastPingTime = time.Now()

	if err != nil {
		n.connectionHealth.LastError = err.Error()
		n.lastError = err
	}

	if connected && n.connectedAt.IsZero() {
		n.connectedAt = time.Now()
	}
}

// updateMetrics updates message publishing metrics and the circuit breaker.
func (n *NATSMessagePublisher) updateMetrics(success bool, latency time.Duration) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if success {
		n.messageMetrics.PublishedCount++
		n.messageMetrics.LastPublishedTime = time.Now()

		if n.messageMetrics.AverageLatency == 0 {
			n.messageMetrics.AverageLatency = latency
		} else {
			// EMA with alpha = 0.1
			n.messageMetrics.AverageLatency = time.Duration(
				0.9*float64(n.messageMetrics.AverageLatency) + 0.1*float64(latency),
			)
		}
		n.failureCount = 0
		n.circuitBreakerOpen = false
	} else {
		n.messageMetrics.FailedCount++
		n.failureCount++
		n.lastFailureTime = time.Now()

		if n.failureCount >= maxPublishFailures {
			n.circuitBreakerOpen = true
		}
	}
}

// isCircuitBreakerOpen checks if the circuit breaker is currently open.
func (n *NATSMessagePublisher) isCircuitBreakerOpen() bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.circuitBreakerOpen && time.Since(n.lastFailureTime) > circuitOpenDuration {
		n.circuitBreakerOpen = false
		n.failureCount = 0
	}
	return n.circuitBreakerOpen
}

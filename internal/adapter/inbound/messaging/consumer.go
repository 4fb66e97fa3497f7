// Package messaging provides the NATS JetStream consumer that drives the
// worker. Extract and retrieve jobs arrive on one work-queue subject; the
// consumer parses each delivery, dispatches it to the job handler, and
// acknowledges according to the outcome.
package messaging

import (
	"billevents/internal/config"
	"billevents/internal/port/inbound"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// streamName is the JetStream stream holding lifecycle jobs.
	streamName = "BILLS"

	// streamRetentionHours is the retention period for undelivered jobs.
	streamRetentionHours = 24

	// messagesFetchBatch is the number of messages requested per pull.
	messagesFetchBatch = 10

	// messageFetchMaxWait is the maximum wait for a pull to return.
	messageFetchMaxWait = 5 * time.Second

	// fetchErrorBackoff spaces out retries after a failed pull.
	fetchErrorBackoff = 100 * time.Millisecond

	// natsConnectionTimeout bounds the initial server handshake.
	natsConnectionTimeout = 5 * time.Second
)

// ConsumerConfig holds configuration for the message consumer.
type ConsumerConfig struct {
	Subject       string
	QueueGroup    string
	DurableName   string
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
}

// ConsumerStats tracks message consumption counters for one consumer.
type ConsumerStats struct {
	MessagesReceived   int64         `json:"messages_received"`
	MessagesProcessed  int64         `json:"messages_processed"`
	MessagesFailed     int64         `json:"messages_failed"`
	BytesReceived      int64         `json:"bytes_received"`
	AverageProcessTime time.Duration `json:"average_process_time"`
	LastProcessTime    time.Duration `json:"last_process_time"`
	MessageRate        float64       `json:"message_rate"`
	ActiveSince        time.Time     `json:"active_since"`
}

// NATSConsumer consumes lifecycle jobs from JetStream and dispatches them to
// the job handler.
type NATSConsumer struct {
	config       ConsumerConfig
	natsConfig   config.NATSConfig
	handler      inbound.JobHandler
	conn         *nats.Conn
	jsContext    nats.JetStreamContext
	subscription *nats.Subscription
	running      bool
	mu           sync.RWMutex
	stats        ConsumerStats
	health       inbound.ConsumerHealthStatus
}

// NewNATSConsumer creates a new NATS consumer with validated configuration.
func NewNATSConsumer(
	consumerConfig ConsumerConfig,
	natsConfig config.NATSConfig,
	handler inbound.JobHandler,
) (*NATSConsumer, error) {
	if err := validateConsumerConfig(consumerConfig); err != nil {
		return nil, fmt.Errorf("invalid consumer configuration: %w", err)
	}
	if handler == nil {
		return nil, errors.New("job handler cannot be nil")
	}

	return &NATSConsumer{
		config:     consumerConfig,
		natsConfig: natsConfig,
		handler:    handler,
		stats: ConsumerStats{
			ActiveSince: time.Now(),
		},
		health: inbound.ConsumerHealthStatus{
			QueueGroup: consumerConfig.QueueGroup,
			Subject:    consumerConfig.Subject,
		},
	}, nil
}

// validateConsumerConfig checks the fields a durable pull consumer requires.
func validateConsumerConfig(config ConsumerConfig) error {
	if config.Subject == "" {
		return errors.New("subject cannot be empty")
	}
	if config.QueueGroup == "" {
		return errors.New("queue group cannot be empty")
	}
	if config.DurableName == "" {
		return errors.New("durable name cannot be empty")
	}
	if config.AckWait <= 0 {
		return errors.New("ack wait duration must be positive")
	}
	if config.MaxDeliver <= 0 {
		return errors.New("max deliver count must be positive")
	}
	if config.MaxAckPending <= 0 {
		return errors.New("max ack pending must be positive")
	}
	return nil
}

// Start connects to NATS, ensures the stream and durable consumer exist, and
// begins the fetch loop.
func (n *NATSConsumer) Start(_ context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return fmt.Errorf("consumer already running for subject %s", n.config.Subject)
	}
	n.mu.Unlock()

	opts := []nats.Option{
		nats.MaxReconnects(n.natsConfig.MaxReconnects),
		nats.ReconnectWait(n.natsConfig.ReconnectWait),
		nats.Timeout(natsConnectionTimeout),
	}

	conn, err := nats.Connect(n.natsConfig.URL, opts...)
	if err != nil {
		n.updateHealthOnError(fmt.Sprintf("failed to connect to NATS: %v", err))
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	jsContext, err := conn.JetStream()
	if err != nil {
		conn.Close()
		n.updateHealthOnError(fmt.Sprintf("failed to create JetStream context: %v", err))
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	n.mu.Lock()
	n.conn = conn
	n.jsContext = jsContext
	n.mu.Unlock()

	if err := n.ensureStreamExists(); err != nil {
		conn.Close()
		return err
	}
	if err := n.createDurableConsumer(); err != nil {
		conn.Close()
		return err
	}

	subscription, err := jsContext.PullSubscribe(
		n.config.Subject,
		n.config.DurableName,
		nats.Bind(streamName, n.config.DurableName),
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create pull subscription: %w", err)
	}

	n.mu.Lock()
	n.subscription = subscription
	n.running = true
	n.health.IsRunning = true
	n.health.IsConnected = true
	n.stats.ActiveSince = time.Now()
	n.mu.Unlock()

	go n.messageProcessingLoop()

	return nil
}

// Stop shuts down the fetch loop and closes the connection. Stopping an
// already stopped consumer is a no-op.
func (n *NATSConsumer) Stop(_ context.Context) error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	n.health.IsRunning = false
	n.health.IsConnected = false
	subscription := n.subscription
	conn := n.conn
	n.subscription = nil
	n.conn = nil
	n.jsContext = nil
	n.mu.Unlock()

	if subscription != nil {
		_ = subscription.Unsubscribe()
	}
	if conn != nil {
		conn.Close()
	}
	return nil
}

// ensureStreamExists creates the BILLS stream if it doesn't exist. The
// configuration mirrors the publisher's so whichever side starts first wins.
func (n *NATSConsumer) ensureStreamExists() error {
	if _, err := n.jsContext.StreamInfo(streamName); err == nil {
		return nil
	}

	streamConfig := &nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"bills.>"},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
		MaxAge:    streamRetentionHours * time.Hour,
		Replicas:  1,
	}

	if _, err := n.jsContext.AddStream(streamConfig); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", streamName, err)
	}
	return nil
}

// createDurableConsumer creates the durable pull consumer on the BILLS
// stream. Multiple workers bind the same durable to share the queue.
func (n *NATSConsumer) createDurableConsumer() error {
	consumerConfig := &nats.ConsumerConfig{
		Durable:       n.config.DurableName,
		FilterSubject: n.config.Subject,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       n.config.AckWait,
		MaxDeliver:    n.config.MaxDeliver,
		MaxAckPending: n.config.MaxAckPending,
		ReplayPolicy:  nats.ReplayInstantPolicy,
		DeliverPolicy: nats.DeliverAllPolicy,
	}

	if _, err := n.jsContext.AddConsumer(streamName, consumerConfig); err != nil {
		// Consumer may already exist from a previous run
		if _, infoErr := n.jsContext.ConsumerInfo(streamName, n.config.DurableName); infoErr == nil {
			return nil
		}
		return fmt.Errorf("failed to create durable consumer %s: %w", n.config.DurableName, err)
	}
	return nil
}

// messageProcessingLoop fetches messages in batches until the consumer is
// stopped.
func (n *NATSConsumer) messageProcessingLoop() {
	for {
		n.mu.RLock()
		running := n.running
		subscription := n.subscription
		n.mu.RUnlock()

		if !running || subscription == nil {
			return
		}

		msgs, err := subscription.Fetch(messagesFetchBatch, nats.MaxWait(messageFetchMaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			// Shutdown invalidates the subscription; the running check above
			// ends the loop. Anything else gets a short pause before retry.
			time.Sleep(fetchErrorBackoff)
			continue
		}

		for _, msg := range msgs {
			n.processMessage(msg)
		}
	}
}

// Health returns the current health status of the consumer.
func (n *NATSConsumer) Health() inbound.ConsumerHealthStatus {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.health
}

// GetStats returns consumer statistics.
func (n *NATSConsumer) GetStats() ConsumerStats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

// QueueGroup returns the consumer's queue group.
func (n *NATSConsumer) QueueGroup() string {
	if n == nil {
		return ""
	}
	return n.config.QueueGroup
}

// Subject returns the consumer's subject.
func (n *NATSConsumer) Subject() string {
	if n == nil {
		return ""
	}
	return n.config.Subject
}

// DurableName returns the consumer's durable name.
func (n *NATSConsumer) DurableName() string {
	if n == nil {
		return ""
	}
	return n.config.DurableName
}

package messaging

import (
	"billevents/internal/config"
	"billevents/internal/domain/messaging"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobHandler struct {
	mu          sync.Mutex
	extracts    []messaging.ExtractPayload
	retrieves   []messaging.RetrievePayload
	extractErr  error
	retrieveErr error
}

func (f *fakeJobHandler) HandleExtract(_ context.Context, payload messaging.ExtractPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracts = append(f.extracts, payload)
	return f.extractErr
}

func (f *fakeJobHandler) HandleRetrieve(_ context.Context, payload messaging.RetrievePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieves = append(f.retrieves, payload)
	return f.retrieveErr
}

func validConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Subject:       "bills.job",
		QueueGroup:    "bill-workers",
		DurableName:   "bill-worker",
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 10,
	}
}

func testNATSConfig() config.NATSConfig {
	return config.NATSConfig{
		URL:           "nats://localhost:4222",
		MaxReconnects: 3,
		ReconnectWait: time.Second,
	}
}

func newTestConsumer(t *testing.T, handler *fakeJobHandler) *NATSConsumer {
	t.Helper()
	consumer, err := NewNATSConsumer(validConsumerConfig(), testNATSConfig(), handler)
	require.NoError(t, err)
	return consumer
}

func extractDelivery(t *testing.T, payload messaging.ExtractPayload) *nats.Msg {
	t.Helper()
	envelope, err := messaging.NewExtractEnvelope(payload)
	require.NoError(t, err)
	data, err := json.Marshal(envelope)
	require.NoError(t, err)
	return &nats.Msg{Subject: "bills.job", Data: data}
}

func retrieveDelivery(t *testing.T, payload messaging.RetrievePayload) *nats.Msg {
	t.Helper()
	envelope, err := messaging.NewRetrieveEnvelope(payload, "corr-test")
	require.NoError(t, err)
	data, err := json.Marshal(envelope)
	require.NoError(t, err)
	return &nats.Msg{Subject: "bills.job", Data: data}
}

func TestNewNATSConsumer(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ConsumerConfig)
		wantErr string
	}{
		{
			name:   "valid configuration",
			mutate: func(*ConsumerConfig) {},
		},
		{
			name:    "empty subject",
			mutate:  func(c *ConsumerConfig) { c.Subject = "" },
			wantErr: "subject cannot be empty",
		},
		{
			name:    "empty queue group",
			mutate:  func(c *ConsumerConfig) { c.QueueGroup = "" },
			wantErr: "queue group cannot be empty",
		},
		{
			name:    "empty durable name",
			mutate:  func(c *ConsumerConfig) { c.DurableName = "" },
			wantErr: "durable name cannot be empty",
		},
		{
			name:    "non-positive ack wait",
			mutate:  func(c *ConsumerConfig) { c.AckWait = 0 },
			wantErr: "ack wait duration must be positive",
		},
		{
			name:    "non-positive max deliver",
			mutate:  func(c *ConsumerConfig) { c.MaxDeliver = 0 },
			wantErr: "max deliver count must be positive",
		},
		{
			name:    "non-positive max ack pending",
			mutate:  func(c *ConsumerConfig) { c.MaxAckPending = -1 },
			wantErr: "max ack pending must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConsumerConfig()
			tt.mutate(&cfg)

			consumer, err := NewNATSConsumer(cfg, testNATSConfig(), &fakeJobHandler{})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, consumer)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, consumer)
		})
	}

	t.Run("nil handler is rejected", func(t *testing.T) {
		_, err := NewNATSConsumer(validConsumerConfig(), testNATSConfig(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "job handler cannot be nil")
	})
}

func TestConsumerAccessors(t *testing.T) {
	consumer := newTestConsumer(t, &fakeJobHandler{})

	assert.Equal(t, "bills.job", consumer.Subject())
	assert.Equal(t, "bill-workers", consumer.QueueGroup())
	assert.Equal(t, "bill-worker", consumer.DurableName())

	health := consumer.Health()
	assert.False(t, health.IsRunning)
	assert.False(t, health.IsConnected)
	assert.Equal(t, "bill-workers", health.QueueGroup)
	assert.Equal(t, "bills.job", health.Subject)
}

func TestHandleMessageDispatch(t *testing.T) {
	t.Run("extract envelope reaches the extract handler", func(t *testing.T) {
		handler := &fakeJobHandler{}
		consumer := newTestConsumer(t, handler)

		msg := extractDelivery(t, messaging.ExtractPayload{
			BillKeys: []string{"HB1001", "SB2002"},
			Kind:     messaging.KindUpdate,
		})

		require.NoError(t, consumer.handleMessage(msg))
		require.Len(t, handler.extracts, 1)
		assert.Equal(t, []string{"HB1001", "SB2002"}, handler.extracts[0].BillKeys)
		assert.True(t, handler.extracts[0].IsUpdate())
		assert.Empty(t, handler.retrieves)
	})

	t.Run("retrieve envelope reaches the retrieve handler", func(t *testing.T) {
		handler := &fakeJobHandler{}
		consumer := newTestConsumer(t, handler)

		msg := retrieveDelivery(t, messaging.RetrievePayload{
			BatchID:      "msgbatch_013Zva2CMHLNnXjNJJKqJ2EF",
			BillKeys:     []string{"HB1001"},
			RetryAttempt: 1,
		})

		require.NoError(t, consumer.handleMessage(msg))
		require.Len(t, handler.retrieves, 1)
		assert.Equal(t, "msgbatch_013Zva2CMHLNnXjNJJKqJ2EF", handler.retrieves[0].BatchID)
		assert.Equal(t, 1, handler.retrieves[0].RetryAttempt)
		assert.Empty(t, handler.extracts)
	})

	t.Run("malformed delivery is classified as poison", func(t *testing.T) {
		handler := &fakeJobHandler{}
		consumer := newTestConsumer(t, handler)

		msg := &nats.Msg{Subject: "bills.job", Data: []byte("not json")}
		err := consumer.handleMessage(msg)
		require.Error(t, err)
		assert.ErrorIs(t, err, errPoisonMessage)
		assert.Empty(t, handler.extracts)
	})

	t.Run("envelope with invalid payload is poison", func(t *testing.T) {
		handler := &fakeJobHandler{}
		consumer := newTestConsumer(t, handler)

		envelope, err := messaging.NewExtractEnvelope(messaging.ExtractPayload{
			BillKeys: []string{"HB1001"},
		})
		require.NoError(t, err)
		envelope.Payload = json.RawMessage(`{"ids":[]}`)
		data, err := json.Marshal(envelope)
		require.NoError(t, err)

		err = consumer.handleMessage(&nats.Msg{Subject: "bills.job", Data: data})
		require.Error(t, err)
		assert.ErrorIs(t, err, errPoisonMessage)
	})

	t.Run("handler failure is transient not poison", func(t *testing.T) {
		handler := &fakeJobHandler{extractErr: errors.New("upstream unavailable")}
		consumer := newTestConsumer(t, handler)

		msg := extractDelivery(t, messaging.ExtractPayload{BillKeys: []string{"HB1001"}})
		err := consumer.handleMessage(msg)
		require.Error(t, err)
		assert.NotErrorIs(t, err, errPoisonMessage)
		assert.Contains(t, err.Error(), "upstream unavailable")
	})

	t.Run("nil delivery is poison", func(t *testing.T) {
		consumer := newTestConsumer(t, &fakeJobHandler{})
		err := consumer.handleMessage(nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, errPoisonMessage)
	})
}

func TestProcessMessageStats(t *testing.T) {
	t.Run("successful dispatch updates counters", func(t *testing.T) {
		handler := &fakeJobHandler{}
		consumer := newTestConsumer(t, handler)

		msg := extractDelivery(t, messaging.ExtractPayload{BillKeys: []string{"HB1001"}})
		consumer.processMessage(msg)

		stats := consumer.GetStats()
		assert.Equal(t, int64(1), stats.MessagesReceived)
		assert.Equal(t, int64(1), stats.MessagesProcessed)
		assert.Equal(t, int64(0), stats.MessagesFailed)
		assert.Equal(t, int64(len(msg.Data)), stats.BytesReceived)

		health := consumer.Health()
		assert.Equal(t, int64(1), health.MessagesHandled)
		assert.False(t, health.LastMessageTime.IsZero())
	})

	t.Run("failed dispatch updates error counters", func(t *testing.T) {
		handler := &fakeJobHandler{retrieveErr: errors.New("batch lookup failed")}
		consumer := newTestConsumer(t, handler)

		msg := retrieveDelivery(t, messaging.RetrievePayload{
			BatchID:  "msgbatch_abc",
			BillKeys: []string{"HB1001"},
		})
		consumer.processMessage(msg)

		stats := consumer.GetStats()
		assert.Equal(t, int64(1), stats.MessagesReceived)
		assert.Equal(t, int64(1), stats.MessagesFailed)

		health := consumer.Health()
		assert.Equal(t, int64(1), health.ErrorCount)
		assert.Contains(t, health.LastError, "batch lookup failed")
	})

	t.Run("poison message counts as failure", func(t *testing.T) {
		consumer := newTestConsumer(t, &fakeJobHandler{})

		consumer.processMessage(&nats.Msg{Subject: "bills.job", Data: []byte("garbage")})

		stats := consumer.GetStats()
		assert.Equal(t, int64(1), stats.MessagesFailed)
		assert.Equal(t, int64(0), stats.MessagesProcessed)
	})
}

func TestConsumerLifecycle(t *testing.T) {
	t.Run("stop before start is a no-op", func(t *testing.T) {
		consumer := newTestConsumer(t, &fakeJobHandler{})
		require.NoError(t, consumer.Stop(context.Background()))
	})

	t.Run("start fails against unreachable server", func(t *testing.T) {
		cfg := testNATSConfig()
		cfg.URL = "nats://127.0.0.1:1"

		consumer, err := NewNATSConsumer(validConsumerConfig(), cfg, &fakeJobHandler{})
		require.NoError(t, err)

		err = consumer.Start(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to NATS")

		health := consumer.Health()
		assert.False(t, health.IsRunning)
		assert.NotEmpty(t, health.LastError)
	})
}

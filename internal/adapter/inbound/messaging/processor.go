package messaging

import (
	"billevents/internal/application/common/slogger"
	"billevents/internal/domain/messaging"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// errPoisonMessage marks deliveries that cannot succeed on redelivery, such
// as malformed envelopes. They are terminated instead of retried.
var errPoisonMessage = errors.New("poison message")

// processMessage handles one delivery and acknowledges it according to the
// outcome: Term for poison messages, Nak for transient failures, Ack for
// success.
func (n *NATSConsumer) processMessage(msg *nats.Msg) {
	start := time.Now()
	err := n.handleMessage(msg)
	processTime := time.Since(start)

	n.updateStats(err == nil, len(msg.Data), processTime)

	switch {
	case errors.Is(err, errPoisonMessage):
		n.updateHealthOnError(err.Error())
		slogger.ErrorNoCtx("Terminating poison message", slogger.Fields{
			"subject": msg.Subject,
			"error":   err.Error(),
		})
		_ = msg.Term()
	case err != nil:
		n.updateHealthOnError(err.Error())
		_ = msg.Nak()
	default:
		_ = msg.Ack()
	}
}

// handleMessage parses a delivery and dispatches it to the job handler.
func (n *NATSConsumer) handleMessage(msg *nats.Msg) error {
	if msg == nil {
		return fmt.Errorf("%w: nil delivery", errPoisonMessage)
	}

	envelope, err := messaging.ParseEnvelope(msg.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", errPoisonMessage, err)
	}

	// Bound dispatch by the ack wait so a slow job fails here before
	// JetStream redelivers it to another worker.
	ctx, cancel := context.WithTimeout(context.Background(), n.config.AckWait)
	defer cancel()

	switch envelope.Action {
	case messaging.ActionExtract:
		payload, err := envelope.ExtractPayload()
		if err != nil {
			return fmt.Errorf("%w: %v", errPoisonMessage, err)
		}
		if err := n.handler.HandleExtract(ctx, payload); err != nil {
			return fmt.Errorf("extract job %s failed: %w", envelope.MessageID, err)
		}
		return nil
	case messaging.ActionRetrieve:
		payload, err := envelope.RetrievePayload()
		if err != nil {
			return fmt.Errorf("%w: %v", errPoisonMessage, err)
		}
		if err := n.handler.HandleRetrieve(ctx, payload); err != nil {
			return fmt.Errorf("retrieve job %s failed: %w", envelope.MessageID, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unhandled action %q", errPoisonMessage, envelope.Action)
	}
}

// updateHealthOnError updates health status when an error occurs.
func (n *NATSConsumer) updateHealthOnError(errorMsg string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.health.ErrorCount++
	n.health.LastError = errorMsg
}

// updateStats updates consumer statistics in a thread-safe manner.
func (n *NATSConsumer) updateStats(success bool, size int, processTime time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stats.MessagesReceived++
	n.stats.BytesReceived += int64(size)

	if success {
		n.stats.MessagesProcessed++
		n.health.MessagesHandled++
		n.health.LastMessageTime = time.Now()

		n.stats.LastProcessTime = processTime
		if n.stats.AverageProcessTime == 0 {
			n.stats.AverageProcessTime = processTime
		} else {
			// EMA with alpha = 0.1
			n.stats.AverageProcessTime = time.Duration(
				0.9*float64(n.stats.AverageProcessTime) + 0.1*float64(processTime),
			)
		}
	} else {
		n.stats.MessagesFailed++
	}

	elapsed := time.Since(n.stats.ActiveSince)
	if elapsed.Seconds() > 0 {
		n.stats.MessageRate = float64(n.stats.MessagesReceived) / elapsed.Seconds()
	}
}

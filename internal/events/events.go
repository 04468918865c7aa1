// Package events publishes order and batch lifecycle events to Kafka so
// downstream consumers (BI, customer notifications) can follow the
// operation. Publishing is fire-and-forget: failures are logged and never
// surface to the request that triggered them.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event names.
const (
	OrderCreated   = "order.created"
	OrderReady     = "order.ready"
	OrderAssigned  = "order.assigned"
	OrderPickedUp  = "order.picked_up"
	OrderDelivered = "order.delivered"
	OrderCancelled = "order.cancelled"
	BatchCreated   = "batch.created"
	BatchCompleted = "batch.completed"
)

// Envelope is the wire shape of one event.
type Envelope struct {
	Event    string    `json:"event"`
	TenantID string    `json:"tenant_id"`
	OrderID  string    `json:"order_id,omitempty"`
	BatchID  string    `json:"batch_id,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e Envelope)
	Close() error
}

// Nop is the default publisher when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) {}
func (Nop) Close() error                      { return nil }

// Kafka writes envelopes to a single topic, keyed by tenant so one
// tenant's events stay ordered within a partition.
type Kafka struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafka builds a publisher for the given brokers and topic.
func NewKafka(brokers []string, topic string, logger *zap.Logger) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
		logger: logger,
	}
}

func (k *Kafka) Publish(ctx context.Context, e Envelope) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		k.logger.Warn("event marshal failed", zap.String("event", e.Event), zap.Error(err))
		return
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.TenantID),
		Value: payload,
	})
	if err != nil {
		k.logger.Warn("event publish failed",
			zap.String("event", e.Event),
			zap.String("tenant_id", e.TenantID),
			zap.Error(err))
	}
}

func (k *Kafka) Close() error { return k.writer.Close() }

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/foodcart/internal/domain/checkout"
	"github.com/Zhima-Mochi/foodcart/internal/domain/outbox"
	"github.com/Zhima-Mochi/foodcart/internal/observability"
	"github.com/Zhima-Mochi/foodcart/internal/observability/logctx"
	"github.com/segmentio/kafka-go"
)

const headerEventType = "event_type"

// messageWriter is the part of *kafka.Writer the relay needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Relay forwards checkout events from the in-process bus to a Kafka topic.
// Messages are keyed by checkout id so one checkout's events stay ordered
// within a partition.
type Relay struct {
	writer messageWriter
	log    observability.Logger
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

func NewRelay(w messageWriter, logger observability.Logger) *Relay {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Relay{writer: w, log: logger.With(observability.F("component", "kafka_relay"))}
}

func (r *Relay) Start(sub outbox.Subscriber) {
	for _, name := range []string{
		checkout.EventOrderPlaced,
		checkout.EventPaymentProcessing,
		checkout.EventPaymentSettled,
	} {
		sub.Subscribe(name, r.forward)
	}
}

func (r *Relay) forward(ctx context.Context, e outbox.Event) error {
	key, err := keyOf(e)
	if err != nil {
		return err
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("kafka relay: encode %s: %w", e.EventName(), err)
	}

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   body,
		Headers: []kafka.Header{{Key: headerEventType, Value: []byte(e.EventName())}},
		Time:    time.Now().UTC(),
	}
	logger := logctx.FromOr(ctx, r.log).With(
		observability.F("event", e.EventName()),
		observability.F("checkout_id", key),
	)
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error("kafka_publish_failed", observability.F("error", err))
		return fmt.Errorf("kafka relay: write %s: %w", e.EventName(), err)
	}
	logger.Debug("kafka_published")
	return nil
}

func (r *Relay) Close() error {
	return r.writer.Close()
}

func keyOf(e outbox.Event) (string, error) {
	switch ev := e.(type) {
	case checkout.OrderPlacedEvent:
		return ev.CheckoutID, nil
	case checkout.PaymentProcessingEvent:
		return ev.CheckoutID, nil
	case checkout.PaymentSettledEvent:
		return ev.CheckoutID, nil
	}
	return "", fmt.Errorf("kafka relay: unexpected event %T", e)
}

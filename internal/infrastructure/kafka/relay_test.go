package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/Zhima-Mochi/foodcart/internal/domain/checkout"
	"github.com/Zhima-Mochi/foodcart/internal/domain/outbox"
	"github.com/Zhima-Mochi/foodcart/internal/domain/payment"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeSubscriber map[string]outbox.Handler

func (s fakeSubscriber) Subscribe(name string, h outbox.Handler) { s[name] = h }

func TestRelay_ForwardsCheckoutEvents(t *testing.T) {
	w := &fakeWriter{}
	sub := fakeSubscriber{}
	NewRelay(w, nil).Start(sub)
	require.Len(t, sub, 3)

	ev := checkout.PaymentSettledEvent{CheckoutID: "chk-1", OwnerID: "u1", OrderID: "42", Status: payment.StatusSucceeded}
	require.NoError(t, sub[checkout.EventPaymentSettled](context.Background(), ev))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "chk-1", string(msg.Key))
	assert.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte(checkout.EventPaymentSettled)}}, msg.Headers)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "42", body["orderId"])
	assert.Equal(t, "succeeded", body["status"])
}

func TestRelay_WriteFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	r := NewRelay(w, nil)

	err := r.forward(context.Background(), checkout.OrderPlacedEvent{CheckoutID: "chk-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

type otherEvent struct{}

func (otherEvent) EventName() string { return "other" }

func TestRelay_RejectsUnknownEvents(t *testing.T) {
	w := &fakeWriter{}
	err := NewRelay(w, nil).forward(context.Background(), otherEvent{})
	require.Error(t, err)
	assert.Empty(t, w.msgs)
}

package checkout

import (
	"time"

	"github.com/Zhima-Mochi/foodcart/internal/domain/payment"
)

const (
	EventOrderPlaced       = "checkout.order_placed"
	EventPaymentProcessing = "checkout.payment_processing"
	EventPaymentSettled    = "checkout.payment_settled"
)

// OrderPlacedEvent is emitted once the order service accepted the order.
type OrderPlacedEvent struct {
	CheckoutID string    `json:"checkoutId"`
	OwnerID    string    `json:"ownerId"`
	OrderID    string    `json:"orderId"`
	Total      string    `json:"total"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (OrderPlacedEvent) EventName() string { return EventOrderPlaced }

func NewOrderPlacedEvent(c *Checkout) OrderPlacedEvent {
	return OrderPlacedEvent{
		CheckoutID: c.ID,
		OwnerID:    c.OwnerID,
		OrderID:    c.OrderID,
		Total:      c.Total.String(),
		OccurredAt: time.Now().UTC(),
	}
}

// PaymentProcessingEvent asks the poller to follow a capture that has not settled yet.
type PaymentProcessingEvent struct {
	CheckoutID string    `json:"checkoutId"`
	OwnerID    string    `json:"ownerId"`
	OrderID    string    `json:"orderId"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (PaymentProcessingEvent) EventName() string { return EventPaymentProcessing }

func NewPaymentProcessingEvent(c *Checkout) PaymentProcessingEvent {
	return PaymentProcessingEvent{
		CheckoutID: c.ID,
		OwnerID:    c.OwnerID,
		OrderID:    c.OrderID,
		OccurredAt: time.Now().UTC(),
	}
}

// PaymentSettledEvent is emitted when a capture reaches a terminal status.
type PaymentSettledEvent struct {
	CheckoutID string         `json:"checkoutId"`
	OwnerID    string         `json:"ownerId"`
	OrderID    string         `json:"orderId"`
	Status     payment.Status `json:"status"`
	Stage      Stage          `json:"stage"`
	OccurredAt time.Time      `json:"occurredAt"`
}

func (PaymentSettledEvent) EventName() string { return EventPaymentSettled }

func NewPaymentSettledEvent(c *Checkout) PaymentSettledEvent {
	return PaymentSettledEvent{
		CheckoutID: c.ID,
		OwnerID:    c.OwnerID,
		OrderID:    c.OrderID,
		Status:     c.PaymentStatus,
		Stage:      c.Stage,
		OccurredAt: time.Now().UTC(),
	}
}

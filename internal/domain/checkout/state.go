package checkout

import (
	"fmt"
	"slices"

	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/domain/payment"
	"github.com/shopspring/decimal"
)

type Stage string

const (
	StageIdle                  Stage = "idle"
	StagePlacingOrder          Stage = "placing_order"
	StageOrderPlaced           Stage = "order_placed"
	StageOrderFailed           Stage = "order_failed"
	StageAwaitingPaymentSetup  Stage = "awaiting_payment_setup"
	StagePaymentSetupReady     Stage = "payment_setup_ready"
	StageSubmittingPayment     Stage = "submitting_payment"
	StagePaymentSucceeded      Stage = "payment_succeeded"
	StagePaymentRequiresAction Stage = "payment_requires_action"
	StagePaymentProcessing     Stage = "payment_processing"
	StagePaymentFailed         Stage = "payment_failed"
)

// Pending reports whether a remote call for this checkout is in flight.
func (s Stage) Pending() bool {
	switch s {
	case StagePlacingOrder, StageAwaitingPaymentSetup, StageSubmittingPayment:
		return true
	}
	return false
}

const (
	MessagePaymentSucceeded      = "Payment successful!"
	MessagePaymentRequiresAction = "Additional authentication is required. Please try again or use a different card."
	MessagePaymentProcessing     = "Your payment is processing. Please wait."
	MessagePaymentFailed         = "Payment failed. Please try again."
)

// Transition is an input to Apply.
type Transition interface {
	transition() string
}

type OrderRequested struct{}

type OrderPlaced struct {
	OrderID string
	Total   decimal.Decimal
}

type OrderRejected struct {
	Kind    failure.Kind
	Message string
}

type SetupRequested struct{}

type SetupReady struct {
	ClientSecret string
}

type SetupFailed struct {
	Kind    failure.Kind
	Message string
}

type PaymentSubmitted struct {
	PaymentMethodID string
}

type PaymentSettled struct {
	Status  payment.Status
	Message string
}

type PaymentRejected struct {
	Kind    failure.Kind
	Message string
}

func (OrderRequested) transition() string   { return "order_requested" }
func (OrderPlaced) transition() string      { return "order_placed" }
func (OrderRejected) transition() string    { return "order_rejected" }
func (SetupRequested) transition() string   { return "setup_requested" }
func (SetupReady) transition() string       { return "setup_ready" }
func (SetupFailed) transition() string      { return "setup_failed" }
func (PaymentSubmitted) transition() string { return "payment_submitted" }
func (PaymentSettled) transition() string   { return "payment_settled" }
func (PaymentRejected) transition() string  { return "payment_rejected" }

// sources lists the stages each transition may start from.
var sources = map[string][]Stage{
	"order_requested":   {StageIdle, StageOrderFailed},
	"order_placed":      {StagePlacingOrder},
	"order_rejected":    {StagePlacingOrder},
	"setup_requested":   {StageOrderPlaced, StagePaymentSetupReady, StagePaymentFailed, StagePaymentRequiresAction},
	"setup_ready":       {StageAwaitingPaymentSetup},
	"setup_failed":      {StageAwaitingPaymentSetup, StagePaymentSetupReady},
	"payment_submitted": {StagePaymentSetupReady, StageOrderPlaced, StagePaymentFailed, StagePaymentRequiresAction},
	"payment_settled":   {StageSubmittingPayment, StagePaymentProcessing},
	"payment_rejected":  {StageSubmittingPayment},
}

// Can reports whether t is allowed from the current stage.
func (c *Checkout) Can(t Transition) bool {
	return slices.Contains(sources[t.transition()], c.Stage)
}

// Apply is the only way a checkout changes stage.
func (c *Checkout) Apply(t Transition) error {
	if !c.Can(t) {
		return fmt.Errorf("%w: %s from %s", ErrInvalidStateTransition, t.transition(), c.Stage)
	}

	switch t := t.(type) {
	case OrderRequested:
		c.Stage = StagePlacingOrder
		c.clearFailure()
	case OrderPlaced:
		if t.OrderID == "" {
			return ErrMissingOrder
		}
		c.OrderID = t.OrderID
		c.Total = t.Total
		c.Stage = StageOrderPlaced
	case OrderRejected:
		c.Stage = StageOrderFailed
		c.fail(t.Kind, t.Message)
	case SetupRequested:
		if c.OrderID == "" {
			return ErrMissingOrder
		}
		c.ClientSecret = ""
		c.Stage = StageAwaitingPaymentSetup
		c.clearFailure()
	case SetupReady:
		c.ClientSecret = t.ClientSecret
		c.Stage = StagePaymentSetupReady
	case SetupFailed:
		c.Stage = StagePaymentFailed
		c.fail(t.Kind, t.Message)
	case PaymentSubmitted:
		if c.OrderID == "" {
			return ErrMissingOrder
		}
		if t.PaymentMethodID == "" {
			return ErrMissingPaymentMethod
		}
		c.PaymentMethodID = t.PaymentMethodID
		c.Stage = StageSubmittingPayment
		c.clearFailure()
	case PaymentSettled:
		c.settle(t.Status, t.Message)
	case PaymentRejected:
		c.PaymentStatus = payment.StatusFailed
		c.Stage = StagePaymentFailed
		c.fail(t.Kind, t.Message)
	default:
		return fmt.Errorf("%w: unknown transition %T", ErrInvalidStateTransition, t)
	}
	c.touch()
	return nil
}

func (c *Checkout) settle(status payment.Status, message string) {
	c.PaymentStatus = status
	switch status {
	case payment.StatusSucceeded:
		c.Stage = StagePaymentSucceeded
		c.clearFailure()
		c.Message = MessagePaymentSucceeded
	case payment.StatusRequiresAction:
		c.Stage = StagePaymentRequiresAction
		c.FailureKind = failure.KindPaymentDeclined
		c.Message = MessagePaymentRequiresAction
	case payment.StatusProcessing:
		c.Stage = StagePaymentProcessing
		c.clearFailure()
		c.Message = MessagePaymentProcessing
	default:
		c.Stage = StagePaymentFailed
		if message == "" {
			message = MessagePaymentFailed
		}
		c.fail(failure.KindPaymentDeclined, message)
	}
}

func (c *Checkout) fail(kind failure.Kind, message string) {
	if kind == "" {
		kind = failure.KindNetworkOrServer
	}
	if message == "" {
		message = failure.GenericMessage
	}
	c.FailureKind = kind
	c.Message = message
}

func (c *Checkout) clearFailure() {
	c.FailureKind = ""
	c.Message = ""
}

package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Zhima-Mochi/foodcart/internal/application"
	"github.com/Zhima-Mochi/foodcart/internal/auth"
	domain "github.com/Zhima-Mochi/foodcart/internal/domain/checkout"
	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	domoutbox "github.com/Zhima-Mochi/foodcart/internal/domain/outbox"
	"github.com/Zhima-Mochi/foodcart/internal/domain/payment"
	"github.com/Zhima-Mochi/foodcart/internal/observability"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const (
	checkoutService = "checkout-service"

	useCasePlaceOrder  = "checkout.place_order"
	useCaseSetup       = "checkout.create_payment_setup"
	useCaseConfirmCard = "checkout.confirm_card_payment"
	useCasePaySaved    = "checkout.pay_with_saved_method"
	useCaseGet         = "checkout.get"
	useCaseAwait       = "checkout.await_payment"

	backendPeer       = "backend"
	providerPeer      = "stripe"
	publishPeer       = "outbox"
	endpointOrders    = "POST /orders"
	endpointSetup     = "POST /payment-methods/stripe/setup-intent"
	endpointSave      = "POST /payment-methods/stripe/save"
	endpointCapture   = "POST /orders/{id}/stripe-payment"
	endpointStatus    = "GET /orders/{id}/stripe-payment"
	endpointConfirm   = "POST /v1/setup_intents/{id}/confirm"
	publishTimeout    = 300 * time.Millisecond
	messageEmptyCart  = "Your cart is empty."
	messageNoCheckout = "Checkout not found."
)

var (
	// ErrPollExhausted is returned when a processing payment did not settle
	// within the poll policy's max wait. The checkout stays processing.
	ErrPollExhausted = errors.New("checkout: payment still processing after max wait")

	errStillProcessing = errors.New("checkout: payment still processing")
)

// PollPolicy bounds the status polling of processing payments.
type PollPolicy struct {
	Interval time.Duration
	MaxWait  time.Duration
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: 2 * time.Second, MaxWait: 2 * time.Minute}
}

type Option func(*Orchestrator)

// WithConfirmer confirms setup intents server-side before the payment method
// is saved. Without one, the method reference from the client is trusted as
// already confirmed by the provider's hosted element.
func WithConfirmer(c payment.SetupConfirmer) Option {
	return func(o *Orchestrator) { o.confirmer = c }
}

func WithPollPolicy(p PollPolicy) Option {
	return func(o *Orchestrator) {
		if p.Interval > 0 {
			o.poll.Interval = p.Interval
		}
		if p.MaxWait > 0 {
			o.poll.MaxWait = p.MaxWait
		}
	}
}

// Orchestrator drives a checkout from order placement to a settled payment.
// Every remote step is a separate call; a failed step is terminal for that
// attempt and the caller re-invokes it explicitly.
type Orchestrator struct {
	repo      domain.Repository
	carts     Carts
	orders    OrderService
	methods   PaymentMethodService
	confirmer payment.SetupConfirmer
	publisher domoutbox.Publisher
	ids       IDGenerator
	poll      PollPolicy

	inflight singleflight.Group
	probe    *application.Probe
}

func NewOrchestrator(
	repo domain.Repository,
	carts Carts,
	orders OrderService,
	methods PaymentMethodService,
	ids IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		repo:      repo,
		carts:     carts,
		orders:    orders,
		methods:   methods,
		publisher: publisher,
		ids:       ids,
		poll:      DefaultPollPolicy(),
		probe:     application.NewProbe(tel, checkoutService),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type PlaceOrderInput struct {
	// CheckoutID retries a failed placement; empty starts a new checkout.
	CheckoutID string
	Remarks    string
}

// PlaceOrder submits the owner's cart as an order. On a remote failure the
// returned checkout is in order_failed and is returned together with the error.
func (o *Orchestrator) PlaceOrder(ctx context.Context, session auth.Session, in PlaceOrderInput) (_ *domain.Checkout, err error) {
	ctx, run := o.probe.Start(ctx, useCasePlaceOrder, "PlaceOrder",
		attribute.String("checkout.owner_id", session.OwnerID),
		attribute.String("checkout.id", in.CheckoutID),
	)
	defer func() { run.End(err) }()

	if !session.Authenticated() {
		run.Fail("UNAUTHENTICATED")
		return nil, failure.ErrUnauthenticated
	}
	return o.once(ctx, run, "place:"+session.OwnerID+":"+in.CheckoutID, func(ctx context.Context) (*domain.Checkout, error) {
		return o.placeOrder(ctx, run, session, in)
	})
}

func (o *Orchestrator) placeOrder(ctx context.Context, run *application.Run, session auth.Session, in PlaceOrderInput) (*domain.Checkout, error) {
	current, err := o.carts.Get(ctx, session)
	if err != nil {
		run.Fail("CART_LOAD_FAILED")
		return nil, fmt.Errorf("checkout: load cart: %w", err)
	}
	if current.IsEmpty() {
		run.Fail("CART_EMPTY")
		return nil, failure.Wrap(failure.KindValidation, messageEmptyCart, domain.ErrEmptyOrder)
	}

	isNew := in.CheckoutID == ""
	var c *domain.Checkout
	if isNew {
		if c, err = domain.New(o.ids.NewID(), current, in.Remarks, session.Token); err != nil {
			run.Fail("CHECKOUT_INVALID")
			return nil, failure.Wrap(failure.KindValidation, messageEmptyCart, err)
		}
	} else {
		if c, err = o.load(ctx, session, in.CheckoutID); err != nil {
			run.Fail("CHECKOUT_LOOKUP_FAILED")
			return nil, err
		}
		c.Lines = domain.LinesOf(current)
		c.Remarks = domain.NormalizeRemarks(in.Remarks)
	}
	run.Span().SetAttributes(attribute.String("checkout.id", c.ID))
	run.With(observability.F("checkout_id", c.ID))

	if err := transition(c, domain.OrderRequested{}); err != nil {
		run.Fail("INVALID_STAGE")
		return nil, err
	}
	if isNew {
		err = o.repo.Save(ctx, c)
	} else {
		err = o.repo.Update(ctx, c)
	}
	if err != nil {
		run.Fail("REPO_SAVE_FAILED")
		return nil, fmt.Errorf("checkout: save: %w", err)
	}

	start := time.Now()
	orderID, total, err := o.orders.PlaceOrder(ctx, session.Token, c.Lines, c.Remarks)
	o.probe.External(backendPeer, endpointOrders, start, err)
	if err != nil {
		if failure.StatusOf(err) == http.StatusInternalServerError {
			// The order endpoint reports stock exhaustion as a bare 500 and
			// also uses 500 for unrelated faults. Logged apart so a backend
			// fix shows up as this event disappearing.
			run.Logger().Warn("order_stock_conflict_mapped",
				observability.F("checkout_id", c.ID),
				observability.F("upstream_message", failure.MessageOf(err)),
				observability.F("error", err.Error()),
			)
			err = failure.Wrap(failure.KindOutOfStock, failure.OutOfStockMessage, err)
		}
		run.Fail("ORDER_" + strings.ToUpper(string(failure.KindOf(err))))
		return o.reject(ctx, run, c, domain.OrderRejected{Kind: failure.KindOf(err), Message: failure.MessageOf(err)}, err)
	}

	if err := transition(c, domain.OrderPlaced{OrderID: orderID, Total: total}); err != nil {
		run.Fail("ORDER_ID_MISSING")
		return o.reject(ctx, run, c, domain.OrderRejected{Kind: failure.KindNetworkOrServer}, err)
	}
	if err := o.repo.Update(ctx, c); err != nil {
		run.Fail("REPO_UPDATE_FAILED")
		return nil, fmt.Errorf("checkout: update: %w", err)
	}
	run.With(observability.F("order_id", orderID))
	o.publish(ctx, run, domain.NewOrderPlacedEvent(c))
	return c, nil
}

// CreatePaymentSetup obtains a setup intent client secret for the checkout's
// order. Calling it again replaces the secret.
func (o *Orchestrator) CreatePaymentSetup(ctx context.Context, session auth.Session, checkoutID string) (_ *domain.Checkout, err error) {
	ctx, run := o.probe.Start(ctx, useCaseSetup, "CreatePaymentSetup",
		attribute.String("checkout.owner_id", session.OwnerID),
		attribute.String("checkout.id", checkoutID),
	)
	defer func() { run.End(err) }()

	if !session.Authenticated() {
		run.Fail("UNAUTHENTICATED")
		return nil, failure.ErrUnauthenticated
	}
	return o.once(ctx, run, "setup:"+session.OwnerID+":"+checkoutID, func(ctx context.Context) (*domain.Checkout, error) {
		c, err := o.load(ctx, session, checkoutID)
		if err != nil {
			run.Fail("CHECKOUT_LOOKUP_FAILED")
			return nil, err
		}
		if err := transition(c, domain.SetupRequested{}); err != nil {
			run.Fail("INVALID_STAGE")
			return nil, err
		}
		if err := o.repo.Update(ctx, c); err != nil {
			run.Fail("REPO_UPDATE_FAILED")
			return nil, fmt.Errorf("checkout: update: %w", err)
		}

		start := time.Now()
		secret, err := o.methods.CreateSetupIntent(ctx, session.Token)
		o.probe.External(backendPeer, endpointSetup, start, err)
		if err != nil {
			run.Fail("SETUP_INTENT_FAILED")
			return o.reject(ctx, run, c, domain.SetupFailed{Kind: failure.KindOf(err), Message: failure.MessageOf(err)}, err)
		}

		if err := transition(c, domain.SetupReady{ClientSecret: secret}); err != nil {
			run.Fail("INVALID_STAGE")
			return nil, err
		}
		if err := o.repo.Update(ctx, c); err != nil {
			run.Fail("REPO_UPDATE_FAILED")
			return nil, fmt.Errorf("checkout: update: %w", err)
		}
		return c, nil
	})
}

// ConfirmCardPayment confirms the setup intent with the provider, saves the
// resulting payment method and captures the order with it. Each step needs
// the previous one to have succeeded.
func (o *Orchestrator) ConfirmCardPayment(ctx context.Context, session auth.Session, checkoutID, paymentMethodID string) (_ *domain.Checkout, err error) {
	ctx, run := o.probe.Start(ctx, useCaseConfirmCard, "ConfirmCardPayment",
		attribute.String("checkout.owner_id", session.OwnerID),
		attribute.String("checkout.id", checkoutID),
	)
	defer func() { run.End(err) }()

	if !session.Authenticated() {
		run.Fail("UNAUTHENTICATED")
		return nil, failure.ErrUnauthenticated
	}
	if strings.TrimSpace(paymentMethodID) == "" {
		run.Fail("PAYMENT_METHOD_REQUIRED")
		return nil, failure.Validation("A payment method is required.")
	}
	return o.once(ctx, run, "pay:"+session.OwnerID+":"+checkoutID, func(ctx context.Context) (*domain.Checkout, error) {
		c, err := o.load(ctx, session, checkoutID)
		if err != nil {
			run.Fail("CHECKOUT_LOOKUP_FAILED")
			return nil, err
		}
		if c.Stage != domain.StagePaymentSetupReady {
			run.Fail("INVALID_STAGE")
			return nil, failure.Wrap(failure.KindConflict, "Create a payment setup before confirming a card.",
				fmt.Errorf("%w: confirm from %s", domain.ErrInvalidStateTransition, c.Stage))
		}

		confirmed := paymentMethodID
		if o.confirmer != nil {
			start := time.Now()
			confirmed, err = o.confirmer.ConfirmSetup(ctx, c.ClientSecret, paymentMethodID)
			o.probe.External(providerPeer, endpointConfirm, start, err)
			if err != nil {
				run.Fail("SETUP_CONFIRM_FAILED")
				return o.reject(ctx, run, c, domain.SetupFailed{Kind: failure.KindOf(err), Message: failure.MessageOf(err)}, err)
			}
		}

		start := time.Now()
		saved, err := o.methods.SavePaymentMethod(ctx, c.Token, confirmed)
		o.probe.External(backendPeer, endpointSave, start, err)
		if err != nil {
			run.Fail("PAYMENT_METHOD_SAVE_FAILED")
			return o.reject(ctx, run, c, domain.SetupFailed{Kind: failure.KindOf(err), Message: failure.MessageOf(err)}, err)
		}
		return o.capture(ctx, run, c, saved)
	})
}

// PayWithSavedMethod skips setup and captures the order with a payment method
// saved earlier.
func (o *Orchestrator) PayWithSavedMethod(ctx context.Context, session auth.Session, checkoutID, paymentMethodID string) (_ *domain.Checkout, err error) {
	ctx, run := o.probe.Start(ctx, useCasePaySaved, "PayWithSavedMethod",
		attribute.String("checkout.owner_id", session.OwnerID),
		attribute.String("checkout.id", checkoutID),
	)
	defer func() { run.End(err) }()

	if !session.Authenticated() {
		run.Fail("UNAUTHENTICATED")
		return nil, failure.ErrUnauthenticated
	}
	if strings.TrimSpace(paymentMethodID) == "" {
		run.Fail("PAYMENT_METHOD_REQUIRED")
		return nil, failure.Validation("A payment method is required.")
	}
	return o.once(ctx, run, "pay:"+session.OwnerID+":"+checkoutID, func(ctx context.Context) (*domain.Checkout, error) {
		c, err := o.load(ctx, session, checkoutID)
		if err != nil {
			run.Fail("CHECKOUT_LOOKUP_FAILED")
			return nil, err
		}
		return o.capture(ctx, run, c, paymentMethodID)
	})
}

// Get returns one of the owner's checkouts.
func (o *Orchestrator) Get(ctx context.Context, session auth.Session, checkoutID string) (_ *domain.Checkout, err error) {
	ctx, run := o.probe.Start(ctx, useCaseGet, "GetCheckout",
		attribute.String("checkout.owner_id", session.OwnerID),
		attribute.String("checkout.id", checkoutID),
	)
	defer func() { run.End(err) }()

	if !session.Authenticated() {
		run.Fail("UNAUTHENTICATED")
		return nil, failure.ErrUnauthenticated
	}
	c, err := o.load(ctx, session, checkoutID)
	if err != nil {
		run.Fail("CHECKOUT_LOOKUP_FAILED")
		return nil, err
	}
	run.Note(strings.ToUpper(string(c.Stage)))
	return c, nil
}

// AwaitPayment polls the order service for a checkout whose capture is still
// processing, backing off exponentially until a terminal status arrives or
// the poll policy's max wait elapses.
func (o *Orchestrator) AwaitPayment(ctx context.Context, checkoutID string) (_ *domain.Checkout, err error) {
	ctx, run := o.probe.Start(ctx, useCaseAwait, "AwaitPayment", attribute.String("checkout.id", checkoutID))
	defer func() { run.End(err) }()

	v, err, _ := o.inflight.Do("await:"+checkoutID, func() (any, error) {
		return o.awaitPayment(ctx, run, checkoutID)
	})
	c, _ := v.(*domain.Checkout)
	return c.Clone(), err
}

func (o *Orchestrator) awaitPayment(ctx context.Context, run *application.Run, checkoutID string) (*domain.Checkout, error) {
	c, err := o.repo.FindByID(ctx, checkoutID)
	if err != nil {
		run.Fail("CHECKOUT_LOOKUP_FAILED")
		return nil, notFound(err)
	}
	if c.Stage != domain.StagePaymentProcessing {
		run.Note("NOT_PROCESSING")
		return c, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.poll.Interval
	b.MaxInterval = 8 * o.poll.Interval
	b.MaxElapsedTime = o.poll.MaxWait

	var result payment.Capture
	attempts := 0
	poll := func() error {
		attempts++
		start := time.Now()
		r, err := o.orders.PaymentStatus(ctx, c.Token, c.OrderID)
		o.probe.External(backendPeer, endpointStatus, start, err)
		switch {
		case errors.Is(err, failure.ErrUnauthenticated), errors.Is(err, failure.ErrNotFound):
			return backoff.Permanent(err)
		case err != nil:
			return err
		case !r.Status.Terminal():
			return errStillProcessing
		}
		result = r
		return nil
	}
	notify := func(err error, next time.Duration) {
		run.Logger().Debug("payment_poll_retry",
			observability.F("attempt", attempts),
			observability.F("next_in", next.String()),
			observability.F("reason", err.Error()),
		)
	}

	err = backoff.RetryNotify(poll, backoff.WithContext(b, ctx), notify)
	run.With(observability.F("poll_attempts", attempts))
	if err != nil {
		if errors.Is(err, errStillProcessing) {
			run.Logger().Warn("payment_poll_gave_up",
				observability.F("order_id", c.OrderID),
				observability.F("max_wait", o.poll.MaxWait.String()),
			)
			run.Fail("POLL_EXHAUSTED")
			return c, ErrPollExhausted
		}
		run.Fail("POLL_FAILED")
		return c, fmt.Errorf("checkout: poll payment status: %w", err)
	}
	return o.settle(ctx, run, c, result)
}

func (o *Orchestrator) capture(ctx context.Context, run *application.Run, c *domain.Checkout, paymentMethodID string) (*domain.Checkout, error) {
	if err := transition(c, domain.PaymentSubmitted{PaymentMethodID: paymentMethodID}); err != nil {
		run.Fail("INVALID_STAGE")
		return nil, err
	}
	if err := o.repo.Update(ctx, c); err != nil {
		run.Fail("REPO_UPDATE_FAILED")
		return nil, fmt.Errorf("checkout: update: %w", err)
	}

	start := time.Now()
	result, err := o.orders.CapturePayment(ctx, c.Token, c.OrderID, paymentMethodID)
	o.probe.External(backendPeer, endpointCapture, start, err)
	if err != nil {
		run.Fail("CAPTURE_FAILED")
		return o.reject(ctx, run, c, domain.PaymentRejected{Kind: failure.KindOf(err), Message: failure.MessageOf(err)}, err)
	}
	return o.settle(ctx, run, c, result)
}

// settle applies a capture result. Success clears the owner's cart, a
// processing result hands the checkout to the poller, anything else is
// returned as a payment failure.
func (o *Orchestrator) settle(ctx context.Context, run *application.Run, c *domain.Checkout, result payment.Capture) (*domain.Checkout, error) {
	if err := transition(c, domain.PaymentSettled{Status: result.Status, Message: result.Message}); err != nil {
		run.Fail("INVALID_STAGE")
		return nil, err
	}
	if err := o.repo.Update(ctx, c); err != nil {
		run.Fail("REPO_UPDATE_FAILED")
		return nil, fmt.Errorf("checkout: update: %w", err)
	}
	run.Span().SetAttributes(attribute.String("payment.status", string(result.Status)))
	run.With(observability.F("payment_status", string(result.Status)))

	switch c.Stage {
	case domain.StagePaymentSucceeded:
		o.clearCart(ctx, run, c)
		o.publish(ctx, run, domain.NewPaymentSettledEvent(c))
		return c, nil
	case domain.StagePaymentProcessing:
		run.Note("PAYMENT_PROCESSING")
		o.publish(ctx, run, domain.NewPaymentProcessingEvent(c))
		return c, nil
	default:
		o.publish(ctx, run, domain.NewPaymentSettledEvent(c))
		run.Fail("PAYMENT_" + strings.ToUpper(string(result.Status)))
		return c, failure.New(c.FailureKind, c.Message)
	}
}

func (o *Orchestrator) clearCart(ctx context.Context, run *application.Run, c *domain.Checkout) {
	if _, err := o.carts.Clear(ctx, auth.Session{OwnerID: c.OwnerID, Token: c.Token}); err != nil {
		run.Note("CART_CLEAR_FAILED")
		run.Logger().Error("cart_clear_after_payment_failed",
			observability.F("owner_id", c.OwnerID),
			observability.F("error", err.Error()),
		)
	}
}

// reject records a failed remote step and returns the checkout with cause.
func (o *Orchestrator) reject(ctx context.Context, run *application.Run, c *domain.Checkout, t domain.Transition, cause error) (*domain.Checkout, error) {
	if err := c.Apply(t); err != nil {
		run.Logger().Error("checkout_transition_failed", observability.F("error", err.Error()))
		return nil, cause
	}
	if err := o.repo.Update(ctx, c); err != nil {
		run.Logger().Error("checkout_update_failed", observability.F("error", err.Error()))
	}
	return c, cause
}

func (o *Orchestrator) publish(ctx context.Context, run *application.Run, e domoutbox.Event) {
	if o.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	err := o.publisher.Publish(pubCtx, e)
	o.probe.External(publishPeer, e.EventName(), start, err)
	if err != nil {
		run.Note("EVENT_PUBLISH_FAILED")
		run.With(observability.F("event_publish_error", err.Error()))
	}
}

// load returns the owner's checkout. A checkout owned by someone else is
// reported as not found.
func (o *Orchestrator) load(ctx context.Context, session auth.Session, checkoutID string) (*domain.Checkout, error) {
	c, err := o.repo.FindByID(ctx, checkoutID)
	if err != nil {
		return nil, notFound(err)
	}
	if c.OwnerID != session.OwnerID {
		return nil, failure.Wrap(failure.KindNotFound, messageNoCheckout, domain.ErrNotFound)
	}
	if session.Token != "" {
		c.Token = session.Token
	}
	return c, nil
}

// once runs fn unless an identical call is already in flight, in which case
// the caller shares that call's result. fn runs detached from the caller's
// cancellation so an abandoned request cannot strand the checkout in a
// pending stage.
func (o *Orchestrator) once(ctx context.Context, run *application.Run, key string, fn func(context.Context) (*domain.Checkout, error)) (*domain.Checkout, error) {
	detached := context.WithoutCancel(ctx)
	v, err, shared := o.inflight.Do(key, func() (any, error) {
		return fn(detached)
	})
	if shared {
		run.With(observability.F("shared_call", true))
	}
	c, _ := v.(*domain.Checkout)
	return c.Clone(), err
}

func transition(c *domain.Checkout, t domain.Transition) error {
	err := c.Apply(t)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrMissingPaymentMethod):
		return failure.Wrap(failure.KindValidation, "A payment method is required.", err)
	default:
		return failure.Wrap(failure.KindConflict, "This checkout step is not available right now.", err)
	}
}

func notFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return failure.Wrap(failure.KindNotFound, messageNoCheckout, err)
	}
	return fmt.Errorf("checkout: find: %w", err)
}

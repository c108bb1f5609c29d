package workerpresentation

import (
	"context"
	"errors"
	"sync"

	appcheckout "github.com/Zhima-Mochi/foodcart/internal/application/checkout"
	domcheckout "github.com/Zhima-Mochi/foodcart/internal/domain/checkout"
	domoutbox "github.com/Zhima-Mochi/foodcart/internal/domain/outbox"
	"github.com/Zhima-Mochi/foodcart/internal/observability"
	"github.com/Zhima-Mochi/foodcart/internal/observability/logctx"
)

const componentPaymentPoller = "payment_poller"

type PaymentAwaiter interface {
	AwaitPayment(ctx context.Context, checkoutID string) (*domcheckout.Checkout, error)
}

// PaymentPoller follows captures that came back as processing. Polling can
// outlast the bus handler timeout, so each one runs on the poller's own
// context and Stop waits for them.
type PaymentPoller struct {
	subscriber domoutbox.Subscriber
	awaiter    PaymentAwaiter
	log        observability.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewPaymentPoller(subscriber domoutbox.Subscriber, awaiter PaymentAwaiter, logger observability.Logger) *PaymentPoller {
	if logger == nil {
		logger = observability.NopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PaymentPoller{
		subscriber: subscriber,
		awaiter:    awaiter,
		log:        logger.With(observability.F("component", componentPaymentPoller)),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (p *PaymentPoller) Start() {
	if p.subscriber == nil || p.awaiter == nil {
		return
	}
	p.subscriber.Subscribe(domcheckout.EventPaymentProcessing, p.handlePaymentProcessing)
}

// Stop cancels in-flight polls and waits for them until ctx expires.
func (p *PaymentPoller) Stop(ctx context.Context) {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.log.Warn("payment_poller_stop_timeout")
	}
}

func (p *PaymentPoller) handlePaymentProcessing(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domcheckout.PaymentProcessingEvent)
	if !ok {
		return nil
	}
	pollCtx := WithEventContext(p.ctx, logctx.FromOr(ctx, p.log), map[string]string{
		"event":       e.EventName(),
		"checkout_id": evt.CheckoutID,
		"order_id":    evt.OrderID,
	})
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return context.Canceled
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.await(pollCtx, evt.CheckoutID)
	}()
	return nil
}

func (p *PaymentPoller) await(ctx context.Context, checkoutID string) {
	logger := logctx.FromOr(ctx, p.log)

	c, err := p.awaiter.AwaitPayment(ctx, checkoutID)
	switch {
	case errors.Is(err, appcheckout.ErrPollExhausted):
		logger.Warn("payment_still_processing")
	case errors.Is(err, context.Canceled):
		logger.Info("payment_poll_canceled")
	case err != nil && c == nil:
		logger.Warn("payment_poll_failed", observability.F("error", err.Error()))
	case c != nil:
		fields := []observability.Field{observability.F("stage", string(c.Stage))}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("payment_poll_settled", fields...)
	}
}

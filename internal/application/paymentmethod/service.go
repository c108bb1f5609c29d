package paymentmethod

import (
	"context"
	"strings"
	"time"

	"github.com/Zhima-Mochi/foodcart/internal/application"
	"github.com/Zhima-Mochi/foodcart/internal/auth"
	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/domain/payment"
	"github.com/Zhima-Mochi/foodcart/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentMethodService = "payment-method-service"

	useCaseList   = "payment_method.list"
	useCaseDelete = "payment_method.delete"

	backendPeer = "backend"
)

// Methods is the payment-method backend.
type Methods interface {
	ListPaymentMethods(ctx context.Context, token string) ([]payment.Method, error)
	DeletePaymentMethod(ctx context.Context, token, paymentMethodID string) error
}

type Service struct {
	methods Methods
	probe   *application.Probe
}

func NewService(methods Methods, tel observability.Observability) *Service {
	return &Service{
		methods: methods,
		probe:   application.NewProbe(tel, paymentMethodService),
	}
}

// List returns the owner's saved payment methods.
func (s *Service) List(ctx context.Context, session auth.Session) (_ []payment.Method, err error) {
	ctx, run := s.probe.Start(ctx, useCaseList, "ListPaymentMethods", attribute.String("payment.owner_id", session.OwnerID))
	defer func() { run.End(err) }()

	if !session.Authenticated() {
		run.Fail("UNAUTHENTICATED")
		return nil, failure.ErrUnauthenticated
	}
	start := time.Now()
	methods, err := s.methods.ListPaymentMethods(ctx, session.Token)
	s.probe.External(backendPeer, "GET /payment-methods", start, err)
	if err != nil {
		run.Fail("LIST_FAILED")
		return nil, err
	}
	run.With(observability.F("methods", len(methods)))
	return methods, nil
}

func (s *Service) Delete(ctx context.Context, session auth.Session, paymentMethodID string) (err error) {
	ctx, run := s.probe.Start(ctx, useCaseDelete, "DeletePaymentMethod",
		attribute.String("payment.owner_id", session.OwnerID),
		attribute.String("payment.method_id", paymentMethodID),
	)
	defer func() { run.End(err) }()

	if !session.Authenticated() {
		run.Fail("UNAUTHENTICATED")
		return failure.ErrUnauthenticated
	}
	if strings.TrimSpace(paymentMethodID) == "" {
		run.Fail("PAYMENT_METHOD_REQUIRED")
		return failure.Validation("A payment method is required.")
	}
	start := time.Now()
	err = s.methods.DeletePaymentMethod(ctx, session.Token, paymentMethodID)
	s.probe.External(backendPeer, "DELETE /payment-methods/stripe/{id}", start, err)
	if err != nil {
		run.Fail("DELETE_FAILED")
		return err
	}
	return nil
}

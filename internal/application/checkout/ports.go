package checkout

import (
	"context"

	"github.com/Zhima-Mochi/foodcart/internal/auth"
	"github.com/Zhima-Mochi/foodcart/internal/domain/cart"
	domain "github.com/Zhima-Mochi/foodcart/internal/domain/checkout"
	"github.com/Zhima-Mochi/foodcart/internal/domain/payment"

	"github.com/shopspring/decimal"
)

type IDGenerator interface {
	NewID() string
}

// OrderService creates orders and captures payments against them.
type OrderService interface {
	PlaceOrder(ctx context.Context, token string, lines []domain.OrderLine, remarks *string) (string, decimal.Decimal, error)
	CapturePayment(ctx context.Context, token, orderID, paymentMethodID string) (payment.Capture, error)
	PaymentStatus(ctx context.Context, token, orderID string) (payment.Capture, error)
}

// PaymentMethodService issues setup intents and stores payment method references.
type PaymentMethodService interface {
	CreateSetupIntent(ctx context.Context, token string) (string, error)
	SavePaymentMethod(ctx context.Context, token, paymentMethodID string) (string, error)
}

// Carts is the slice of the cart service checkout depends on.
type Carts interface {
	Get(ctx context.Context, session auth.Session) (*cart.Cart, error)
	Clear(ctx context.Context, session auth.Session) (*cart.Cart, error)
}

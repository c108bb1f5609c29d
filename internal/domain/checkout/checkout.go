package checkout

import (
	"errors"
	"strings"
	"time"

	"github.com/Zhima-Mochi/foodcart/internal/domain/cart"
	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/domain/payment"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("checkout: not found")
	ErrInvalidStateTransition = errors.New("checkout: invalid state transition")
	ErrMissingOrder           = errors.New("checkout: order id is required before payment")
	ErrMissingPaymentMethod   = errors.New("checkout: payment method is required")
	ErrEmptyOrder             = errors.New("checkout: no items to order")
)

// OrderLine is what the order service receives for each cart line.
type OrderLine struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// Checkout tracks one attempt to turn an owner's cart into a paid order.
type Checkout struct {
	ID      string
	OwnerID string
	Stage   Stage
	Lines   []OrderLine
	// Remarks is nil when the customer left none.
	Remarks         *string
	OrderID         string
	Total           decimal.Decimal
	ClientSecret    string
	PaymentMethodID string
	PaymentStatus   payment.Status
	FailureKind     failure.Kind
	Message         string
	// Token is the owner's bearer credential, kept so background polling can
	// query the order service on the owner's behalf. Never serialised.
	Token     string `json:"-"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New starts a checkout in StageIdle from the owner's current cart.
func New(id string, c *cart.Cart, remarks string, token string) (*Checkout, error) {
	if c == nil || c.IsEmpty() {
		return nil, ErrEmptyOrder
	}
	now := time.Now().UTC()
	return &Checkout{
		ID:        id,
		OwnerID:   c.OwnerID,
		Stage:     StageIdle,
		Lines:     LinesOf(c),
		Remarks:   NormalizeRemarks(remarks),
		Token:     token,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// LinesOf maps cart lines to order lines.
func LinesOf(c *cart.Cart) []OrderLine {
	out := make([]OrderLine, 0, len(c.Lines))
	for _, l := range c.Lines {
		out = append(out, OrderLine{ItemID: l.ItemID, Quantity: l.Quantity})
	}
	return out
}

// NormalizeRemarks trims remarks; blank remarks become nil rather than "".
func NormalizeRemarks(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (c *Checkout) Clone() *Checkout {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Lines = append([]OrderLine(nil), c.Lines...)
	if c.Remarks != nil {
		r := *c.Remarks
		clone.Remarks = &r
	}
	return &clone
}

func (c *Checkout) touch() {
	c.UpdatedAt = time.Now().UTC()
}

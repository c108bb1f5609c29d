package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/Zhima-Mochi/foodcart/internal/domain/checkout"
)

type CheckoutRepository struct {
	mu        sync.RWMutex
	checkouts map[string]*domain.Checkout
}

func NewCheckoutRepository() *CheckoutRepository {
	return &CheckoutRepository{
		checkouts: make(map[string]*domain.Checkout),
	}
}

func (r *CheckoutRepository) Save(ctx context.Context, c *domain.Checkout) error {
	_ = ctx
	if c == nil || c.ID == "" {
		return fmt.Errorf("checkout repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.checkouts[c.ID] = c.Clone()
	return nil
}

func (r *CheckoutRepository) FindByID(ctx context.Context, id string) (*domain.Checkout, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.checkouts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *CheckoutRepository) Update(ctx context.Context, c *domain.Checkout) error {
	_ = ctx
	if c == nil || c.ID == "" {
		return fmt.Errorf("checkout repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.checkouts[c.ID]; !exists {
		return domain.ErrNotFound
	}
	r.checkouts[c.ID] = c.Clone()
	return nil
}

package checkout

import "context"

type Repository interface {
	Save(ctx context.Context, c *Checkout) error
	FindByID(ctx context.Context, id string) (*Checkout, error)
	Update(ctx context.Context, c *Checkout) error
}

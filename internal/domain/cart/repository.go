package cart

import (
	"context"
	"errors"
)

// ErrNoChange is returned from a Mutate callback to skip the write.
var ErrNoChange = errors.New("cart: no change")

// Repository persists all owners' carts under one storage key. Mutate performs
// an atomic read-merge-write: it loads the full snapshot, applies fn to the
// owner's cart and writes the full snapshot back.
type Repository interface {
	Load(ctx context.Context, ownerID string) (*Cart, error)
	Mutate(ctx context.Context, ownerID string, fn func(*Cart) error) (*Cart, error)
}

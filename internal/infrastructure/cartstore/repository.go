// Package cartstore keeps every owner's cart in one snapshot blob stored under
// a single key, and applies each change as an atomic read-merge-write.
package cartstore

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/foodcart/internal/domain/cart"
	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/observability"
	"github.com/Zhima-Mochi/foodcart/internal/observability/logctx"
)

// ErrSkipWrite tells Blobs.Update to leave the stored blob as it is.
var ErrSkipWrite = errors.New("cartstore: skip write")

// Blobs is a key-value store that can replace one value atomically.
// Update passes the current value (nil when absent) to fn and stores what fn
// returns, unless fn returns ErrSkipWrite.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
}

type Repository struct {
	blobs Blobs
	key   string
	log   observability.Logger
}

func New(blobs Blobs, key string, log observability.Logger) *Repository {
	if key == "" {
		key = "cart"
	}
	if log == nil {
		log = observability.NopLogger()
	}
	return &Repository{blobs: blobs, key: key, log: log}
}

func (r *Repository) Load(ctx context.Context, ownerID string) (*domain.Cart, error) {
	if ownerID == "" {
		return nil, failure.ErrUnauthenticated
	}
	data, err := r.blobs.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("cartstore: get: %w", err)
	}
	return r.decode(ctx, data).Cart(ownerID), nil
}

// Mutate applies fn to the owner's cart inside one atomic update of the whole
// snapshot. Other owners' lines are written back exactly as they were read.
func (r *Repository) Mutate(ctx context.Context, ownerID string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	if ownerID == "" {
		return nil, failure.ErrUnauthenticated
	}
	var result *domain.Cart
	err := r.blobs.Update(ctx, r.key, func(current []byte) ([]byte, error) {
		snap := r.decode(ctx, current)
		c, changed, err := snap.Apply(ownerID, fn)
		if err != nil {
			return nil, err
		}
		result = c
		if !changed {
			return nil, ErrSkipWrite
		}
		return domain.Encode(snap)
	})
	if err != nil {
		return nil, fmt.Errorf("cartstore: update: %w", err)
	}
	return result, nil
}

// decode treats an unreadable blob as empty; the next write replaces it.
func (r *Repository) decode(ctx context.Context, data []byte) domain.Snapshot {
	snap, err := domain.Decode(data)
	if err != nil {
		logctx.FromOr(ctx, r.log).Warn("cart_snapshot_parse_failed",
			observability.F("storage_key", r.key),
			observability.F("bytes", len(data)),
			observability.F("error", err.Error()),
		)
	}
	return snap
}

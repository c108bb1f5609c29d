package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/cartstore"
)

// Blobs keeps snapshot blobs in process memory.
type Blobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewBlobs() *Blobs {
	return &Blobs{blobs: make(map[string][]byte)}
}

func (b *Blobs) Get(ctx context.Context, key string) ([]byte, error) {
	_ = ctx

	b.mu.Lock()
	defer b.mu.Unlock()

	return cloneBytes(b.blobs[key]), nil
}

// Update holds the lock for the whole read-merge-write.
func (b *Blobs) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := fn(cloneBytes(b.blobs[key]))
	if errors.Is(err, cartstore.ErrSkipWrite) {
		return nil
	}
	if err != nil {
		return err
	}
	b.blobs[key] = cloneBytes(next)
	return nil
}

// Set overwrites a blob; used to seed data.
func (b *Blobs) Set(key string, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = cloneBytes(value)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

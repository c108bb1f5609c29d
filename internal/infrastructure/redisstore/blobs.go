package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/cartstore"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 10

var ErrContended = errors.New("redisstore: too many concurrent writers")

// Blobs stores snapshot blobs as plain Redis strings. Updates use
// WATCH/MULTI so a concurrent writer forces a retry instead of being lost.
type Blobs struct {
	client redis.UniversalClient
	prefix string
}

func New(client redis.UniversalClient, prefix string) *Blobs {
	return &Blobs{client: client, prefix: prefix}
}

func (b *Blobs) key(k string) string {
	return b.prefix + k
}

func (b *Blobs) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (b *Blobs) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	k := b.key(key)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis get failed: %w", err)
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := b.client.Watch(ctx, txf, k)
		switch {
		case err == nil, errors.Is(err, cartstore.ErrSkipWrite):
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return err
		}
	}
	return ErrContended
}

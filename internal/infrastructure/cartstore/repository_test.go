package cartstore_test

import (
	"context"
	"sync"
	"testing"

	domain "github.com/Zhima-Mochi/foodcart/internal/domain/cart"
	"github.com/Zhima-Mochi/foodcart/internal/domain/failure"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/cartstore"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/observability/zaplogger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func ramen() domain.Item {
	return domain.Item{ID: "7", Name: "Ramen", Price: decimal.NewFromInt(12), Record: map[string]any{"stock": 2}}
}

func add(item domain.Item) func(*domain.Cart) error {
	return func(c *domain.Cart) error {
		if !c.Add(item).Changed() {
			return domain.ErrNoChange
		}
		return nil
	}
}

func TestMutate_OwnerIsolation(t *testing.T) {
	ctx := context.Background()
	blobs := memory.NewBlobs()
	repo := cartstore.New(blobs, "cart", nil)

	_, err := repo.Mutate(ctx, "bob", add(ramen()))
	require.NoError(t, err)
	before, err := blobs.Get(ctx, "cart")
	require.NoError(t, err)

	_, err = repo.Mutate(ctx, "alice", add(ramen()))
	require.NoError(t, err)
	_, err = repo.Mutate(ctx, "alice", func(c *domain.Cart) error {
		c.Clear()
		return nil
	})
	require.NoError(t, err)

	bob, err := repo.Load(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bob.Lines, 1)
	assert.Equal(t, 1, bob.Lines[0].Quantity)

	after, err := blobs.Get(ctx, "cart")
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestMutate_NoChangeSkipsWrite(t *testing.T) {
	ctx := context.Background()
	blobs := memory.NewBlobs()
	repo := cartstore.New(blobs, "cart", nil)

	c, err := repo.Mutate(ctx, "alice", func(*domain.Cart) error { return domain.ErrNoChange })
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	data, err := blobs.Get(ctx, "cart")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestMutate_StockCeilingHoldsUnderConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	repo := cartstore.New(memory.NewBlobs(), "cart", nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Mutate(ctx, "alice", add(ramen()))
		}()
	}
	wg.Wait()

	c, err := repo.Load(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, c.Lines[0].Quantity)
}

func TestLoad_CorruptBlobIsEmptyAndLogged(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)
	blobs := memory.NewBlobs()
	blobs.Set("cart", []byte("{not json"))
	repo := cartstore.New(blobs, "cart", zaplogger.FromZap(zap.New(core)))

	c, err := repo.Load(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, 1, logs.FilterMessage("cart_snapshot_parse_failed").Len())

	_, err = repo.Mutate(ctx, "alice", add(ramen()))
	require.NoError(t, err)
	data, err := blobs.Get(ctx, "cart")
	require.NoError(t, err)
	_, err = domain.Decode(data)
	assert.NoError(t, err)
}

func TestRequiresOwner(t *testing.T) {
	repo := cartstore.New(memory.NewBlobs(), "", nil)
	_, err := repo.Load(context.Background(), "")
	assert.ErrorIs(t, err, failure.ErrUnauthenticated)
	_, err = repo.Mutate(context.Background(), "", add(ramen()))
	assert.ErrorIs(t, err, failure.ErrUnauthenticated)
}

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/Zhima-Mochi/foodcart/internal/domain/cart"
	domain "github.com/Zhima-Mochi/foodcart/internal/domain/checkout"
	"github.com/Zhima-Mochi/foodcart/internal/infrastructure/cartstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobs_UpdateAndSkip(t *testing.T) {
	ctx := context.Background()
	b := NewBlobs()

	require.NoError(t, b.Update(ctx, "k", func(cur []byte) ([]byte, error) {
		assert.Nil(t, cur)
		return []byte("v1"), nil
	}))
	require.NoError(t, b.Update(ctx, "k", func([]byte) ([]byte, error) {
		return nil, cartstore.ErrSkipWrite
	}))
	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))

	boom := errors.New("boom")
	assert.ErrorIs(t, b.Update(ctx, "k", func([]byte) ([]byte, error) { return nil, boom }), boom)
}

func TestCheckoutRepository_ClonesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckoutRepository()
	c := cart.New("alice", []cart.Line{{ItemID: "1", OwnerID: "alice", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}})
	co, err := domain.New("co-1", c, "", "tok")
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, co))
	co.Lines[0].Quantity = 5

	got, err := repo.FindByID(ctx, "co-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Lines[0].Quantity)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	missing := got.Clone()
	missing.ID = "other"
	assert.ErrorIs(t, repo.Update(ctx, missing), domain.ErrNotFound)
}

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad/internal/domain"
	"launchpad/internal/storage"
)

func tick(mint, signature string, ts int64) *domain.Tick {
	return &domain.Tick{
		Mint:      mint,
		Signature: signature,
		Side:      domain.SideBuy,
		Price:     30.0,
		Timestamp: ts,
	}
}

func TestTickStore_GetByTimeRangeAscendingByTimestamp(t *testing.T) {
	store := NewTickStore()
	ctx := context.Background()

	// Signatures sort opposite to timestamps so an accidental
	// signature-first order would come back reversed.
	require.NoError(t, store.InsertBulk(ctx, []*domain.Tick{
		tick("MintA", "zzz", 1000),
		tick("MintA", "aaa", 3000),
		tick("MintA", "mmm", 2000),
	}))

	ticks, err := store.GetByTimeRange(ctx, "MintA", 0, 10_000)
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	assert.Equal(t, int64(1000), ticks[0].Timestamp)
	assert.Equal(t, int64(2000), ticks[1].Timestamp)
	assert.Equal(t, int64(3000), ticks[2].Timestamp)

	// Equal timestamps tie-break on signature.
	require.NoError(t, store.InsertBulk(ctx, []*domain.Tick{
		tick("MintB", "bbb", 500),
		tick("MintB", "abc", 500),
	}))
	tied, err := store.GetByTimeRange(ctx, "MintB", 0, 10_000)
	require.NoError(t, err)
	require.Len(t, tied, 2)
	assert.Equal(t, "abc", tied[0].Signature)
	assert.Equal(t, "bbb", tied[1].Signature)
}

func TestTickStore_GetByTimeRangeInclusiveBounds(t *testing.T) {
	store := NewTickStore()
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.Tick{
		tick("MintA", "s1", 1000),
		tick("MintA", "s2", 2000),
		tick("MintA", "s3", 3000),
	}))

	ticks, err := store.GetByTimeRange(ctx, "MintA", 1000, 2000)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, "s1", ticks[0].Signature)
	assert.Equal(t, "s2", ticks[1].Signature)
}

func TestTickStore_InsertBulkValidation(t *testing.T) {
	store := NewTickStore()
	ctx := context.Background()

	assert.NoError(t, store.InsertBulk(ctx, nil))
	assert.ErrorIs(t, store.InsertBulk(ctx, []*domain.Tick{nil}), storage.ErrInvalidInput)
}

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad/internal/curve"
	"launchpad/internal/domain"
	"launchpad/internal/storage"
)

func testAsset(t *testing.T, mint string, createdAt int64) *domain.Asset {
	t.Helper()

	asset, err := domain.NewAsset(mint, "CreatorWallet111", "Test Token", "TEST", "https://example.com/meta.json", createdAt)
	require.NoError(t, err)
	return asset
}

func TestAssetStore_InsertAndGetByMint(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAssetStore(pool)
	ctx := context.Background()

	asset := testAsset(t, "MintAddress111", 1700000000000)

	err := store.Insert(ctx, asset)
	require.NoError(t, err)

	retrieved, err := store.GetByMint(ctx, "MintAddress111")
	require.NoError(t, err)

	assert.Equal(t, asset.Mint, retrieved.Mint)
	assert.Equal(t, asset.Creator, retrieved.Creator)
	assert.Equal(t, asset.Name, retrieved.Name)
	assert.Equal(t, asset.Symbol, retrieved.Symbol)
	assert.Equal(t, asset.URI, retrieved.URI)
	assert.Equal(t, domain.TotalSupply, retrieved.TotalSupply)
	assert.Equal(t, asset.Reserves, retrieved.Reserves)
	assert.False(t, retrieved.Graduated)
	assert.False(t, retrieved.Released)
	assert.Nil(t, retrieved.PoolID)
	assert.Nil(t, retrieved.GraduatedAt)
	assert.Equal(t, asset.CreatedAt, retrieved.CreatedAt)
}

func TestAssetStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAssetStore(pool)
	ctx := context.Background()

	asset := testAsset(t, "MintDup111", 1700000000000)

	require.NoError(t, store.Insert(ctx, asset))

	err := store.Insert(ctx, asset)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestAssetStore_GetByMintNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAssetStore(pool)

	_, err := store.GetByMint(context.Background(), "NoSuchMint")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAssetStore_ListNewestFirst(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAssetStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testAsset(t, "MintA", 1700000000000)))
	require.NoError(t, store.Insert(ctx, testAsset(t, "MintB", 1700000001000)))
	require.NoError(t, store.Insert(ctx, testAsset(t, "MintC", 1700000002000)))

	assets, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, assets, 3)
	assert.Equal(t, "MintC", assets[0].Mint)
	assert.Equal(t, "MintA", assets[2].Mint)

	limited, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "MintC", limited[0].Mint)
	assert.Equal(t, "MintB", limited[1].Mint)
}

func TestAssetStore_ApplyTradeCommitsReservesAndTrade(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	assets := NewAssetStore(pool)
	trades := NewTradeStore(pool)
	ctx := context.Background()

	require.NoError(t, assets.Insert(ctx, testAsset(t, "MintTrade", 1700000000000)))

	var baseOut uint64
	trade, err := assets.ApplyTrade(ctx, "MintTrade", func(asset *domain.Asset) (*domain.Trade, error) {
		q, err := curve.QuoteBuy(1_000_000_000, asset.Reserves.VirtualBase, asset.Reserves.VirtualQuote, domain.TotalFeeBps)
		if err != nil {
			return nil, err
		}
		updated, err := asset.Reserves.ApplyBuy(q.NewVirtualBase, q.NewVirtualQuote, q.QuoteToCurve, q.BaseOut)
		if err != nil {
			return nil, err
		}
		asset.Reserves = updated
		baseOut = q.BaseOut

		return &domain.Trade{
			Signature:         "Sig111",
			Mint:              asset.Mint,
			Trader:            "TraderWallet111",
			Side:              domain.SideBuy,
			QuoteAmount:       1_000_000_000,
			BaseAmount:        q.BaseOut,
			Price:             float64(q.QuoteToCurve) / float64(q.BaseOut),
			ProtocolFee:       q.Fee / 2,
			CreatorFee:        q.Fee - q.Fee/2,
			VirtualQuoteAfter: updated.VirtualQuote,
			VirtualBaseAfter:  updated.VirtualBase,
			Slot:              100,
			Timestamp:         1700000005000,
			CreatedAt:         1700000005100,
		}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, trade)

	// Reserves and trade row are visible together.
	asset, err := assets.GetByMint(ctx, "MintTrade")
	require.NoError(t, err)
	assert.Equal(t, uint64(990_000_000), asset.Reserves.RealQuote)
	assert.Equal(t, domain.TotalSupply-baseOut, asset.Reserves.RealBase)

	stored, err := trades.GetBySignature(ctx, "Sig111")
	require.NoError(t, err)
	assert.Equal(t, trade.QuoteAmount, stored.QuoteAmount)
	assert.Equal(t, trade.VirtualQuoteAfter, stored.VirtualQuoteAfter)
}

func TestAssetStore_ApplyTradeDuplicateSignatureRollsBack(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	assets := NewAssetStore(pool)
	ctx := context.Background()

	require.NoError(t, assets.Insert(ctx, testAsset(t, "MintRollback", 1700000000000)))

	apply := func() (*domain.Trade, error) {
		return assets.ApplyTrade(ctx, "MintRollback", func(asset *domain.Asset) (*domain.Trade, error) {
			q, err := curve.QuoteBuy(500_000_000, asset.Reserves.VirtualBase, asset.Reserves.VirtualQuote, domain.TotalFeeBps)
			if err != nil {
				return nil, err
			}
			updated, err := asset.Reserves.ApplyBuy(q.NewVirtualBase, q.NewVirtualQuote, q.QuoteToCurve, q.BaseOut)
			if err != nil {
				return nil, err
			}
			asset.Reserves = updated
			return &domain.Trade{
				Signature:         "SigDup",
				Mint:              asset.Mint,
				Trader:            "TraderWallet111",
				Side:              domain.SideBuy,
				QuoteAmount:       500_000_000,
				BaseAmount:        q.BaseOut,
				Price:             float64(q.QuoteToCurve) / float64(q.BaseOut),
				VirtualQuoteAfter: updated.VirtualQuote,
				VirtualBaseAfter:  updated.VirtualBase,
				Slot:              101,
				Timestamp:         1700000006000,
				CreatedAt:         1700000006100,
			}, nil
		})
	}

	_, err := apply()
	require.NoError(t, err)

	before, err := assets.GetByMint(ctx, "MintRollback")
	require.NoError(t, err)

	// Replaying the same signature must leave the reserves untouched.
	_, err = apply()
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	after, err := assets.GetByMint(ctx, "MintRollback")
	require.NoError(t, err)
	assert.Equal(t, before.Reserves, after.Reserves)
}

func TestAssetStore_ApplyTradeFnErrorAborts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	assets := NewAssetStore(pool)
	ctx := context.Background()

	require.NoError(t, assets.Insert(ctx, testAsset(t, "MintAbort", 1700000000000)))

	_, err := assets.ApplyTrade(ctx, "MintAbort", func(asset *domain.Asset) (*domain.Trade, error) {
		// Selling against an empty curve drives the real quote negative.
		_, err := asset.Reserves.ApplySell(
			asset.Reserves.VirtualBase,
			asset.Reserves.VirtualQuote,
			1_000_000_000, 1_000_000)
		return nil, err
	})
	assert.ErrorIs(t, err, domain.ErrReserveViolation)

	asset, err := assets.GetByMint(ctx, "MintAbort")
	require.NoError(t, err)
	assert.Zero(t, asset.Reserves.RealQuote)
}

func TestAssetStore_ApplyTradeUnknownMint(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	assets := NewAssetStore(pool)

	_, err := assets.ApplyTrade(context.Background(), "NoSuchMint", func(asset *domain.Asset) (*domain.Trade, error) {
		t.Fatal("fn must not run for unknown mints")
		return nil, nil
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAssetStore_ApplyTradeGraduationPersists(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	assets := NewAssetStore(pool)
	ctx := context.Background()

	require.NoError(t, assets.Insert(ctx, testAsset(t, "MintGrad", 1700000000000)))

	_, err := assets.ApplyTrade(ctx, "MintGrad", func(asset *domain.Asset) (*domain.Trade, error) {
		asset.Graduated = true
		graduatedAt := int64(1700000007000)
		asset.GraduatedAt = &graduatedAt
		return &domain.Trade{
			Signature:         "SigGrad",
			Mint:              asset.Mint,
			Trader:            "TraderWallet111",
			Side:              domain.SideBuy,
			QuoteAmount:       1,
			BaseAmount:        1,
			VirtualQuoteAfter: asset.Reserves.VirtualQuote,
			VirtualBaseAfter:  asset.Reserves.VirtualBase,
			Slot:              102,
			Timestamp:         1700000007000,
			CreatedAt:         1700000007100,
		}, nil
	})
	require.NoError(t, err)

	asset, err := assets.GetByMint(ctx, "MintGrad")
	require.NoError(t, err)
	assert.True(t, asset.Graduated)
	require.NotNil(t, asset.GraduatedAt)
	assert.Equal(t, int64(1700000007000), *asset.GraduatedAt)
}

func TestAssetStore_MarkReleasedAndSetPool(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	assets := NewAssetStore(pool)
	ctx := context.Background()

	require.NoError(t, assets.Insert(ctx, testAsset(t, "MintRelease", 1700000000000)))

	require.NoError(t, assets.MarkReleased(ctx, "MintRelease"))
	require.NoError(t, assets.SetPool(ctx, "MintRelease", "Pool111"))

	asset, err := assets.GetByMint(ctx, "MintRelease")
	require.NoError(t, err)
	assert.True(t, asset.Released)
	require.NotNil(t, asset.PoolID)
	assert.Equal(t, "Pool111", *asset.PoolID)

	assert.ErrorIs(t, assets.MarkReleased(ctx, "NoSuchMint"), storage.ErrNotFound)
	assert.ErrorIs(t, assets.SetPool(ctx, "NoSuchMint", "Pool111"), storage.ErrNotFound)
}

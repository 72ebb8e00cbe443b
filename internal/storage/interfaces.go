package storage

import (
	"context"

	"launchpad/internal/domain"
)

// ApplyTradeFunc mutates an asset under the per-asset write lock and returns
// the trade to append. Returning an error aborts the whole transaction:
// neither the reserve update nor the trade row becomes visible.
type ApplyTradeFunc func(asset *domain.Asset) (*domain.Trade, error)

// AssetStore provides access to assets storage.
type AssetStore interface {
	// Insert adds a new asset. Returns ErrDuplicateKey if the mint exists.
	Insert(ctx context.Context, a *domain.Asset) error

	// GetByMint retrieves an asset. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.Asset, error)

	// List retrieves assets ordered by creation time descending.
	// limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]*domain.Asset, error)

	// ApplyTrade runs fn under exclusive per-asset access and commits the
	// mutated reserves, the graduated flag, and the returned trade row as
	// one unit. Returns ErrNotFound for unknown mints and ErrDuplicateKey
	// if the trade's settlement reference is already recorded.
	ApplyTrade(ctx context.Context, mint string, fn ApplyTradeFunc) (*domain.Trade, error)

	// MarkReleased latches the released flag. Returns ErrNotFound for
	// unknown mints. The flag is monotonic: it is never cleared.
	MarkReleased(ctx context.Context, mint string) error

	// SetPool records the external venue pool for a released asset.
	SetPool(ctx context.Context, mint, poolID string) error
}

// TradeStore provides access to trades storage. Trades are append-only.
type TradeStore interface {
	// GetBySignature retrieves a trade by its settlement reference.
	// Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.Trade, error)

	// GetByMint retrieves trades for an asset, newest first.
	// limit <= 0 means no limit.
	GetByMint(ctx context.Context, mint string, limit int) ([]*domain.Trade, error)

	// GetByTimeRange retrieves trades for an asset within [start, end]
	// (inclusive, ms), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.Trade, error)
}

// CandleUpdate is one upsert against a candle bucket. Trade updates carry a
// positive VolumeDelta/TradeDelta; heartbeat updates carry zeros and refresh
// only the USD legs.
type CandleUpdate struct {
	Mint        string
	Interval    domain.Interval
	BucketStart int64

	// Price is the latest native price; close always tracks it.
	Price float64
	// Open seeds the open on bucket creation (previous bucket's close, or
	// Price when there is none). Ignored for existing buckets.
	Open float64

	VolumeDelta float64
	TradeDelta  int

	// Rate is the USD reference rate, nil when the oracle is unavailable;
	// native legs proceed unaffected.
	Rate *float64

	UpdatedAt int64
}

// CandleStore provides access to candles storage. Buckets are mutated in
// place while open and never deleted; the read-modify-write of a single
// bucket is atomic.
type CandleStore interface {
	// Upsert creates or merges a candle bucket.
	Upsert(ctx context.Context, u *CandleUpdate) error

	// Get retrieves one candle. Returns ErrNotFound if not exists.
	Get(ctx context.Context, mint string, interval domain.Interval, bucketStart int64) (*domain.Candle, error)

	// Latest retrieves the most recent candle for an asset/interval.
	// Returns ErrNotFound when the asset has no candles at this interval.
	Latest(ctx context.Context, mint string, interval domain.Interval) (*domain.Candle, error)

	// History retrieves candles ascending by bucket time. A zero from/to
	// leaves that bound open; limit <= 0 means no limit (applied to the
	// most recent buckets).
	History(ctx context.Context, mint string, interval domain.Interval, from, to int64, limit int) ([]*domain.Candle, error)
}

// TickStore archives every settled trade as an immutable tick for analytics.
type TickStore interface {
	// InsertBulk appends ticks. Duplicates are tolerated (analytics store).
	InsertBulk(ctx context.Context, ticks []*domain.Tick) error

	// GetByTimeRange retrieves ticks for an asset within [start, end]
	// (inclusive, ms), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.Tick, error)
}

// RateStore archives oracle reference-rate snapshots for analytics.
type RateStore interface {
	// Insert appends a snapshot.
	Insert(ctx context.Context, s *domain.PriceSnapshot) error

	// GetByTimeRange retrieves snapshots within [start, end] (inclusive,
	// ms), ordered by fetch time ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PriceSnapshot, error)
}

package postgres

import (
	"context"
	"fmt"

	"launchpad/internal/domain"
	"launchpad/internal/storage"

	"github.com/jackc/pgx/v5"
)

// CandleStore implements storage.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *Pool
}

// NewCandleStore creates a new PostgreSQL candle store.
func NewCandleStore(pool *Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

const candleColumns = `mint, interval, bucket_start, open, high, low, close,
		open_usd, high_usd, low_usd, close_usd,
		volume, volume_usd, trade_count, quote_rate, updated_at`

// Upsert creates or merges a candle bucket as a single statement, so
// concurrent settlements on the same bucket never lose updates. Close always
// tracks the latest price; high/low and volumes only move on trade updates;
// USD legs are refreshed whenever a reference rate is present.
func (s *CandleStore) Upsert(ctx context.Context, u *storage.CandleUpdate) error {
	if u == nil {
		return fmt.Errorf("%w: candle update is nil", storage.ErrInvalidInput)
	}
	if !u.Interval.Valid() {
		return fmt.Errorf("%w: unknown interval %q", storage.ErrInvalidInput, u.Interval)
	}

	// Insert values mirror a freshly opened bucket; the conflict branch
	// sees them through EXCLUDED.
	high := u.Open
	low := u.Open
	if u.Price > high {
		high = u.Price
	}
	if u.Price < low {
		low = u.Price
	}

	var openUSD, highUSD, lowUSD, closeUSD, volumeUSD *float64
	if u.Rate != nil {
		rate := *u.Rate
		openUSD = ptr(u.Open * rate)
		highUSD = ptr(high * rate)
		lowUSD = ptr(low * rate)
		closeUSD = ptr(u.Price * rate)
		volumeUSD = ptr(u.VolumeDelta * rate)
	}

	query := `
		INSERT INTO candles (` + candleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (mint, interval, bucket_start) DO UPDATE SET
			close = EXCLUDED.close,
			high = CASE WHEN EXCLUDED.trade_count > 0
				THEN GREATEST(candles.high, EXCLUDED.close)
				ELSE candles.high END,
			low = CASE WHEN EXCLUDED.trade_count > 0
				THEN LEAST(candles.low, EXCLUDED.close)
				ELSE candles.low END,
			volume = candles.volume + EXCLUDED.volume,
			trade_count = candles.trade_count + EXCLUDED.trade_count,
			open_usd = CASE WHEN EXCLUDED.quote_rate IS NULL
				THEN candles.open_usd
				ELSE COALESCE(candles.open_usd, candles.open * EXCLUDED.quote_rate) END,
			high_usd = CASE WHEN EXCLUDED.quote_rate IS NULL
				THEN candles.high_usd
				ELSE GREATEST(
					COALESCE(candles.high_usd, EXCLUDED.close * EXCLUDED.quote_rate),
					EXCLUDED.close * EXCLUDED.quote_rate) END,
			low_usd = CASE WHEN EXCLUDED.quote_rate IS NULL
				THEN candles.low_usd
				ELSE LEAST(
					COALESCE(candles.low_usd, EXCLUDED.close * EXCLUDED.quote_rate),
					EXCLUDED.close * EXCLUDED.quote_rate) END,
			close_usd = CASE WHEN EXCLUDED.quote_rate IS NULL
				THEN candles.close_usd
				ELSE EXCLUDED.close * EXCLUDED.quote_rate END,
			volume_usd = CASE WHEN EXCLUDED.volume_usd IS NULL
				THEN candles.volume_usd
				ELSE COALESCE(candles.volume_usd, 0) + EXCLUDED.volume_usd END,
			quote_rate = COALESCE(EXCLUDED.quote_rate, candles.quote_rate),
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		u.Mint,
		string(u.Interval),
		u.BucketStart,
		u.Open,
		high,
		low,
		u.Price,
		openUSD,
		highUSD,
		lowUSD,
		closeUSD,
		u.VolumeDelta,
		volumeUSD,
		u.TradeDelta,
		u.Rate,
		u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert candle: %w", err)
	}

	return nil
}

// Get retrieves one candle bucket.
// Returns storage.ErrNotFound if the bucket does not exist.
func (s *CandleStore) Get(ctx context.Context, mint string, interval domain.Interval, bucketStart int64) (*domain.Candle, error) {
	query := `SELECT ` + candleColumns + `
		FROM candles
		WHERE mint = $1 AND interval = $2 AND bucket_start = $3`

	row := s.pool.QueryRow(ctx, query, mint, string(interval), bucketStart)
	candle, err := scanCandle(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: candle %s/%s@%d", storage.ErrNotFound, mint, interval, bucketStart)
		}
		return nil, fmt.Errorf("get candle: %w", err)
	}

	return candle, nil
}

// Latest retrieves the most recent candle for an asset at an interval.
func (s *CandleStore) Latest(ctx context.Context, mint string, interval domain.Interval) (*domain.Candle, error) {
	query := `SELECT ` + candleColumns + `
		FROM candles
		WHERE mint = $1 AND interval = $2
		ORDER BY bucket_start DESC
		LIMIT 1`

	row := s.pool.QueryRow(ctx, query, mint, string(interval))
	candle, err := scanCandle(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: no candles for %s/%s", storage.ErrNotFound, mint, interval)
		}
		return nil, fmt.Errorf("get latest candle: %w", err)
	}

	return candle, nil
}

// History retrieves candles ascending by bucket start. A zero bound is open;
// limit keeps the most recent buckets.
func (s *CandleStore) History(ctx context.Context, mint string, interval domain.Interval, from, to int64, limit int) ([]*domain.Candle, error) {
	query := `SELECT ` + candleColumns + `
		FROM candles
		WHERE mint = $1 AND interval = $2`
	args := []any{mint, string(interval)}

	if from > 0 {
		args = append(args, from)
		query += fmt.Sprintf(` AND bucket_start >= $%d`, len(args))
	}
	if to > 0 {
		args = append(args, to)
		query += fmt.Sprintf(` AND bucket_start <= $%d`, len(args))
	}

	// Take the most recent buckets, then flip back to ascending order.
	query += ` ORDER BY bucket_start DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get candle history: %w", err)
	}
	defer rows.Close()

	var candles []*domain.Candle
	for rows.Next() {
		candle, err := scanCandle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		candles = append(candles, candle)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}

	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

func scanCandle(row pgx.Row) (*domain.Candle, error) {
	var candle domain.Candle
	var interval string

	err := row.Scan(
		&candle.Mint,
		&interval,
		&candle.BucketStart,
		&candle.Open,
		&candle.High,
		&candle.Low,
		&candle.Close,
		&candle.OpenUSD,
		&candle.HighUSD,
		&candle.LowUSD,
		&candle.CloseUSD,
		&candle.Volume,
		&candle.VolumeUSD,
		&candle.TradeCount,
		&candle.QuoteRate,
		&candle.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	candle.Interval = domain.Interval(interval)

	return &candle, nil
}

func ptr(v float64) *float64 {
	return &v
}

// Compile-time interface check
var _ storage.CandleStore = (*CandleStore)(nil)

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"launchpad/internal/domain"
	"launchpad/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.Mutex
	data map[string]*domain.Candle // keyed by composite key
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]*domain.Candle),
	}
}

var _ storage.CandleStore = (*CandleStore)(nil)

// candleKey generates a unique key for a candle bucket.
func candleKey(mint string, interval domain.Interval, bucketStart int64) string {
	return fmt.Sprintf("%s|%s|%d", mint, interval, bucketStart)
}

// Upsert creates or merges a candle bucket. The whole read-modify-write runs
// under the store lock, so concurrent updates to one bucket never lose the
// high/low/volume accumulation.
func (s *CandleStore) Upsert(_ context.Context, u *storage.CandleUpdate) error {
	if u == nil || u.Mint == "" || !u.Interval.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := candleKey(u.Mint, u.Interval, u.BucketStart)

	c, exists := s.data[key]
	if !exists {
		c = newCandle(u)
		s.data[key] = c
		return nil
	}

	mergeCandle(c, u)
	return nil
}

// newCandle seeds a bucket from its first update.
func newCandle(u *storage.CandleUpdate) *domain.Candle {
	c := &domain.Candle{
		Mint:        u.Mint,
		Interval:    u.Interval,
		BucketStart: u.BucketStart,
		Open:        u.Open,
		High:        maxf(u.Open, u.Price),
		Low:         minf(u.Open, u.Price),
		Close:       u.Price,
		Volume:      u.VolumeDelta,
		TradeCount:  u.TradeDelta,
		UpdatedAt:   u.UpdatedAt,
	}
	if u.Rate != nil {
		rate := *u.Rate
		c.OpenUSD = ptr(c.Open * rate)
		c.HighUSD = ptr(c.High * rate)
		c.LowUSD = ptr(c.Low * rate)
		c.CloseUSD = ptr(c.Close * rate)
		c.VolumeUSD = ptr(u.VolumeDelta * rate)
		c.QuoteRate = ptr(rate)
	}
	return c
}

// mergeCandle folds an update into an existing bucket. Close always tracks
// the latest price; heartbeats (zero deltas) refresh only the USD legs.
func mergeCandle(c *domain.Candle, u *storage.CandleUpdate) {
	// Close always tracks the latest price; heartbeats pass the previous
	// close so native values never move without a real trade.
	c.Close = u.Price
	if u.TradeDelta > 0 {
		c.High = maxf(c.High, u.Price)
		c.Low = minf(c.Low, u.Price)
		c.Volume += u.VolumeDelta
		c.TradeCount += u.TradeDelta
	}

	if u.Rate != nil {
		rate := *u.Rate
		closeUSD := c.Close * rate
		if c.OpenUSD == nil {
			c.OpenUSD = ptr(c.Open * rate)
		}
		if c.HighUSD == nil || closeUSD > *c.HighUSD {
			c.HighUSD = ptr(closeUSD)
		}
		if c.LowUSD == nil || closeUSD < *c.LowUSD {
			c.LowUSD = ptr(closeUSD)
		}
		c.CloseUSD = ptr(closeUSD)
		if u.VolumeDelta > 0 {
			add := u.VolumeDelta * rate
			if c.VolumeUSD == nil {
				c.VolumeUSD = ptr(add)
			} else {
				c.VolumeUSD = ptr(*c.VolumeUSD + add)
			}
		}
		c.QuoteRate = ptr(rate)
	}

	c.UpdatedAt = u.UpdatedAt
}

// Get retrieves one candle. Returns ErrNotFound if not exists.
func (s *CandleStore) Get(_ context.Context, mint string, interval domain.Interval, bucketStart int64) (*domain.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.data[candleKey(mint, interval, bucketStart)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *c
	return &copy, nil
}

// Latest retrieves the most recent candle for an asset/interval.
func (s *CandleStore) Latest(_ context.Context, mint string, interval domain.Interval) (*domain.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *domain.Candle
	for _, c := range s.data {
		if c.Mint != mint || c.Interval != interval {
			continue
		}
		if latest == nil || c.BucketStart > latest.BucketStart {
			latest = c
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	copy := *latest
	return &copy, nil
}

// History retrieves candles ascending by bucket time.
func (s *CandleStore) History(_ context.Context, mint string, interval domain.Interval, from, to int64, limit int) ([]*domain.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.Mint != mint || c.Interval != interval {
			continue
		}
		if from > 0 && c.BucketStart < from {
			continue
		}
		if to > 0 && c.BucketStart > to {
			continue
		}
		copy := *c
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStart < result[j].BucketStart
	})

	if limit > 0 && limit < len(result) {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func ptr(v float64) *float64 {
	return &v
}

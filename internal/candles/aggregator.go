// Package candles maintains OHLCV buckets for every asset at five fixed
// resolutions. Native legs are derived purely from settled trades; USD legs
// ride on the oracle's reference rate and are omitted whenever the rate is
// unavailable.
package candles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"launchpad/internal/domain"
	"launchpad/internal/storage"

	"github.com/sirupsen/logrus"
)

// RateProvider yields the current USD reference rate. ok is false when no
// rate inside the staleness bound exists.
type RateProvider interface {
	Rate(ctx context.Context) (domain.PriceSnapshot, bool)
}

// Aggregator fans one price event out to all candle intervals.
type Aggregator struct {
	candles storage.CandleStore
	rates   RateProvider
	logger  *logrus.Logger
	now     func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an Aggregator. rates may be nil; candles then carry only
// native values.
func New(candles storage.CandleStore, rates RateProvider, logger *logrus.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		candles: candles,
		rates:   rates,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RecordTrade updates every interval's bucket for a settled trade. The open
// of a freshly created bucket is carried from the previous bucket's close so
// charts have no gaps; the very first bucket of an asset opens at the trade
// price. Partial failure updates the remaining intervals and reports a
// joined error.
func (a *Aggregator) RecordTrade(ctx context.Context, trade *domain.Trade) error {
	if trade == nil {
		return fmt.Errorf("%w: trade is nil", storage.ErrInvalidInput)
	}

	rate := a.currentRate(ctx)
	updatedAt := a.now().UnixMilli()

	var errs []error
	for _, interval := range domain.Intervals() {
		update := &storage.CandleUpdate{
			Mint:        trade.Mint,
			Interval:    interval,
			BucketStart: interval.BucketStart(trade.Timestamp),
			Price:       trade.Price,
			Open:        a.openFor(ctx, trade.Mint, interval, trade.Price),
			VolumeDelta: float64(trade.QuoteAmount),
			TradeDelta:  1,
			Rate:        rate,
			UpdatedAt:   updatedAt,
		}

		if err := a.candles.Upsert(ctx, update); err != nil {
			errs = append(errs, fmt.Errorf("update %s candle: %w", interval, err))
		}
	}

	return errors.Join(errs...)
}

// Heartbeat refreshes the USD legs of open buckets with a fresh rate. Only
// buckets whose span contains now are touched: closed buckets stay frozen at
// the rate of their last trade. Native values never move on a heartbeat; the
// price is pinned to the bucket's close.
func (a *Aggregator) Heartbeat(ctx context.Context, mint string) error {
	rate := a.currentRate(ctx)
	if rate == nil {
		return nil
	}

	now := a.now().UnixMilli()

	var errs []error
	for _, interval := range domain.Intervals() {
		latest, err := a.candles.Latest(ctx, mint, interval)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("load latest %s candle: %w", interval, err))
			continue
		}

		if !interval.Contains(latest.BucketStart, now) {
			continue
		}

		update := &storage.CandleUpdate{
			Mint:        mint,
			Interval:    interval,
			BucketStart: latest.BucketStart,
			Price:       latest.Close,
			Open:        latest.Open,
			Rate:        rate,
			UpdatedAt:   now,
		}

		if err := a.candles.Upsert(ctx, update); err != nil {
			errs = append(errs, fmt.Errorf("heartbeat %s candle: %w", interval, err))
		}
	}

	return errors.Join(errs...)
}

// History returns candles ascending by bucket start.
func (a *Aggregator) History(ctx context.Context, mint string, interval domain.Interval, from, to int64, limit int) ([]*domain.Candle, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: unknown interval %q", storage.ErrInvalidInput, interval)
	}
	return a.candles.History(ctx, mint, interval, from, to, limit)
}

// openFor carries the previous bucket's close into a new bucket. Falls back
// to the trade price when the asset has no candles yet at this interval.
func (a *Aggregator) openFor(ctx context.Context, mint string, interval domain.Interval, price float64) float64 {
	latest, err := a.candles.Latest(ctx, mint, interval)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.logger.WithError(err).WithFields(logrus.Fields{
				"mint":     mint,
				"interval": interval,
			}).Warn("load previous candle for open carry")
		}
		return price
	}
	return latest.Close
}

func (a *Aggregator) currentRate(ctx context.Context) *float64 {
	if a.rates == nil {
		return nil
	}
	snap, ok := a.rates.Rate(ctx)
	if !ok {
		return nil
	}
	return &snap.Rate
}

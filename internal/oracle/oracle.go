// Package oracle maintains a cached USD reference rate for the quote
// currency. Sources are tried in priority order; the last good snapshot is
// served until it exceeds the staleness bound, after which consumers degrade
// to native-only values rather than receive a stale rate.
package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"launchpad/internal/domain"
	"launchpad/internal/storage"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultTTL is how long a snapshot is served without re-fetching.
	DefaultTTL = 30 * time.Second

	// DefaultMaxAge is the staleness bound: older snapshots are not served.
	DefaultMaxAge = 5 * time.Minute
)

// Oracle caches the USD/SOL rate fetched from external sources.
type Oracle struct {
	sources []Source
	ttl     time.Duration
	maxAge  time.Duration

	// rates mirrors snapshots to the analytics store, best-effort. May be nil.
	rates storage.RateStore

	logger *logrus.Logger
	now    func() time.Time

	mu       sync.RWMutex
	snapshot *domain.PriceSnapshot
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithTTL sets the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *Oracle) { o.ttl = ttl }
}

// WithMaxAge sets the staleness bound.
func WithMaxAge(maxAge time.Duration) Option {
	return func(o *Oracle) { o.maxAge = maxAge }
}

// WithRateStore mirrors every refreshed snapshot to the analytics store.
func WithRateStore(rates storage.RateStore) Option {
	return func(o *Oracle) { o.rates = rates }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) { o.now = now }
}

// New creates an Oracle that tries sources in the given order.
func New(logger *logrus.Logger, sources []Source, opts ...Option) *Oracle {
	o := &Oracle{
		sources: sources,
		ttl:     DefaultTTL,
		maxAge:  DefaultMaxAge,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Rate returns the current snapshot. It refreshes when the cached snapshot
// is older than the TTL; if every source fails, the cached snapshot is still
// served until it exceeds the staleness bound. ok is false when no snapshot
// within the bound is available, and callers must proceed without USD values.
func (o *Oracle) Rate(ctx context.Context) (domain.PriceSnapshot, bool) {
	o.mu.RLock()
	snap := o.snapshot
	o.mu.RUnlock()

	now := o.now()
	if snap != nil && snap.Age(now) < o.ttl {
		return *snap, true
	}

	if err := o.Refresh(ctx); err != nil {
		o.logger.WithError(err).Warn("reference rate refresh failed, serving cached snapshot")
	}

	o.mu.RLock()
	snap = o.snapshot
	o.mu.RUnlock()

	if snap == nil || snap.Age(o.now()) > o.maxAge {
		return domain.PriceSnapshot{}, false
	}
	return *snap, true
}

// Refresh fetches a new snapshot from the first source that succeeds. The
// cached snapshot is left untouched on total failure.
func (o *Oracle) Refresh(ctx context.Context) error {
	var lastErr error
	for _, source := range o.sources {
		rate, err := source.Fetch(ctx)
		if err != nil {
			o.logger.WithError(err).WithField("source", source.Name()).Debug("rate source failed")
			lastErr = err
			continue
		}

		snap := &domain.PriceSnapshot{
			Rate:      rate,
			Source:    source.Name(),
			FetchedAt: o.now().UnixMilli(),
		}

		o.mu.Lock()
		o.snapshot = snap
		o.mu.Unlock()

		if o.rates != nil {
			if err := o.rates.Insert(ctx, snap); err != nil {
				o.logger.WithError(err).Warn("mirror rate snapshot to analytics store")
			}
		}

		return nil
	}

	if lastErr == nil {
		lastErr = errNoSources
	}
	return lastErr
}

var errNoSources = errors.New("oracle: no rate sources configured")

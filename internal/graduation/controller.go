// Package graduation moves a curve that crossed its threshold through the
// Active → Graduated → Released lifecycle: the real reserves are released to
// the venue funding address exactly once, then an external venue pool is
// created, retrying until a pool is recorded.
package graduation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"launchpad/internal/domain"
	"launchpad/internal/observability"
	"launchpad/internal/storage"

	"github.com/sirupsen/logrus"
)

// ErrNotGraduated is returned when release is attempted before the curve
// crossed its threshold.
var ErrNotGraduated = errors.New("curve has not graduated")

// ReserveReleaser moves the curve's real reserves to the venue funding
// address. Implementations must tolerate at-most-once semantics: the
// controller never calls this twice for the same mint.
type ReserveReleaser interface {
	ReleaseReserves(ctx context.Context, mint string, baseAmount, quoteAmount uint64) error
}

// Venue creates a trading pool on the external venue from the released
// reserves. CreatePool may be retried until it succeeds.
type Venue interface {
	CreatePool(ctx context.Context, mint string, baseAmount, quoteAmount uint64) (poolID string, err error)
}

// Controller drives the post-graduation lifecycle. Release is serialized per
// mint: a concurrent caller waits for the in-flight release and then observes
// the released flag instead of re-entering the transfer.
type Controller struct {
	assets   storage.AssetStore
	releaser ReserveReleaser
	venue    Venue
	logger   *logrus.Logger

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// New creates a graduation Controller.
func New(assets storage.AssetStore, releaser ReserveReleaser, venue Venue, logger *logrus.Logger) *Controller {
	return &Controller{
		assets:   assets,
		releaser: releaser,
		venue:    venue,
		logger:   logger,
		inflight: make(map[string]*sync.Mutex),
	}
}

// lockMint acquires the per-mint release lock and returns its unlock func.
func (c *Controller) lockMint(mint string) func() {
	c.mu.Lock()
	l, ok := c.inflight[mint]
	if !ok {
		l = &sync.Mutex{}
		c.inflight[mint] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Status is the graduation state of an asset.
type Status struct {
	Mint        string  `json:"mint"`
	Graduated   bool    `json:"graduated"`
	Released    bool    `json:"released"`
	RealQuote   uint64  `json:"realQuote"`
	RealBase    uint64  `json:"realBase"`
	PoolID      *string `json:"poolId,omitempty"`
	GraduatedAt *int64  `json:"graduatedAt,omitempty"`
}

// Status reports the graduation state of an asset.
func (c *Controller) Status(ctx context.Context, mint string) (*Status, error) {
	asset, err := c.assets.GetByMint(ctx, mint)
	if err != nil {
		return nil, err
	}
	return statusOf(asset), nil
}

// Release performs the post-graduation steps. It is idempotent: reserves are
// released at most once (the released flag is persisted before pool creation
// is attempted), while pool creation is retried on every call until a pool ID
// is stored. Calling Release on an asset that already has a pool returns its
// status unchanged. Concurrent calls for one mint are serialized; the asset
// is re-read under the lock so only the first caller moves the reserves.
func (c *Controller) Release(ctx context.Context, mint string) (*Status, error) {
	unlock := c.lockMint(mint)
	defer unlock()

	asset, err := c.assets.GetByMint(ctx, mint)
	if err != nil {
		return nil, err
	}
	if !asset.Graduated {
		return nil, fmt.Errorf("%w: %s", ErrNotGraduated, mint)
	}
	if asset.PoolID != nil {
		return statusOf(asset), nil
	}

	log := c.logger.WithField("mint", mint)
	baseAmount := asset.Reserves.RealBase
	quoteAmount := asset.Reserves.RealQuote

	if !asset.Released {
		if err := c.releaser.ReleaseReserves(ctx, mint, baseAmount, quoteAmount); err != nil {
			return nil, fmt.Errorf("release reserves: %w", err)
		}
		if err := c.assets.MarkReleased(ctx, mint); err != nil {
			// The transfer went through but the flag did not persist. Fail
			// loudly: a retry before the flag is fixed would double-release.
			log.WithError(err).Error("reserves released but flag not persisted")
			return nil, fmt.Errorf("mark released: %w", err)
		}
		asset.Released = true
		log.WithFields(logrus.Fields{
			"base":  baseAmount,
			"quote": quoteAmount,
		}).Info("reserves released to venue funding address")
	}

	poolID, err := c.venue.CreatePool(ctx, mint, baseAmount, quoteAmount)
	if err != nil {
		observability.RecordPoolFailure()
		log.WithError(err).Warn("pool creation failed, will retry")
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := c.assets.SetPool(ctx, mint, poolID); err != nil {
		return nil, fmt.Errorf("store pool id: %w", err)
	}
	asset.PoolID = &poolID

	observability.RecordPoolCreated()
	log.WithField("pool", poolID).Info("venue pool created")

	return statusOf(asset), nil
}

func statusOf(asset *domain.Asset) *Status {
	return &Status{
		Mint:        asset.Mint,
		Graduated:   asset.Graduated,
		Released:    asset.Released,
		RealQuote:   asset.Reserves.RealQuote,
		RealBase:    asset.Reserves.RealBase,
		PoolID:      asset.PoolID,
		GraduatedAt: asset.GraduatedAt,
	}
}

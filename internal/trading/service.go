// Package trading implements token creation, curve quoting, and trade
// settlement against the execution layer.
package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"launchpad/internal/candles"
	"launchpad/internal/chain"
	"launchpad/internal/curve"
	"launchpad/internal/domain"
	"launchpad/internal/observability"
	"launchpad/internal/storage"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
)

// ErrGraduated is returned when a curve operation is attempted on a
// graduated asset. Trading continues on the external venue.
var ErrGraduated = errors.New("curve has graduated")

// ErrValidation wraps request validation failures.
var ErrValidation = errors.New("validation failed")

// DefaultConfirmTimeout bounds how long a settlement waits for confirmation.
const DefaultConfirmTimeout = 60 * time.Second

// Service coordinates the launchpad's write path: creating tokens, pricing
// against the curve, and settling confirmed transactions into storage.
type Service struct {
	assets storage.AssetStore
	trades storage.TradeStore
	ticks  storage.TickStore // optional analytics archive
	chain  chain.Client

	aggregator *candles.Aggregator  // optional
	rates      candles.RateProvider // optional

	confirmTimeout time.Duration
	logger         *logrus.Logger
	now            func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTicks archives settled trades to the analytics store.
func WithTicks(ticks storage.TickStore) Option {
	return func(s *Service) { s.ticks = ticks }
}

// WithAggregator routes settled trades into candle buckets.
func WithAggregator(agg *candles.Aggregator) Option {
	return func(s *Service) { s.aggregator = agg }
}

// WithRates enables USD values on token info responses.
func WithRates(rates candles.RateProvider) Option {
	return func(s *Service) { s.rates = rates }
}

// WithConfirmTimeout overrides the confirmation timeout.
func WithConfirmTimeout(d time.Duration) Option {
	return func(s *Service) { s.confirmTimeout = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a trading Service.
func New(assets storage.AssetStore, trades storage.TradeStore, client chain.Client, logger *logrus.Logger, opts ...Option) *Service {
	s := &Service{
		assets:         assets,
		trades:         trades,
		chain:          client,
		confirmTimeout: DefaultConfirmTimeout,
		logger:         logger,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTokenRequest carries the metadata for a new launch.
type CreateTokenRequest struct {
	Mint    string `json:"mint"`
	Creator string `json:"creator"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	URI     string `json:"uri"`
}

// CreateToken registers a new asset with the initial curve state.
func (s *Service) CreateToken(ctx context.Context, req *CreateTokenRequest) (*domain.Asset, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	asset, err := domain.NewAsset(req.Mint, req.Creator, req.Name, req.Symbol, req.URI, s.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("initialize asset: %w", err)
	}

	if err := s.assets.Insert(ctx, asset); err != nil {
		return nil, err
	}

	observability.RecordTokenCreated()
	s.logger.WithFields(logrus.Fields{
		"mint":   asset.Mint,
		"symbol": asset.Symbol,
	}).Info("token created")

	return asset, nil
}

func validateCreate(req *CreateTokenRequest) error {
	if req == nil {
		return fmt.Errorf("%w: empty request", ErrValidation)
	}
	if err := validateAddress("mint", req.Mint); err != nil {
		return err
	}
	if err := validateAddress("creator", req.Creator); err != nil {
		return err
	}
	if req.Name == "" || len(req.Name) > domain.MaxNameLen {
		return fmt.Errorf("%w: name must be 1-%d bytes", ErrValidation, domain.MaxNameLen)
	}
	if req.Symbol == "" || len(req.Symbol) > domain.MaxSymbolLen {
		return fmt.Errorf("%w: symbol must be 1-%d bytes", ErrValidation, domain.MaxSymbolLen)
	}
	if req.URI == "" || len(req.URI) > domain.MaxURILen {
		return fmt.Errorf("%w: uri must be 1-%d bytes", ErrValidation, domain.MaxURILen)
	}
	return nil
}

func validateAddress(field, value string) error {
	raw, err := base58.Decode(value)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("%w: %s must be a base58-encoded 32-byte address", ErrValidation, field)
	}
	return nil
}

// TokenInfo is an asset decorated with derived market data and the
// program-derived account addresses clients need to build transactions.
type TokenInfo struct {
	Asset *domain.Asset

	Price        float64  // lamports per base unit
	PriceUSD     *float64 // nil when no reference rate is available
	MarketCap    float64  // lamports
	MarketCapUSD *float64
	Progress     float64 // graduation progress, percent

	CurveAddress string // bonding curve account
	SolVault     string // lamport vault
	TokenVault   string // token vault
}

// Token returns an asset with spot price, market cap, graduation progress,
// and the derived curve/vault addresses.
func (s *Service) Token(ctx context.Context, mint string) (*TokenInfo, error) {
	asset, err := s.assets.GetByMint(ctx, mint)
	if err != nil {
		return nil, err
	}

	info := &TokenInfo{
		Asset:    asset,
		Price:    curve.SpotPrice(asset.Reserves.VirtualBase, asset.Reserves.VirtualQuote),
		Progress: curve.GraduationProgress(asset.Reserves.RealQuote, domain.GraduationThreshold),
	}
	info.MarketCap = curve.MarketCap(info.Price, asset.TotalSupply)

	if info.CurveAddress, err = chain.CurveAddress(mint); err != nil {
		return nil, fmt.Errorf("derive curve address: %w", err)
	}
	if info.SolVault, err = chain.SolVaultAddress(mint); err != nil {
		return nil, fmt.Errorf("derive sol vault: %w", err)
	}
	if info.TokenVault, err = chain.TokenVaultAddress(mint); err != nil {
		return nil, fmt.Errorf("derive token vault: %w", err)
	}

	if s.rates != nil {
		if snap, ok := s.rates.Rate(ctx); ok {
			priceUSD := info.Price * snap.Rate
			capUSD := info.MarketCap * snap.Rate
			info.PriceUSD = &priceUSD
			info.MarketCapUSD = &capUSD
		}
	}

	return info, nil
}

// ListTokens returns assets ordered by creation time, newest first.
func (s *Service) ListTokens(ctx context.Context, limit int) ([]*domain.Asset, error) {
	return s.assets.List(ctx, limit)
}

// Trades returns recent settled trades for an asset, newest first.
func (s *Service) Trades(ctx context.Context, mint string, limit int) ([]*domain.Trade, error) {
	if _, err := s.assets.GetByMint(ctx, mint); err != nil {
		return nil, err
	}
	return s.trades.GetByMint(ctx, mint, limit)
}

// QuoteResult is a priced trade preview. Nothing is committed.
type QuoteResult struct {
	Side   domain.Side
	Mint   string
	Amount uint64 // input amount: lamports for buys, base units for sells

	AmountOut   uint64  // base units for buys, net lamports for sells
	Fee         uint64  // lamports
	Capped      bool    // sell proceeds were capped at the real quote reserve
	PriceImpact float64 // percent

	SpotPrice       float64
	NewVirtualQuote uint64
	NewVirtualBase  uint64
}

// Quote prices a prospective trade against the current curve state. Returns
// ErrGraduated once the curve has graduated: quoting moves to the venue.
func (s *Service) Quote(ctx context.Context, mint string, side domain.Side, amount uint64) (*QuoteResult, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("%w: side must be buy or sell", ErrValidation)
	}

	asset, err := s.assets.GetByMint(ctx, mint)
	if err != nil {
		return nil, err
	}
	if asset.Graduated {
		return nil, fmt.Errorf("%w: %s", ErrGraduated, mint)
	}

	r := asset.Reserves
	result := &QuoteResult{
		Side:      side,
		Mint:      mint,
		Amount:    amount,
		SpotPrice: curve.SpotPrice(r.VirtualBase, r.VirtualQuote),
	}

	switch side {
	case domain.SideBuy:
		q, err := curve.QuoteBuy(amount, r.VirtualBase, r.VirtualQuote, domain.TotalFeeBps)
		if err != nil {
			return nil, err
		}
		result.AmountOut = q.BaseOut
		result.Fee = q.Fee
		result.PriceImpact = q.PriceImpact
		result.NewVirtualQuote = q.NewVirtualQuote
		result.NewVirtualBase = q.NewVirtualBase

	case domain.SideSell:
		q, err := curve.QuoteSell(amount, r.VirtualBase, r.VirtualQuote, r.RealQuote, domain.TotalFeeBps)
		if err != nil {
			return nil, err
		}
		result.AmountOut = q.QuoteOut
		result.Fee = q.Fee
		result.Capped = q.Capped
		result.PriceImpact = q.PriceImpact
		result.NewVirtualQuote = q.NewVirtualQuote
		result.NewVirtualBase = q.NewVirtualBase
	}

	return result, nil
}

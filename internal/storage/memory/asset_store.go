package memory

import (
	"context"
	"sort"
	"sync"

	"launchpad/internal/domain"
	"launchpad/internal/storage"
)

// AssetStore is an in-memory implementation of storage.AssetStore. Trades
// appended by ApplyTrade land in the linked TradeStore so that both stores
// observe the same commit, mirroring the single-transaction semantics of the
// PostgreSQL implementation.
type AssetStore struct {
	mu     sync.Mutex
	data   map[string]*domain.Asset
	trades *TradeStore
}

// NewAssetStore creates a new in-memory asset store writing trades to trades.
func NewAssetStore(trades *TradeStore) *AssetStore {
	return &AssetStore{
		data:   make(map[string]*domain.Asset),
		trades: trades,
	}
}

var _ storage.AssetStore = (*AssetStore)(nil)

// Insert adds a new asset. Returns ErrDuplicateKey if the mint exists.
func (s *AssetStore) Insert(_ context.Context, a *domain.Asset) error {
	if a == nil || a.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.Mint]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *a
	s.data[a.Mint] = &copy
	return nil
}

// GetByMint retrieves an asset. Returns ErrNotFound if not exists.
func (s *AssetStore) GetByMint(_ context.Context, mint string) (*domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.data[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *a
	return &copy, nil
}

// List retrieves assets ordered by creation time descending.
func (s *AssetStore) List(_ context.Context, limit int) ([]*domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*domain.Asset, 0, len(s.data))
	for _, a := range s.data {
		copy := *a
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].Mint < result[j].Mint
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// ApplyTrade runs fn with exclusive access to the asset and commits the
// mutated asset plus the returned trade together, or neither.
func (s *AssetStore) ApplyTrade(_ context.Context, mint string, fn storage.ApplyTradeFunc) (*domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.data[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}

	// fn mutates a copy; the stored asset is replaced only on full success.
	working := *stored
	trade, err := fn(&working)
	if err != nil {
		return nil, err
	}
	if trade == nil || trade.Signature == "" {
		return nil, storage.ErrInvalidInput
	}

	if err := s.trades.insert(trade); err != nil {
		return nil, err
	}

	s.data[mint] = &working
	result := *trade
	return &result, nil
}

// MarkReleased latches the released flag.
func (s *AssetStore) MarkReleased(_ context.Context, mint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.data[mint]
	if !ok {
		return storage.ErrNotFound
	}
	a.Released = true
	return nil
}

// SetPool records the external venue pool for the asset.
func (s *AssetStore) SetPool(_ context.Context, mint, poolID string) error {
	if poolID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.data[mint]
	if !ok {
		return storage.ErrNotFound
	}
	a.PoolID = &poolID
	return nil
}

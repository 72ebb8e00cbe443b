package memory

import (
	"context"
	"sort"
	"sync"

	"launchpad/internal/domain"
	"launchpad/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore. Trades
// are appended through AssetStore.ApplyTrade; the store itself is read-only.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by signature
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

var _ storage.TradeStore = (*TradeStore)(nil)

// insert appends a trade. Returns ErrDuplicateKey if the signature exists.
func (s *TradeStore) insert(t *domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.Signature]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.Signature] = &copy
	return nil
}

// GetBySignature retrieves a trade by its settlement reference.
func (s *TradeStore) GetBySignature(_ context.Context, signature string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *t
	return &copy, nil
}

// GetByMint retrieves trades for an asset, newest first.
func (s *TradeStore) GetByMint(_ context.Context, mint string, limit int) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.Mint == mint {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp > result[j].Timestamp
		}
		return result[i].Signature < result[j].Signature
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// GetByTimeRange retrieves trades for an asset within [start, end] (inclusive).
func (s *TradeStore) GetByTimeRange(_ context.Context, mint string, start, end int64) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.Mint == mint && t.Timestamp >= start && t.Timestamp <= end {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].Signature < result[j].Signature
	})

	return result, nil
}

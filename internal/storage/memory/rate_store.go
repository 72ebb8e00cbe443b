package memory

import (
	"context"
	"sort"
	"sync"

	"launchpad/internal/domain"
	"launchpad/internal/storage"
)

// RateStore is an in-memory implementation of storage.RateStore.
type RateStore struct {
	mu   sync.RWMutex
	data []*domain.PriceSnapshot
}

// NewRateStore creates a new in-memory rate store.
func NewRateStore() *RateStore {
	return &RateStore{}
}

var _ storage.RateStore = (*RateStore)(nil)

// Insert appends a snapshot.
func (s *RateStore) Insert(_ context.Context, snap *domain.PriceSnapshot) error {
	if snap == nil || snap.Rate <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *snap
	s.data = append(s.data, &copy)
	return nil
}

// GetByTimeRange retrieves snapshots within [start, end] (inclusive).
func (s *RateStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceSnapshot
	for _, snap := range s.data {
		if snap.FetchedAt >= start && snap.FetchedAt <= end {
			copy := *snap
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FetchedAt < result[j].FetchedAt
	})

	return result, nil
}

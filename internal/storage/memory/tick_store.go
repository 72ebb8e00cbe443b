package memory

import (
	"context"
	"sort"
	"sync"

	"launchpad/internal/domain"
	"launchpad/internal/storage"
)

// TickStore is an in-memory implementation of storage.TickStore.
type TickStore struct {
	mu   sync.RWMutex
	data []*domain.Tick
}

// NewTickStore creates a new in-memory tick store.
func NewTickStore() *TickStore {
	return &TickStore{}
}

var _ storage.TickStore = (*TickStore)(nil)

// InsertBulk appends ticks.
func (s *TickStore) InsertBulk(_ context.Context, ticks []*domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range ticks {
		if t == nil || t.Mint == "" {
			return storage.ErrInvalidInput
		}
		copy := *t
		s.data = append(s.data, &copy)
	}
	return nil
}

// GetByTimeRange retrieves ticks for an asset within [start, end] (inclusive).
func (s *TickStore) GetByTimeRange(_ context.Context, mint string, start, end int64) ([]*domain.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Tick
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

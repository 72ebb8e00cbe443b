package clickhouse

import (
	"context"
	"fmt"

	"launchpad/internal/domain"
	"launchpad/internal/storage"
)

// RateStore implements storage.RateStore using ClickHouse.
type RateStore struct {
	conn *Conn
}

// NewRateStore creates a new ClickHouse rate store.
func NewRateStore(conn *Conn) *RateStore {
	return &RateStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RateStore = (*RateStore)(nil)

// Insert appends one reference-rate snapshot.
func (s *RateStore) Insert(ctx context.Context, snapshot *domain.PriceSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("%w: snapshot is nil", storage.ErrInvalidInput)
	}

	query := `INSERT INTO rates (rate, source, fetched_at_ms) VALUES (?, ?, ?)`

	err := s.conn.Exec(ctx, query, snapshot.Rate, snapshot.Source, uint64(snapshot.FetchedAt))
	if err != nil {
		return fmt.Errorf("insert rate: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves snapshots within [start, end] (inclusive),
// ordered by fetch time ASC.
func (s *RateStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.PriceSnapshot, error) {
	query := `
		SELECT rate, source, fetched_at_ms
		FROM rates
		WHERE fetched_at_ms >= ? AND fetched_at_ms <= ?
		ORDER BY fetched_at_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	var snapshots []*domain.PriceSnapshot
	for rows.Next() {
		var snap domain.PriceSnapshot
		var fetchedAt uint64

		if err := rows.Scan(&snap.Rate, &snap.Source, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan rate: %w", err)
		}

		snap.FetchedAt = int64(fetchedAt)
		snapshots = append(snapshots, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rates: %w", err)
	}

	return snapshots, nil
}

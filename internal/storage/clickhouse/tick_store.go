package clickhouse

import (
	"context"
	"fmt"

	"launchpad/internal/domain"
	"launchpad/internal/storage"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// TickStore implements storage.TickStore using ClickHouse.
type TickStore struct {
	conn *Conn
}

// NewTickStore creates a new ClickHouse tick store.
func NewTickStore(conn *Conn) *TickStore {
	return &TickStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TickStore = (*TickStore)(nil)

// InsertBulk appends ticks as a single batch. The table is MergeTree without
// uniqueness enforcement; a replayed settlement already fails upstream on the
// trade signature, so duplicates here are tolerated rather than checked.
func (s *TickStore) InsertBulk(ctx context.Context, ticks []*domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ticks (
			mint, signature, side, price, quote_volume, base_volume, slot, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range ticks {
		err = batch.Append(
			t.Mint, t.Signature, string(t.Side),
			t.Price, t.QuoteVolume, t.BaseVolume,
			uint64(t.Slot), uint64(t.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves ticks for a mint within [start, end] (inclusive),
// ordered by timestamp ASC.
func (s *TickStore) GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.Tick, error) {
	query := `
		SELECT mint, signature, side, price, quote_volume, base_volume, slot, timestamp_ms
		FROM ticks
		WHERE mint = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, mint, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanTicks(rows)
}

func scanTicks(rows driver.Rows) ([]*domain.Tick, error) {
	var ticks []*domain.Tick
	for rows.Next() {
		var t domain.Tick
		var side string
		var slot, timestampMs uint64

		err := rows.Scan(
			&t.Mint, &t.Signature, &side,
			&t.Price, &t.QuoteVolume, &t.BaseVolume,
			&slot, &timestampMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}

		t.Side = domain.Side(side)
		t.Slot = int64(slot)
		t.Timestamp = int64(timestampMs)
		ticks = append(ticks, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}

	return ticks, nil
}

package postgres

import (
	"context"
	"fmt"

	"launchpad/internal/domain"
	"launchpad/internal/storage"

	"github.com/jackc/pgx/v5"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
// Trades are written only through AssetStore.ApplyTrade; this store is the
// read side.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new PostgreSQL trade store.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeColumns = `signature, mint, trader, side, quote_amount, base_amount, price,
		protocol_fee, creator_fee, virtual_quote_after, virtual_base_after,
		slot, timestamp, created_at`

// GetBySignature retrieves a trade by its transaction signature.
// Returns storage.ErrNotFound if no trade with that signature was settled.
func (s *TradeStore) GetBySignature(ctx context.Context, signature string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE signature = $1`

	row := s.pool.QueryRow(ctx, query, signature)
	trade, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: trade with signature %s", storage.ErrNotFound, signature)
		}
		return nil, fmt.Errorf("get trade by signature: %w", err)
	}

	return trade, nil
}

// GetByMint returns trades for a mint ordered by timestamp, newest first.
func (s *TradeStore) GetByMint(ctx context.Context, mint string, limit int) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE mint = $1 ORDER BY timestamp DESC, signature`
	args := []any{mint}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get trades by mint: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// GetByTimeRange returns trades for a mint within [start, end], ascending.
func (s *TradeStore) GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE mint = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp, signature`

	rows, err := s.pool.Query(ctx, query, mint, start, end)
	if err != nil {
		return nil, fmt.Errorf("get trades by time range: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

func collectTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}

	return trades, nil
}

func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var trade domain.Trade
	var side string
	var quoteAmount, baseAmount, protocolFee, creatorFee int64
	var virtualQuoteAfter, virtualBaseAfter int64

	err := row.Scan(
		&trade.Signature,
		&trade.Mint,
		&trade.Trader,
		&side,
		&quoteAmount,
		&baseAmount,
		&trade.Price,
		&protocolFee,
		&creatorFee,
		&virtualQuoteAfter,
		&virtualBaseAfter,
		&trade.Slot,
		&trade.Timestamp,
		&trade.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	trade.Side = domain.Side(side)
	trade.QuoteAmount = uint64(quoteAmount)
	trade.BaseAmount = uint64(baseAmount)
	trade.ProtocolFee = uint64(protocolFee)
	trade.CreatorFee = uint64(creatorFee)
	trade.VirtualQuoteAfter = uint64(virtualQuoteAfter)
	trade.VirtualBaseAfter = uint64(virtualBaseAfter)

	return &trade, nil
}

// Compile-time interface check
var _ storage.TradeStore = (*TradeStore)(nil)

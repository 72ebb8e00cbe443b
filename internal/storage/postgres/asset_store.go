package postgres

import (
	"context"
	"fmt"

	"launchpad/internal/domain"
	"launchpad/internal/storage"

	"github.com/jackc/pgx/v5"
)

// AssetStore implements storage.AssetStore using PostgreSQL.
type AssetStore struct {
	pool *Pool
}

// NewAssetStore creates a new PostgreSQL asset store.
func NewAssetStore(pool *Pool) *AssetStore {
	return &AssetStore{pool: pool}
}

const assetColumns = `mint, creator, name, symbol, uri, total_supply,
		virtual_base, virtual_quote, real_base, real_quote,
		graduated, released, pool_id, created_at, graduated_at`

// Insert adds a new asset to the database.
// Returns storage.ErrDuplicateKey if an asset with the same mint exists.
func (s *AssetStore) Insert(ctx context.Context, asset *domain.Asset) error {
	if asset == nil {
		return fmt.Errorf("%w: asset is nil", storage.ErrInvalidInput)
	}

	query := `
		INSERT INTO assets (` + assetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := s.pool.Exec(ctx, query,
		asset.Mint,
		asset.Creator,
		asset.Name,
		asset.Symbol,
		asset.URI,
		int64(asset.TotalSupply),
		int64(asset.Reserves.VirtualBase),
		int64(asset.Reserves.VirtualQuote),
		int64(asset.Reserves.RealBase),
		int64(asset.Reserves.RealQuote),
		asset.Graduated,
		asset.Released,
		asset.PoolID,
		asset.CreatedAt,
		asset.GraduatedAt,
	)

	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: asset with mint %s already exists", storage.ErrDuplicateKey, asset.Mint)
		}
		return fmt.Errorf("insert asset: %w", err)
	}

	return nil
}

// GetByMint retrieves an asset by its mint address.
// Returns storage.ErrNotFound if the asset does not exist.
func (s *AssetStore) GetByMint(ctx context.Context, mint string) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE mint = $1`

	row := s.pool.QueryRow(ctx, query, mint)
	asset, err := scanAsset(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: asset with mint %s", storage.ErrNotFound, mint)
		}
		return nil, fmt.Errorf("get asset by mint: %w", err)
	}

	return asset, nil
}

// List returns all assets ordered by creation time, newest first.
func (s *AssetStore) List(ctx context.Context, limit int) ([]*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []*domain.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, asset)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}

	return assets, nil
}

// ApplyTrade runs fn against the current asset state under a row lock and
// commits the mutated reserves, graduation latch, and the produced trade in
// a single transaction. A unique-violation on the trade signature rolls the
// whole transaction back with storage.ErrDuplicateKey, so a replayed
// settlement can never move reserves twice.
func (s *AssetStore) ApplyTrade(ctx context.Context, mint string, fn storage.ApplyTradeFunc) (*domain.Trade, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + assetColumns + ` FROM assets WHERE mint = $1 FOR UPDATE`

	row := tx.QueryRow(ctx, query, mint)
	asset, err := scanAsset(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: asset with mint %s", storage.ErrNotFound, mint)
		}
		return nil, fmt.Errorf("lock asset: %w", err)
	}

	trade, err := fn(asset)
	if err != nil {
		return nil, err
	}

	updateQuery := `
		UPDATE assets
		SET virtual_base = $2, virtual_quote = $3, real_base = $4, real_quote = $5,
		    graduated = $6, graduated_at = $7
		WHERE mint = $1`

	_, err = tx.Exec(ctx, updateQuery,
		asset.Mint,
		int64(asset.Reserves.VirtualBase),
		int64(asset.Reserves.VirtualQuote),
		int64(asset.Reserves.RealBase),
		int64(asset.Reserves.RealQuote),
		asset.Graduated,
		asset.GraduatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update asset reserves: %w", err)
	}

	insertQuery := `
		INSERT INTO trades (
			signature, mint, trader, side, quote_amount, base_amount, price,
			protocol_fee, creator_fee, virtual_quote_after, virtual_base_after,
			slot, timestamp, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = tx.Exec(ctx, insertQuery,
		trade.Signature,
		trade.Mint,
		trade.Trader,
		string(trade.Side),
		int64(trade.QuoteAmount),
		int64(trade.BaseAmount),
		trade.Price,
		int64(trade.ProtocolFee),
		int64(trade.CreatorFee),
		int64(trade.VirtualQuoteAfter),
		int64(trade.VirtualBaseAfter),
		trade.Slot,
		trade.Timestamp,
		trade.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: trade with signature %s already settled", storage.ErrDuplicateKey, trade.Signature)
		}
		return nil, fmt.Errorf("insert trade: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit trade: %w", err)
	}

	return trade, nil
}

// MarkReleased sets the released flag after curve reserves were moved out.
func (s *AssetStore) MarkReleased(ctx context.Context, mint string) error {
	result, err := s.pool.Exec(ctx, `UPDATE assets SET released = TRUE WHERE mint = $1`, mint)
	if err != nil {
		return fmt.Errorf("mark asset released: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: asset with mint %s", storage.ErrNotFound, mint)
	}

	return nil
}

// SetPool records the external venue pool created for a graduated asset.
func (s *AssetStore) SetPool(ctx context.Context, mint, poolID string) error {
	result, err := s.pool.Exec(ctx, `UPDATE assets SET pool_id = $2 WHERE mint = $1`, mint, poolID)
	if err != nil {
		return fmt.Errorf("set asset pool: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: asset with mint %s", storage.ErrNotFound, mint)
	}

	return nil
}

func scanAsset(row pgx.Row) (*domain.Asset, error) {
	var asset domain.Asset
	var totalSupply, virtualBase, virtualQuote, realBase, realQuote int64

	err := row.Scan(
		&asset.Mint,
		&asset.Creator,
		&asset.Name,
		&asset.Symbol,
		&asset.URI,
		&totalSupply,
		&virtualBase,
		&virtualQuote,
		&realBase,
		&realQuote,
		&asset.Graduated,
		&asset.Released,
		&asset.PoolID,
		&asset.CreatedAt,
		&asset.GraduatedAt,
	)
	if err != nil {
		return nil, err
	}

	asset.TotalSupply = uint64(totalSupply)
	asset.Reserves = domain.Reserves{
		VirtualBase:  uint64(virtualBase),
		VirtualQuote: uint64(virtualQuote),
		RealBase:     uint64(realBase),
		RealQuote:    uint64(realQuote),
	}

	return &asset, nil
}

// Compile-time interface check
var _ storage.AssetStore = (*AssetStore)(nil)

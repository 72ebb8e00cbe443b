package domain

// Launch parameters shared by every curve. Values mirror the on-chain
// program configuration.
const (
	// TotalSupply is the fixed supply of every launched token:
	// 1 billion tokens with 6 decimals, in base units.
	TotalSupply uint64 = 1_000_000_000_000_000

	// InitialVirtualQuote seeds the virtual quote reserve (30 SOL in lamports),
	// which sets the initial price.
	InitialVirtualQuote uint64 = 30_000_000_000

	// InitialVirtualBase seeds the virtual base reserve (the full supply).
	InitialVirtualBase uint64 = TotalSupply

	// GraduationThreshold is the real quote reserve (lamports) at which a
	// curve graduates to the external venue.
	GraduationThreshold uint64 = 120_000_000_000

	// Fee configuration in basis points.
	ProtocolFeeBps uint64 = 50
	CreatorFeeBps  uint64 = 50
	TotalFeeBps    uint64 = ProtocolFeeBps + CreatorFeeBps
	BpsDenominator uint64 = 10_000
)

// Metadata length limits enforced at token creation.
const (
	MaxNameLen   = 32
	MaxSymbolLen = 10
	MaxURILen    = 200
)

// Asset is a launched token and its bonding curve state.
// Corresponds to the assets table in PostgreSQL.
type Asset struct {
	Mint        string // token mint address, PRIMARY KEY
	Creator     string // creator wallet address
	Name        string
	Symbol      string
	URI         string // metadata URI
	TotalSupply uint64

	Reserves Reserves

	// Graduated latches true when RealQuote crosses GraduationThreshold.
	// It is monotonic: no code path clears it.
	Graduated bool
	// Released latches true after the real reserves have been released to
	// the venue funding address. Release happens at most once.
	Released bool
	// PoolID is the external venue pool, set once pool creation succeeds.
	PoolID *string

	CreatedAt   int64  // Unix timestamp in milliseconds
	GraduatedAt *int64 // set when Graduated latches (ms)
}

// NewAsset constructs an asset with the initial curve state.
func NewAsset(mint, creator, name, symbol, uri string, createdAt int64) (*Asset, error) {
	reserves, err := NewReserves(InitialVirtualBase, InitialVirtualQuote, TotalSupply, 0)
	if err != nil {
		return nil, err
	}
	return &Asset{
		Mint:        mint,
		Creator:     creator,
		Name:        name,
		Symbol:      symbol,
		URI:         uri,
		TotalSupply: TotalSupply,
		Reserves:    reserves,
		CreatedAt:   createdAt,
	}, nil
}

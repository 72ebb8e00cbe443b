package domain

// Side is the direction of a trade against the curve.
type Side string

// Trade side values.
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Trade is one settled transaction against a bonding curve. Trades are
// append-only: once recorded they are never updated or deleted.
// Corresponds to the trades table in PostgreSQL.
type Trade struct {
	Signature string // settlement reference (transaction signature), UNIQUE
	Mint      string // FK to assets
	Trader    string // trader wallet address
	Side      Side

	QuoteAmount uint64  // lamports (buy: gross in; sell: net out)
	BaseAmount  uint64  // token base units
	Price       float64 // execution price, lamports per base unit (display)

	ProtocolFee uint64 // lamports
	CreatorFee  uint64 // lamports

	// Post-trade virtual reserves confirmed by the on-chain event.
	VirtualQuoteAfter uint64
	VirtualBaseAfter  uint64

	Slot      int64 // Solana slot of the confirmed transaction
	Timestamp int64 // Unix timestamp in milliseconds
	CreatedAt int64 // record creation timestamp (ms)
}

package domain

// Tick is one settled trade flattened for the analytics store. Ticks are
// append-only and written best-effort after settlement commits.
type Tick struct {
	Mint        string
	Signature   string
	Side        Side
	Price       float64 // lamports per base unit
	QuoteVolume float64 // lamports
	BaseVolume  float64 // token base units
	Slot        int64
	Timestamp   int64 // Unix timestamp in milliseconds
}

package domain

import "time"

// PriceSnapshot is the current USD reference rate for the quote currency.
// A single snapshot is overwritten in place by the oracle; history is
// mirrored to the analytics store.
type PriceSnapshot struct {
	Rate      float64 // USD per SOL
	Source    string  // source label, e.g. "coingecko"
	FetchedAt int64   // Unix timestamp in milliseconds
}

// Age returns how old the snapshot is relative to now.
func (p PriceSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(p.FetchedAt))
}

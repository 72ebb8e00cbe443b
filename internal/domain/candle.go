package domain

import "time"

// Interval is a candle resolution. The set is closed: exactly five
// resolutions are maintained per asset.
type Interval string

// Supported candle intervals.
const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
)

// Intervals returns all supported intervals in ascending duration order.
func Intervals() []Interval {
	return []Interval{Interval1m, Interval5m, Interval15m, Interval1h, Interval1d}
}

// Valid reports whether i is a supported interval.
func (i Interval) Valid() bool {
	switch i {
	case Interval1m, Interval5m, Interval15m, Interval1h, Interval1d:
		return true
	}
	return false
}

// Duration returns the interval length. Zero for unknown intervals.
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval1d:
		return 24 * time.Hour
	}
	return 0
}

// BucketStart truncates a millisecond timestamp to the interval boundary.
func (i Interval) BucketStart(tsMs int64) int64 {
	ms := i.Duration().Milliseconds()
	if ms == 0 {
		return tsMs
	}
	return tsMs - tsMs%ms
}

// Contains reports whether tsMs falls within the bucket starting at
// bucketStart, i.e. [bucketStart, bucketStart+duration).
func (i Interval) Contains(bucketStart, tsMs int64) bool {
	return tsMs >= bucketStart && tsMs < bucketStart+i.Duration().Milliseconds()
}

// Candle is one OHLCV bucket for an asset at a given interval. Unique per
// (mint, interval, bucket_start); mutated in place while the bucket is open,
// never deleted. USD legs are nil when no reference rate was available.
// Corresponds to the candles table in PostgreSQL.
type Candle struct {
	Mint        string
	Interval    Interval
	BucketStart int64 // Unix timestamp in milliseconds, truncated to interval

	Open  float64 // lamports per base unit
	High  float64
	Low   float64
	Close float64

	OpenUSD  *float64
	HighUSD  *float64
	LowUSD   *float64
	CloseUSD *float64

	Volume    float64  // quote volume, lamports
	VolumeUSD *float64 // quote volume in USD

	TradeCount int
	QuoteRate  *float64 // USD/SOL rate used at last update

	UpdatedAt int64 // ms
}

package domain

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrReserveViolation is returned when a reserve update would drive a real
// reserve negative or break the constant-product invariant. It is fatal for
// the enclosing transaction: the update must be aborted, never clamped.
var ErrReserveViolation = errors.New("reserve invariant violation")

// Reserves holds the four reserve quantities of a bonding curve. Virtual
// reserves exist only for pricing; real reserves track settled lamports and
// token base units. All quantities are raw integer subunits.
//
// Reserves is a value type: updates produce a new Reserves via the checked
// Apply* methods so that no caller can mutate one field without the others.
type Reserves struct {
	VirtualBase  uint64 // token base units used for pricing
	VirtualQuote uint64 // lamports used for pricing
	RealBase     uint64 // token base units actually held by the curve
	RealQuote    uint64 // lamports actually deposited
}

// NewReserves validates and constructs a Reserves value.
func NewReserves(virtualBase, virtualQuote, realBase, realQuote uint64) (Reserves, error) {
	if virtualBase == 0 || virtualQuote == 0 {
		return Reserves{}, fmt.Errorf("%w: zero virtual reserve", ErrReserveViolation)
	}
	return Reserves{
		VirtualBase:  virtualBase,
		VirtualQuote: virtualQuote,
		RealBase:     realBase,
		RealQuote:    realQuote,
	}, nil
}

// Invariant returns k = virtualBase * virtualQuote as a 128-bit value.
func (r Reserves) Invariant() (hi, lo uint64) {
	return bits.Mul64(r.VirtualBase, r.VirtualQuote)
}

// consistentWith reports whether the replacement virtual pair preserves k
// within the rounding tolerance of one truncating division. The curve updates
// one virtual side exactly and derives the other as floor(k/side), so the new
// product may undershoot k by at most divisor-1, where the divisor is the
// exactly-updated side (quote on buys, base on sells).
func (r Reserves) consistentWith(virtualBase, virtualQuote uint64) bool {
	oldHi, oldLo := r.Invariant()
	newHi, newLo := bits.Mul64(virtualBase, virtualQuote)

	// newK must not exceed oldK.
	if newHi > oldHi || (newHi == oldHi && newLo > oldLo) {
		return false
	}

	tolerance := virtualQuote
	if virtualBase > tolerance {
		tolerance = virtualBase
	}

	// oldK - newK < tolerance (128-bit subtraction).
	diffLo, borrow := bits.Sub64(oldLo, newLo, 0)
	diffHi, _ := bits.Sub64(oldHi, newHi, borrow)
	return diffHi == 0 && diffLo < tolerance
}

// ApplyBuy returns the reserves after a settled buy. quoteIn is the portion
// of the buyer's lamports credited to the curve (fees already excluded);
// baseOut is the token amount released to the buyer. The virtual pair is
// replaced by the post-trade values confirmed on chain.
func (r Reserves) ApplyBuy(virtualBase, virtualQuote, quoteIn, baseOut uint64) (Reserves, error) {
	if !r.consistentWith(virtualBase, virtualQuote) {
		return Reserves{}, fmt.Errorf("%w: virtual reserves %d/%d inconsistent with prior invariant",
			ErrReserveViolation, virtualBase, virtualQuote)
	}
	if baseOut > r.RealBase {
		return Reserves{}, fmt.Errorf("%w: base out %d exceeds real base %d",
			ErrReserveViolation, baseOut, r.RealBase)
	}
	realQuote, carry := bits.Add64(r.RealQuote, quoteIn, 0)
	if carry != 0 {
		return Reserves{}, fmt.Errorf("%w: real quote overflow", ErrReserveViolation)
	}
	return Reserves{
		VirtualBase:  virtualBase,
		VirtualQuote: virtualQuote,
		RealBase:     r.RealBase - baseOut,
		RealQuote:    realQuote,
	}, nil
}

// ApplySell returns the reserves after a settled sell. quoteOut is the gross
// lamports leaving the curve (seller proceeds plus fees); baseIn is the token
// amount returned to the curve.
func (r Reserves) ApplySell(virtualBase, virtualQuote, quoteOut, baseIn uint64) (Reserves, error) {
	if !r.consistentWith(virtualBase, virtualQuote) {
		return Reserves{}, fmt.Errorf("%w: virtual reserves %d/%d inconsistent with prior invariant",
			ErrReserveViolation, virtualBase, virtualQuote)
	}
	if quoteOut > r.RealQuote {
		return Reserves{}, fmt.Errorf("%w: quote out %d exceeds real quote %d",
			ErrReserveViolation, quoteOut, r.RealQuote)
	}
	realBase, carry := bits.Add64(r.RealBase, baseIn, 0)
	if carry != 0 {
		return Reserves{}, fmt.Errorf("%w: real base overflow", ErrReserveViolation)
	}
	return Reserves{
		VirtualBase:  virtualBase,
		VirtualQuote: virtualQuote,
		RealBase:     realBase,
		RealQuote:    r.RealQuote - quoteOut,
	}, nil
}

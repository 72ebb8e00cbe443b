// Package curve implements the constant-product pricing model for bonding
// curves. All functions are pure: no state, no I/O. Reserve-scale arithmetic
// is performed on uint64 with 128-bit intermediates; float64 appears only in
// display-layer outputs (prices, percentages).
package curve

import (
	"errors"
	"math/bits"

	"launchpad/internal/domain"
)

// ErrInvalidAmount is returned for non-positive trade amounts.
var ErrInvalidAmount = errors.New("amount must be greater than zero")

// BuyQuote is the result of pricing a buy against the curve.
type BuyQuote struct {
	BaseOut         uint64  // token base units out
	Fee             uint64  // total fee in lamports, deducted from the input
	QuoteToCurve    uint64  // lamports credited to the curve (input minus fee)
	NewVirtualQuote uint64
	NewVirtualBase  uint64
	PriceImpact     float64 // percent
}

// SellQuote is the result of pricing a sell against the curve.
type SellQuote struct {
	QuoteOut        uint64 // net lamports to the seller, after fee
	GrossQuote      uint64 // lamports leaving the curve (possibly capped)
	Fee             uint64 // total fee in lamports, deducted from gross proceeds
	Capped          bool   // gross proceeds were capped at the real quote reserve
	NewVirtualQuote uint64
	NewVirtualBase  uint64
	PriceImpact     float64 // percent
}

// mulDiv returns floor(a*b/d) using a 128-bit intermediate.
func mulDiv(a, b, d uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, d)
	return q
}

// feeOf returns the truncating basis-point fee on amount.
func feeOf(amount, feeBps uint64) uint64 {
	return mulDiv(amount, feeBps, domain.BpsDenominator)
}

// QuoteBuy prices a buy of quoteIn lamports against virtual reserves.
// The fee is deducted from the input before the constant-product formula:
//
//	newVirtualQuote = virtualQuote + (quoteIn - fee)
//	newVirtualBase  = k / newVirtualQuote
//	baseOut         = virtualBase - newVirtualBase
func QuoteBuy(quoteIn, virtualBase, virtualQuote, feeBps uint64) (BuyQuote, error) {
	if quoteIn == 0 {
		return BuyQuote{}, ErrInvalidAmount
	}

	fee := feeOf(quoteIn, feeBps)
	toCurve := quoteIn - fee

	kHi, kLo := bits.Mul64(virtualBase, virtualQuote)
	newVirtualQuote, carry := bits.Add64(virtualQuote, toCurve, 0)
	if carry != 0 {
		return BuyQuote{}, ErrInvalidAmount
	}
	newVirtualBase, _ := bits.Div64(kHi, kLo, newVirtualQuote)
	baseOut := virtualBase - newVirtualBase

	return BuyQuote{
		BaseOut:         baseOut,
		Fee:             fee,
		QuoteToCurve:    toCurve,
		NewVirtualQuote: newVirtualQuote,
		NewVirtualBase:  newVirtualBase,
		PriceImpact:     priceImpact(float64(toCurve), float64(baseOut), SpotPrice(virtualBase, virtualQuote)),
	}, nil
}

// QuoteSell prices a sell of baseIn token base units against virtual
// reserves. The constant-product formula is applied on the base leg; the
// gross proceeds are then capped at realQuote (the cap is signaled, not an
// error) and the fee is deducted from the capped gross. The caller decides
// whether to reject or proceed at capped size.
func QuoteSell(baseIn, virtualBase, virtualQuote, realQuote, feeBps uint64) (SellQuote, error) {
	if baseIn == 0 {
		return SellQuote{}, ErrInvalidAmount
	}

	kHi, kLo := bits.Mul64(virtualBase, virtualQuote)
	newVirtualBase, carry := bits.Add64(virtualBase, baseIn, 0)
	if carry != 0 {
		return SellQuote{}, ErrInvalidAmount
	}
	newVirtualQuote, _ := bits.Div64(kHi, kLo, newVirtualBase)
	gross := virtualQuote - newVirtualQuote

	capped := false
	if gross > realQuote {
		gross = realQuote
		capped = true
	}

	fee := feeOf(gross, feeBps)
	net := gross - fee

	return SellQuote{
		QuoteOut:        net,
		GrossQuote:      gross,
		Fee:             fee,
		Capped:          capped,
		NewVirtualQuote: newVirtualQuote,
		NewVirtualBase:  newVirtualBase,
		PriceImpact:     priceImpact(float64(gross), float64(baseIn), SpotPrice(virtualBase, virtualQuote)),
	}, nil
}

// SpotPrice returns the marginal price in lamports per base unit.
func SpotPrice(virtualBase, virtualQuote uint64) float64 {
	if virtualBase == 0 {
		return 0
	}
	return float64(virtualQuote) / float64(virtualBase)
}

// MarketCap returns the fully diluted valuation in lamports.
func MarketCap(price float64, totalSupply uint64) float64 {
	return price * float64(totalSupply)
}

// GraduationProgress returns how far realQuote is toward the graduation
// threshold, as a percentage clamped to [0, 100].
func GraduationProgress(realQuote, threshold uint64) float64 {
	if threshold == 0 || realQuote >= threshold {
		return 100
	}
	return float64(realQuote) / float64(threshold) * 100
}

// priceImpact returns the deviation of the average execution price from the
// spot price, as a percentage. Display-layer only.
func priceImpact(quoteLeg, baseLeg, spot float64) float64 {
	if baseLeg == 0 || spot == 0 {
		return 0
	}
	avg := quoteLeg / baseLeg
	impact := (avg - spot) / spot * 100
	if impact < 0 {
		impact = -impact
	}
	return impact
}

// Package pricing provides tick rounding and price band helpers for
// binary-outcome markets where prices are probabilities in (0,1).
package pricing

import (
	"github.com/shopspring/decimal"
)

// RoundToTick rounds x to the nearest multiple of tick and clamps the
// result into [tick, 1-tick]. A non-positive tick returns x unchanged.
func RoundToTick(x, tick decimal.Decimal) decimal.Decimal {
	if tick.LessThanOrEqual(decimal.Zero) {
		return x
	}

	v := x.Div(tick).Round(0).Mul(tick)

	lo := tick
	hi := decimal.NewFromInt(1).Sub(tick)
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// InBand reports whether x lies in [lo, hi], inclusive on both ends.
func InBand(x, lo, hi decimal.Decimal) bool {
	return x.GreaterThanOrEqual(lo) && x.LessThanOrEqual(hi)
}

// SpreadOK reports whether a bid/ask pair forms a sane book with a
// spread no wider than maxSpread. Missing sides or a crossed book
// (ask < bid) fail the check.
func SpreadOK(bid, ask decimal.NullDecimal, maxSpread decimal.Decimal) bool {
	if !bid.Valid || !ask.Valid {
		return false
	}
	if ask.Decimal.LessThan(bid.Decimal) {
		return false
	}
	return ask.Decimal.Sub(bid.Decimal).LessThanOrEqual(maxSpread)
}

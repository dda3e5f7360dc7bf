// Package risk holds bracket parameters and the adaptive bet sizer.
package risk

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/polyscalp/polyscalp/internal/pricing"
)

// ScalpRisk groups the bracket and sizing parameters for the scalper.
type ScalpRisk struct {
	// Brackets, applied to the entry fill price.
	TPPct decimal.Decimal
	SLPct decimal.Decimal

	// Dynamic bet sizing as a fraction of balance.
	BetFracStart decimal.Decimal
	BetFracStep  decimal.Decimal
	BetFracMin   decimal.Decimal
	BetFracMax   decimal.Decimal

	// Hard cap on a single stake, in account currency.
	StakeCap decimal.Decimal

	// Price tick (Polymarket is 1c).
	Tick decimal.Decimal
}

// DefaultScalpRisk returns the stock parameters.
func DefaultScalpRisk() ScalpRisk {
	return ScalpRisk{
		TPPct:        decimal.NewFromFloat(0.10),
		SLPct:        decimal.NewFromFloat(0.10),
		BetFracStart: decimal.NewFromFloat(0.50),
		BetFracStep:  decimal.NewFromFloat(0.01),
		BetFracMin:   decimal.NewFromFloat(0.01),
		BetFracMax:   decimal.NewFromFloat(0.50),
		StakeCap:     decimal.NewFromInt(1000),
		Tick:         decimal.NewFromFloat(0.01),
	}
}

// BracketPrices computes the take-profit / stop-loss pair for a fill,
// tick-rounded and clamped into the valid price range.
func BracketPrices(fillPrice decimal.Decimal, r ScalpRisk) (tp, sl decimal.Decimal) {
	one := decimal.NewFromInt(1)
	tp = pricing.RoundToTick(fillPrice.Mul(one.Add(r.TPPct)), r.Tick)
	sl = pricing.RoundToTick(fillPrice.Mul(one.Sub(r.SLPct)), r.Tick)
	return tp, sl
}

// DynamicSizer steps a single bet fraction after each closed trade:
// shrink after a win, grow after a loss, bounded both ways. The
// fraction is in-process state only; it restarts from BetFracStart on
// every process start while the ledger's cash persists.
type DynamicSizer struct {
	mu      sync.Mutex
	risk    ScalpRisk
	betFrac decimal.Decimal
}

// NewDynamicSizer creates a sizer starting at BetFracStart.
func NewDynamicSizer(r ScalpRisk) *DynamicSizer {
	return &DynamicSizer{risk: r, betFrac: r.BetFracStart}
}

// Stake returns min(balance * fraction, cap).
func (s *DynamicSizer) Stake(balance decimal.Decimal) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	stake := balance.Mul(s.betFrac)
	if stake.GreaterThan(s.risk.StakeCap) {
		return s.risk.StakeCap
	}
	return stake
}

// OnTradeClosed adjusts the fraction by one step: down on a win
// (floored at min), up on a loss (capped at max).
func (s *DynamicSizer) OnTradeClosed(won bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if won {
		s.betFrac = s.betFrac.Sub(s.risk.BetFracStep)
		if s.betFrac.LessThan(s.risk.BetFracMin) {
			s.betFrac = s.risk.BetFracMin
		}
	} else {
		s.betFrac = s.betFrac.Add(s.risk.BetFracStep)
		if s.betFrac.GreaterThan(s.risk.BetFracMax) {
			s.betFrac = s.risk.BetFracMax
		}
	}
}

// Fraction returns the current bet fraction.
func (s *DynamicSizer) Fraction() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.betFrac
}

package risk

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestBracketPrices(t *testing.T) {
	r := DefaultScalpRisk()

	tp, sl := BracketPrices(d("0.80"), r)
	if !tp.Equal(d("0.88")) {
		t.Fatalf("tp: got %s want 0.88", tp)
	}
	if !sl.Equal(d("0.72")) {
		t.Fatalf("sl: got %s want 0.72", sl)
	}
}

func TestBracketPricesClamped(t *testing.T) {
	r := DefaultScalpRisk()

	// a 0.95 fill would bracket above 1.0; must clamp to 1-tick
	tp, _ := BracketPrices(d("0.95"), r)
	if !tp.Equal(d("0.99")) {
		t.Fatalf("tp not clamped: got %s want 0.99", tp)
	}
}

func TestSizerStake(t *testing.T) {
	r := DefaultScalpRisk()
	s := NewDynamicSizer(r)

	// 500 * 0.50 = 250, below the cap
	if got := s.Stake(d("500")); !got.Equal(d("250")) {
		t.Fatalf("stake: got %s want 250", got)
	}

	// 10000 * 0.50 = 5000, capped at 1000
	if got := s.Stake(d("10000")); !got.Equal(d("1000")) {
		t.Fatalf("capped stake: got %s want 1000", got)
	}
}

func TestSizerStepsAndBounds(t *testing.T) {
	r := DefaultScalpRisk()
	s := NewDynamicSizer(r)

	s.OnTradeClosed(true)
	if got := s.Fraction(); !got.Equal(d("0.49")) {
		t.Fatalf("after win: got %s want 0.49", got)
	}
	s.OnTradeClosed(false)
	if got := s.Fraction(); !got.Equal(d("0.50")) {
		t.Fatalf("after loss: got %s want 0.50", got)
	}

	// long loss streak must never push the fraction above max
	for i := 0; i < 200; i++ {
		s.OnTradeClosed(false)
	}
	if got := s.Fraction(); !got.Equal(r.BetFracMax) {
		t.Fatalf("loss streak: got %s want %s", got, r.BetFracMax)
	}

	// long win streak must never push it below min
	for i := 0; i < 200; i++ {
		s.OnTradeClosed(true)
	}
	if got := s.Fraction(); !got.Equal(r.BetFracMin) {
		t.Fatalf("win streak: got %s want %s", got, r.BetFracMin)
	}
}

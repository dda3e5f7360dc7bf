package book

import (
	"testing"

	"github.com/shopspring/decimal"
)

func nd(s string) decimal.NullDecimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return decimal.NullDecimal{Decimal: v, Valid: true}
}

func TestSetRoundsToTick(t *testing.T) {
	s := NewStore(decimal.NewFromFloat(0.01))
	s.Set("tok", nd("0.8234"), nd("0.8367"))

	top, ok := s.Top("tok")
	if !ok {
		t.Fatal("asset missing after Set")
	}
	if !top.Bid.Decimal.Equal(decimal.NewFromFloat(0.82)) {
		t.Fatalf("bid not tick-rounded: %s", top.Bid.Decimal)
	}
	if !top.Ask.Decimal.Equal(decimal.NewFromFloat(0.84)) {
		t.Fatalf("ask not tick-rounded: %s", top.Ask.Decimal)
	}
}

func TestMissingSidesStayAbsent(t *testing.T) {
	s := NewStore(decimal.NewFromFloat(0.01))
	s.Set("tok", nd("0.50"), decimal.NullDecimal{})

	top, _ := s.Top("tok")
	if !top.Bid.Valid || top.Ask.Valid {
		t.Fatalf("want bid present / ask absent, got bid=%v ask=%v", top.Bid.Valid, top.Ask.Valid)
	}
	if _, ok := top.Mid(); ok {
		t.Fatal("Mid must report not-ok with one side absent")
	}
}

func TestResetPreSeeds(t *testing.T) {
	s := NewStore(decimal.NewFromFloat(0.01))
	s.Set("old", nd("0.40"), nd("0.41"))

	s.Reset("yes", "no")

	if _, ok := s.Top("old"); ok {
		t.Fatal("stale asset survived Reset")
	}
	top, ok := s.Top("yes")
	if !ok {
		t.Fatal("pre-seeded asset missing")
	}
	if top.Bid.Valid || top.Ask.Valid {
		t.Fatal("pre-seeded top must have no prices yet")
	}
}

func TestMid(t *testing.T) {
	s := NewStore(decimal.NewFromFloat(0.01))
	s.Set("tok", nd("0.80"), nd("0.82"))

	top, _ := s.Top("tok")
	mid, ok := top.Mid()
	if !ok || !mid.Equal(decimal.NewFromFloat(0.81)) {
		t.Fatalf("mid: got %s ok=%v, want 0.81", mid, ok)
	}
}

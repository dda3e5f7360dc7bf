// Package book holds the shared top-of-book state written by the market
// data feed and read by the trading loop and the paper ledger.
//
// The store replaces an implicit global price map: exactly one writer
// (the feed goroutine) calls Set, everything else only reads.
package book

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyscalp/polyscalp/internal/pricing"
)

// Top is the best bid/ask for one asset. Sides are absent until the
// feed has delivered data, and tick-rounded once present.
type Top struct {
	Bid       decimal.NullDecimal
	Ask       decimal.NullDecimal
	UpdatedAt time.Time
}

// Mid returns the midpoint price. ok is false while either side is
// missing.
func (t Top) Mid() (decimal.Decimal, bool) {
	if !t.Bid.Valid || !t.Ask.Valid {
		return decimal.Decimal{}, false
	}
	return t.Bid.Decimal.Add(t.Ask.Decimal).Div(decimal.NewFromInt(2)), true
}

// Store is a mutex-guarded asset -> Top map.
type Store struct {
	mu   sync.RWMutex
	tick decimal.Decimal
	tops map[string]Top
}

// NewStore creates an empty store. Prices written through Set are
// rounded to tick.
func NewStore(tick decimal.Decimal) *Store {
	return &Store{
		tick: tick,
		tops: make(map[string]Top),
	}
}

// Set records the latest top of book for an asset. Valid sides are
// tick-rounded; invalid sides stay absent.
func (s *Store) Set(assetID string, bid, ask decimal.NullDecimal) {
	if bid.Valid {
		bid.Decimal = pricing.RoundToTick(bid.Decimal, s.tick)
	}
	if ask.Valid {
		ask.Decimal = pricing.RoundToTick(ask.Decimal, s.tick)
	}

	s.mu.Lock()
	s.tops[assetID] = Top{Bid: bid, Ask: ask, UpdatedAt: time.Now()}
	s.mu.Unlock()
}

// Top returns the last known top of book for an asset.
func (s *Store) Top(assetID string) (Top, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tops[assetID]
	return t, ok
}

// Reset clears the store and pre-seeds empty entries for the given
// assets. Called on window rotation so stale quotes from the previous
// market never leak into the new one.
func (s *Store) Reset(assetIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tops = make(map[string]Top, len(assetIDs))
	for _, id := range assetIDs {
		s.tops[id] = Top{}
	}
}

// Assets returns the ids currently tracked.
func (s *Store) Assets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.tops))
	for id := range s.tops {
		out = append(out, id)
	}
	return out
}

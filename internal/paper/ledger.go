// Package paper implements the simulated execution engine the scalper
// trades against: resting limit orders filled against an external
// top-of-book feed, a single-currency cash/inventory ledger, and
// realized/unrealized P&L tracking.
//
// The fill model is intentionally simple: same-price touch fills only,
// no price improvement, no depth, no resting partials. A sell for more
// shares than held silently truncates to the held amount.
package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polyscalp/polyscalp/internal/book"
	"github.com/polyscalp/polyscalp/internal/types"
)

// Books is the read side of the shared top-of-book store.
type Books interface {
	Top(assetID string) (book.Top, bool)
}

// Config holds ledger settings.
type Config struct {
	StartCash decimal.Decimal
	// FillDelay is the minimum age an order must reach before the
	// sweep will consider filling it, simulating exchange latency.
	FillDelay time.Duration
	Tick      decimal.Decimal

	// StatePath is the JSON state file. Empty disables persistence.
	StatePath string
	// SaveDebounce merges bursts of state-changing operations into at
	// most one pending write. Zero means the 500ms default.
	SaveDebounce time.Duration
}

// DefaultConfig returns the stock paper-trading settings.
func DefaultConfig() Config {
	return Config{
		StartCash:    decimal.NewFromInt(500),
		FillDelay:    time.Second,
		Tick:         decimal.NewFromFloat(0.01),
		SaveDebounce: 500 * time.Millisecond,
	}
}

type order struct {
	id           string
	assetID      string
	side         string // "buy" or "sell"
	price        decimal.Decimal
	size         decimal.Decimal
	postOnly     bool
	status       types.OrderStatus
	createdAt    time.Time
	filledAt     *time.Time
	avgFillPrice decimal.NullDecimal
}

// Ledger is the paper execution engine. The trading loop is the only
// mutator; status readers take snapshots between steps.
type Ledger struct {
	mu    sync.Mutex
	cfg   Config
	books Books

	cash     decimal.Decimal
	inv      map[string]decimal.Decimal // asset -> shares, never negative
	avgCost  map[string]decimal.Decimal // asset -> avg price, 0 when flat
	realized decimal.Decimal
	wins     int
	losses   int

	orders   map[string]*order
	seq      int64
	lastSave time.Time
}

// New creates a ledger, loading prior durable state when present. A
// missing or corrupt state file starts fresh and is never fatal.
func New(cfg Config, books Books) *Ledger {
	if cfg.SaveDebounce <= 0 {
		cfg.SaveDebounce = 500 * time.Millisecond
	}
	l := &Ledger{
		cfg:     cfg,
		books:   books,
		cash:    cfg.StartCash,
		inv:     make(map[string]decimal.Decimal),
		avgCost: make(map[string]decimal.Decimal),
		orders:  make(map[string]*order),
	}
	l.loadState()
	return l
}

// PlaceEntryBuy rests a post-only limit buy. No immediate matching.
func (l *Ledger) PlaceEntryBuy(_ context.Context, assetID string, price, size decimal.Decimal) (string, error) {
	return l.place(assetID, "buy", price, size, true), nil
}

// PlaceExitSell rests a limit sell. postOnly false marks a marketable
// (stop-loss) exit; it is a simulation flag only.
func (l *Ledger) PlaceExitSell(_ context.Context, assetID string, price, size decimal.Decimal, postOnly bool) (string, error) {
	return l.place(assetID, "sell", price, size, postOnly), nil
}

// Cancel marks an open order canceled. Unknown or already terminal
// orders are a no-op.
func (l *Ledger) Cancel(_ context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.orders[orderID]
	if !ok || o.status != types.OrderOpen {
		return nil
	}
	o.status = types.OrderCanceled
	l.saveLocked(false)
	return nil
}

// GetOrder runs a fill sweep and returns a snapshot. Unrecognized ids
// return a snapshot with OrderUnknown status, never an error.
func (l *Ledger) GetOrder(_ context.Context, orderID string) (types.OrderSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(time.Now())

	o, ok := l.orders[orderID]
	if !ok {
		return types.OrderSnapshot{ID: orderID, Status: types.OrderUnknown}, nil
	}
	return snapshotOf(o), nil
}

// Balance runs a fill sweep and returns cash plus inventory marked to
// mid. Assets with a one-sided or missing book are skipped.
func (l *Ledger) Balance(_ context.Context) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(time.Now())
	return l.equityLocked(), nil
}

func (l *Ledger) place(assetID, side string, price, size decimal.Decimal, postOnly bool) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	o := &order{
		id:        fmt.Sprintf("ord_%d_%d", time.Now().UnixNano(), l.seq),
		assetID:   assetID,
		side:      side,
		price:     price,
		size:      size,
		postOnly:  postOnly,
		status:    types.OrderOpen,
		createdAt: time.Now(),
	}
	l.orders[o.id] = o

	log.Debug().
		Str("order_id", o.id).
		Str("asset", assetID).
		Str("side", side).
		Str("price", price.String()).
		Str("size", size.String()).
		Msg("📝 Paper order placed")

	l.saveLocked(false)
	return o.id
}

// sweepLocked fills aged open orders against the current top of book.
// Runs lazily before every state-observing call; there is no timer.
func (l *Ledger) sweepLocked(now time.Time) {
	changed := false

	for _, o := range l.orders {
		if o.status != types.OrderOpen {
			continue
		}
		if now.Sub(o.createdAt) < l.cfg.FillDelay {
			continue
		}

		top, ok := l.books.Top(o.assetID)
		if !ok || !top.Bid.Valid || !top.Ask.Valid {
			continue
		}
		bid := top.Bid.Decimal

		switch o.side {
		case "buy":
			if l.fillBuyLocked(o, bid, now) {
				changed = true
			}
		case "sell":
			if l.fillSellLocked(o, bid, now) {
				changed = true
			}
		}
	}

	if changed {
		l.saveLocked(false)
	}
}

// fillBuyLocked fills a buy when the posted price sits at the touch
// (within half a tick of the bid) and cash covers the cost.
func (l *Ledger) fillBuyLocked(o *order, bid decimal.Decimal, now time.Time) bool {
	halfTick := l.cfg.Tick.Div(decimal.NewFromInt(2))
	if o.price.Sub(bid).Abs().GreaterThan(halfTick) {
		return false
	}

	cost := o.price.Mul(o.size)
	if cost.GreaterThan(l.cash) {
		return false
	}

	l.cash = l.cash.Sub(cost)

	prevQty := l.inv[o.assetID]
	prevCost := l.avgCost[o.assetID]
	newQty := prevQty.Add(o.size)
	l.inv[o.assetID] = newQty
	l.avgCost[o.assetID] = prevQty.Mul(prevCost).Add(o.size.Mul(o.price)).Div(newQty)

	l.markFilled(o, now)

	log.Debug().
		Str("order_id", o.id).
		Str("asset", o.assetID).
		Str("price", o.price.String()).
		Str("qty", o.size.String()).
		Msg("✅ Paper buy filled")
	return true
}

// fillSellLocked fills a sell when the bid has reached the order
// price, truncating silently to the held inventory.
func (l *Ledger) fillSellLocked(o *order, bid decimal.Decimal, now time.Time) bool {
	if bid.LessThan(o.price) {
		return false
	}

	have := l.inv[o.assetID]
	sellQty := o.size
	if have.LessThan(sellQty) {
		sellQty = have
	}
	if !sellQty.IsPositive() {
		return false
	}

	cost := l.avgCost[o.assetID]
	delta := sellQty.Mul(o.price.Sub(cost))
	l.realized = l.realized.Add(delta)
	switch {
	case delta.IsPositive():
		l.wins++
	case delta.IsNegative():
		l.losses++
	}

	l.inv[o.assetID] = have.Sub(sellQty)
	l.cash = l.cash.Add(o.price.Mul(sellQty))

	if !l.inv[o.assetID].IsPositive() {
		l.inv[o.assetID] = decimal.Zero
		l.avgCost[o.assetID] = decimal.Zero
	}

	l.markFilled(o, now)

	log.Debug().
		Str("order_id", o.id).
		Str("asset", o.assetID).
		Str("price", o.price.String()).
		Str("qty", sellQty.String()).
		Str("pnl", delta.String()).
		Msg("✅ Paper sell filled")
	return true
}

func (l *Ledger) markFilled(o *order, now time.Time) {
	o.status = types.OrderFilled
	t := now
	o.filledAt = &t
	o.avgFillPrice = decimal.NullDecimal{Decimal: o.price, Valid: true}
}

func (l *Ledger) equityLocked() decimal.Decimal {
	eq := l.cash
	for assetID, qty := range l.inv {
		if !qty.IsPositive() {
			continue
		}
		top, ok := l.books.Top(assetID)
		if !ok {
			continue
		}
		mid, ok := top.Mid()
		if !ok {
			continue
		}
		eq = eq.Add(qty.Mul(mid))
	}
	return eq
}

func (l *Ledger) unrealizedLocked() decimal.Decimal {
	upnl := decimal.Zero
	for assetID, qty := range l.inv {
		if !qty.IsPositive() {
			continue
		}
		top, ok := l.books.Top(assetID)
		if !ok {
			continue
		}
		mid, ok := top.Mid()
		if !ok {
			continue
		}
		upnl = upnl.Add(qty.Mul(mid.Sub(l.avgCost[assetID])))
	}
	return upnl
}

func snapshotOf(o *order) types.OrderSnapshot {
	return types.OrderSnapshot{
		ID:           o.id,
		AssetID:      o.assetID,
		Side:         o.side,
		Price:        o.price,
		Size:         o.size,
		PostOnly:     o.postOnly,
		Status:       o.status,
		CreatedAt:    o.createdAt,
		FilledAt:     o.filledAt,
		AvgFillPrice: o.avgFillPrice,
	}
}

// PnL is the realized/unrealized breakdown.
type PnL struct {
	Realized   decimal.Decimal
	Unrealized decimal.Decimal
	Total      decimal.Decimal
}

// Stats holds win/loss counters. WinRate is absent until a trade has
// closed.
type Stats struct {
	Wins    int
	Losses  int
	WinRate decimal.NullDecimal
}

// PositionView is one non-flat inventory line.
type PositionView struct {
	AssetID  string
	Shares   decimal.Decimal
	AvgPrice decimal.Decimal
}

// OpenOrderView is one resting order.
type OpenOrderView struct {
	ID      string
	AssetID string
	Side    string
	Price   decimal.Decimal
	Shares  decimal.Decimal
	Age     time.Duration
}

// Snapshot is the full observable ledger state.
type Snapshot struct {
	Cash       decimal.Decimal
	Equity     decimal.Decimal
	PnL        PnL
	Stats      Stats
	Positions  []PositionView
	OpenOrders []OpenOrderView
}

// Snapshot runs a fill sweep and returns the current state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.sweepLocked(now)

	unreal := l.unrealizedLocked()
	snap := Snapshot{
		Cash:   l.cash,
		Equity: l.equityLocked(),
		PnL: PnL{
			Realized:   l.realized,
			Unrealized: unreal,
			Total:      l.realized.Add(unreal),
		},
		Stats: Stats{Wins: l.wins, Losses: l.losses},
	}
	if total := l.wins + l.losses; total > 0 {
		rate := decimal.NewFromInt(int64(l.wins)).Div(decimal.NewFromInt(int64(total)))
		snap.Stats.WinRate = decimal.NullDecimal{Decimal: rate, Valid: true}
	}

	for assetID, qty := range l.inv {
		if qty.IsZero() {
			continue
		}
		snap.Positions = append(snap.Positions, PositionView{
			AssetID:  assetID,
			Shares:   qty,
			AvgPrice: l.avgCost[assetID],
		})
	}

	for _, o := range l.orders {
		if o.status != types.OrderOpen {
			continue
		}
		snap.OpenOrders = append(snap.OpenOrders, OpenOrderView{
			ID:      o.id,
			AssetID: o.assetID,
			Side:    o.side,
			Price:   o.price,
			Shares:  o.size,
			Age:     now.Sub(o.createdAt),
		})
	}
	sort.Slice(snap.OpenOrders, func(i, j int) bool {
		return snap.OpenOrders[i].Age > snap.OpenOrders[j].Age
	})

	return snap
}

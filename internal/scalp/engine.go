// Package scalp drives one market window through the entry / bracket /
// exit cycle.
//
// The engine is a single-position state machine: NoPosition ->
// EntryPending -> Filled -> NoPosition. It owns exactly one MarketSpec
// and is discarded wholesale on rotation. Missing book data stalls the
// machine at its current state; it is treated as "wait", not an error.
package scalp

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polyscalp/polyscalp/internal/book"
	"github.com/polyscalp/polyscalp/internal/pricing"
	"github.com/polyscalp/polyscalp/internal/risk"
	"github.com/polyscalp/polyscalp/internal/types"
)

// Execution is the order interface the engine trades through. The
// paper ledger implements it; a live adapter would too.
type Execution interface {
	PlaceEntryBuy(ctx context.Context, assetID string, price, size decimal.Decimal) (string, error)
	PlaceExitSell(ctx context.Context, assetID string, price, size decimal.Decimal, postOnly bool) (string, error)
	Cancel(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (types.OrderSnapshot, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// Books is the read side of the shared top-of-book store.
type Books interface {
	Top(assetID string) (book.Top, bool)
}

// EntryRules gate when the engine opens a position.
type EntryRules struct {
	// Entry band on the bid price.
	PriceMin decimal.Decimal
	PriceMax decimal.Decimal
	// Maximum bid/ask spread to consider a side tradable.
	MaxSpread decimal.Decimal
	// Only enter once the window is within this much of expiry.
	TTEMax time.Duration
	// Cancel an unfilled entry after this long.
	EntryTTL time.Duration
	// Floor on order quantity so a tiny stake never posts a zero-size
	// order.
	MinQty decimal.Decimal

	// Stop-loss exit polling: bounded, cancellable waits rather than
	// hardcoded loop counts.
	ExitPollInterval time.Duration
	ExitPollMax      int
}

// DefaultEntryRules returns the stock scalp parameters.
func DefaultEntryRules() EntryRules {
	return EntryRules{
		PriceMin:         decimal.NewFromFloat(0.81),
		PriceMax:         decimal.NewFromFloat(0.85),
		MaxSpread:        decimal.NewFromFloat(0.01),
		TTEMax:           7 * time.Minute,
		EntryTTL:         20 * time.Second,
		MinQty:           decimal.NewFromFloat(0.0001),
		ExitPollInterval: 200 * time.Millisecond,
		ExitPollMax:      10,
	}
}

// ClosedTrade describes one finished round trip. Entry orders canceled
// before filling close no trade and emit nothing.
type ClosedTrade struct {
	Market     types.MarketSpec
	Side       types.Side
	AssetID    string
	Qty        decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Won        bool
	OpenedAt   time.Time
	ClosedAt   time.Time
}

type position struct {
	side           types.Side
	assetID        string
	qty            decimal.Decimal
	entryOrderID   string
	entryPostPrice decimal.Decimal
	entryAt        time.Time

	fillPrice decimal.NullDecimal
	tpPrice   decimal.Decimal
	slPrice   decimal.Decimal
	tpOrderID string
}

// Engine is the per-window scalper.
type Engine struct {
	exec   Execution
	books  Books
	market types.MarketSpec
	rules  EntryRules
	risk   risk.ScalpRisk
	sizer  *risk.DynamicSizer

	pos      *position
	onClosed func(ClosedTrade)
}

// New creates an engine for one window. The sizer is shared across
// windows so its bet fraction carries over on rotation.
func New(exec Execution, books Books, market types.MarketSpec, rules EntryRules, r risk.ScalpRisk, sizer *risk.DynamicSizer) *Engine {
	return &Engine{
		exec:   exec,
		books:  books,
		market: market,
		rules:  rules,
		risk:   r,
		sizer:  sizer,
	}
}

// SetTradeClosedCallback registers a callback fired after every closed
// round trip.
func (e *Engine) SetTradeClosedCallback(cb func(ClosedTrade)) {
	e.onClosed = cb
}

// Market returns the window this engine owns.
func (e *Engine) Market() types.MarketSpec { return e.market }

// HasPosition reports whether an entry order or position is live.
func (e *Engine) HasPosition() bool { return e.pos != nil }

// PositionView is the observable slice of the open position.
type PositionView struct {
	Side       types.Side
	AssetID    string
	Qty        decimal.Decimal
	PostPrice  decimal.Decimal
	FillPrice  decimal.NullDecimal
	TPPrice    decimal.Decimal
	SLPrice    decimal.Decimal
	EnteredAt  time.Time
}

// Position returns the current position, if any.
func (e *Engine) Position() (PositionView, bool) {
	if e.pos == nil {
		return PositionView{}, false
	}
	return PositionView{
		Side:      e.pos.side,
		AssetID:   e.pos.assetID,
		Qty:       e.pos.qty,
		PostPrice: e.pos.entryPostPrice,
		FillPrice: e.pos.fillPrice,
		TPPrice:   e.pos.tpPrice,
		SLPrice:   e.pos.slPrice,
		EnteredAt: e.pos.entryAt,
	}, true
}

// Step advances the state machine once. Called on a fixed cadence by
// the rotation loop; never concurrently.
func (e *Engine) Step(ctx context.Context) {
	yes, okYes := e.books.Top(e.market.YesAsset)
	no, okNo := e.books.Top(e.market.NoAsset)

	// wait for full books on both assets before doing anything
	if !okYes || !okNo ||
		!yes.Bid.Valid || !yes.Ask.Valid || !no.Bid.Valid || !no.Ask.Valid {
		return
	}

	if e.pos == nil {
		e.tryEnter(ctx, e.market.TTE(time.Now()), yes, no)
		return
	}
	e.manage(ctx)
}

// pickEntrySide applies the price-only entry rules: a side is eligible
// when its spread is tight and its bid sits inside the band. When both
// sides qualify, the bid closer to the band midpoint wins, YES on a
// tie.
func pickEntrySide(tte time.Duration, yes, no book.Top, rules EntryRules) (types.Side, decimal.Decimal, bool) {
	if tte > rules.TTEMax {
		return "", decimal.Decimal{}, false
	}

	yesOK := pricing.SpreadOK(yes.Bid, yes.Ask, rules.MaxSpread) &&
		pricing.InBand(yes.Bid.Decimal, rules.PriceMin, rules.PriceMax)
	noOK := pricing.SpreadOK(no.Bid, no.Ask, rules.MaxSpread) &&
		pricing.InBand(no.Bid.Decimal, rules.PriceMin, rules.PriceMax)

	switch {
	case yesOK && noOK:
		mid := rules.PriceMin.Add(rules.PriceMax).Div(decimal.NewFromInt(2))
		if yes.Bid.Decimal.Sub(mid).Abs().LessThanOrEqual(no.Bid.Decimal.Sub(mid).Abs()) {
			return types.SideYes, yes.Bid.Decimal, true
		}
		return types.SideNo, no.Bid.Decimal, true
	case yesOK:
		return types.SideYes, yes.Bid.Decimal, true
	case noOK:
		return types.SideNo, no.Bid.Decimal, true
	}
	return "", decimal.Decimal{}, false
}

func (e *Engine) tryEnter(ctx context.Context, tte time.Duration, yes, no book.Top) {
	side, limitPx, ok := pickEntrySide(tte, yes, no, e.rules)
	if !ok {
		return
	}

	balance, err := e.exec.Balance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("balance check failed, holding off entry")
		return
	}
	stake := e.sizer.Stake(balance)

	qty := stake.Div(limitPx)
	if qty.LessThan(e.rules.MinQty) {
		qty = e.rules.MinQty
	}

	assetID := e.market.AssetFor(side)
	oid, err := e.exec.PlaceEntryBuy(ctx, assetID, limitPx, qty)
	if err != nil {
		log.Warn().Err(err).Msg("entry order failed")
		return
	}

	e.pos = &position{
		side:           side,
		assetID:        assetID,
		qty:            qty,
		entryOrderID:   oid,
		entryPostPrice: limitPx,
		entryAt:        time.Now(),
	}

	log.Info().
		Str("side", string(side)).
		Str("asset", assetID).
		Str("price", limitPx.StringFixed(2)).
		Str("qty", qty.StringFixed(4)).
		Str("stake", stake.StringFixed(2)).
		Str("bet_frac", e.sizer.Fraction().StringFixed(2)).
		Msg("🎯 Entry posted")
}

func (e *Engine) manage(ctx context.Context) {
	pos := e.pos

	// EntryPending: waiting for the entry fill
	if !pos.fillPrice.Valid {
		if time.Since(pos.entryAt) > e.rules.EntryTTL {
			e.exec.Cancel(ctx, pos.entryOrderID)
			log.Info().
				Str("side", string(pos.side)).
				Str("asset", pos.assetID).
				Msg("⏱️ Entry canceled on TTL")
			e.pos = nil
			return
		}

		st, err := e.exec.GetOrder(ctx, pos.entryOrderID)
		if err != nil || st.Status != types.OrderFilled {
			// unknown status counts as still pending
			return
		}

		fillPx := pos.entryPostPrice
		if st.AvgFillPrice.Valid {
			fillPx = st.AvgFillPrice.Decimal
		}
		pos.fillPrice = decimal.NullDecimal{Decimal: fillPx, Valid: true}
		pos.tpPrice, pos.slPrice = risk.BracketPrices(fillPx, e.risk)

		tpID, err := e.exec.PlaceExitSell(ctx, pos.assetID, pos.tpPrice, pos.qty, true)
		if err != nil {
			log.Warn().Err(err).Msg("TP placement failed, will retry next step")
			pos.fillPrice = decimal.NullDecimal{}
			return
		}
		pos.tpOrderID = tpID

		log.Info().
			Str("side", string(pos.side)).
			Str("fill", fillPx.StringFixed(2)).
			Str("tp", pos.tpPrice.StringFixed(2)).
			Str("sl", pos.slPrice.StringFixed(2)).
			Msg("✅ Entry filled, bracket armed")
		return
	}

	// Filled: did the TP go?
	if pos.tpOrderID != "" {
		st, err := e.exec.GetOrder(ctx, pos.tpOrderID)
		if err == nil && st.Status == types.OrderFilled {
			log.Info().Str("side", string(pos.side)).Str("tp", pos.tpPrice.StringFixed(2)).Msg("🏆 TP hit")
			e.closeTrade(true, pos.tpPrice)
			return
		}
	}

	// Stop-loss trigger on the bid
	top, ok := e.books.Top(pos.assetID)
	if !ok || !top.Bid.Valid {
		return
	}
	bid := top.Bid.Decimal
	if bid.GreaterThan(pos.slPrice) {
		return
	}

	e.exitStopLoss(ctx, bid)
}

// exitStopLoss cancels the TP (avoiding a double sell) and exits via a
// marketable limit sell at the bid, repricing once if the first
// attempt does not fill within the polling budget.
func (e *Engine) exitStopLoss(ctx context.Context, bid decimal.Decimal) {
	pos := e.pos

	if pos.tpOrderID != "" {
		e.exec.Cancel(ctx, pos.tpOrderID)
	}

	exitPx := bid
	filled := false
	if oid, err := e.exec.PlaceExitSell(ctx, pos.assetID, bid, pos.qty, false); err == nil {
		filled = e.waitForFill(ctx, oid)
	}

	if !filled {
		if top, ok := e.books.Top(pos.assetID); ok && top.Bid.Valid {
			exitPx = top.Bid.Decimal
			if oid, err := e.exec.PlaceExitSell(ctx, pos.assetID, exitPx, pos.qty, false); err == nil {
				e.waitForFill(ctx, oid)
			}
		}
	}

	log.Info().
		Str("side", string(pos.side)).
		Str("exit", exitPx.StringFixed(2)).
		Str("sl", pos.slPrice.StringFixed(2)).
		Msg("🛑 SL exit")
	e.closeTrade(false, exitPx)
}

// waitForFill polls an order up to ExitPollMax times, observing ctx
// between polls so shutdown never hangs on an exit.
func (e *Engine) waitForFill(ctx context.Context, orderID string) bool {
	for i := 0; i < e.rules.ExitPollMax; i++ {
		st, err := e.exec.GetOrder(ctx, orderID)
		if err == nil && st.Status == types.OrderFilled {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(e.rules.ExitPollInterval):
		}
	}
	return false
}

func (e *Engine) closeTrade(won bool, exitPx decimal.Decimal) {
	pos := e.pos
	e.pos = nil

	e.sizer.OnTradeClosed(won)

	if e.onClosed != nil {
		entry := pos.entryPostPrice
		if pos.fillPrice.Valid {
			entry = pos.fillPrice.Decimal
		}
		e.onClosed(ClosedTrade{
			Market:     e.market,
			Side:       pos.side,
			AssetID:    pos.assetID,
			Qty:        pos.qty,
			EntryPrice: entry,
			ExitPrice:  exitPx,
			Won:        won,
			OpenedAt:   pos.entryAt,
			ClosedAt:   time.Now(),
		})
	}
}

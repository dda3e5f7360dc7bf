package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polyscalp/polyscalp/internal/book"
	"github.com/polyscalp/polyscalp/internal/feed"
	"github.com/polyscalp/polyscalp/internal/journal"
	"github.com/polyscalp/polyscalp/internal/notify"
	"github.com/polyscalp/polyscalp/internal/paper"
	"github.com/polyscalp/polyscalp/internal/risk"
	"github.com/polyscalp/polyscalp/internal/scalp"
	"github.com/polyscalp/polyscalp/internal/scanner"
	"github.com/polyscalp/polyscalp/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ROTATION LOOP
// ═══════════════════════════════════════════════════════════════════════════════
//
// Owns the window lifecycle: select a window, trade it with a fresh
// engine and feed, rotate at expiry plus grace, repeat. The sizer and
// ledger live here and survive rotation; the engine and feed are
// per-window and discarded wholesale.
//
// Rotation deliberately abandons any live exposure: binary windows
// resolve moments later and the paper ledger carries the inventory, so
// the loop logs loudly and moves on rather than flattening into a dead
// book.
//
// ═══════════════════════════════════════════════════════════════════════════════

const scanRetryDelay = 5 * time.Second

// Deps wires the loop's collaborators. Journal and Notifier may be nil.
type Deps struct {
	Selector *scanner.Selector
	Books    *book.Store
	Ledger   *paper.Ledger
	Sizer    *risk.DynamicSizer
	Risk     risk.ScalpRisk
	Rules    scalp.EntryRules
	Journal  *journal.Journal
	Notifier *notify.Notifier

	FeedWSURL     string
	RotationGrace time.Duration
	StepInterval  time.Duration
}

// Status is the observable state of the loop, refreshed every step.
type Status struct {
	WindowSlug  string
	WindowEndTS int64
	TTE         time.Duration
	YesTop      book.Top
	NoTop       book.Top
	HasPosition bool
	BetFraction decimal.Decimal
	Ledger      paper.Snapshot
}

// Loop is the top-level window rotation driver.
type Loop struct {
	deps Deps

	mu      sync.RWMutex
	running bool
	status  Status

	stopCh chan struct{}
	doneCh chan struct{}
	cancel context.CancelFunc
}

// New creates a rotation loop.
func New(deps Deps) *Loop {
	if deps.StepInterval <= 0 {
		deps.StepInterval = 200 * time.Millisecond
	}
	if deps.RotationGrace < 0 {
		deps.RotationGrace = 0
	}
	return &Loop{
		deps:   deps,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// SetNotifier wires the optional Telegram notifier. The notifier needs
// the loop as its stats provider, so it is attached after construction.
// Call before Start.
func (l *Loop) SetNotifier(n *notify.Notifier) {
	l.deps.Notifier = n
}

// Start launches the loop.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.mu.Unlock()

	go l.run(ctx)
	log.Info().Msg("🔁 Rotation loop started")
}

// Stop shuts the loop down and waits for the current window to unwind.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	l.cancel()
	l.mu.Unlock()

	<-l.doneCh
	log.Info().Msg("Rotation loop stopped")
}

// Status returns the most recent snapshot of the loop.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)

	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		market, err := l.deps.Selector.Select(ctx)
		if err != nil {
			if errors.Is(err, scanner.ErrNoEligibleWindow) {
				log.Warn().Msg("No eligible window, rescanning...")
			} else if ctx.Err() != nil {
				return
			} else {
				log.Error().Err(err).Msg("Window scan failed, retrying...")
			}
			select {
			case <-l.stopCh:
				return
			case <-time.After(scanRetryDelay):
			}
			continue
		}

		l.tradeWindow(ctx, market)
	}
}

// tradeWindow drives one window from selection to rotation.
func (l *Loop) tradeWindow(ctx context.Context, market types.MarketSpec) {
	tte := market.TTE(time.Now())
	log.Info().
		Str("slug", market.Slug).
		Dur("tte", tte).
		Msg("🪟 Window selected")
	l.deps.Notifier.NotifyWindow(market.Slug, int64(tte.Seconds()))

	l.deps.Books.Reset(market.YesAsset, market.NoAsset)

	engine := scalp.New(l.deps.Ledger, l.deps.Books, market, l.deps.Rules, l.deps.Risk, l.deps.Sizer)
	engine.SetTradeClosedCallback(l.recordClosed)

	f := feed.New(l.deps.FeedWSURL, []string{market.YesAsset, market.NoAsset}, l.deps.Books)
	f.Start()
	defer f.Stop()

	deadline := time.Unix(market.EndTS, 0).Add(l.deps.RotationGrace)
	ticker := time.NewTicker(l.deps.StepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			l.warnAbandoned(engine, "shutdown")
			return
		case <-ticker.C:
			if !time.Now().Before(deadline) {
				l.warnAbandoned(engine, "rotation")
				return
			}
			engine.Step(ctx)
			l.publishStatus(engine, market)
		}
	}
}

// warnAbandoned logs any exposure left behind when a window ends. The
// ledger still holds the shares; the next resolution decides them.
func (l *Loop) warnAbandoned(engine *scalp.Engine, reason string) {
	pv, ok := engine.Position()
	if !ok {
		return
	}
	log.Warn().
		Str("reason", reason).
		Str("side", string(pv.Side)).
		Str("asset", pv.AssetID).
		Str("qty", pv.Qty.StringFixed(4)).
		Bool("filled", pv.FillPrice.Valid).
		Msg("⚠️ Window closed with live exposure, abandoning")
}

func (l *Loop) publishStatus(engine *scalp.Engine, market types.MarketSpec) {
	yes, _ := l.deps.Books.Top(market.YesAsset)
	no, _ := l.deps.Books.Top(market.NoAsset)

	st := Status{
		WindowSlug:  market.Slug,
		WindowEndTS: market.EndTS,
		TTE:         market.TTE(time.Now()),
		YesTop:      yes,
		NoTop:       no,
		HasPosition: engine.HasPosition(),
		BetFraction: l.deps.Sizer.Fraction(),
		Ledger:      l.deps.Ledger.Snapshot(),
	}

	l.mu.Lock()
	l.status = st
	l.mu.Unlock()
}

// recordClosed persists and announces one finished round trip. Journal
// failures are logged, never fatal.
func (l *Loop) recordClosed(ct scalp.ClosedTrade) {
	pnl := ct.ExitPrice.Sub(ct.EntryPrice).Mul(ct.Qty)

	if l.deps.Journal != nil {
		err := l.deps.Journal.Record(&journal.ClosedTrade{
			WindowSlug: ct.Market.Slug,
			AssetID:    ct.AssetID,
			Side:       string(ct.Side),
			Qty:        ct.Qty,
			EntryPrice: ct.EntryPrice,
			ExitPrice:  ct.ExitPrice,
			PnL:        pnl,
			Won:        ct.Won,
			OpenedAt:   ct.OpenedAt,
			ClosedAt:   ct.ClosedAt,
		})
		if err != nil {
			log.Error().Err(err).Msg("Journal write failed")
		}
	}

	l.deps.Notifier.NotifyTradeClosed(string(ct.Side), ct.EntryPrice, ct.ExitPrice, pnl, ct.Won)
}

// LedgerSnapshot implements notify.StatsProvider.
func (l *Loop) LedgerSnapshot() paper.Snapshot {
	return l.deps.Ledger.Snapshot()
}

// RecentTrades implements notify.StatsProvider.
func (l *Loop) RecentTrades(limit int) ([]journal.ClosedTrade, error) {
	if l.deps.Journal == nil {
		return nil, nil
	}
	return l.deps.Journal.Recent(limit)
}

// StatusLine implements notify.StatsProvider.
func (l *Loop) StatusLine() string {
	st := l.Status()
	if st.WindowSlug == "" {
		return "🔍 Scanning for a window..."
	}

	pos := "flat"
	if st.HasPosition {
		pos = "in position"
	}

	top := func(t book.Top) string {
		bid, ask := "—", "—"
		if t.Bid.Valid {
			bid = t.Bid.Decimal.StringFixed(2)
		}
		if t.Ask.Valid {
			ask = t.Ask.Decimal.StringFixed(2)
		}
		return bid + "/" + ask
	}

	return fmt.Sprintf(`📊 *STATUS*

🪟 %s
⏳ TTE: %ds
🟢 YES %s  🔴 NO %s
💼 %s
🎲 Bet fraction: %s
💰 Equity: $%s`,
		st.WindowSlug,
		int64(st.TTE.Seconds()),
		top(st.YesTop), top(st.NoTop),
		pos,
		st.BetFraction.StringFixed(2),
		st.Ledger.Equity.StringFixed(2),
	)
}

package paper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyscalp/polyscalp/internal/book"
	"github.com/polyscalp/polyscalp/internal/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d(s), Valid: true}
}

// newTestLedger returns a ledger with no fill latency and no
// persistence, plus its book store.
func newTestLedger(startCash string) (*Ledger, *book.Store) {
	books := book.NewStore(d("0.01"))
	cfg := DefaultConfig()
	cfg.StartCash = d(startCash)
	cfg.FillDelay = 0
	cfg.StatePath = ""
	return New(cfg, books), books
}

func TestBuyFillScenario(t *testing.T) {
	// Spec scenario: cash=500, buy 50 @ 0.80, bid at 0.80 after the
	// delay -> cash=460, inventory=50, avg_cost=0.80.
	l, books := newTestLedger("500")
	ctx := context.Background()

	books.Set("yes", nd("0.80"), nd("0.81"))
	oid, err := l.PlaceEntryBuy(ctx, "yes", d("0.80"), d("50"))
	if err != nil {
		t.Fatalf("PlaceEntryBuy: %v", err)
	}

	st, _ := l.GetOrder(ctx, oid)
	if st.Status != types.OrderFilled {
		t.Fatalf("order status: got %s want filled", st.Status)
	}
	if !st.AvgFillPrice.Valid || !st.AvgFillPrice.Decimal.Equal(d("0.80")) {
		t.Fatalf("avg fill price: got %+v want 0.80", st.AvgFillPrice)
	}

	snap := l.Snapshot()
	if !snap.Cash.Equal(d("460")) {
		t.Fatalf("cash: got %s want 460", snap.Cash)
	}
	if len(snap.Positions) != 1 {
		t.Fatalf("positions: got %d want 1", len(snap.Positions))
	}
	pos := snap.Positions[0]
	if !pos.Shares.Equal(d("50")) || !pos.AvgPrice.Equal(d("0.80")) {
		t.Fatalf("position: got %s @ %s, want 50 @ 0.80", pos.Shares, pos.AvgPrice)
	}
}

func TestRoundTripAtSamePriceIsFlat(t *testing.T) {
	l, books := newTestLedger("500")
	ctx := context.Background()

	books.Set("yes", nd("0.80"), nd("0.81"))
	buyID, _ := l.PlaceEntryBuy(ctx, "yes", d("0.80"), d("50"))
	if st, _ := l.GetOrder(ctx, buyID); st.Status != types.OrderFilled {
		t.Fatal("buy did not fill")
	}

	sellID, _ := l.PlaceExitSell(ctx, "yes", d("0.80"), d("50"), true)
	if st, _ := l.GetOrder(ctx, sellID); st.Status != types.OrderFilled {
		t.Fatal("sell did not fill")
	}

	snap := l.Snapshot()
	if !snap.PnL.Realized.IsZero() {
		t.Fatalf("realized pnl: got %s want 0", snap.PnL.Realized)
	}
	if !snap.Cash.Equal(d("500")) {
		t.Fatalf("cash: got %s want 500", snap.Cash)
	}
	if len(snap.Positions) != 0 {
		t.Fatalf("positions must be flat, got %+v", snap.Positions)
	}
	// a break-even exit counts as neither win nor loss
	if snap.Stats.Wins != 0 || snap.Stats.Losses != 0 {
		t.Fatalf("stats: got %d/%d want 0/0", snap.Stats.Wins, snap.Stats.Losses)
	}
	if snap.Stats.WinRate.Valid {
		t.Fatal("winrate must be absent with no closed trades")
	}
}

func TestWinAndLossCounting(t *testing.T) {
	l, books := newTestLedger("500")
	ctx := context.Background()

	books.Set("yes", nd("0.80"), nd("0.81"))
	buyID, _ := l.PlaceEntryBuy(ctx, "yes", d("0.80"), d("50"))
	l.GetOrder(ctx, buyID)

	// profitable exit
	books.Set("yes", nd("0.88"), nd("0.89"))
	sellID, _ := l.PlaceExitSell(ctx, "yes", d("0.88"), d("25"), true)
	l.GetOrder(ctx, sellID)

	snap := l.Snapshot()
	if snap.Stats.Wins != 1 || snap.Stats.Losses != 0 {
		t.Fatalf("after win: got %d/%d want 1/0", snap.Stats.Wins, snap.Stats.Losses)
	}
	if !snap.PnL.Realized.Equal(d("2")) { // 25 * (0.88-0.80)
		t.Fatalf("realized: got %s want 2", snap.PnL.Realized)
	}

	// losing exit for the remainder
	books.Set("yes", nd("0.70"), nd("0.71"))
	sellID2, _ := l.PlaceExitSell(ctx, "yes", d("0.70"), d("25"), false)
	l.GetOrder(ctx, sellID2)

	snap = l.Snapshot()
	if snap.Stats.Wins != 1 || snap.Stats.Losses != 1 {
		t.Fatalf("after loss: got %d/%d want 1/1", snap.Stats.Wins, snap.Stats.Losses)
	}
	if !snap.Stats.WinRate.Valid || !snap.Stats.WinRate.Decimal.Equal(d("0.5")) {
		t.Fatalf("winrate: got %+v want 0.5", snap.Stats.WinRate)
	}
}

func TestSellTruncatesToInventory(t *testing.T) {
	l, books := newTestLedger("500")
	ctx := context.Background()

	books.Set("yes", nd("0.80"), nd("0.81"))
	buyID, _ := l.PlaceEntryBuy(ctx, "yes", d("0.80"), d("50"))
	l.GetOrder(ctx, buyID)

	// ask to sell more than held: fills for the held amount, no error
	sellID, _ := l.PlaceExitSell(ctx, "yes", d("0.80"), d("80"), false)
	st, _ := l.GetOrder(ctx, sellID)
	if st.Status != types.OrderFilled {
		t.Fatalf("oversized sell must still fill, got %s", st.Status)
	}

	snap := l.Snapshot()
	if len(snap.Positions) != 0 {
		t.Fatalf("inventory must be flat after truncated sell, got %+v", snap.Positions)
	}
	if !snap.Cash.Equal(d("500")) {
		t.Fatalf("cash: got %s want 500", snap.Cash)
	}
}

func TestSellWithNoInventoryStaysOpen(t *testing.T) {
	l, books := newTestLedger("500")
	ctx := context.Background()

	books.Set("yes", nd("0.80"), nd("0.81"))
	sellID, _ := l.PlaceExitSell(ctx, "yes", d("0.75"), d("10"), false)

	st, _ := l.GetOrder(ctx, sellID)
	if st.Status != types.OrderOpen {
		t.Fatalf("sell with nothing held must rest open, got %s", st.Status)
	}
}

func TestFillDelayHoldsOrdersOpen(t *testing.T) {
	books := book.NewStore(d("0.01"))
	cfg := DefaultConfig()
	cfg.StartCash = d("500")
	cfg.FillDelay = time.Hour
	cfg.StatePath = ""
	l := New(cfg, books)
	ctx := context.Background()

	books.Set("yes", nd("0.80"), nd("0.81"))
	oid, _ := l.PlaceEntryBuy(ctx, "yes", d("0.80"), d("50"))

	if st, _ := l.GetOrder(ctx, oid); st.Status != types.OrderOpen {
		t.Fatalf("order younger than fill delay must stay open, got %s", st.Status)
	}
}

func TestNoFillAwayFromTouch(t *testing.T) {
	l, books := newTestLedger("500")
	ctx := context.Background()

	// posted 2c below the bid: more than half a tick away, no fill
	books.Set("yes", nd("0.82"), nd("0.83"))
	oid, _ := l.PlaceEntryBuy(ctx, "yes", d("0.80"), d("50"))

	if st, _ := l.GetOrder(ctx, oid); st.Status != types.OrderOpen {
		t.Fatalf("buy away from the touch must stay open, got %s", st.Status)
	}
}

func TestNoFillWithMissingBookSide(t *testing.T) {
	l, books := newTestLedger("500")
	ctx := context.Background()

	books.Set("yes", nd("0.80"), decimal.NullDecimal{})
	oid, _ := l.PlaceEntryBuy(ctx, "yes", d("0.80"), d("50"))

	if st, _ := l.GetOrder(ctx, oid); st.Status != types.OrderOpen {
		t.Fatalf("one-sided book must not fill, got %s", st.Status)
	}
}

func TestInsufficientCashHoldsBuy(t *testing.T) {
	l, books := newTestLedger("10")
	ctx := context.Background()

	books.Set("yes", nd("0.80"), nd("0.81"))
	oid, _ := l.PlaceEntryBuy(ctx, "yes", d("0.80"), d("50")) // needs 40

	if st, _ := l.GetOrder(ctx, oid); st.Status != types.OrderOpen {
		t.Fatalf("underfunded buy must stay open, got %s", st.Status)
	}

	snap := l.Snapshot()
	if !snap.Cash.Equal(d("10")) || len(snap.Positions) != 0 {
		t.Fatalf("underfunded buy mutated the ledger: %+v", snap)
	}
}

func TestCancelSemantics(t *testing.T) {
	l, books := newTestLedger("500")
	ctx := context.Background()

	books.Set("yes", nd("0.80"), nd("0.81"))
	oid, _ := l.PlaceEntryBuy(ctx, "yes", d("0.70"), d("10")) // away from touch, rests

	if err := l.Cancel(ctx, oid); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if st, _ := l.GetOrder(ctx, oid); st.Status != types.OrderCanceled {
		t.Fatalf("status after cancel: got %s", st.Status)
	}

	// cancel of canceled and of unknown ids are both no-ops
	if err := l.Cancel(ctx, oid); err != nil {
		t.Fatalf("double cancel: %v", err)
	}
	if err := l.Cancel(ctx, "nope"); err != nil {
		t.Fatalf("cancel unknown: %v", err)
	}
}

func TestGetOrderUnknownID(t *testing.T) {
	l, _ := newTestLedger("500")

	st, err := l.GetOrder(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unknown id must not error: %v", err)
	}
	if st.Status != types.OrderUnknown {
		t.Fatalf("status: got %s want unknown", st.Status)
	}
}

func TestInventoryNeverNegative(t *testing.T) {
	l, books := newTestLedger("500")
	ctx := context.Background()

	check := func(stage string) {
		for _, p := range l.Snapshot().Positions {
			if p.Shares.IsNegative() {
				t.Fatalf("%s: negative inventory %s for %s", stage, p.Shares, p.AssetID)
			}
		}
	}

	books.Set("yes", nd("0.50"), nd("0.51"))
	sellID, _ := l.PlaceExitSell(ctx, "yes", d("0.40"), d("100"), false)
	l.GetOrder(ctx, sellID)
	check("sell with nothing held")

	buyID, _ := l.PlaceEntryBuy(ctx, "yes", d("0.50"), d("20"))
	l.GetOrder(ctx, buyID)
	check("after buy")

	over, _ := l.PlaceExitSell(ctx, "yes", d("0.50"), d("500"), false)
	l.GetOrder(ctx, over)
	check("after oversized sell")
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "paper.json")
	books := book.NewStore(d("0.01"))

	cfg := DefaultConfig()
	cfg.StartCash = d("500")
	cfg.FillDelay = 0
	cfg.StatePath = path
	cfg.SaveDebounce = time.Nanosecond

	l := New(cfg, books)
	ctx := context.Background()

	books.Set("yes", nd("0.80"), nd("0.81"))
	buyID, _ := l.PlaceEntryBuy(ctx, "yes", d("0.80"), d("50"))
	l.GetOrder(ctx, buyID)
	l.Flush()

	// a fresh ledger over the same path restores cash and inventory
	l2 := New(cfg, books)
	snap := l2.Snapshot()
	if !snap.Cash.Equal(d("460")) {
		t.Fatalf("restored cash: got %s want 460", snap.Cash)
	}
	if len(snap.Positions) != 1 || !snap.Positions[0].Shares.Equal(d("50")) {
		t.Fatalf("restored inventory: got %+v", snap.Positions)
	}
}

func TestCorruptStateStartsFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paper.json")
	if err := os.WriteFile(path, []byte("{nonsense"), 0o644); err != nil {
		t.Fatal(err)
	}

	books := book.NewStore(d("0.01"))
	cfg := DefaultConfig()
	cfg.StartCash = d("500")
	cfg.StatePath = path

	l := New(cfg, books)
	if snap := l.Snapshot(); !snap.Cash.Equal(d("500")) {
		t.Fatalf("corrupt state must start fresh: cash %s", snap.Cash)
	}
}

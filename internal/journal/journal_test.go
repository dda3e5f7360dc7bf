package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func trade(slug string, won bool, pnl string, closedAt time.Time) *ClosedTrade {
	return &ClosedTrade{
		WindowSlug: slug,
		AssetID:    "asset-1",
		Side:       "YES",
		Qty:        d("100"),
		EntryPrice: d("0.82"),
		ExitPrice:  d("0.90"),
		PnL:        d(pnl),
		Won:        won,
		OpenedAt:   closedAt.Add(-time.Minute),
		ClosedAt:   closedAt,
	}
}

func TestRecordAndRecent(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	base := time.Now()
	if err := j.Record(trade("w1", true, "8.0", base)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := j.Record(trade("w2", false, "-6.5", base.Add(time.Minute))); err != nil {
		t.Fatalf("record: %v", err)
	}

	trades, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades", len(trades))
	}
	// newest first
	if trades[0].WindowSlug != "w2" || trades[1].WindowSlug != "w1" {
		t.Fatalf("order: %s, %s", trades[0].WindowSlug, trades[1].WindowSlug)
	}
}

func TestStats(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	base := time.Now()
	j.Record(trade("w1", true, "8.0", base))
	j.Record(trade("w2", true, "7.0", base))
	j.Record(trade("w3", false, "-6.5", base))

	stats, err := j.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["total_trades"].(int64) != 3 {
		t.Fatalf("total: %v", stats["total_trades"])
	}
	if stats["won_trades"].(int64) != 2 || stats["lost_trades"].(int64) != 1 {
		t.Fatalf("won/lost: %v/%v", stats["won_trades"], stats["lost_trades"])
	}
}

package feed

import (
	"testing"

	"github.com/shopspring/decimal"
)

type sinkCall struct {
	asset    string
	bid, ask decimal.NullDecimal
}

type recordingSink struct {
	calls []sinkCall
}

func (s *recordingSink) Set(assetID string, bid, ask decimal.NullDecimal) {
	s.calls = append(s.calls, sinkCall{assetID, bid, ask})
}

func newTestFeed() (*Feed, *recordingSink) {
	sink := &recordingSink{}
	return New("", []string{"yes", "no"}, sink), sink
}

func mustEqual(t *testing.T, got decimal.NullDecimal, want string) {
	t.Helper()
	if !got.Valid {
		t.Fatalf("got absent, want %s", want)
	}
	if got.Decimal.String() != want {
		t.Fatalf("got %s want %s", got.Decimal, want)
	}
}

func TestBookEventObjectLevels(t *testing.T) {
	f, sink := newTestFeed()

	f.processMessage([]byte(`[{
		"event_type": "book",
		"asset_id": "yes",
		"bids": [{"price":"0.80","size":"10"},{"price":"0.82","size":"5"},{"price":"0.81","size":"3"}],
		"asks": [{"price":"0.85","size":"2"},{"price":"0.83","size":"7"}]
	}]`))

	if len(sink.calls) != 1 {
		t.Fatalf("calls: %d", len(sink.calls))
	}
	c := sink.calls[0]
	if c.asset != "yes" {
		t.Fatalf("asset: %s", c.asset)
	}
	mustEqual(t, c.bid, "0.82") // highest bid regardless of order
	mustEqual(t, c.ask, "0.83") // lowest ask
}

func TestBookEventPairLevels(t *testing.T) {
	f, sink := newTestFeed()

	f.processMessage([]byte(`{
		"event_type": "book",
		"asset_id": "no",
		"bids": [["0.17","100"],["0.16","50"]],
		"asks": [["0.18","40"]]
	}`))

	if len(sink.calls) != 1 {
		t.Fatalf("calls: %d", len(sink.calls))
	}
	mustEqual(t, sink.calls[0].bid, "0.17")
	mustEqual(t, sink.calls[0].ask, "0.18")
}

func TestBookEventZeroSizeLevelsSkipped(t *testing.T) {
	f, sink := newTestFeed()

	f.processMessage([]byte(`{
		"event_type": "book",
		"asset_id": "yes",
		"bids": [{"price":"0.90","size":"0"},{"price":"0.82","size":"5"}],
		"asks": []
	}`))

	c := sink.calls[0]
	mustEqual(t, c.bid, "0.82")
	if c.ask.Valid {
		t.Fatalf("empty ask side must stay absent, got %s", c.ask.Decimal)
	}
}

func TestPriceChangeBatch(t *testing.T) {
	f, sink := newTestFeed()

	f.processMessage([]byte(`[{
		"event_type": "price_change",
		"price_changes": [
			{"asset_id":"yes","best_bid":"0.82","best_ask":"0.83"},
			{"asset_id":"no","best_bid":"0.17","best_ask":""}
		]
	}]`))

	if len(sink.calls) != 2 {
		t.Fatalf("calls: %d", len(sink.calls))
	}
	mustEqual(t, sink.calls[0].bid, "0.82")
	mustEqual(t, sink.calls[0].ask, "0.83")
	mustEqual(t, sink.calls[1].bid, "0.17")
	if sink.calls[1].ask.Valid {
		t.Fatal("empty best_ask must stay absent")
	}
}

func TestGarbageFramesIgnored(t *testing.T) {
	f, sink := newTestFeed()

	f.processMessage([]byte(`not json`))
	f.processMessage([]byte(`{"event_type":"last_trade_price","asset_id":"yes","price":"0.82"}`))
	f.processMessage([]byte(`{"event_type":"book"}`)) // no asset id

	if len(sink.calls) != 0 {
		t.Fatalf("unexpected sink calls: %+v", sink.calls)
	}
}

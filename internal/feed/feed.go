package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POLYMARKET WEBSOCKET FEED
// ═══════════════════════════════════════════════════════════════════════════════
//
// Subscribes to the CLOB market channel for a fixed set of asset ids and
// pushes top-of-book updates into the shared store. One feed per window;
// rotation stops the old feed and starts a fresh one.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	DefaultWSURL   = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
)

// Sink receives top-of-book updates. *book.Store satisfies it.
type Sink interface {
	Set(assetID string, bid, ask decimal.NullDecimal)
}

// Feed maintains the WebSocket connection for one window's assets.
type Feed struct {
	mu sync.Mutex

	wsURL  string
	assets []string
	sink   Sink

	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}
}

// New creates a feed for the given asset ids. url may be empty for the
// production endpoint.
func New(url string, assets []string, sink Sink) *Feed {
	if url == "" {
		url = DefaultWSURL
	}
	return &Feed{
		wsURL:  url,
		assets: assets,
		sink:   sink,
		stopCh: make(chan struct{}),
	}
}

// Start connects and begins processing. Safe to call once per feed.
func (f *Feed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.connectionLoop()
	log.Info().Int("assets", len(f.assets)).Msg("📡 Feed started")
}

// Stop closes the connection. Idempotent.
func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)

	if f.conn != nil {
		f.conn.Close()
	}
	log.Info().Msg("Feed stopped")
}

// connectionLoop keeps the WebSocket alive until Stop.
func (f *Feed) connectionLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if err := f.connect(); err != nil {
			log.Error().Err(err).Msg("Feed connection failed, retrying...")
			select {
			case <-f.stopCh:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		f.readLoop()

		select {
		case <-f.stopCh:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// connect dials and subscribes to the market channel for our assets.
func (f *Feed) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	if err != nil {
		return err
	}

	sub := map[string]interface{}{
		"type":       "market",
		"assets_ids": f.assets,
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	log.Info().Msg("🔌 WebSocket connected")

	go f.pingLoop(conn)
	return nil
}

func (f *Feed) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *Feed) readLoop() {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()

	if conn == nil {
		return
	}

	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("Feed read error")
			conn.Close()
			return
		}

		f.processMessage(message)
	}
}

// level is one price level. The server sends both object levels
// ({"price":"0.82","size":"10"}) and pair levels (["0.82","10"])
// depending on the event.
type level struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

func (lv *level) UnmarshalJSON(data []byte) error {
	type plain level
	var obj plain
	if err := json.Unmarshal(data, &obj); err == nil && obj.Price != "" {
		*lv = level(obj)
		return nil
	}

	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) >= 1 {
		lv.Price = pair[0]
	}
	if len(pair) >= 2 {
		lv.Size = pair[1]
	}
	return nil
}

type wsMessage struct {
	EventType    string          `json:"event_type"`
	AssetID      string          `json:"asset_id"`
	Market       string          `json:"market"`
	Bids         []level         `json:"bids"`
	Asks         []level         `json:"asks"`
	PriceChanges []wsPriceChange `json:"price_changes"`
}

type wsPriceChange struct {
	AssetID string `json:"asset_id"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// processMessage handles one frame. The server batches events into
// arrays; single objects show up too.
func (f *Feed) processMessage(data []byte) {
	var msgs []wsMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		msgs = []wsMessage{msg}
	}

	for _, msg := range msgs {
		switch msg.EventType {
		case "book":
			f.handleBook(msg)
		case "price_change":
			f.handlePriceChange(msg)
		}
	}
}

func (f *Feed) handleBook(msg wsMessage) {
	if msg.AssetID == "" {
		return
	}
	bid := bestLevel(msg.Bids, true)
	ask := bestLevel(msg.Asks, false)
	f.sink.Set(msg.AssetID, bid, ask)
}

func (f *Feed) handlePriceChange(msg wsMessage) {
	for _, pc := range msg.PriceChanges {
		if pc.AssetID == "" {
			continue
		}
		f.sink.Set(pc.AssetID, parsePrice(pc.BestBid), parsePrice(pc.BestAsk))
	}
}

// bestLevel extracts the best price from a side of the book: highest
// bid, lowest ask. Zero-size levels are dead and skipped. Level order
// is not trusted.
func bestLevel(levels []level, wantHighest bool) decimal.NullDecimal {
	var best decimal.NullDecimal
	for _, lv := range levels {
		px, err := decimal.NewFromString(lv.Price)
		if err != nil {
			continue
		}
		if lv.Size != "" {
			sz, err := decimal.NewFromString(lv.Size)
			if err != nil || !sz.IsPositive() {
				continue
			}
		}
		if !best.Valid ||
			(wantHighest && px.GreaterThan(best.Decimal)) ||
			(!wantHighest && px.LessThan(best.Decimal)) {
			best = decimal.NullDecimal{Decimal: px, Valid: true}
		}
	}
	return best
}

func parsePrice(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	px, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: px, Valid: true}
}

package paper

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ledgerState is the durable slice of the ledger. Orders are not
// persisted; resting orders from a previous run are meaningless once
// their window has rotated away.
type ledgerState struct {
	Cash        decimal.Decimal            `json:"cash_usd"`
	Inventory   map[string]decimal.Decimal `json:"inventory"`
	AvgCost     map[string]decimal.Decimal `json:"avg_cost"`
	RealizedPnL decimal.Decimal            `json:"realized_pnl"`
	Stats       struct {
		Wins   int `json:"wins"`
		Losses int `json:"losses"`
	} `json:"stats"`
}

// loadState restores durable state. Missing or corrupt files start
// fresh; persistence failures never block trading.
func (l *Ledger) loadState() {
	if l.cfg.StatePath == "" {
		return
	}

	data, err := os.ReadFile(l.cfg.StatePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", l.cfg.StatePath).Msg("⚠️ Ledger state read failed, starting fresh")
		}
		return
	}

	var st ledgerState
	if err := json.Unmarshal(data, &st); err != nil {
		log.Warn().Err(err).Str("path", l.cfg.StatePath).Msg("⚠️ Ledger state corrupt, starting fresh")
		return
	}

	l.cash = st.Cash
	l.realized = st.RealizedPnL
	l.wins = st.Stats.Wins
	l.losses = st.Stats.Losses
	if st.Inventory != nil {
		l.inv = st.Inventory
	}
	if st.AvgCost != nil {
		l.avgCost = st.AvgCost
	}

	log.Info().
		Str("cash", l.cash.String()).
		Int("wins", l.wins).
		Int("losses", l.losses).
		Msg("💾 Ledger state restored")
}

// saveLocked writes durable state atomically (temp file + rename) so a
// crash mid-write never corrupts the previous valid file. Writes
// within the debounce window are merged; callers needing a guaranteed
// write use force.
func (l *Ledger) saveLocked(force bool) {
	if l.cfg.StatePath == "" {
		return
	}
	now := time.Now()
	if !force && now.Sub(l.lastSave) < l.cfg.SaveDebounce {
		return
	}

	st := ledgerState{
		Cash:        l.cash,
		Inventory:   l.inv,
		AvgCost:     l.avgCost,
		RealizedPnL: l.realized,
	}
	st.Stats.Wins = l.wins
	st.Stats.Losses = l.losses

	data, err := json.Marshal(st)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Ledger state marshal failed")
		return
	}

	if err := os.MkdirAll(filepath.Dir(l.cfg.StatePath), 0o755); err != nil {
		log.Warn().Err(err).Msg("⚠️ Ledger state dir create failed")
		return
	}

	tmp := l.cfg.StatePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Warn().Err(err).Msg("⚠️ Ledger state write failed")
		return
	}
	if err := os.Rename(tmp, l.cfg.StatePath); err != nil {
		log.Warn().Err(err).Msg("⚠️ Ledger state rename failed")
		return
	}
	l.lastSave = now
}

// Flush forces a durable write. Called on shutdown.
func (l *Ledger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saveLocked(true)
}

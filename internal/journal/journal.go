package journal

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE JOURNAL
// ═══════════════════════════════════════════════════════════════════════════════
//
// Durable record of every closed round trip. The paper ledger's JSON
// state file is the authoritative balance; the journal exists for
// after-the-fact analysis and the /trades view, so journal failures
// never stop trading.
//
// ═══════════════════════════════════════════════════════════════════════════════

type Journal struct {
	db *gorm.DB
}

// ClosedTrade is one finished scalp.
type ClosedTrade struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	WindowSlug string `gorm:"index"`
	AssetID    string
	Side       string          // "YES" or "NO"
	Qty        decimal.Decimal `gorm:"type:decimal(20,6)"`
	EntryPrice decimal.Decimal `gorm:"type:decimal(10,6)"`
	ExitPrice  decimal.Decimal `gorm:"type:decimal(10,6)"`
	PnL        decimal.Decimal `gorm:"column:pnl;type:decimal(20,6)"`
	Won        bool
	OpenedAt   time.Time
	ClosedAt   time.Time `gorm:"index"`
	CreatedAt  time.Time
}

// Open connects to the journal database. A postgres:// URL selects
// PostgreSQL; anything else is treated as a SQLite file path.
func Open(dbPath string) (*Journal, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Journal connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Journal initialized (SQLite)")
	}

	if err := db.AutoMigrate(&ClosedTrade{}); err != nil {
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Record persists one closed trade.
func (j *Journal) Record(trade *ClosedTrade) error {
	return j.db.Create(trade).Error
}

// Recent returns the most recently closed trades, newest first.
func (j *Journal) Recent(limit int) ([]ClosedTrade, error) {
	var trades []ClosedTrade
	err := j.db.Order("closed_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

// Stats returns aggregate journal statistics.
func (j *Journal) Stats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int64
	j.db.Model(&ClosedTrade{}).Count(&total)
	stats["total_trades"] = total

	var won int64
	j.db.Model(&ClosedTrade{}).Where("won = ?", true).Count(&won)
	stats["won_trades"] = won
	stats["lost_trades"] = total - won

	var pnlResult struct {
		Total decimal.Decimal
	}
	j.db.Model(&ClosedTrade{}).Select("COALESCE(SUM(pnl), 0) as total").Scan(&pnlResult)
	stats["total_pnl"] = pnlResult.Total

	return stats, nil
}

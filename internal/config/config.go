package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the scalper.
type Config struct {
	// Mode
	Debug     bool
	Dashboard bool

	// Window scanning
	SlugPrefix      string
	WindowInterval  time.Duration
	WindowLookahead int
	FallbackQuery   string
	FallbackLimit   int
	MinTTE          time.Duration
	MaxTTE          time.Duration
	GammaAPIURL     string

	// Feed
	FeedWSURL string

	// Entry rules
	EntryPriceMin decimal.Decimal
	EntryPriceMax decimal.Decimal
	MaxSpread     decimal.Decimal
	EntryTTEMax   time.Duration
	EntryTTL      time.Duration

	// Bracket
	TakeProfitPct decimal.Decimal
	StopLossPct   decimal.Decimal

	// Sizing
	BetFracStart decimal.Decimal
	BetFracStep  decimal.Decimal
	BetFracMin   decimal.Decimal
	BetFracMax   decimal.Decimal
	StakeCap     decimal.Decimal

	// Paper ledger
	StartCash decimal.Decimal
	FillDelay time.Duration
	Tick      decimal.Decimal
	StatePath string

	// Rotation
	RotationGrace time.Duration
	StepInterval  time.Duration

	// Journal
	DatabasePath string

	// Telegram (optional)
	TelegramToken  string
	TelegramChatID int64
}

// Load reads configuration from environment variables. Every knob has
// a default; only a malformed TELEGRAM_CHAT_ID fails.
func Load() (*Config, error) {
	cfg := &Config{
		Debug:     getEnvBool("DEBUG", false),
		Dashboard: getEnvBool("DASHBOARD", false),

		// Window scanning
		SlugPrefix:      getEnv("WINDOW_SLUG_PREFIX", "btc-updown-15m-"),
		WindowInterval:  getEnvDuration("WINDOW_INTERVAL", 15*time.Minute),
		WindowLookahead: getEnvInt("WINDOW_LOOKAHEAD", 12),
		FallbackQuery:   getEnv("WINDOW_FALLBACK_QUERY", "btc updown 15m"),
		FallbackLimit:   getEnvInt("WINDOW_FALLBACK_LIMIT", 50),
		MinTTE:          getEnvDuration("WINDOW_MIN_TTE", 2*time.Minute),
		MaxTTE:          getEnvDuration("WINDOW_MAX_TTE", 20*time.Minute),
		GammaAPIURL:     getEnv("POLYMARKET_API_URL", "https://gamma-api.polymarket.com"),

		FeedWSURL: getEnv("POLYMARKET_WS_URL", ""),

		// Entry rules
		EntryPriceMin: getEnvDecimal("ENTRY_PRICE_MIN", decimal.NewFromFloat(0.81)),
		EntryPriceMax: getEnvDecimal("ENTRY_PRICE_MAX", decimal.NewFromFloat(0.85)),
		MaxSpread:     getEnvDecimal("MAX_SPREAD", decimal.NewFromFloat(0.01)),
		EntryTTEMax:   getEnvDuration("ENTRY_TTE_MAX", 7*time.Minute),
		EntryTTL:      getEnvDuration("ENTRY_TTL", 20*time.Second),

		// Bracket
		TakeProfitPct: getEnvDecimal("TAKE_PROFIT_PCT", decimal.NewFromFloat(0.10)),
		StopLossPct:   getEnvDecimal("STOP_LOSS_PCT", decimal.NewFromFloat(0.10)),

		// Sizing
		BetFracStart: getEnvDecimal("BET_FRAC_START", decimal.NewFromFloat(0.50)),
		BetFracStep:  getEnvDecimal("BET_FRAC_STEP", decimal.NewFromFloat(0.01)),
		BetFracMin:   getEnvDecimal("BET_FRAC_MIN", decimal.NewFromFloat(0.01)),
		BetFracMax:   getEnvDecimal("BET_FRAC_MAX", decimal.NewFromFloat(0.50)),
		StakeCap:     getEnvDecimal("STAKE_CAP", decimal.NewFromFloat(1000)),

		// Paper ledger
		StartCash: getEnvDecimal("START_CASH", decimal.NewFromFloat(500)),
		FillDelay: getEnvDuration("FILL_DELAY", time.Second),
		Tick:      getEnvDecimal("TICK_SIZE", decimal.NewFromFloat(0.01)),
		StatePath: getEnv("STATE_PATH", "data/paper_state.json"),

		// Rotation
		RotationGrace: getEnvDuration("ROTATION_GRACE", 2*time.Second),
		StepInterval:  getEnvDuration("STEP_INTERVAL", 200*time.Millisecond),

		// Journal
		DatabasePath: getEnv("DATABASE_PATH", "data/polyscalp.db"),

		// Telegram
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

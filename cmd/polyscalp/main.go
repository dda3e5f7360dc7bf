// Polyscalp - Paper-trading scalper for Polymarket BTC 15m windows
//
// Strategy:
// 1. Find the nearest tradable btc-updown-15m window via the Gamma API
// 2. Stream both books over the CLOB WebSocket
// 3. Post an entry buy at the bid when a side trades 81-85¢ close to expiry
// 4. Bracket the fill: +10% take-profit sell, -10% stop-loss on the bid
// 5. Rotate to the next window at expiry, carrying the bet fraction over
//
// All fills are simulated against the live book by the paper ledger.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/polyscalp/polyscalp/internal/book"
	"github.com/polyscalp/polyscalp/internal/config"
	"github.com/polyscalp/polyscalp/internal/dashboard"
	"github.com/polyscalp/polyscalp/internal/gamma"
	"github.com/polyscalp/polyscalp/internal/journal"
	"github.com/polyscalp/polyscalp/internal/notify"
	"github.com/polyscalp/polyscalp/internal/paper"
	"github.com/polyscalp/polyscalp/internal/risk"
	"github.com/polyscalp/polyscalp/internal/runtime"
	"github.com/polyscalp/polyscalp/internal/scalp"
	"github.com/polyscalp/polyscalp/internal/scanner"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("prefix", cfg.SlugPrefix).
		Str("band", cfg.EntryPriceMin.String()+"-"+cfg.EntryPriceMax.String()).
		Msg("⚡ Polyscalp starting...")

	// ====== CORE COMPONENTS ======

	// Shared top-of-book store, fed by the per-window WebSocket feed
	books := book.NewStore(cfg.Tick)

	// Paper ledger - simulated fills against the live book
	paperCfg := paper.Config{
		StartCash:    cfg.StartCash,
		FillDelay:    cfg.FillDelay,
		Tick:         cfg.Tick,
		StatePath:    cfg.StatePath,
		SaveDebounce: paper.DefaultConfig().SaveDebounce,
	}
	ledger := paper.New(paperCfg, books)
	log.Info().Str("path", cfg.StatePath).Msg("📒 Paper ledger loaded")

	// Risk parameters and the rotation-surviving sizer
	riskParams := risk.ScalpRisk{
		TPPct:        cfg.TakeProfitPct,
		SLPct:        cfg.StopLossPct,
		BetFracStart: cfg.BetFracStart,
		BetFracStep:  cfg.BetFracStep,
		BetFracMin:   cfg.BetFracMin,
		BetFracMax:   cfg.BetFracMax,
		StakeCap:     cfg.StakeCap,
		Tick:         cfg.Tick,
	}
	sizer := risk.NewDynamicSizer(riskParams)

	// Window selection via the Gamma API
	gammaCfg := gamma.DefaultConfig()
	gammaCfg.BaseURL = cfg.GammaAPIURL
	selector := scanner.New(gamma.NewClient(gammaCfg), scanner.Params{
		SlugPrefix:    cfg.SlugPrefix,
		Interval:      cfg.WindowInterval,
		Lookahead:     cfg.WindowLookahead,
		FallbackQuery: cfg.FallbackQuery,
		FallbackLimit: cfg.FallbackLimit,
		MinTTE:        cfg.MinTTE,
		MaxTTE:        cfg.MaxTTE,
	})

	// Trade journal
	db, err := journal.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize journal")
	}

	rules := scalp.EntryRules{
		PriceMin:         cfg.EntryPriceMin,
		PriceMax:         cfg.EntryPriceMax,
		MaxSpread:        cfg.MaxSpread,
		TTEMax:           cfg.EntryTTEMax,
		EntryTTL:         cfg.EntryTTL,
		MinQty:           scalp.DefaultEntryRules().MinQty,
		ExitPollInterval: scalp.DefaultEntryRules().ExitPollInterval,
		ExitPollMax:      scalp.DefaultEntryRules().ExitPollMax,
	}

	loop := runtime.New(runtime.Deps{
		Selector:      selector,
		Books:         books,
		Ledger:        ledger,
		Sizer:         sizer,
		Risk:          riskParams,
		Rules:         rules,
		Journal:       db,
		FeedWSURL:     cfg.FeedWSURL,
		RotationGrace: cfg.RotationGrace,
		StepInterval:  cfg.StepInterval,
	})

	// ====== TELEGRAM (optional) ======
	var notifier *notify.Notifier
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		notifier, err = notify.New(cfg.TelegramToken, cfg.TelegramChatID, loop)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram unavailable, running without notifications")
			notifier = nil
		}
	} else {
		log.Info().Msg("Telegram not configured, notifications disabled")
	}
	loop.SetNotifier(notifier)

	notifier.Start()
	notifier.NotifyStartup(cfg.StartCash)

	loop.Start()

	// ====== DASHBOARD (optional) ======
	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash = dashboard.New(loop.Status)
		dash.Start()
	}

	log.Info().Msg("✅ All systems online")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("🛑 Received shutdown signal")

	// Graceful shutdown
	log.Info().Msg("Shutting down...")
	if dash != nil {
		dash.Stop()
	}
	loop.Stop()
	notifier.Stop()
	ledger.Flush()
	log.Info().Msg("👋 Goodbye")
}

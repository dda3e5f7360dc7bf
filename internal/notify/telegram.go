package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polyscalp/polyscalp/internal/journal"
	"github.com/polyscalp/polyscalp/internal/paper"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM NOTIFIER
// ═══════════════════════════════════════════════════════════════════════════════
//
// Optional. A nil *Notifier is valid and silently drops everything, so
// the scalper runs unchanged without Telegram credentials.
//
// Commands: /status /stats /trades /ping /help
//
// ═══════════════════════════════════════════════════════════════════════════════

// StatsProvider supplies the data behind the report commands.
type StatsProvider interface {
	LedgerSnapshot() paper.Snapshot
	RecentTrades(limit int) ([]journal.ClosedTrade, error)
	StatusLine() string
}

// Notifier pushes trade events to one authorized chat.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	stopCh chan struct{}

	provider StatsProvider
}

// New connects to the Telegram API. Both token and chatID must be set.
func New(token string, chatID int64, provider StatsProvider) (*Notifier, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id required")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram notifier initialized")

	return &Notifier{
		api:      api,
		chatID:   chatID,
		stopCh:   make(chan struct{}),
		provider: provider,
	}, nil
}

// Start begins listening for commands. No-op on a nil notifier.
func (n *Notifier) Start() {
	if n == nil {
		return
	}
	go n.commandLoop()
	log.Info().Msg("📱 Telegram notifier started")
}

// Stop stops the command loop. No-op on a nil notifier.
func (n *Notifier) Stop() {
	if n == nil {
		return
	}
	close(n.stopCh)
}

// NotifyStartup announces the bot coming up.
func (n *Notifier) NotifyStartup(startCash decimal.Decimal) {
	n.sendMarkdown(fmt.Sprintf(`🚀 *SCALPER ONLINE*

💰 Paper balance: *$%s*`, startCash.StringFixed(2)))
}

// NotifyWindow announces rotation into a new market window.
func (n *Notifier) NotifyWindow(slug string, tteSeconds int64) {
	n.sendMarkdown(fmt.Sprintf(`🔄 *NEW WINDOW*

📊 %s
⏳ Expires in *%ds*`, slug, tteSeconds))
}

// NotifyTradeClosed reports one finished round trip.
func (n *Notifier) NotifyTradeClosed(side string, entry, exit, pnl decimal.Decimal, won bool) {
	emoji := "💰"
	if !won {
		emoji = "🛑"
	}

	sign := "+"
	if pnl.IsNegative() {
		sign = ""
	}

	n.sendMarkdown(fmt.Sprintf(`%s *TRADE CLOSED*

📊 %s
💵 Entry: *%s¢* → Exit: *%s¢*
📈 P&L: *%s$%s*`,
		emoji, side,
		entry.Mul(decimal.NewFromInt(100)).StringFixed(1),
		exit.Mul(decimal.NewFromInt(100)).StringFixed(1),
		sign, pnl.StringFixed(2),
	))
}

// NotifyError pushes an error alert.
func (n *Notifier) NotifyError(err error) {
	n.sendMarkdown(fmt.Sprintf("⚠️ *ERROR*\n\n`%s`", err.Error()))
}

func (n *Notifier) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := n.api.GetUpdatesChan(u)

	for {
		select {
		case <-n.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.Chat.ID != n.chatID {
				continue
			}
			n.handleCommand(update.Message)
		}
	}
}

func (n *Notifier) handleCommand(msg *tgbotapi.Message) {
	switch strings.ToLower(msg.Command()) {
	case "start", "help":
		n.cmdHelp()
	case "status":
		n.cmdStatus()
	case "stats":
		n.cmdStats()
	case "trades":
		n.cmdTrades()
	case "ping":
		n.sendMarkdown("🏓 Pong!")
	default:
		n.sendMarkdown("❓ Unknown command. Use /help")
	}
}

func (n *Notifier) cmdHelp() {
	n.sendMarkdown(`🤖 *SCALPER COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Current window and position
📈 /stats — Paper ledger statistics
📜 /trades — Last 10 closed trades
🏓 /ping — Test connection`)
}

func (n *Notifier) cmdStatus() {
	if n.provider == nil {
		n.sendMarkdown("Status unavailable")
		return
	}
	n.sendMarkdown(n.provider.StatusLine())
}

func (n *Notifier) cmdStats() {
	if n.provider == nil {
		n.sendMarkdown("Stats unavailable")
		return
	}
	snap := n.provider.LedgerSnapshot()

	winRate := "n/a"
	if snap.Stats.WinRate.Valid {
		winRate = snap.Stats.WinRate.Decimal.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
	}

	sign := "+"
	if snap.PnL.Total.IsNegative() {
		sign = ""
	}

	n.sendMarkdown(fmt.Sprintf(`📈 *PAPER LEDGER*
━━━━━━━━━━━━━━━━━━━━

✅ Wins: *%d*
❌ Losses: *%d*
📊 Win Rate: *%s*

💵 P&L: *%s$%s*
💰 Equity: *$%s*`,
		snap.Stats.Wins, snap.Stats.Losses, winRate,
		sign, snap.PnL.Total.StringFixed(2),
		snap.Equity.StringFixed(2),
	))
}

func (n *Notifier) cmdTrades() {
	if n.provider == nil {
		n.sendMarkdown("Trades unavailable")
		return
	}
	trades, err := n.provider.RecentTrades(10)
	if err != nil {
		n.sendMarkdown("⚠️ Journal unavailable")
		return
	}
	if len(trades) == 0 {
		n.sendMarkdown("📜 No closed trades yet")
		return
	}

	var sb strings.Builder
	sb.WriteString("📜 *RECENT TRADES*\n━━━━━━━━━━━━━━━━━━━━\n")
	for _, t := range trades {
		emoji := "✅"
		if !t.Won {
			emoji = "❌"
		}
		sign := "+"
		if t.PnL.IsNegative() {
			sign = ""
		}
		fmt.Fprintf(&sb, "\n%s %s %s¢→%s¢ *%s$%s*",
			emoji, t.Side,
			t.EntryPrice.Mul(decimal.NewFromInt(100)).StringFixed(0),
			t.ExitPrice.Mul(decimal.NewFromInt(100)).StringFixed(0),
			sign, t.PnL.StringFixed(2),
		)
	}
	n.sendMarkdown(sb.String())
}

func (n *Notifier) sendMarkdown(text string) {
	if n == nil || n.api == nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := n.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

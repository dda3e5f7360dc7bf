package dashboard

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/term"

	"github.com/polyscalp/polyscalp/internal/book"
	"github.com/polyscalp/polyscalp/internal/runtime"
)

// ═══════════════════════════════════════════════════════════════════════════
// TERMINAL DASHBOARD
// ═══════════════════════════════════════════════════════════════════════════
//
// Live view of the rotation loop: current window, both books, position
// state and the paper ledger. Renders the whole frame into one buffer
// and repaints from the home position so the panel never flickers.

const (
	cReset = "\033[0m"
	cBold  = "\033[1m"
	cDim   = "\033[2m"

	cPrimary   = "\033[38;5;39m"  // Cyan
	cSecondary = "\033[38;5;248m" // Gray
	cAccent    = "\033[38;5;220m" // Gold
	cSuccess   = "\033[38;5;82m"  // Green
	cDanger    = "\033[38;5;196m" // Red
	cWarning   = "\033[38;5;214m" // Orange

	boxTL = "╔"
	boxTR = "╗"
	boxBL = "╚"
	boxBR = "╝"
	boxH  = "═"
	boxV  = "║"

	dotFilled = "●"
	dotEmpty  = "○"

	panelWidth   = 64
	refreshEvery = time.Second
)

// StatusFunc supplies the current loop status on every frame.
type StatusFunc func() runtime.Status

// Dashboard renders the scalper state to the terminal.
type Dashboard struct {
	mu      sync.Mutex
	status  StatusFunc
	running bool
	stopCh  chan struct{}

	startTime time.Time
}

// New creates a dashboard over the given status source.
func New(status StatusFunc) *Dashboard {
	return &Dashboard{
		status: status,
		stopCh: make(chan struct{}),
	}
}

// Start begins rendering. Refuses quietly when stdout is not a
// terminal, so redirected runs just keep the structured log.
func (d *Dashboard) Start() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	fmt.Print("\033[?25l") // Hide cursor
	fmt.Print("\033[2J")   // Clear screen

	go d.renderLoop()
}

// Stop halts rendering and restores the terminal.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopCh)

	fmt.Print("\033[?25h") // Show cursor
	fmt.Print(cReset)
}

func (d *Dashboard) renderLoop() {
	d.render()

	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.render()
		}
	}
}

func (d *Dashboard) render() {
	st := d.status()

	var buf strings.Builder
	buf.Grow(4096)
	buf.WriteString("\033[H")

	d.writeHeader(&buf, st)
	d.writeBooks(&buf, st)
	d.writeLedger(&buf, st)
	writeBottom(&buf)

	fmt.Print(buf.String())
}

func (d *Dashboard) writeHeader(buf *strings.Builder, st runtime.Status) {
	top := boxTL + strings.Repeat(boxH, panelWidth-2) + boxTR
	buf.WriteString(cPrimary + top + cReset + "\n")

	uptime := time.Since(d.startTime).Round(time.Second)
	writeRow(buf, fmt.Sprintf("%sPOLYSCALP%s  paper scalper  %sup %s%s",
		cBold+cAccent, cReset, cDim, uptime, cReset))

	if st.WindowSlug == "" {
		writeRow(buf, cWarning+dotEmpty+" scanning for a window..."+cReset)
		return
	}

	tte := st.TTE.Round(time.Second)
	tteColor := cSuccess
	if tte < 2*time.Minute {
		tteColor = cWarning
	}
	writeRow(buf, fmt.Sprintf("%s %s  %sexpires in %s%s",
		cSuccess+dotFilled+cReset, st.WindowSlug, tteColor, tte, cReset))
}

func (d *Dashboard) writeBooks(buf *strings.Builder, st runtime.Status) {
	writeDivider(buf)

	writeRow(buf, fmt.Sprintf("%sYES%s  %s", cSuccess, cReset, topString(st.YesTop)))
	writeRow(buf, fmt.Sprintf("%sNO %s  %s", cDanger, cReset, topString(st.NoTop)))

	pos := cDim + dotEmpty + " flat" + cReset
	if st.HasPosition {
		pos = cAccent + dotFilled + " in position" + cReset
	}
	writeRow(buf, pos+fmt.Sprintf("   %sbet %s of balance%s",
		cSecondary, st.BetFraction.StringFixed(2), cReset))
}

func (d *Dashboard) writeLedger(buf *strings.Builder, st runtime.Status) {
	writeDivider(buf)

	led := st.Ledger
	writeRow(buf, fmt.Sprintf("equity  %s$%s%s   cash $%s",
		cBold, led.Equity.StringFixed(2), cReset, led.Cash.StringFixed(2)))

	pnlColor := cSuccess
	sign := "+"
	if led.PnL.Total.IsNegative() {
		pnlColor = cDanger
		sign = ""
	}
	writeRow(buf, fmt.Sprintf("P&L     %s%s$%s%s  (realized %s$%s)",
		pnlColor, sign, led.PnL.Total.StringFixed(2), cReset,
		realizedSign(led.PnL.Realized), led.PnL.Realized.Abs().StringFixed(2)))

	winRate := "n/a"
	if led.Stats.WinRate.Valid {
		winRate = led.Stats.WinRate.Decimal.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
	}
	writeRow(buf, fmt.Sprintf("trades  %s%dW%s / %s%dL%s   win rate %s",
		cSuccess, led.Stats.Wins, cReset, cDanger, led.Stats.Losses, cReset, winRate))
}

func topString(t book.Top) string {
	bid, ask := cDim+"  —"+cReset, cDim+"—  "+cReset
	if t.Bid.Valid {
		bid = t.Bid.Decimal.StringFixed(2)
	}
	if t.Ask.Valid {
		ask = t.Ask.Decimal.StringFixed(2)
	}
	return fmt.Sprintf("bid %s  ask %s", bid, ask)
}

func realizedSign(v decimal.Decimal) string {
	if v.IsNegative() {
		return "-"
	}
	return "+"
}

// writeRow pads one content line inside the panel borders. ANSI codes
// carry no width, so padding is computed on the stripped text.
func writeRow(buf *strings.Builder, content string) {
	visible := visibleLen(content)
	pad := panelWidth - 4 - visible
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(buf, "%s%s%s %s%s %s%s%s\n",
		cPrimary, boxV, cReset, content, strings.Repeat(" ", pad), cPrimary, boxV, cReset)
}

func writeDivider(buf *strings.Builder) {
	line := "╠" + strings.Repeat(boxH, panelWidth-2) + "╣"
	buf.WriteString(cPrimary + line + cReset + "\n")
}

func writeBottom(buf *strings.Builder) {
	line := boxBL + strings.Repeat(boxH, panelWidth-2) + boxBR
	buf.WriteString(cPrimary + line + cReset + "\n")
}

// visibleLen counts printable columns, skipping ANSI escape sequences.
func visibleLen(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		case r == '\033':
			inEscape = true
		default:
			n++
		}
	}
	return n
}

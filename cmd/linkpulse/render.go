package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rickgao/linkpulse/internal/connection"
	"github.com/rickgao/linkpulse/internal/model"
)

// renderer prints click lines and connection changes. It is safe for
// concurrent use; the connection observer and listeners call it from
// different goroutines.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	printer *message.Printer
	counts  map[string]int64

	timeStyle  lipgloss.Style
	codeStyle  lipgloss.Style
	countStyle lipgloss.Style
	dimStyle   lipgloss.Style
	okStyle    lipgloss.Style
	warnStyle  lipgloss.Style
	errStyle   lipgloss.Style
}

func newRenderer(out io.Writer) *renderer {
	r := lipgloss.NewRenderer(out)
	return &renderer{
		out:        out,
		printer:    message.NewPrinter(language.English),
		counts:     make(map[string]int64),
		timeStyle:  r.NewStyle().Foreground(lipgloss.Color("#808080")),
		codeStyle:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#f7c0af")),
		countStyle: r.NewStyle().Foreground(lipgloss.Color("#7dcfff")),
		dimStyle:   r.NewStyle().Faint(true),
		okStyle:    r.NewStyle().Foreground(lipgloss.Color("#9ece6a")),
		warnStyle:  r.NewStyle().Foreground(lipgloss.Color("#e0af68")),
		errStyle:   r.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true),
	}
}

// Click prints one click and bumps the running count for its code.
func (r *renderer) Click(ev model.ClickEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[ev.Topic]++
	n := r.counts[ev.Topic]

	parts := []string{
		r.timeStyle.Render(ev.Timestamp.Local().Format(time.TimeOnly)),
		r.codeStyle.Render(ev.Topic),
		r.countStyle.Render(r.printer.Sprintf("#%d", n)),
	}
	if ev.Country != "" {
		parts = append(parts, ev.Country)
	}
	if ev.Referrer != "" {
		parts = append(parts, "from "+ev.Referrer)
	}
	if ev.UserAgent != "" {
		parts = append(parts, r.dimStyle.Render(truncate(ev.UserAgent, 48)))
	}
	fmt.Fprintln(r.out, strings.Join(parts, "  "))
}

// State prints a connection state change.
func (r *renderer) State(s connection.State) {
	var line string
	switch s {
	case connection.StateConnected:
		line = r.okStyle.Render("● live")
	case connection.StateConnecting:
		line = r.dimStyle.Render("○ connecting")
	case connection.StateReconnecting:
		line = r.warnStyle.Render("○ offline, reconnecting")
	case connection.StateFailed:
		line = r.errStyle.Render("✕ offline, gave up reconnecting")
	default:
		line = r.dimStyle.Render("○ disconnected")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, line)
}

// Totals reconciles the running count for a code with the server's total
// and prints it when it changed.
func (r *renderer) Totals(s model.LinkStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.counts[s.ShortCode]; ok && prev == s.TotalClicks {
		return nil
	}
	r.counts[s.ShortCode] = s.TotalClicks

	_, err := fmt.Fprintln(r.out, r.statsLine(s))
	return err
}

// Table prints stats for several codes, one per line.
func (r *renderer) Table(stats []model.LinkStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range stats {
		fmt.Fprintln(r.out, r.statsLine(s))
	}
}

func (r *renderer) statsLine(s model.LinkStats) string {
	last := "never"
	if !s.LastClickAt.IsZero() {
		last = s.LastClickAt.Local().Format(time.DateTime)
	}
	parts := []string{
		r.codeStyle.Render(s.ShortCode),
		r.countStyle.Render(r.printer.Sprintf("%d clicks", s.TotalClicks)),
		r.printer.Sprintf("%d unique", s.UniqueVisitors),
		r.dimStyle.Render("last " + last),
	}
	if s.OriginalURL != "" {
		parts = append(parts, r.dimStyle.Render("→ "+s.OriginalURL))
	}
	return strings.Join(parts, "  ")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

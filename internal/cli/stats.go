package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"probsbots/pkg/ledger"
	"probsbots/pkg/performance"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	winStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	lossStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
)

// Stats is what `trader stats` prints.
type Stats struct {
	Symbol  string
	Report  *performance.Report
	Open    []ledger.Record
	Summary *performance.Summary
}

// RenderStats draws the performance summary, losing setups, recent trades
// and open records as terminal panels.
func RenderStats(s Stats) string {
	scope := s.Symbol
	if scope == "" {
		scope = "all symbols"
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("probsbots performance · "+scope) + "\n")

	summary := s.Summary
	if summary == nil && s.Report != nil {
		summary = &s.Report.Summary
	}
	if summary == nil || summary.TotalTrades == 0 {
		b.WriteString(panelStyle.Render("No closed trades yet."))
	} else {
		b.WriteString(panelStyle.Render(renderSummary(summary)))
	}
	b.WriteString("\n")

	if s.Report != nil && len(s.Report.AntiPatterns) > 0 {
		lines := []string{labelStyle.Render("Losing setups")}
		for _, p := range s.Report.AntiPatterns {
			lines = append(lines, fmt.Sprintf("%s  trades=%d  avg=%s", p.Setup, p.TradeCount, pnl(p.AvgPnL)))
		}
		b.WriteString(panelStyle.Render(strings.Join(lines, "\n")) + "\n")
	}
	if s.Report != nil && len(s.Report.RecentTrades) > 0 {
		lines := []string{labelStyle.Render("Recent trades")}
		for _, t := range s.Report.RecentTrades {
			lines = append(lines, fmt.Sprintf("%-4s %-5s %2dx  %-8s %-12s %s",
				t.Operation, t.Symbol, t.Leverage, t.Outcome, t.ExitReason, pnl(t.PnL)))
		}
		b.WriteString(panelStyle.Render(strings.Join(lines, "\n")) + "\n")
	}

	lines := []string{labelStyle.Render(fmt.Sprintf("Open records (%d)", len(s.Open)))}
	for _, rec := range s.Open {
		lines = append(lines, fmt.Sprintf("%-4s %-5s %2dx  entry=%.4f  sl=%.4f%s  tp=%.4f%s",
			rec.Operation, rec.Symbol, rec.Leverage, rec.EntryPrice,
			rec.StopLoss, placed(rec.Protection.StopLossPlaced),
			rec.TakeProfit, placed(rec.Protection.TakeProfitPlaced)))
	}
	b.WriteString(panelStyle.Render(strings.Join(lines, "\n")))
	return b.String()
}

func renderSummary(s *performance.Summary) string {
	rows := [][2]string{
		{"Window", fmt.Sprintf("%d days", s.LookbackDays)},
		{"Trades", fmt.Sprintf("%d (%s / %s)", s.TotalTrades,
			winStyle.Render(fmt.Sprintf("%d W", s.Wins)), lossStyle.Render(fmt.Sprintf("%d L", s.Losses)))},
		{"Win rate", fmt.Sprintf("%.1f%%", s.WinRate)},
		{"Avg win / loss", fmt.Sprintf("%s / %s", pnl(s.AvgWinPnL), pnl(s.AvgLossPnL))},
		{"Avg TP / SL", fmt.Sprintf("%.2f%% / %.2f%%", s.AvgTakeProfitPercent, s.AvgStopLossPercent)},
		{fmt.Sprintf("Above %dx", performance.HighLeverage), fmt.Sprintf("%d", s.HighLeverageTradeCount)},
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, labelStyle.Render(fmt.Sprintf("%-15s", r[0]))+r[1])
	}
	return strings.Join(lines, "\n")
}

func pnl(v float64) string {
	s := fmt.Sprintf("%+.3f", v)
	if v > 0 {
		return winStyle.Render(s)
	}
	if v < 0 {
		return lossStyle.Render(s)
	}
	return s
}

func placed(ok bool) string {
	if ok {
		return ""
	}
	return lossStyle.Render(" (missing)")
}

package performance

import (
	"context"
	"fmt"
	"strings"

	"probsbots/pkg/journal"
)

const digestRationaleRunes = 120

// Digest renders the report for symbol as prompt text. An empty symbol
// covers every symbol.
func (a *Aggregator) Digest(ctx context.Context, symbol string) (string, error) {
	report, err := a.Report(ctx, symbol)
	if err != nil {
		return "", err
	}
	return FormatDigest(report), nil
}

// FormatDigest renders report in the layout the decision prompt expects.
func FormatDigest(report *Report) string {
	if report.Empty() {
		return "No closed trades yet."
	}
	var b strings.Builder
	s := report.Summary
	fmt.Fprintf(&b, "Last %d days: %d trades, win rate %.1f%% (%d wins / %d losses)\n",
		s.LookbackDays, s.TotalTrades, s.WinRate, s.Wins, s.Losses)
	fmt.Fprintf(&b, "Average win %.3f USD, average loss %.3f USD\n", s.AvgWinPnL, s.AvgLossPnL)
	fmt.Fprintf(&b, "Average TP distance on wins %.2f%%, average SL distance on losses %.2f%%\n",
		s.AvgTakeProfitPercent, s.AvgStopLossPercent)
	fmt.Fprintf(&b, "Trades above %dx leverage: %d\n", HighLeverage, s.HighLeverageTradeCount)

	if len(report.AntiPatterns) > 0 {
		b.WriteString("\nLosing setups to avoid:\n")
		for _, p := range report.AntiPatterns {
			fmt.Fprintf(&b, "- %s: %d trades, avg PnL %.3f USD\n", p.Setup, p.TradeCount, p.AvgPnL)
		}
	}
	if len(report.RecentTrades) > 0 {
		b.WriteString("\nRecent trades (newest first):\n")
		for _, t := range report.RecentTrades {
			fmt.Fprintf(&b, "- %s %s %dx entry %.2f SL %.2f%% TP %.2f%% -> %s (%s) PnL %.3f",
				t.Operation, t.Symbol, t.Leverage, t.EntryPrice, t.StopLoss, t.TakeProfit, t.Outcome, t.ExitReason, t.PnL)
			if r := strings.TrimSpace(t.Rationale); r != "" {
				fmt.Fprintf(&b, " | %s", journal.Truncate(r, digestRationaleRunes))
			}
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

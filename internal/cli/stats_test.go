package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"probsbots/pkg/ledger"
	"probsbots/pkg/performance"
)

func TestRenderStats_Empty(t *testing.T) {
	out := RenderStats(Stats{})
	assert.Contains(t, out, "all symbols")
	assert.Contains(t, out, "No closed trades yet.")
	assert.Contains(t, out, "Open records (0)")
}

func TestRenderStats_Report(t *testing.T) {
	report := &performance.Report{
		Summary: performance.Summary{LookbackDays: 30, TotalTrades: 4, Wins: 1, Losses: 3, WinRate: 25},
		AntiPatterns: []performance.AntiPattern{
			{Setup: "Leverage: 10x, SL: -5.0%, TP: 6.0%", TradeCount: 3, AvgPnL: -7.5},
		},
		RecentTrades: []performance.Trade{
			{Symbol: "BTC", Operation: ledger.OperationBuy, Leverage: 10, Outcome: ledger.OutcomeLoss, ExitReason: ledger.ExitStopLoss, PnL: -9},
		},
	}
	open := []ledger.Record{{Symbol: "ETH", Operation: ledger.OperationSell, Leverage: 2, Protection: ledger.Protection{StopLossPlaced: true}}}

	out := RenderStats(Stats{Symbol: "BTC", Report: report, Open: open})
	assert.Contains(t, out, "BTC")
	assert.Contains(t, out, "25.0%")
	assert.Contains(t, out, "Leverage: 10x, SL: -5.0%, TP: 6.0%")
	assert.Contains(t, out, "stop_loss")
	assert.Contains(t, out, "Open records (1)")
	assert.Contains(t, out, "(missing)")
}

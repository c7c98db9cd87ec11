package manager

import (
	"context"
	"encoding/json"

	"github.com/zeromicro/go-zero/core/logx"

	"probsbots/pkg/executor"
	"probsbots/pkg/journal"
	"probsbots/pkg/ledger"
	"probsbots/pkg/market"
)

// newPositionRecord builds the open ledger entry for an executed decision.
// The live entry price and size are preferred so the reconciler can match
// venue history against them.
func newPositionRecord(d executor.Decision, res *ExecutionResult, snap *market.Snapshot) *ledger.Record {
	pos := d.Position
	entry := res.EntryPrice
	if entry <= 0 {
		entry = pos.EntryPrice
	}
	return &ledger.Record{
		Symbol:           d.Symbol,
		Operation:        d.Operation,
		EntryPrice:       entry,
		AmountUSD:        pos.AmountUSD,
		Contracts:        res.Contracts,
		Leverage:         pos.Leverage,
		StopLoss:         pos.StopLoss,
		TakeProfit:       pos.TakeProfit,
		ExchangeOrderID:  res.OrderID,
		IndicatorsAtOpen: snap.IndicatorsJSON(),
		MarketAtOpen:     snap.ConditionsJSON(),
		Rationale:        d.Rationale,
		Protection:       res.Protection(),
		FillPending:      !res.Confirmed,
		Outcome:          ledger.OutcomeOpen,
	}
}

func journalEntry(c ledger.Cycle, d *executor.Decision) journal.Entry {
	e := journal.Entry{
		Timestamp:    c.StartedAt,
		Operation:    string(c.Operation),
		Symbol:       c.Symbol,
		Rationale:    c.Rationale,
		PromptDigest: c.PromptDigest,
		Result:       string(c.Result),
		Error:        c.Error,
		PositionID:   c.PositionID,
	}
	if d != nil && d.Position != nil {
		if b, err := json.Marshal(d.Position); err == nil {
			e.Position = b
		}
	}
	return e
}

func logPersistenceError(ctx context.Context, err error, msg string, fields map[string]any) {
	if err == nil {
		return
	}
	logx.WithContext(ctx).Errorf("manager: %s: %v fields=%v", msg, err, fields)
}

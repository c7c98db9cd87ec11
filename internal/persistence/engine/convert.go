package engine

import (
	"database/sql"
	"encoding/json"

	"probsbots/internal/model"
	"probsbots/pkg/ledger"
)

func toPositionRow(rec *ledger.Record) *model.PositionRecords {
	row := &model.PositionRecords{
		Id:               rec.ID,
		Symbol:           rec.Symbol,
		Operation:        string(rec.Operation),
		EntryPrice:       rec.EntryPrice,
		AmountUsd:        rec.AmountUSD,
		Contracts:        rec.Contracts,
		Leverage:         int64(rec.Leverage),
		StopLoss:         rec.StopLoss,
		TakeProfit:       rec.TakeProfit,
		ExchangeOrderId:  rec.ExchangeOrderID,
		IndicatorsAtOpen: nullJSON(rec.IndicatorsAtOpen),
		MarketAtOpen:     nullJSON(rec.MarketAtOpen),
		Rationale:        rec.Rationale,
		StopLossPlaced:   rec.Protection.StopLossPlaced,
		TakeProfitPlaced: rec.Protection.TakeProfitPlaced,
		FillPending:      rec.FillPending,
		Outcome:          string(rec.Outcome),
		OpenedAt:         rec.CreatedAt.UTC(),
	}
	if c := rec.Closure; c != nil {
		row.ExitPrice = sql.NullFloat64{Float64: c.ExitPrice, Valid: true}
		row.ExitReason = sql.NullString{String: string(c.ExitReason), Valid: true}
		row.FinalPnl = sql.NullFloat64{Float64: c.FinalPnL, Valid: true}
		row.ClosedAt = sql.NullTime{Time: c.ClosedAt.UTC(), Valid: !c.ClosedAt.IsZero()}
	}
	return row
}

func fromPositionRow(row *model.PositionRecords) ledger.Record {
	rec := ledger.Record{
		ID:               row.Id,
		Symbol:           row.Symbol,
		Operation:        ledger.Operation(row.Operation),
		EntryPrice:       row.EntryPrice,
		AmountUSD:        row.AmountUsd,
		Contracts:        row.Contracts,
		Leverage:         int(row.Leverage),
		StopLoss:         row.StopLoss,
		TakeProfit:       row.TakeProfit,
		ExchangeOrderID:  row.ExchangeOrderId,
		IndicatorsAtOpen: rawJSON(row.IndicatorsAtOpen),
		MarketAtOpen:     rawJSON(row.MarketAtOpen),
		Rationale:        row.Rationale,
		Protection: ledger.Protection{
			StopLossPlaced:   row.StopLossPlaced,
			TakeProfitPlaced: row.TakeProfitPlaced,
		},
		FillPending: row.FillPending,
		Outcome:     ledger.Outcome(row.Outcome),
		CreatedAt:   row.OpenedAt.UTC(),
	}
	if rec.Outcome != ledger.OutcomeOpen && row.ClosedAt.Valid {
		rec.Closure = &ledger.Closure{
			Outcome:    rec.Outcome,
			ExitPrice:  row.ExitPrice.Float64,
			ExitReason: ledger.ExitReason(row.ExitReason.String),
			FinalPnL:   row.FinalPnl.Float64,
			ClosedAt:   row.ClosedAt.Time.UTC(),
		}
	}
	return rec
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 || !json.Valid(raw) {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func rawJSON(v sql.NullString) json.RawMessage {
	if !v.Valid || v.String == "" {
		return nil
	}
	return json.RawMessage(v.String)
}

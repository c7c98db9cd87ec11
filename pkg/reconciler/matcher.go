package reconciler

import (
	"math"
	"strings"

	"probsbots/pkg/exchange"
	"probsbots/pkg/ledger"
)

// HistoryMatcher finds the venue history entry that closed a record. Venues
// with a stable order-to-history link can supply their own implementation.
type HistoryMatcher interface {
	Match(rec ledger.Record, entries []exchange.HistoryEntry) (exchange.HistoryEntry, bool)
}

// FuzzyMatcher matches by content: same symbol, quantity and entry price
// within absolute tolerances, looking only at the newest HeadWindow entries.
// Records with a pending fill carry the requested entry price, so their price
// tolerance grows to PendingSlippage of entry.
type FuzzyMatcher struct {
	HeadWindow      int
	QtyTolerance    float64
	PriceTolerance  float64
	PendingSlippage float64
}

// NewFuzzyMatcher builds a matcher from cfg.
func NewFuzzyMatcher(cfg *Config) *FuzzyMatcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &FuzzyMatcher{
		HeadWindow:      cfg.HeadWindow,
		QtyTolerance:    cfg.QtyTolerance,
		PriceTolerance:  cfg.PriceTolerance,
		PendingSlippage: cfg.PendingSlippage,
	}
}

// Match expects entries newest first.
func (m *FuzzyMatcher) Match(rec ledger.Record, entries []exchange.HistoryEntry) (exchange.HistoryEntry, bool) {
	window := m.HeadWindow
	if window <= 0 || window > len(entries) {
		window = len(entries)
	}
	symbol := exchange.NormalizeSymbol(rec.Symbol)
	qty := rec.Quantity()
	priceTol := m.PriceTolerance
	if rec.FillPending {
		priceTol = math.Max(priceTol, rec.EntryPrice*m.PendingSlippage)
	}
	for _, e := range entries[:window] {
		if exchange.NormalizeSymbol(e.Symbol) != symbol {
			continue
		}
		if math.Abs(qty-e.Qty) >= m.QtyTolerance {
			continue
		}
		if math.Abs(rec.EntryPrice-e.AvgEntryPrice) >= priceTol {
			continue
		}
		return e, true
	}
	return exchange.HistoryEntry{}, false
}

// Classify derives how a position left the market from its history entry.
// Stop context wins, then the sign of the realised PnL on a trade fill, then
// the order type.
func Classify(e exchange.HistoryEntry) ledger.ExitReason {
	stop := strings.ToLower(e.StopOrderType)
	switch {
	case strings.Contains(stop, "stoploss") || stop == "trailingstop":
		return ledger.ExitStopLoss
	case strings.Contains(stop, "takeprofit"):
		return ledger.ExitTakeProfit
	}

	trade := strings.EqualFold(e.ExecType, "Trade")
	if trade && e.ClosedPnL != nil {
		switch {
		case *e.ClosedPnL < 0:
			return ledger.ExitStopLoss
		case *e.ClosedPnL > 0:
			return ledger.ExitTakeProfit
		}
	}
	switch {
	case trade && strings.EqualFold(e.OrderType, "Market"):
		return ledger.ExitManualClose
	case trade && strings.EqualFold(e.OrderType, "Limit"):
		return ledger.ExitLimitOrder
	}
	return ledger.ExitUnknown
}

// realisedPnL returns the venue PnL, or an estimate from prices when the
// venue omitted it.
func realisedPnL(rec ledger.Record, e exchange.HistoryEntry) float64 {
	if e.ClosedPnL != nil {
		return *e.ClosedPnL
	}
	diff := e.AvgExitPrice - e.AvgEntryPrice
	if rec.Operation == ledger.OperationSell {
		diff = -diff
	}
	return diff * e.Qty
}

package executor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"probsbots/pkg/exchange"
	"probsbots/pkg/market"
)

// buildPromptInputs renders dynamic sections used by the decision prompt template.
func buildPromptInputs(cfg *Config, in *Context) PromptInputs {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	digest := strings.TrimSpace(in.PerformanceDigest)
	if digest == "" {
		digest = "(no closed trades yet)"
	}
	return PromptInputs{
		CurrentTime:       now.UTC().Format(time.RFC3339),
		Symbols:           strings.Join(in.Symbols, ", "),
		MaxLeverage:       cfg.MaxLeverage,
		StopLossPct:       cfg.StopLossPct * 100,
		TakeProfitPct:     cfg.TakeProfitPct * 100,
		AccountOverview:   formatAccount(in.Account),
		OpenPositions:     formatPositions(in.Positions),
		PerformanceDigest: digest,
		MarketSnapshots:   formatMarketJSON(in.Snapshots),
	}
}

func formatAccount(a AccountInfo) string {
	return fmt.Sprintf("total_cash=%.2f, available=%.2f, positions_value=%.2f, unrealized_pnl=%.2f, total_return=%.2f%%, sharpe=%.3f",
		a.TotalCash, a.AvailableCash, a.PositionsValue, a.UnrealizedPnL, a.TotalReturn*100, a.SharpeRatio,
	)
}

func formatPositions(positions []exchange.Position) string {
	if len(positions) == 0 {
		return "(none)"
	}
	items := make([]string, 0, len(positions))
	for _, p := range positions {
		items = append(items, fmt.Sprintf("%s %s contracts=%.4f lev=%dx entry=%.4f mark=%.4f upnl=%.2f",
			p.Symbol, p.Side, p.Contracts, p.Leverage, p.EntryPrice, p.MarkPrice, p.UnrealizedPnL,
		))
	}
	sort.Strings(items)
	return strings.Join(items, "\n")
}

// formatMarketJSON keeps the fields the oracle reasons about and drops the
// long candle tails except for the last few closes.
func formatMarketJSON(snaps map[string]*market.Snapshot) string {
	if len(snaps) == 0 {
		return "{}"
	}
	type frame struct {
		EMA20   float64   `json:"ema20"`
		EMA50   float64   `json:"ema50"`
		MACD    float64   `json:"macd"`
		RSI7    float64   `json:"rsi7"`
		RSI14   float64   `json:"rsi14"`
		ATR3    float64   `json:"atr3"`
		ATR14   float64   `json:"atr14"`
		Volume  float64   `json:"volume"`
		AvgVol  float64   `json:"avgVolume"`
		Closes  []float64 `json:"recentCloses,omitempty"`
		MACDSeq []float64 `json:"macdSeries,omitempty"`
		RSI7Seq []float64 `json:"rsi7Series,omitempty"`
	}
	type lite struct {
		Price       float64 `json:"price"`
		Change1h    float64 `json:"change1hPct"`
		Change4h    float64 `json:"change4hPct"`
		Change24h   float64 `json:"change24hPct"`
		FundingRate float64 `json:"fundingRate"`
		OILatest    float64 `json:"openInterest"`
		OIAverage   float64 `json:"openInterestAvg"`
		Intraday    frame   `json:"intraday"`
		LongTerm    frame   `json:"longTerm"`
	}
	toFrame := func(f market.Frame) frame {
		return frame{
			EMA20: f.EMA20, EMA50: f.EMA50, MACD: f.MACD,
			RSI7: f.RSI7, RSI14: f.RSI14, ATR3: f.ATR3, ATR14: f.ATR14,
			Volume: f.Volume, AvgVol: f.AvgVolume,
			Closes: tail(f.Closes, 10), MACDSeq: tail(f.MACDTail, 10), RSI7Seq: tail(f.RSI7Tail, 10),
		}
	}
	out := make(map[string]lite, len(snaps))
	for sym, s := range snaps {
		if s == nil {
			continue
		}
		out[sym] = lite{
			Price:       s.Price,
			Change1h:    s.Change1h,
			Change4h:    s.Change4h,
			Change24h:   s.Change24h,
			FundingRate: s.FundingRate,
			OILatest:    s.OpenInterest.Latest,
			OIAverage:   s.OpenInterest.Average,
			Intraday:    toFrame(s.Intraday),
			LongTerm:    toFrame(s.LongTerm),
		}
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

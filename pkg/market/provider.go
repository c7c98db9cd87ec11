package market

import (
	"context"
	"encoding/json"
	"time"
)

// Provider exposes exchange-agnostic market data.
type Provider interface {
	// Snapshot returns the feature vector for a base-coin symbol ("BTC").
	Snapshot(ctx context.Context, symbol string) (*Snapshot, error)
}

// Snapshot is the per-symbol feature vector handed to the decision oracle.
type Snapshot struct {
	Symbol       string       `json:"symbol"`
	Price        float64      `json:"price"`
	MarkPrice    float64      `json:"markPrice"`
	Change1h     float64      `json:"change1hPct"`
	Change4h     float64      `json:"change4hPct"`
	Change24h    float64      `json:"change24hPct"`
	Volume24h    float64      `json:"volume24h"`
	FundingRate  float64      `json:"fundingRate"`
	OpenInterest OpenInterest `json:"openInterest"`
	Intraday     Frame        `json:"intraday"`
	LongTerm     Frame        `json:"longTerm"`
	CapturedAt   time.Time    `json:"capturedAt"`
}

// OpenInterest reports derivatives open interest.
type OpenInterest struct {
	Latest  float64 `json:"latest"`
	Average float64 `json:"average"`
}

// Frame summarises one candle interval.
type Frame struct {
	Interval  string    `json:"interval"`
	EMA20     float64   `json:"ema20"`
	EMA50     float64   `json:"ema50"`
	MACD      float64   `json:"macd"`
	RSI7      float64   `json:"rsi7"`
	RSI14     float64   `json:"rsi14"`
	ATR3      float64   `json:"atr3"`
	ATR14     float64   `json:"atr14"`
	Volume    float64   `json:"volume"`
	AvgVolume float64   `json:"avgVolume"`
	Closes    []float64 `json:"closes"`
	MACDTail  []float64 `json:"macdTail"`
	RSI7Tail  []float64 `json:"rsi7Tail"`
}

// Indicators is the subset of a snapshot persisted with a position at open.
type Indicators struct {
	RSI14        float64 `json:"rsi14"`
	MACD         float64 `json:"macd"`
	EMA20        float64 `json:"ema20"`
	ATR14        float64 `json:"atr14"`
	FundingRate  float64 `json:"fundingRate"`
	OpenInterest float64 `json:"openInterest"`
	Volume       float64 `json:"volume"`
}

// Conditions describes the market when a position was opened.
type Conditions struct {
	Price     float64   `json:"price"`
	Change1h  float64   `json:"change1hPct"`
	Change4h  float64   `json:"change4hPct"`
	Change24h float64   `json:"change24hPct"`
	Volume24h float64   `json:"volume24h"`
	At        time.Time `json:"at"`
}

// IndicatorsJSON encodes the indicators captured at open.
func (s *Snapshot) IndicatorsJSON() json.RawMessage {
	if s == nil {
		return nil
	}
	b, _ := json.Marshal(Indicators{
		RSI14:        s.Intraday.RSI14,
		MACD:         s.Intraday.MACD,
		EMA20:        s.Intraday.EMA20,
		ATR14:        s.LongTerm.ATR14,
		FundingRate:  s.FundingRate,
		OpenInterest: s.OpenInterest.Latest,
		Volume:       s.Intraday.Volume,
	})
	return b
}

// ConditionsJSON encodes the market conditions captured at open.
func (s *Snapshot) ConditionsJSON() json.RawMessage {
	if s == nil {
		return nil
	}
	b, _ := json.Marshal(Conditions{
		Price:     s.Price,
		Change1h:  s.Change1h,
		Change4h:  s.Change4h,
		Change24h: s.Change24h,
		Volume24h: s.Volume24h,
		At:        s.CapturedAt,
	})
	return b
}

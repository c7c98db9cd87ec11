package exchange

import (
	"strings"
	"time"
)

// OrderSide represents order direction.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the side that reduces a position opened with s.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// OrderType selects how the venue executes an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	// OrderTypeStop is a stop-market order armed at TriggerPrice.
	OrderTypeStop OrderType = "stop"
)

// TimeInForce values accepted by OrderRequest.
const (
	TimeInForceGTC = "GTC"
	TimeInForceIOC = "IOC"
)

// OrderRequest is a normalized order submission.
type OrderRequest struct {
	Symbol       string
	Type         OrderType
	Side         OrderSide
	Quantity     float64
	Price        float64 // limit price; ignored for market and stop orders
	TriggerPrice float64 // stop orders only
	ReduceOnly   bool
	TimeInForce  string
}

// Order is the venue acknowledgement of an accepted order.
type Order struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Type         OrderType `json:"type"`
	Side         OrderSide `json:"side"`
	Quantity     float64   `json:"quantity"`
	Price        float64   `json:"price,omitempty"`
	TriggerPrice float64   `json:"triggerPrice,omitempty"`
	ReduceOnly   bool      `json:"reduceOnly"`
	Status       string    `json:"status"`
}

// Position captures live position details.
type Position struct {
	Symbol        string       `json:"symbol"`
	Side          PositionSide `json:"side"`
	Contracts     float64      `json:"contracts"`
	EntryPrice    float64      `json:"entryPrice"`
	MarkPrice     float64      `json:"markPrice"`
	UnrealizedPnL float64      `json:"unrealizedPnl"`
	Leverage      int          `json:"leverage"`
	Notional      float64      `json:"notional"`
}

// Balance summarises the settlement-asset wallet.
type Balance struct {
	Asset         string  `json:"asset"`
	Total         float64 `json:"total"`
	Available     float64 `json:"available"`
	UnrealizedPnL float64 `json:"unrealizedPnl"`
}

// HistoryEntry is one closed-position record from the venue.
type HistoryEntry struct {
	Symbol        string    `json:"symbol"`
	Side          OrderSide `json:"side"`
	Qty           float64   `json:"qty"`
	ClosedPnL     *float64  `json:"closedPnl,omitempty"`
	AvgEntryPrice float64   `json:"avgEntryPrice"`
	AvgExitPrice  float64   `json:"avgExitPrice"`
	ExecType      string    `json:"execType"`
	OrderType     string    `json:"orderType"`
	StopOrderType string    `json:"stopOrderType,omitempty"`
	UpdatedTime   time.Time `json:"updatedTime"`
}

// Instrument carries the precision rules of a contract.
type Instrument struct {
	Symbol   string  `json:"symbol"`
	QtyStep  float64 `json:"qtyStep"`
	MinQty   float64 `json:"minQty"`
	TickSize float64 `json:"tickSize"`
}

var symbolSuffixes = []string{"/USDT:USDT", "/USDT", ":USDT", "-USDT", "USDT", "PERP"}

// NormalizeSymbol reduces venue instrument names ("BTC/USDT:USDT",
// "BTCUSDT") to the base coin.
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, suffix := range symbolSuffixes {
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
			return strings.TrimSuffix(s, suffix)
		}
	}
	return s
}

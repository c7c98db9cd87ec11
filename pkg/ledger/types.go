package ledger

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"
)

// Operation is the trading action a decision asked for.
type Operation string

const (
	OperationBuy  Operation = "Buy"
	OperationSell Operation = "Sell"
	OperationHold Operation = "Hold"
)

// ParseOperation accepts case-insensitive spellings of the three operations.
func ParseOperation(raw string) (Operation, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy":
		return OperationBuy, true
	case "sell":
		return OperationSell, true
	case "hold":
		return OperationHold, true
	default:
		return "", false
	}
}

// IsEntry reports whether the operation opens a position.
func (o Operation) IsEntry() bool {
	return o == OperationBuy || o == OperationSell
}

// Outcome is the lifecycle state of a position record.
type Outcome string

const (
	OutcomeOpen Outcome = "open"
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

// ExitReason labels how a closed position left the market.
type ExitReason string

const (
	ExitStopLoss    ExitReason = "stop_loss"
	ExitTakeProfit  ExitReason = "take_profit"
	ExitManualClose ExitReason = "manual_close"
	ExitLimitOrder  ExitReason = "limit_order"
	ExitUnknown     ExitReason = "unknown"
)

var (
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("ledger: record not found")
	// ErrNotOpen is returned when closing a record that already left the open state.
	ErrNotOpen = errors.New("ledger: record is not open")
)

// Protection tracks whether the protective orders were accepted by the venue.
type Protection struct {
	StopLossPlaced   bool `json:"stopLossPlaced"`
	TakeProfitPlaced bool `json:"takeProfitPlaced"`
}

// Fill is the venue-confirmed entry of a position.
type Fill struct {
	EntryPrice float64
	Contracts  float64
}

// Complete reports whether both protective orders are resting.
func (p Protection) Complete() bool {
	return p.StopLossPlaced && p.TakeProfitPlaced
}

// Closure carries the fields written when a record moves to win or loss.
type Closure struct {
	Outcome    Outcome    `json:"outcome"`
	ExitPrice  float64    `json:"exitPrice"`
	ExitReason ExitReason `json:"exitReason"`
	FinalPnL   float64    `json:"finalPnl"`
	ClosedAt   time.Time  `json:"closedAt"`
}

// Record is the durable lifecycle entry for one executed position.
type Record struct {
	ID               string          `json:"id"`
	Symbol           string          `json:"symbol"`
	Operation        Operation       `json:"operation"`
	EntryPrice       float64         `json:"entryPrice"`
	AmountUSD        float64         `json:"amountUsd"`
	Contracts        float64         `json:"contracts"`
	Leverage         int             `json:"leverage"`
	StopLoss         float64         `json:"stopLoss"`
	TakeProfit       float64         `json:"takeProfit"`
	ExchangeOrderID  string          `json:"exchangeOrderId"`
	IndicatorsAtOpen json.RawMessage `json:"indicatorsAtOpen,omitempty"`
	MarketAtOpen     json.RawMessage `json:"marketAtOpen,omitempty"`
	Rationale        string          `json:"rationale"`
	Protection       Protection      `json:"protection"`
	// FillPending is set when the venue position could not be read after
	// entry, so EntryPrice and Contracts are still the requested values.
	FillPending      bool            `json:"fillPending,omitempty"`
	Outcome          Outcome         `json:"outcome"`
	Closure          *Closure        `json:"closure,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// IsOpen reports whether the record still awaits reconciliation.
func (r Record) IsOpen() bool {
	return r.Outcome == OutcomeOpen || r.Outcome == ""
}

// Quantity is the contract count used for history matching: the live size when
// it was captured at open, the requested size otherwise.
func (r Record) Quantity() float64 {
	if r.Contracts > 0 {
		return r.Contracts
	}
	if r.EntryPrice <= 0 {
		return 0
	}
	return r.AmountUSD / r.EntryPrice
}

// StopLossPercent is the stop distance as a percentage of entry.
func (r Record) StopLossPercent() float64 {
	return distancePercent(r.EntryPrice, r.StopLoss)
}

// TakeProfitPercent is the target distance as a percentage of entry.
func (r Record) TakeProfitPercent() float64 {
	return distancePercent(r.EntryPrice, r.TakeProfit)
}

func distancePercent(entry, level float64) float64 {
	if entry <= 0 || level <= 0 {
		return 0
	}
	return math.Abs(entry-level) / entry * 100
}

// ClosedFilter narrows ListClosed. Zero values mean no constraint.
type ClosedFilter struct {
	Symbol string
	Since  time.Time
	Limit  int
}

// CycleResult summarises what a decision cycle ended up doing.
type CycleResult string

const (
	CycleExecuted  CycleResult = "executed"
	CycleHold      CycleResult = "hold"
	CycleSkipped   CycleResult = "skipped"
	CycleRejected  CycleResult = "rejected"
	CycleFailed    CycleResult = "failed"
	// CycleUntracked means an entry was accepted but its record was not written.
	CycleUntracked CycleResult = "untracked"
)

// Cycle is the audit row written for every decision cycle, including failed ones.
type Cycle struct {
	ID           string          `json:"id"`
	StartedAt    time.Time       `json:"startedAt"`
	Operation    Operation       `json:"operation"`
	Symbol       string          `json:"symbol,omitempty"`
	Decision     json.RawMessage `json:"decision,omitempty"`
	Rationale    string          `json:"rationale"`
	PromptDigest string          `json:"promptDigest,omitempty"`
	Result       CycleResult     `json:"result"`
	Error        string          `json:"error,omitempty"`
	PositionID   string          `json:"positionId,omitempty"`
}

// AccountSample is one point of the account performance series.
type AccountSample struct {
	SampledAt      time.Time `json:"sampledAt"`
	PositionsValue float64   `json:"positionsValue"`
	ContractValue  float64   `json:"contractValue"`
	TotalCash      float64   `json:"totalCashValue"`
	AvailableCash  float64   `json:"availableCash"`
	TotalReturn    float64   `json:"currentTotalReturn"`
	SharpeRatio    float64   `json:"sharpeRatio"`
	OpenPositions  int       `json:"positions"`
}

package executor

import (
	"encoding/json"
	"time"

	"probsbots/pkg/exchange"
	"probsbots/pkg/ledger"
	"probsbots/pkg/market"
)

// Candidate is the loose decision contract the oracle answers with. Numeric
// fields are pointers so a missing value is distinguishable from zero; the
// typed Decision only exists after Validate.
type Candidate struct {
	Operation string             `json:"operation" description:"One of Buy, Sell or Hold"`
	Symbol    string             `json:"symbol" description:"Base coin, for example BTC"`
	Position  *CandidatePosition `json:"position" description:"Required for Buy and Sell, null for Hold"`
	Rationale string             `json:"rationale" description:"Why this action, in a few sentences"`
}

// Clone returns a copy whose Position can be modified without touching c.
func (c Candidate) Clone() Candidate {
	if c.Position != nil {
		pos := *c.Position
		c.Position = &pos
	}
	return c
}

// CandidatePosition is the sizing block of a Candidate.
type CandidatePosition struct {
	EntryPrice *float64 `json:"entryPrice" description:"Expected entry price in USDT"`
	AmountUSD  *float64 `json:"amountUsd" description:"Notional in USDT before leverage"`
	Leverage   *float64 `json:"leverage" description:"Integer leverage"`
	StopLoss   *float64 `json:"stopLoss" description:"Stop-loss trigger price"`
	TakeProfit *float64 `json:"takeProfit" description:"Take-profit limit price"`
}

// Position is the validated sizing of an entry.
type Position struct {
	EntryPrice float64 `json:"entryPrice"`
	AmountUSD  float64 `json:"amountUsd"`
	Leverage   int     `json:"leverage"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
}

// Decision is Hold, Buy(position) or Sell(position). Position is non-nil
// exactly when Operation is an entry.
type Decision struct {
	Operation ledger.Operation `json:"operation"`
	Symbol    string           `json:"symbol"`
	Position  *Position        `json:"position,omitempty"`
	Rationale string           `json:"rationale"`
}

// Side returns the entry order side for Buy and Sell.
func (d Decision) Side() exchange.OrderSide {
	if d.Operation == ledger.OperationSell {
		return exchange.OrderSideSell
	}
	return exchange.OrderSideBuy
}

// JSON encodes the decision for audit rows.
func (d Decision) JSON() json.RawMessage {
	b, _ := json.Marshal(d)
	return b
}

// AccountInfo summarises account state for the prompt.
type AccountInfo struct {
	TotalCash      float64
	AvailableCash  float64
	PositionsValue float64
	UnrealizedPnL  float64
	TotalReturn    float64
	SharpeRatio    float64
}

// Context aggregates everything the oracle sees in one cycle.
type Context struct {
	Now               time.Time
	Symbols           []string
	Snapshots         map[string]*market.Snapshot
	Account           AccountInfo
	Positions         []exchange.Position
	PerformanceDigest string
}

// Proposal is the raw oracle answer plus the audit trail of how it was made.
type Proposal struct {
	Candidate    Candidate
	Prompt       string
	PromptDigest string
	Response     string
	ModelID      string
	At           time.Time
}

package executor

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"probsbots/pkg/exchange"
	"probsbots/pkg/ledger"
)

// ErrSchemaViolation marks a decision that failed structural or business-rule
// checks. No exchange call may follow it.
var ErrSchemaViolation = errors.New("executor: schema violation")

// SchemaError names the offending field.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrSchemaViolation, e.Field, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchemaViolation }

func violation(field, format string, args ...any) error {
	return &SchemaError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

var placeholderRationales = map[string]struct{}{
	"":               {},
	"<no chat>":      {},
	"<no reasoning>": {},
}

// Validator checks candidates against the decision contract.
type Validator struct {
	maxLeverage int
	symbols     map[string]struct{}
}

// NewValidator builds a validator from cfg. An empty symbol list accepts
// any symbol.
func NewValidator(cfg *Config) *Validator {
	v := &Validator{maxLeverage: defaultMaxLeverage}
	if cfg == nil {
		return v
	}
	if cfg.MaxLeverage > 0 {
		v.maxLeverage = cfg.MaxLeverage
	}
	if len(cfg.Symbols) > 0 {
		v.symbols = make(map[string]struct{}, len(cfg.Symbols))
		for _, s := range cfg.Symbols {
			v.symbols[exchange.NormalizeSymbol(s)] = struct{}{}
		}
	}
	return v
}

// Validate turns c into a typed Decision or returns an error wrapping
// ErrSchemaViolation. It has no side effects.
func (v *Validator) Validate(c Candidate) (Decision, error) {
	op, ok := ledger.ParseOperation(c.Operation)
	if !ok {
		if strings.TrimSpace(c.Operation) == "" {
			return Decision{}, violation("operation", "is required")
		}
		return Decision{}, violation("operation", "%q is not Buy, Sell or Hold", c.Operation)
	}
	rationale := strings.TrimSpace(c.Rationale)
	if _, bad := placeholderRationales[strings.ToLower(rationale)]; bad {
		return Decision{}, violation("rationale", "is missing or a placeholder")
	}
	symbol := exchange.NormalizeSymbol(c.Symbol)
	if symbol == "" {
		return Decision{}, violation("symbol", "is required")
	}
	if v.symbols != nil {
		if _, ok := v.symbols[symbol]; !ok {
			return Decision{}, violation("symbol", "%s is not tracked", symbol)
		}
	}

	d := Decision{Operation: op, Symbol: symbol, Rationale: rationale}
	if op == ledger.OperationHold {
		if c.Position != nil {
			return Decision{}, violation("position", "must be absent for Hold")
		}
		return d, nil
	}

	if c.Position == nil {
		return Decision{}, violation("position", "is required for %s", op)
	}
	p := c.Position
	entry, err := positive("position.entryPrice", p.EntryPrice)
	if err != nil {
		return Decision{}, err
	}
	amount, err := positive("position.amountUsd", p.AmountUSD)
	if err != nil {
		return Decision{}, err
	}
	lev, err := positive("position.leverage", p.Leverage)
	if err != nil {
		return Decision{}, err
	}
	if lev != math.Trunc(lev) {
		return Decision{}, violation("position.leverage", "must be an integer, got %v", lev)
	}
	if lev < 1 || int(lev) > v.maxLeverage {
		return Decision{}, violation("position.leverage", "must be within [1, %d], got %v", v.maxLeverage, lev)
	}
	sl, err := positive("position.stopLoss", p.StopLoss)
	if err != nil {
		return Decision{}, err
	}
	tp, err := positive("position.takeProfit", p.TakeProfit)
	if err != nil {
		return Decision{}, err
	}

	d.Position = &Position{
		EntryPrice: entry,
		AmountUSD:  amount,
		Leverage:   int(lev),
		StopLoss:   sl,
		TakeProfit: tp,
	}
	return d, nil
}

func positive(field string, v *float64) (float64, error) {
	if v == nil {
		return 0, violation(field, "is required")
	}
	x := *v
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, violation(field, "must be finite")
	}
	if x <= 0 {
		return 0, violation(field, "must be positive, got %v", x)
	}
	return x, nil
}

// ApplyProtectiveDefaults fills a missing stop-loss or take-profit on an
// entry candidate from price and the configured percentages. It returns the
// names of the fields it filled. Candidates without a position block are left
// alone so Validate still rejects them.
func ApplyProtectiveDefaults(cfg *Config, c *Candidate, price float64) []string {
	if c == nil || c.Position == nil {
		return nil
	}
	op, ok := ledger.ParseOperation(c.Operation)
	if !ok || !op.IsEntry() {
		return nil
	}
	if price <= 0 && c.Position.EntryPrice != nil {
		price = *c.Position.EntryPrice
	}
	if price <= 0 {
		return nil
	}
	slPct, tpPct := defaultStopLossPct, defaultTakeProfitPct
	if cfg != nil {
		slPct, tpPct = cfg.StopLossPct, cfg.TakeProfitPct
	}

	var filled []string
	long := op == ledger.OperationBuy
	if missing(c.Position.StopLoss) {
		sl := price * (1 - slPct)
		if !long {
			sl = price * (1 + slPct)
		}
		c.Position.StopLoss = &sl
		filled = append(filled, "stopLoss")
	}
	if missing(c.Position.TakeProfit) {
		tp := price * (1 + tpPct)
		if !long {
			tp = price * (1 - tpPct)
		}
		c.Position.TakeProfit = &tp
		filled = append(filled, "takeProfit")
	}
	return filled
}

func missing(v *float64) bool {
	return v == nil || *v <= 0 || math.IsNaN(*v)
}

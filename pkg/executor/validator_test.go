package executor

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"probsbots/pkg/exchange"
	"probsbots/pkg/ledger"
)

func f(v float64) *float64 { return &v }

func baseCfg() *Config {
	return &Config{
		Symbols:       []string{"BTC", "ETH", "SOL"},
		MaxLeverage:   20,
		StopLossPct:   0.05,
		TakeProfitPct: 0.06,
	}
}

func buyCandidate() Candidate {
	return Candidate{
		Operation: "Buy",
		Symbol:    "BTC",
		Position: &CandidatePosition{
			EntryPrice: f(100000),
			AmountUSD:  f(1000),
			Leverage:   f(3),
			StopLoss:   f(99000),
			TakeProfit: f(103000),
		},
		Rationale: "breakout above range high with rising open interest",
	}
}

func TestValidate_BuyOK(t *testing.T) {
	d, err := NewValidator(baseCfg()).Validate(buyCandidate())
	require.NoError(t, err)
	assert.Equal(t, ledger.OperationBuy, d.Operation)
	assert.Equal(t, "BTC", d.Symbol)
	require.NotNil(t, d.Position)
	assert.Equal(t, 3, d.Position.Leverage)
	assert.Equal(t, 99000.0, d.Position.StopLoss)
	assert.Equal(t, exchange.OrderSideBuy, d.Side())
}

func TestValidate_SellNormalisesSymbol(t *testing.T) {
	c := buyCandidate()
	c.Operation = "sell"
	c.Symbol = "BTC/USDT:USDT"
	d, err := NewValidator(baseCfg()).Validate(c)
	require.NoError(t, err)
	assert.Equal(t, ledger.OperationSell, d.Operation)
	assert.Equal(t, "BTC", d.Symbol)
	assert.Equal(t, exchange.OrderSideSell, d.Side())
}

func TestValidate_EntryRequiresEveryPositionField(t *testing.T) {
	mutations := map[string]func(*CandidatePosition){
		"position.entryPrice": func(p *CandidatePosition) { p.EntryPrice = nil },
		"position.amountUsd":  func(p *CandidatePosition) { p.AmountUSD = nil },
		"position.leverage":   func(p *CandidatePosition) { p.Leverage = nil },
		"position.stopLoss":   func(p *CandidatePosition) { p.StopLoss = nil },
		"position.takeProfit": func(p *CandidatePosition) { p.TakeProfit = nil },
	}
	v := NewValidator(baseCfg())
	for _, op := range []string{"Buy", "Sell"} {
		for field, mutate := range mutations {
			t.Run(op+"/"+field, func(t *testing.T) {
				c := buyCandidate()
				c.Operation = op
				mutate(c.Position)
				_, err := v.Validate(c)
				require.ErrorIs(t, err, ErrSchemaViolation)
				var se *SchemaError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, field, se.Field)
			})
		}
		t.Run(op+"/missing position", func(t *testing.T) {
			c := buyCandidate()
			c.Operation = op
			c.Position = nil
			_, err := v.Validate(c)
			require.ErrorIs(t, err, ErrSchemaViolation)
		})
	}
}

func TestValidate_HoldRejectsPosition(t *testing.T) {
	v := NewValidator(baseCfg())
	c := buyCandidate()
	c.Operation = "Hold"
	_, err := v.Validate(c)
	require.ErrorIs(t, err, ErrSchemaViolation)

	c.Position = nil
	d, err := v.Validate(c)
	require.NoError(t, err)
	assert.Equal(t, ledger.OperationHold, d.Operation)
	assert.Nil(t, d.Position)
}

func TestValidate_Rejections(t *testing.T) {
	cases := map[string]func(*Candidate){
		"empty operation":       func(c *Candidate) { c.Operation = "" },
		"unknown operation":     func(c *Candidate) { c.Operation = "close" },
		"placeholder rationale": func(c *Candidate) { c.Rationale = "<no reasoning>" },
		"chat placeholder":      func(c *Candidate) { c.Rationale = " <NO CHAT> " },
		"empty rationale":       func(c *Candidate) { c.Rationale = "  " },
		"empty symbol":          func(c *Candidate) { c.Symbol = "" },
		"untracked symbol":      func(c *Candidate) { c.Symbol = "DOGE" },
		"zero leverage":         func(c *Candidate) { c.Position.Leverage = f(0) },
		"leverage above cap":    func(c *Candidate) { c.Position.Leverage = f(21) },
		"fractional leverage":   func(c *Candidate) { c.Position.Leverage = f(2.5) },
		"negative amount":       func(c *Candidate) { c.Position.AmountUSD = f(-10) },
		"nan entry":             func(c *Candidate) { c.Position.EntryPrice = f(math.NaN()) },
		"infinite stop":         func(c *Candidate) { c.Position.StopLoss = f(math.Inf(1)) },
	}
	v := NewValidator(baseCfg())
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := buyCandidate()
			mutate(&c)
			_, err := v.Validate(c)
			assert.ErrorIs(t, err, ErrSchemaViolation)
		})
	}
}

func TestValidate_NoAllowListAcceptsAnySymbol(t *testing.T) {
	c := buyCandidate()
	c.Symbol = "DOGE"
	_, err := NewValidator(nil).Validate(c)
	assert.NoError(t, err)
}

func TestApplyProtectiveDefaults(t *testing.T) {
	cfg := baseCfg()

	t.Run("long", func(t *testing.T) {
		c := buyCandidate()
		c.Position.StopLoss, c.Position.TakeProfit = nil, nil
		filled := ApplyProtectiveDefaults(cfg, &c, 100)
		assert.Equal(t, []string{"stopLoss", "takeProfit"}, filled)
		assert.InDelta(t, 95, *c.Position.StopLoss, 1e-9)
		assert.InDelta(t, 106, *c.Position.TakeProfit, 1e-9)
	})

	t.Run("short", func(t *testing.T) {
		c := buyCandidate()
		c.Operation = "Sell"
		c.Position.StopLoss = nil
		c.Position.TakeProfit = f(0)
		ApplyProtectiveDefaults(cfg, &c, 100)
		assert.InDelta(t, 105, *c.Position.StopLoss, 1e-9)
		assert.InDelta(t, 94, *c.Position.TakeProfit, 1e-9)
	})

	t.Run("keeps explicit levels", func(t *testing.T) {
		c := buyCandidate()
		assert.Empty(t, ApplyProtectiveDefaults(cfg, &c, 100))
		assert.Equal(t, 99000.0, *c.Position.StopLoss)
	})

	t.Run("falls back to entry price", func(t *testing.T) {
		c := buyCandidate()
		c.Position.StopLoss = nil
		ApplyProtectiveDefaults(cfg, &c, 0)
		assert.InDelta(t, 95000, *c.Position.StopLoss, 1e-6)
	})

	t.Run("hold and missing position untouched", func(t *testing.T) {
		hold := Candidate{Operation: "Hold", Symbol: "BTC", Rationale: "wait"}
		assert.Nil(t, ApplyProtectiveDefaults(cfg, &hold, 100))
		c := buyCandidate()
		c.Position = nil
		assert.Nil(t, ApplyProtectiveDefaults(cfg, &c, 100))
		_, err := NewValidator(cfg).Validate(c)
		assert.ErrorIs(t, err, ErrSchemaViolation)
	})
}

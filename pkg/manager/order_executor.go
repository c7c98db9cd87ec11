package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"probsbots/pkg/exchange"
	"probsbots/pkg/executor"
	"probsbots/pkg/ledger"
	"probsbots/pkg/metrics"
)

// ExecutionResult describes what reached the venue for one entry.
type ExecutionResult struct {
	OrderID            string             `json:"orderId"`
	Symbol             string             `json:"symbol"`
	Side               exchange.OrderSide `json:"side"`
	RequestedContracts float64            `json:"requestedContracts"`
	// Contracts is the live size when Confirmed, the requested size otherwise.
	Contracts  float64 `json:"contracts"`
	EntryPrice float64 `json:"entryPrice"`
	MarkPrice  float64 `json:"markPrice"`
	Confirmed  bool    `json:"confirmed"`

	StopLossOrderID   string  `json:"stopLossOrderId,omitempty"`
	TakeProfitOrderID string  `json:"takeProfitOrderId,omitempty"`
	StopLossPlaced    bool    `json:"stopLossPlaced"`
	TakeProfitPlaced  bool    `json:"takeProfitPlaced"`
	ProtectiveErrors  []error `json:"-"`
}

// Protection returns the protective order flags for the ledger.
func (r *ExecutionResult) Protection() ledger.Protection {
	return ledger.Protection{StopLossPlaced: r.StopLossPlaced, TakeProfitPlaced: r.TakeProfitPlaced}
}

// ProtectiveErr joins every protective failure, or returns nil.
func (r *ExecutionResult) ProtectiveErr() error {
	return errors.Join(r.ProtectiveErrors...)
}

// OrderExecutor turns a validated position into a market entry followed by
// independent stop-loss and take-profit orders.
type OrderExecutor struct {
	provider exchange.Provider
	cfg      *Config
	metrics  *metrics.Metrics
}

// NewOrderExecutor constructs an executor. A nil cfg uses DefaultConfig.
func NewOrderExecutor(provider exchange.Provider, cfg *Config, m *metrics.Metrics) *OrderExecutor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &OrderExecutor{provider: provider, cfg: cfg, metrics: m}
}

// Execute opens pos on symbol in the direction of side. An entry rejection
// wraps ErrEntryOrder and leaves nothing open. Protective failures never fail
// the call; they are reported on the result.
func (e *OrderExecutor) Execute(ctx context.Context, symbol string, side exchange.OrderSide, pos executor.Position) (*ExecutionResult, error) {
	sym := exchange.NormalizeSymbol(symbol)
	if pos.EntryPrice <= 0 || pos.AmountUSD <= 0 {
		return nil, fmt.Errorf("%w: %s needs positive entry price and amount", ErrEntryOrder, sym)
	}

	step := e.lotStep(ctx, sym)
	contracts := ContractsFor(pos.AmountUSD, pos.EntryPrice, step)
	if contracts <= 0 {
		return nil, fmt.Errorf("%w: %s amount %.2f at %.4f is below lot step %v", ErrEntryOrder, sym, pos.AmountUSD, pos.EntryPrice, step)
	}

	e.applyLeverage(ctx, sym, pos.Leverage)

	callCtx, cancel := withTimeout(ctx, e.cfg.CallTimeout)
	order, err := e.provider.CreateOrder(callCtx, exchange.OrderRequest{
		Symbol:   sym,
		Type:     exchange.OrderTypeMarket,
		Side:     side,
		Quantity: contracts,
	})
	cancel()
	e.metrics.RecordOrder("entry", err)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s %.6f: %w", ErrEntryOrder, side, sym, contracts, err)
	}
	logx.WithContext(ctx).Infof("manager: entry %s %s contracts=%.6f lev=%dx order=%s", side, sym, contracts, pos.Leverage, order.ID)

	res := &ExecutionResult{
		OrderID:            order.ID,
		Symbol:             sym,
		Side:               side,
		RequestedContracts: contracts,
		Contracts:          contracts,
		EntryPrice:         pos.EntryPrice,
	}

	if err := sleepContext(ctx, e.cfg.SettleDelay); err != nil {
		logx.WithContext(ctx).Errorf("manager: settle wait for %s interrupted: %v", sym, err)
	}
	e.confirm(ctx, res)

	prot := e.Protect(ctx, sym, side, res.Contracts, pos.StopLoss, pos.TakeProfit, ledger.Protection{})
	res.StopLossPlaced = prot.StopLossPlaced
	res.TakeProfitPlaced = prot.TakeProfitPlaced
	res.StopLossOrderID = prot.StopLossOrderID
	res.TakeProfitOrderID = prot.TakeProfitOrderID
	res.ProtectiveErrors = prot.Errors
	return res, nil
}

// ProtectOutcome reports the protective legs after a Protect call.
type ProtectOutcome struct {
	ledger.Protection
	StopLossOrderID   string
	TakeProfitOrderID string
	Errors            []error
}

// Protect places whichever of the stop-loss and take-profit legs have is
// missing, sized to contracts and on the side opposite to entrySide. It
// reports the updated flags and one ErrProtectiveOrder per failed leg.
func (e *OrderExecutor) Protect(ctx context.Context, symbol string, entrySide exchange.OrderSide, contracts, stopLoss, takeProfit float64, have ledger.Protection) ProtectOutcome {
	out := ProtectOutcome{Protection: have}
	exit := entrySide.Opposite()

	if !have.StopLossPlaced {
		price := RoundPrice(stopLoss, e.cfg.PriceDecimals)
		order, err := e.submit(ctx, "stop_loss", exchange.OrderRequest{
			Symbol:       symbol,
			Type:         exchange.OrderTypeStop,
			Side:         exit,
			Quantity:     contracts,
			TriggerPrice: price,
			ReduceOnly:   true,
			TimeInForce:  exchange.TimeInForceGTC,
		})
		if err != nil {
			out.Errors = append(out.Errors, fmt.Errorf("%w: stop-loss %s at %.2f: %w", ErrProtectiveOrder, symbol, price, err))
		} else {
			out.StopLossPlaced = true
			out.StopLossOrderID = order.ID
		}
	}
	if !have.TakeProfitPlaced {
		price := RoundPrice(takeProfit, e.cfg.PriceDecimals)
		order, err := e.submit(ctx, "take_profit", exchange.OrderRequest{
			Symbol:      symbol,
			Type:        exchange.OrderTypeLimit,
			Side:        exit,
			Quantity:    contracts,
			Price:       price,
			ReduceOnly:  true,
			TimeInForce: exchange.TimeInForceGTC,
		})
		if err != nil {
			out.Errors = append(out.Errors, fmt.Errorf("%w: take-profit %s at %.2f: %w", ErrProtectiveOrder, symbol, price, err))
		} else {
			out.TakeProfitPlaced = true
			out.TakeProfitOrderID = order.ID
		}
	}
	for _, err := range out.Errors {
		logx.WithContext(ctx).Errorf("%v", err)
	}
	return out
}

func (e *OrderExecutor) submit(ctx context.Context, kind string, req exchange.OrderRequest) (*exchange.Order, error) {
	callCtx, cancel := withTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	order, err := e.provider.CreateOrder(callCtx, req)
	e.metrics.RecordOrder(kind, err)
	if err == nil {
		logx.WithContext(ctx).Infof("manager: %s %s %s qty=%.6f order=%s", kind, req.Side, req.Symbol, req.Quantity, order.ID)
	}
	return order, err
}

// applyLeverage sets leverage, treating "not modified" as success. Other
// failures are retried and then logged; the venue keeps its previous setting.
func (e *OrderExecutor) applyLeverage(ctx context.Context, symbol string, leverage int) {
	if leverage <= 0 {
		return
	}
	var err error
	for attempt := 0; attempt <= e.cfg.LeverageRetries; attempt++ {
		callCtx, cancel := withTimeout(ctx, e.cfg.CallTimeout)
		err = e.provider.SetLeverage(callCtx, symbol, leverage)
		cancel()
		if err == nil || errors.Is(err, exchange.ErrLeverageNotModified) {
			return
		}
		if ctx.Err() != nil {
			break
		}
	}
	logx.WithContext(ctx).Errorf("manager: set leverage %dx on %s failed, keeping venue setting: %v", leverage, symbol, err)
}

// confirm replaces the requested size with the live position when the venue
// shows it.
func (e *OrderExecutor) confirm(ctx context.Context, res *ExecutionResult) {
	callCtx, cancel := withTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	positions, err := e.provider.FetchPositions(callCtx, res.Symbol)
	if err != nil {
		logx.WithContext(ctx).Errorf("manager: live position read for %s failed, using requested size: %v", res.Symbol, err)
		return
	}
	live, ok := findPosition(positions, res.Symbol)
	if !ok {
		logx.WithContext(ctx).Infof("manager: live position for %s not visible yet, using requested size", res.Symbol)
		return
	}
	res.Contracts = live.Contracts
	if live.EntryPrice > 0 {
		res.EntryPrice = live.EntryPrice
	}
	res.MarkPrice = live.MarkPrice
	res.Confirmed = true
}

func (e *OrderExecutor) lotStep(ctx context.Context, symbol string) float64 {
	if ip, ok := e.provider.(exchange.InstrumentProvider); ok {
		callCtx, cancel := withTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
		inst, err := ip.Instrument(callCtx, symbol)
		if err == nil && inst != nil && inst.QtyStep > 0 {
			return inst.QtyStep
		}
		if err != nil {
			logx.WithContext(ctx).Errorf("manager: instrument %s: %v, using configured lot step", symbol, err)
		}
	}
	return e.cfg.QtyStep
}

// ContractsFor converts a USD amount at price into contracts, rounded down
// to step.
func ContractsFor(amountUSD, price, step float64) float64 {
	if amountUSD <= 0 || price <= 0 {
		return 0
	}
	qty := decimal.NewFromFloat(amountUSD).Div(decimal.NewFromFloat(price))
	if step > 0 {
		s := decimal.NewFromFloat(step)
		qty = qty.Div(s).Floor().Mul(s)
	}
	return qty.InexactFloat64()
}

// RoundPrice rounds price half away from zero to decimals places.
func RoundPrice(price float64, decimals int) float64 {
	return decimal.NewFromFloat(price).Round(int32(decimals)).InexactFloat64()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

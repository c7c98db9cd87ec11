package sim

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"probsbots/pkg/exchange"
)

const (
	defaultInitialBalance = 10000.0
	defaultQtyStep        = 0.001
	defaultTickSize       = 0.01
)

var (
	_ exchange.Provider           = (*Provider)(nil)
	_ exchange.InstrumentProvider = (*Provider)(nil)
)

// Provider is a paper venue. Market orders fill at the mark price, reduce-only
// limit and stop orders rest until SetMarkPrice crosses them, and every full
// close appends a history entry the reconciler can match.
type Provider struct {
	mu sync.Mutex

	qtyStep   float64
	markPx    map[string]float64
	leverage  map[string]int
	positions map[string]*positionState
	resting   []*restingOrder
	history   []exchange.HistoryEntry // newest first
	cash      float64
	nextID    int
	calls     map[string]int

	orderFilter func(exchange.OrderRequest) error
	now         func() time.Time
}

type positionState struct {
	Symbol string
	Qty    float64 // positive long, negative short
	Entry  float64
}

type restingOrder struct {
	id  string
	req exchange.OrderRequest
}

// Option customises the simulator.
type Option func(*Provider)

// WithInitialBalance sets the starting cash balance.
func WithInitialBalance(balance float64) Option {
	return func(p *Provider) {
		if balance > 0 {
			p.cash = balance
		}
	}
}

// WithQtyStep sets the lot step applied to every symbol.
func WithQtyStep(step float64) Option {
	return func(p *Provider) {
		if step > 0 {
			p.qtyStep = step
		}
	}
}

// WithClock overrides the time source used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// New constructs a simulator instance.
func New(opts ...Option) *Provider {
	p := &Provider{
		qtyStep:   defaultQtyStep,
		markPx:    make(map[string]float64),
		leverage:  make(map[string]int),
		positions: make(map[string]*positionState),
		cash:      defaultInitialBalance,
		calls:     make(map[string]int),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func canonical(symbol string) string { return exchange.NormalizeSymbol(symbol) }

// SetOrderFilter installs a hook that can reject orders before they reach the book.
func (p *Provider) SetOrderFilter(filter func(exchange.OrderRequest) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderFilter = filter
}

// Calls returns how many times each Provider method was invoked.
func (p *Provider) Calls() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.calls))
	for k, v := range p.calls {
		out[k] = v
	}
	return out
}

// RestingOrders returns a copy of the orders waiting on the book.
func (p *Provider) RestingOrders() []exchange.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]exchange.Order, 0, len(p.resting))
	for _, o := range p.resting {
		out = append(out, toOrder(o.id, o.req, "open"))
	}
	return out
}

// SetMarkPrice updates the reference price and fires resting orders it crosses.
func (p *Provider) SetMarkPrice(ctx context.Context, symbol string, price float64) error {
	if price <= 0 {
		return fmt.Errorf("sim: mark price must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sym := canonical(symbol)
	p.markPx[sym] = price
	p.triggerLocked(sym, price)
	return nil
}

func (p *Provider) FetchPositions(ctx context.Context, symbols ...string) ([]exchange.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["FetchPositions"]++

	filter := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		filter[canonical(s)] = true
	}
	out := make([]exchange.Position, 0, len(p.positions))
	for sym, state := range p.positions {
		if len(filter) > 0 && !filter[sym] {
			continue
		}
		out = append(out, p.positionLocked(state))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (p *Provider) FetchBalance(ctx context.Context) (*exchange.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["FetchBalance"]++

	unrealized, margin := 0.0, 0.0
	for _, state := range p.positions {
		pos := p.positionLocked(state)
		unrealized += pos.UnrealizedPnL
		margin += pos.Notional / float64(pos.Leverage)
	}
	return &exchange.Balance{
		Asset:         "USDT",
		Total:         p.cash + unrealized,
		Available:     math.Max(0, p.cash-margin),
		UnrealizedPnL: unrealized,
	}, nil
}

func (p *Provider) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage <= 0 {
		return fmt.Errorf("sim: leverage must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["SetLeverage"]++
	sym := canonical(symbol)
	if p.leverage[sym] == leverage {
		return fmt.Errorf("sim: %s leverage %dx: %w", sym, leverage, exchange.ErrLeverageNotModified)
	}
	p.leverage[sym] = leverage
	return nil
}

func (p *Provider) CreateOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["CreateOrder"]++

	req.Symbol = canonical(req.Symbol)
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("sim: order size must be positive: %w", exchange.ErrRejected)
	}
	if p.orderFilter != nil {
		if err := p.orderFilter(req); err != nil {
			return nil, err
		}
	}
	p.nextID++
	id := fmt.Sprintf("sim-%d", p.nextID)

	switch req.Type {
	case exchange.OrderTypeMarket:
		price, ok := p.markPx[req.Symbol]
		if !ok || price <= 0 {
			return nil, fmt.Errorf("sim: no mark price for %s: %w", req.Symbol, exchange.ErrRejected)
		}
		if err := p.fillLocked(req, price, ""); err != nil {
			return nil, err
		}
		return ptr(toOrder(id, req, "filled")), nil
	case exchange.OrderTypeLimit:
		if req.Price <= 0 {
			return nil, fmt.Errorf("sim: limit order needs a price: %w", exchange.ErrRejected)
		}
	case exchange.OrderTypeStop:
		if req.TriggerPrice <= 0 {
			return nil, fmt.Errorf("sim: stop order needs a trigger price: %w", exchange.ErrRejected)
		}
	default:
		return nil, fmt.Errorf("sim: unsupported order type %q: %w", req.Type, exchange.ErrRejected)
	}
	if req.ReduceOnly {
		state := p.positions[req.Symbol]
		if state == nil || state.Qty == 0 {
			return nil, fmt.Errorf("sim: reduce-only order without position on %s: %w", req.Symbol, exchange.ErrRejected)
		}
		if sideOf(state.Qty) == req.Side {
			return nil, fmt.Errorf("sim: reduce-only order would increase %s position: %w", req.Symbol, exchange.ErrRejected)
		}
	}
	p.resting = append(p.resting, &restingOrder{id: id, req: req})
	return ptr(toOrder(id, req, "open")), nil
}

func (p *Provider) FetchPositionsHistory(ctx context.Context, symbol string, since time.Time, limit int) ([]exchange.HistoryEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["FetchPositionsHistory"]++

	sym := canonical(symbol)
	out := make([]exchange.HistoryEntry, 0)
	for _, entry := range p.history {
		if sym != "" && entry.Symbol != sym {
			continue
		}
		if !since.IsZero() && entry.UpdatedTime.Before(since) {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (p *Provider) Instrument(ctx context.Context, symbol string) (*exchange.Instrument, error) {
	return &exchange.Instrument{
		Symbol:   canonical(symbol),
		QtyStep:  p.qtyStep,
		MinQty:   p.qtyStep,
		TickSize: defaultTickSize,
	}, nil
}

// ClosePosition flattens symbol at the mark price with a market order.
func (p *Provider) ClosePosition(ctx context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sym := canonical(symbol)
	state := p.positions[sym]
	if state == nil || state.Qty == 0 {
		return nil
	}
	price := p.markPx[sym]
	if price <= 0 {
		price = state.Entry
	}
	req := exchange.OrderRequest{
		Symbol:     sym,
		Type:       exchange.OrderTypeMarket,
		Side:       sideOf(state.Qty).Opposite(),
		Quantity:   math.Abs(state.Qty),
		ReduceOnly: true,
	}
	return p.fillLocked(req, price, "")
}

// AppendHistory injects a venue history entry, newest first.
func (p *Provider) AppendHistory(entry exchange.HistoryEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry.Symbol = canonical(entry.Symbol)
	p.history = append([]exchange.HistoryEntry{entry}, p.history...)
}

func (p *Provider) triggerLocked(symbol string, mark float64) {
	remaining := p.resting[:0]
	var fire []*restingOrder
	for _, o := range p.resting {
		if o.req.Symbol == symbol && crosses(o.req, mark) {
			fire = append(fire, o)
			continue
		}
		remaining = append(remaining, o)
	}
	p.resting = remaining
	for _, o := range fire {
		if p.positions[symbol] == nil {
			break
		}
		price := o.req.Price
		stopType := ""
		if o.req.Type == exchange.OrderTypeStop {
			price = o.req.TriggerPrice
			stopType = "StopLoss"
		}
		_ = p.fillLocked(o.req, price, stopType)
	}
}

func crosses(req exchange.OrderRequest, mark float64) bool {
	switch req.Type {
	case exchange.OrderTypeStop:
		if req.Side == exchange.OrderSideSell {
			return mark <= req.TriggerPrice
		}
		return mark >= req.TriggerPrice
	case exchange.OrderTypeLimit:
		if req.Side == exchange.OrderSideSell {
			return mark >= req.Price
		}
		return mark <= req.Price
	}
	return false
}

func (p *Provider) fillLocked(req exchange.OrderRequest, price float64, stopOrderType string) error {
	state := p.positions[req.Symbol]
	delta := req.Quantity
	if req.Side == exchange.OrderSideSell {
		delta = -delta
	}
	if req.ReduceOnly {
		if state == nil || state.Qty == 0 {
			return nil
		}
		if state.Qty*delta > 0 {
			return fmt.Errorf("sim: reduce-only order would increase position: %w", exchange.ErrRejected)
		}
		if math.Abs(delta) > math.Abs(state.Qty) {
			delta = -state.Qty
		}
	}
	if state == nil {
		state = &positionState{Symbol: req.Symbol}
		p.positions[req.Symbol] = state
	}

	oldQty := state.Qty
	newQty := oldQty + delta
	realized := 0.0
	if oldQty != 0 && oldQty*delta < 0 {
		closeQty := math.Min(math.Abs(oldQty), math.Abs(delta))
		realized = closeQty * (price - state.Entry) * math.Copysign(1, oldQty)
	}
	entryBefore := state.Entry

	switch {
	case oldQty == 0:
		state.Entry = price
	case oldQty*delta > 0:
		state.Entry = (oldQty*state.Entry + delta*price) / newQty
	case oldQty*newQty < 0:
		state.Entry = price
	}
	state.Qty = newQty
	p.cash += realized

	if math.Abs(state.Qty) < 1e-10 {
		delete(p.positions, req.Symbol)
		p.dropRestingLocked(req.Symbol)
		pnl := realized
		orderType := "Market"
		if req.Type == exchange.OrderTypeLimit {
			orderType = "Limit"
		}
		p.history = append([]exchange.HistoryEntry{{
			Symbol:        req.Symbol,
			Side:          req.Side,
			Qty:           math.Abs(oldQty),
			ClosedPnL:     &pnl,
			AvgEntryPrice: entryBefore,
			AvgExitPrice:  price,
			ExecType:      "Trade",
			OrderType:     orderType,
			StopOrderType: stopOrderType,
			UpdatedTime:   p.now().UTC(),
		}}, p.history...)
	}
	return nil
}

func (p *Provider) dropRestingLocked(symbol string) {
	remaining := p.resting[:0]
	for _, o := range p.resting {
		if o.req.Symbol != symbol {
			remaining = append(remaining, o)
		}
	}
	p.resting = remaining
}

func (p *Provider) positionLocked(state *positionState) exchange.Position {
	mark := p.markPx[state.Symbol]
	if mark <= 0 {
		mark = state.Entry
	}
	lev := p.leverage[state.Symbol]
	if lev <= 0 {
		lev = 1
	}
	side := exchange.PositionLong
	if state.Qty < 0 {
		side = exchange.PositionShort
	}
	return exchange.Position{
		Symbol:        state.Symbol,
		Side:          side,
		Contracts:     math.Abs(state.Qty),
		EntryPrice:    state.Entry,
		MarkPrice:     mark,
		UnrealizedPnL: state.Qty * (mark - state.Entry),
		Leverage:      lev,
		Notional:      math.Abs(state.Qty * mark),
	}
}

func sideOf(qty float64) exchange.OrderSide {
	if qty < 0 {
		return exchange.OrderSideSell
	}
	return exchange.OrderSideBuy
}

func toOrder(id string, req exchange.OrderRequest, status string) exchange.Order {
	return exchange.Order{
		ID:           id,
		Symbol:       req.Symbol,
		Type:         req.Type,
		Side:         req.Side,
		Quantity:     req.Quantity,
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
		ReduceOnly:   req.ReduceOnly,
		Status:       status,
	}
}

func ptr[T any](v T) *T { return &v }

// Registry hook for exchange.Config.
func init() {
	exchange.RegisterProvider("sim", func(name string, cfg *exchange.ProviderConfig) (exchange.Provider, error) {
		return New(WithInitialBalance(cfg.InitialBalance), WithQtyStep(cfg.QtyStep)), nil
	})
}

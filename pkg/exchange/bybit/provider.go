package bybit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"probsbots/pkg/exchange"
)

var (
	_ exchange.Provider           = (*Provider)(nil)
	_ exchange.InstrumentProvider = (*Provider)(nil)
)

// Provider trades USDT-margined linear perpetuals through the v5 API.
type Provider struct {
	client   *Client
	category string
	quote    string
}

// NewProvider wraps a client for the given category and settlement coin.
func NewProvider(client *Client, category, quote string) *Provider {
	if category == "" {
		category = "linear"
	}
	if quote == "" {
		quote = "USDT"
	}
	return &Provider{client: client, category: category, quote: strings.ToUpper(quote)}
}

func init() {
	exchange.RegisterProvider("bybit", func(name string, cfg *exchange.ProviderConfig) (exchange.Provider, error) {
		base := cfg.BaseURL
		if base == "" {
			base = MainnetURL
			if cfg.Testnet {
				base = TestnetURL
			}
		}
		client := NewClient(cfg.APIKey, cfg.APISecret,
			WithBaseURL(base),
			WithTimeout(cfg.Timeout),
			WithRecvWindow(cfg.RecvWindow),
		)
		return NewProvider(client, cfg.Category, cfg.QuoteAsset), nil
	})
}

// venueSymbol maps a base coin to the instrument name, e.g. BTC -> BTCUSDT.
func (p *Provider) venueSymbol(symbol string) string {
	return exchange.NormalizeSymbol(symbol) + p.quote
}

type positionList struct {
	List []struct {
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Size          number `json:"size"`
		AvgPrice      number `json:"avgPrice"`
		MarkPrice     number `json:"markPrice"`
		UnrealisedPnl number `json:"unrealisedPnl"`
		Leverage      number `json:"leverage"`
		PositionValue number `json:"positionValue"`
	} `json:"list"`
}

func (p *Provider) FetchPositions(ctx context.Context, symbols ...string) ([]exchange.Position, error) {
	params := url.Values{"category": {p.category}}
	if len(symbols) == 1 {
		params.Set("symbol", p.venueSymbol(symbols[0]))
	} else {
		params.Set("settleCoin", p.quote)
	}
	var res positionList
	if err := p.client.Get(ctx, "/v5/position/list", params, &res); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[exchange.NormalizeSymbol(s)] = true
	}
	out := make([]exchange.Position, 0, len(res.List))
	for _, row := range res.List {
		contracts := row.Size.Float()
		if contracts <= 0 {
			continue
		}
		sym := exchange.NormalizeSymbol(row.Symbol)
		if len(wanted) > 0 && !wanted[sym] {
			continue
		}
		side := exchange.PositionLong
		if strings.EqualFold(row.Side, "Sell") {
			side = exchange.PositionShort
		}
		mark := row.MarkPrice.Float()
		notional := row.PositionValue.Float()
		if notional == 0 {
			notional = contracts * mark
		}
		out = append(out, exchange.Position{
			Symbol:        sym,
			Side:          side,
			Contracts:     contracts,
			EntryPrice:    row.AvgPrice.Float(),
			MarkPrice:     mark,
			UnrealizedPnL: row.UnrealisedPnl.Float(),
			Leverage:      int(row.Leverage.Float()),
			Notional:      notional,
		})
	}
	return out, nil
}

type walletBalance struct {
	List []struct {
		TotalEquity           number `json:"totalEquity"`
		TotalAvailableBalance number `json:"totalAvailableBalance"`
		TotalPerpUPL          number `json:"totalPerpUPL"`
		Coin                  []struct {
			Coin                string `json:"coin"`
			Equity              number `json:"equity"`
			WalletBalance       number `json:"walletBalance"`
			UnrealisedPnl       number `json:"unrealisedPnl"`
			AvailableToWithdraw number `json:"availableToWithdraw"`
		} `json:"coin"`
	} `json:"list"`
}

func (p *Provider) FetchBalance(ctx context.Context) (*exchange.Balance, error) {
	params := url.Values{"accountType": {"UNIFIED"}, "coin": {p.quote}}
	var res walletBalance
	if err := p.client.Get(ctx, "/v5/account/wallet-balance", params, &res); err != nil {
		return nil, err
	}
	if len(res.List) == 0 {
		return nil, fmt.Errorf("bybit wallet-balance: empty account list")
	}
	acct := res.List[0]
	bal := &exchange.Balance{
		Asset:         p.quote,
		Total:         acct.TotalEquity.Float(),
		Available:     acct.TotalAvailableBalance.Float(),
		UnrealizedPnL: acct.TotalPerpUPL.Float(),
	}
	for _, coin := range acct.Coin {
		if !strings.EqualFold(coin.Coin, p.quote) {
			continue
		}
		bal.Total = coin.Equity.Float()
		bal.UnrealizedPnL = coin.UnrealisedPnl.Float()
		if avail := coin.AvailableToWithdraw.Float(); avail > 0 {
			bal.Available = avail
		}
	}
	return bal, nil
}

func (p *Provider) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	lev := strconv.Itoa(leverage)
	body := map[string]string{
		"category":     p.category,
		"symbol":       p.venueSymbol(symbol),
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}
	return p.client.Post(ctx, "/v5/position/set-leverage", body, nil)
}

type orderAck struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

func (p *Provider) CreateOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("bybit order: quantity must be positive: %w", exchange.ErrRejected)
	}
	body := map[string]any{
		"category":   p.category,
		"symbol":     p.venueSymbol(req.Symbol),
		"side":       venueSide(req.Side),
		"qty":        formatNumber(req.Quantity),
		"reduceOnly": req.ReduceOnly,
	}
	switch req.Type {
	case exchange.OrderTypeMarket:
		body["orderType"] = "Market"
	case exchange.OrderTypeLimit:
		body["orderType"] = "Limit"
		body["price"] = formatNumber(req.Price)
		body["timeInForce"] = tif(req.TimeInForce)
	case exchange.OrderTypeStop:
		// Stop-market: armed at triggerPrice, filled at market once crossed.
		body["orderType"] = "Market"
		body["triggerPrice"] = formatNumber(req.TriggerPrice)
		body["triggerBy"] = "MarkPrice"
		body["triggerDirection"] = triggerDirection(req.Side)
		body["timeInForce"] = tif(req.TimeInForce)
		if req.ReduceOnly {
			body["closeOnTrigger"] = true
		}
	default:
		return nil, fmt.Errorf("bybit order: unsupported type %q: %w", req.Type, exchange.ErrRejected)
	}

	var ack orderAck
	if err := p.client.Post(ctx, "/v5/order/create", body, &ack); err != nil {
		return nil, err
	}
	return &exchange.Order{
		ID:           ack.OrderID,
		Symbol:       exchange.NormalizeSymbol(req.Symbol),
		Type:         req.Type,
		Side:         req.Side,
		Quantity:     req.Quantity,
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
		ReduceOnly:   req.ReduceOnly,
		Status:       "new",
	}, nil
}

type closedPnlList struct {
	List []struct {
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Qty           number `json:"qty"`
		ClosedSize    number `json:"closedSize"`
		ClosedPnl     number `json:"closedPnl"`
		AvgEntryPrice number `json:"avgEntryPrice"`
		AvgExitPrice  number `json:"avgExitPrice"`
		ExecType      string `json:"execType"`
		OrderType     string `json:"orderType"`
		StopOrderType string `json:"stopOrderType"`
		UpdatedTime   string `json:"updatedTime"`
		CreatedTime   string `json:"createdTime"`
	} `json:"list"`
}

func (p *Provider) FetchPositionsHistory(ctx context.Context, symbol string, since time.Time, limit int) ([]exchange.HistoryEntry, error) {
	params := url.Values{"category": {p.category}}
	if symbol != "" {
		params.Set("symbol", p.venueSymbol(symbol))
	}
	if !since.IsZero() {
		params.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var res closedPnlList
	if err := p.client.Get(ctx, "/v5/position/closed-pnl", params, &res); err != nil {
		return nil, err
	}
	out := make([]exchange.HistoryEntry, 0, len(res.List))
	for _, row := range res.List {
		qty := row.ClosedSize.Float()
		if qty == 0 {
			qty = row.Qty.Float()
		}
		entry := exchange.HistoryEntry{
			Symbol:        exchange.NormalizeSymbol(row.Symbol),
			Side:          exchange.OrderSide(strings.ToLower(row.Side)),
			Qty:           qty,
			AvgEntryPrice: row.AvgEntryPrice.Float(),
			AvgExitPrice:  row.AvgExitPrice.Float(),
			ExecType:      row.ExecType,
			OrderType:     row.OrderType,
			StopOrderType: row.StopOrderType,
			UpdatedTime:   millis(row.UpdatedTime),
		}
		if row.ClosedPnl != "" {
			pnl := row.ClosedPnl.Float()
			entry.ClosedPnL = &pnl
		}
		if entry.UpdatedTime.IsZero() {
			entry.UpdatedTime = millis(row.CreatedTime)
		}
		out = append(out, entry)
	}
	return out, nil
}

type instrumentsInfo struct {
	List []struct {
		Symbol        string `json:"symbol"`
		LotSizeFilter struct {
			QtyStep     number `json:"qtyStep"`
			MinOrderQty number `json:"minOrderQty"`
		} `json:"lotSizeFilter"`
		PriceFilter struct {
			TickSize number `json:"tickSize"`
		} `json:"priceFilter"`
	} `json:"list"`
}

func (p *Provider) Instrument(ctx context.Context, symbol string) (*exchange.Instrument, error) {
	params := url.Values{"category": {p.category}, "symbol": {p.venueSymbol(symbol)}}
	var res instrumentsInfo
	if err := p.client.Get(ctx, "/v5/market/instruments-info", params, &res); err != nil {
		return nil, err
	}
	if len(res.List) == 0 {
		return nil, fmt.Errorf("bybit instruments-info: %s not listed: %w", symbol, exchange.ErrRejected)
	}
	row := res.List[0]
	return &exchange.Instrument{
		Symbol:   exchange.NormalizeSymbol(row.Symbol),
		QtyStep:  row.LotSizeFilter.QtyStep.Float(),
		MinQty:   row.LotSizeFilter.MinOrderQty.Float(),
		TickSize: row.PriceFilter.TickSize.Float(),
	}, nil
}

func venueSide(side exchange.OrderSide) string {
	if side == exchange.OrderSideSell {
		return "Sell"
	}
	return "Buy"
}

// triggerDirection is 1 when the trigger fires on a rise and 2 on a fall. A
// sell stop protects a long, so it fires on a fall.
func triggerDirection(side exchange.OrderSide) int {
	if side == exchange.OrderSideSell {
		return 2
	}
	return 1
}

func tif(v string) string {
	switch strings.ToUpper(v) {
	case exchange.TimeInForceIOC:
		return "IOC"
	default:
		return "GTC"
	}
}

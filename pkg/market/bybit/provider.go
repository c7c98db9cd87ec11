package bybit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"probsbots/pkg/exchange"
	exbybit "probsbots/pkg/exchange/bybit"
	"probsbots/pkg/market"
	"probsbots/pkg/market/indicators"
)

const tailLength = 10

var _ market.Provider = (*Provider)(nil)

// Provider builds snapshots from Bybit public market endpoints.
type Provider struct {
	client           *exbybit.Client
	intradayInterval string
	longTermInterval string
	candleLimit      int
	timeout          time.Duration
	now              func() time.Time
}

// NewProvider wraps a client. Credentials are not needed for market data.
func NewProvider(client *exbybit.Client, cfg *market.ProviderConfig) *Provider {
	p := &Provider{
		client:           client,
		intradayInterval: "3",
		longTermInterval: "240",
		candleLimit:      120,
		now:              time.Now,
	}
	if cfg != nil {
		if cfg.IntradayInterval != "" {
			p.intradayInterval = cfg.IntradayInterval
		}
		if cfg.LongTermInterval != "" {
			p.longTermInterval = cfg.LongTermInterval
		}
		if cfg.CandleLimit > 0 {
			p.candleLimit = cfg.CandleLimit
		}
		p.timeout = cfg.Timeout
	}
	return p
}

func init() {
	market.RegisterProvider("bybit", func(name string, cfg *market.ProviderConfig) (market.Provider, error) {
		base := cfg.BaseURL
		if base == "" {
			base = exbybit.MainnetURL
		}
		client := exbybit.NewClient("", "", exbybit.WithBaseURL(base), exbybit.WithTimeout(cfg.Timeout))
		return NewProvider(client, cfg), nil
	})
}

func (p *Provider) Snapshot(ctx context.Context, symbol string) (*market.Snapshot, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	coin := exchange.NormalizeSymbol(symbol)
	venue := coin + "USDT"

	ticker, err := p.ticker(ctx, venue)
	if err != nil {
		return nil, err
	}
	intraday, err := p.candles(ctx, venue, p.intradayInterval)
	if err != nil {
		return nil, err
	}
	longTerm, err := p.candles(ctx, venue, p.longTermInterval)
	if err != nil {
		return nil, err
	}
	oiAvg, err := p.openInterestAverage(ctx, venue)
	if err != nil {
		return nil, err
	}

	snap := &market.Snapshot{
		Symbol:      coin,
		Price:       ticker.LastPrice.Float(),
		MarkPrice:   ticker.MarkPrice.Float(),
		Change24h:   ticker.Price24hPcnt.Float() * 100,
		Volume24h:   ticker.Volume24h.Float(),
		FundingRate: ticker.FundingRate.Float(),
		OpenInterest: market.OpenInterest{
			Latest:  ticker.OpenInterest.Float(),
			Average: oiAvg,
		},
		Intraday:   buildFrame(p.intradayInterval, intraday),
		LongTerm:   buildFrame(p.longTermInterval, longTerm),
		CapturedAt: p.now().UTC(),
	}
	if n := len(intraday); n > 0 {
		// 20 three-minute candles is one hour.
		back := n - 1 - 20
		if back < 0 {
			back = 0
		}
		snap.Change1h = indicators.PercentChange(intraday[back].Close, snap.Price)
	}
	if n := len(longTerm); n >= 2 {
		snap.Change4h = indicators.PercentChange(longTerm[n-2].Close, snap.Price)
	}
	return snap, nil
}

type tickerRow struct {
	Symbol       string `json:"symbol"`
	LastPrice    num    `json:"lastPrice"`
	MarkPrice    num    `json:"markPrice"`
	Price24hPcnt num    `json:"price24hPcnt"`
	Volume24h    num    `json:"volume24h"`
	FundingRate  num    `json:"fundingRate"`
	OpenInterest num    `json:"openInterest"`
}

func (p *Provider) ticker(ctx context.Context, venue string) (*tickerRow, error) {
	var res struct {
		List []tickerRow `json:"list"`
	}
	params := url.Values{"category": {"linear"}, "symbol": {venue}}
	if err := p.client.Get(ctx, "/v5/market/tickers", params, &res); err != nil {
		return nil, err
	}
	if len(res.List) == 0 {
		return nil, fmt.Errorf("bybit tickers: %s not listed", venue)
	}
	return &res.List[0], nil
}

// candles returns klines oldest first.
func (p *Provider) candles(ctx context.Context, venue, interval string) ([]indicators.Candle, error) {
	var res struct {
		List [][]string `json:"list"`
	}
	params := url.Values{
		"category": {"linear"},
		"symbol":   {venue},
		"interval": {interval},
		"limit":    {strconv.Itoa(p.candleLimit)},
	}
	if err := p.client.Get(ctx, "/v5/market/kline", params, &res); err != nil {
		return nil, err
	}
	out := make([]indicators.Candle, 0, len(res.List))
	for i := len(res.List) - 1; i >= 0; i-- {
		row := res.List[i]
		if len(row) < 6 {
			return nil, fmt.Errorf("bybit kline: malformed row %v", row)
		}
		out = append(out, indicators.Candle{
			Open:   num(row[1]).Float(),
			High:   num(row[2]).Float(),
			Low:    num(row[3]).Float(),
			Close:  num(row[4]).Float(),
			Volume: num(row[5]).Float(),
		})
	}
	return out, nil
}

func (p *Provider) openInterestAverage(ctx context.Context, venue string) (float64, error) {
	var res struct {
		List []struct {
			OpenInterest num `json:"openInterest"`
		} `json:"list"`
	}
	params := url.Values{"category": {"linear"}, "symbol": {venue}, "intervalTime": {"1h"}, "limit": {"24"}}
	if err := p.client.Get(ctx, "/v5/market/open-interest", params, &res); err != nil {
		return 0, err
	}
	if len(res.List) == 0 {
		return 0, nil
	}
	sum := 0.0
	for _, row := range res.List {
		sum += row.OpenInterest.Float()
	}
	return sum / float64(len(res.List)), nil
}

func buildFrame(interval string, candles []indicators.Candle) market.Frame {
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}
	macd, _, _ := indicators.MACD(closes)
	rsi7 := indicators.RSI(closes, 7)
	return market.Frame{
		Interval:  interval,
		EMA20:     indicators.Last(indicators.EMA(closes, 20)),
		EMA50:     indicators.Last(indicators.EMA(closes, 50)),
		MACD:      indicators.Last(macd),
		RSI7:      indicators.Last(rsi7),
		RSI14:     indicators.Last(indicators.RSI(closes, 14)),
		ATR3:      indicators.Last(indicators.ATR(candles, 3)),
		ATR14:     indicators.Last(indicators.ATR(candles, 14)),
		Volume:    indicators.Last(volumes),
		AvgVolume: indicators.Last(indicators.SMA(volumes, len(volumes))),
		Closes:    indicators.Tail(closes, tailLength),
		MACDTail:  indicators.Tail(macd, tailLength),
		RSI7Tail:  indicators.Tail(rsi7, tailLength),
	}
}

type num string

func (n num) Float() float64 {
	if n == "" {
		return 0
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

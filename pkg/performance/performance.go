package performance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"probsbots/pkg/ledger"
)

const (
	// DefaultLookbackDays bounds Summary when the caller passes zero.
	DefaultLookbackDays = 30
	// DefaultAntiPatterns is how many losing setups are reported.
	DefaultAntiPatterns = 3
	// DefaultRecentTrades is how many closed trades the digest lists.
	DefaultRecentTrades = 5
	// HighLeverage is the threshold above which a trade counts as high leverage.
	HighLeverage = 5
)

// Summary aggregates closed trades for one symbol (or all symbols when
// Symbol is empty) over a lookback window. PnL averages are in quote currency.
type Summary struct {
	Symbol                 string  `json:"symbol,omitempty"`
	LookbackDays           int     `json:"lookbackDays"`
	TotalTrades            int     `json:"totalTrades"`
	Wins                   int     `json:"wins"`
	Losses                 int     `json:"losses"`
	WinRate                float64 `json:"winRate"`
	AvgWinPnL              float64 `json:"avgWinPnl"`
	AvgLossPnL             float64 `json:"avgLossPnl"`
	HighLeverageTradeCount int     `json:"highLeverageTradeCount"`
	AvgTakeProfitPercent   float64 `json:"avgTpPercent"`
	AvgStopLossPercent     float64 `json:"avgSlPercent"`
}

// AntiPattern is a losing setup shared by one or more trades.
type AntiPattern struct {
	Setup      string  `json:"setupDescriptor"`
	Leverage   int     `json:"leverage"`
	StopLoss   float64 `json:"slPercent"`
	TakeProfit float64 `json:"tpPercent"`
	TradeCount int     `json:"tradeCount"`
	AvgPnL     float64 `json:"avgPnl"`
	Losses     int     `json:"losses"`
}

// Trade is a closed record projected for the prompt.
type Trade struct {
	Symbol     string            `json:"symbol"`
	Operation  ledger.Operation  `json:"operation"`
	Leverage   int               `json:"leverage"`
	EntryPrice float64           `json:"entryPrice"`
	StopLoss   float64           `json:"slPercent"`
	TakeProfit float64           `json:"tpPercent"`
	Outcome    ledger.Outcome    `json:"outcome"`
	ExitReason ledger.ExitReason `json:"exitReason"`
	PnL        float64           `json:"pnl"`
	Rationale  string            `json:"rationale"`
	ClosedAt   time.Time         `json:"closedAt"`
}

// Report bundles everything the prompt digest renders.
type Report struct {
	Summary      Summary       `json:"summary"`
	AntiPatterns []AntiPattern `json:"antiPatterns"`
	RecentTrades []Trade       `json:"recentTrades"`
}

// Empty reports whether there is no closed history to show.
func (r *Report) Empty() bool {
	return r == nil || (r.Summary.TotalTrades == 0 && len(r.RecentTrades) == 0)
}

// Cache is the subset of the go-zero cache.Cache used for reports.
type Cache interface {
	GetCtx(ctx context.Context, key string, val any) error
	SetWithExpireCtx(ctx context.Context, key string, val any, expire time.Duration) error
	DelCtx(ctx context.Context, keys ...string) error
	IsNotFound(err error) bool
}

// Aggregator computes read-only statistics over closed ledger records.
type Aggregator struct {
	store    ledger.Store
	cache    Cache
	cacheTTL time.Duration
	keyFn    func(symbol string) string
	now      func() time.Time
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithCache caches Report results for ttl under keys produced by keyFn.
// A nil keyFn uses DefaultCacheKey.
func WithCache(c Cache, ttl time.Duration, keyFn func(symbol string) string) Option {
	return func(a *Aggregator) {
		a.cache = c
		a.cacheTTL = ttl
		if keyFn != nil {
			a.keyFn = keyFn
		}
	}
}

// WithClock overrides the time source for lookback windows.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// DefaultCacheKey is the report cache key for symbol; empty means all symbols.
func DefaultCacheKey(symbol string) string {
	if symbol == "" {
		symbol = "all"
	}
	return "probsbots:performance:" + symbol
}

// NewAggregator returns an aggregator over store.
func NewAggregator(store ledger.Store, opts ...Option) (*Aggregator, error) {
	if store == nil {
		return nil, errors.New("performance: ledger store is required")
	}
	a := &Aggregator{store: store, keyFn: DefaultCacheKey, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Summary aggregates trades closed within lookbackDays.
func (a *Aggregator) Summary(ctx context.Context, symbol string, lookbackDays int) (*Summary, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	since := a.now().AddDate(0, 0, -lookbackDays)
	records, err := a.store.ListClosed(ctx, ledger.ClosedFilter{Symbol: normalize(symbol), Since: since})
	if err != nil {
		return nil, fmt.Errorf("performance: list closed: %w", err)
	}
	s := Summarize(records)
	s.Symbol = normalize(symbol)
	s.LookbackDays = lookbackDays
	return &s, nil
}

// AntiPatterns returns the worst losing setups, worst average PnL first.
func (a *Aggregator) AntiPatterns(ctx context.Context, symbol string, limit int) ([]AntiPattern, error) {
	if limit <= 0 {
		limit = DefaultAntiPatterns
	}
	records, err := a.store.ListClosed(ctx, ledger.ClosedFilter{Symbol: normalize(symbol)})
	if err != nil {
		return nil, fmt.Errorf("performance: list closed: %w", err)
	}
	return FindAntiPatterns(records, limit), nil
}

// RecentTrades returns the newest closed trades.
func (a *Aggregator) RecentTrades(ctx context.Context, symbol string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = DefaultRecentTrades
	}
	records, err := a.store.ListClosed(ctx, ledger.ClosedFilter{Symbol: normalize(symbol), Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("performance: list closed: %w", err)
	}
	out := make([]Trade, 0, len(records))
	for _, rec := range records {
		out = append(out, tradeOf(rec))
	}
	return out, nil
}

// Report computes the summary, anti-patterns and recent trades, consulting
// the cache first when one is configured.
func (a *Aggregator) Report(ctx context.Context, symbol string) (*Report, error) {
	symbol = normalize(symbol)
	key := a.keyFn(symbol)
	if a.cache != nil {
		var cached Report
		err := a.cache.GetCtx(ctx, key, &cached)
		switch {
		case err == nil:
			return &cached, nil
		case !a.cache.IsNotFound(err):
			logx.WithContext(ctx).Errorf("performance: read cache %s: %v", key, err)
		}
	}

	summary, err := a.Summary(ctx, symbol, DefaultLookbackDays)
	if err != nil {
		return nil, err
	}
	patterns, err := a.AntiPatterns(ctx, symbol, DefaultAntiPatterns)
	if err != nil {
		return nil, err
	}
	recent, err := a.RecentTrades(ctx, symbol, DefaultRecentTrades)
	if err != nil {
		return nil, err
	}
	report := &Report{Summary: *summary, AntiPatterns: patterns, RecentTrades: recent}

	if a.cache != nil && a.cacheTTL > 0 {
		if err := a.cache.SetWithExpireCtx(ctx, key, report, a.cacheTTL); err != nil {
			logx.WithContext(ctx).Errorf("performance: write cache %s: %v", key, err)
		}
	}
	return report, nil
}

// Invalidate drops cached reports for symbol and for the all-symbols view.
func (a *Aggregator) Invalidate(ctx context.Context, symbol string) error {
	if a.cache == nil {
		return nil
	}
	keys := []string{a.keyFn("")}
	if s := normalize(symbol); s != "" {
		keys = append(keys, a.keyFn(s))
	}
	if err := a.cache.DelCtx(ctx, keys...); err != nil {
		return fmt.Errorf("performance: invalidate %s: %w", symbol, err)
	}
	return nil
}

// Summarize aggregates records that are already closed. Open records are ignored.
func Summarize(records []ledger.Record) Summary {
	var (
		s                Summary
		winPnL, lossPnL  float64
		tpSum, slSum     float64
		tpCount, slCount int
	)
	for _, rec := range records {
		if !closedEntry(rec) {
			continue
		}
		s.TotalTrades++
		if rec.Leverage > HighLeverage {
			s.HighLeverageTradeCount++
		}
		switch rec.Outcome {
		case ledger.OutcomeWin:
			s.Wins++
			winPnL += rec.Closure.FinalPnL
			if pct, ok := signedPercent(rec.EntryPrice, rec.TakeProfit); ok {
				tpSum += pct
				tpCount++
			}
		case ledger.OutcomeLoss:
			s.Losses++
			lossPnL += rec.Closure.FinalPnL
			if pct, ok := signedPercent(rec.EntryPrice, rec.StopLoss); ok {
				slSum += pct
				slCount++
			}
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = round(float64(s.Wins)/float64(s.TotalTrades)*100, 1)
	}
	if s.Wins > 0 {
		s.AvgWinPnL = round(winPnL/float64(s.Wins), 3)
	}
	if s.Losses > 0 {
		s.AvgLossPnL = round(lossPnL/float64(s.Losses), 3)
	}
	if tpCount > 0 {
		s.AvgTakeProfitPercent = round(tpSum/float64(tpCount), 2)
	}
	if slCount > 0 {
		s.AvgStopLossPercent = round(slSum/float64(slCount), 2)
	}
	return s
}

type setupKey struct {
	leverage int
	sl, tp   float64
}

// FindAntiPatterns groups losing trades by leverage and SL/TP distance
// rounded to one decimal, returning at most limit groups, worst first.
func FindAntiPatterns(records []ledger.Record, limit int) []AntiPattern {
	type acc struct {
		key    setupKey
		count  int
		pnl    float64
		losses int
	}
	groups := make(map[setupKey]*acc)
	order := make([]setupKey, 0)
	for _, rec := range records {
		if !closedEntry(rec) || rec.Closure.FinalPnL >= 0 {
			continue
		}
		sl, _ := signedPercent(rec.EntryPrice, rec.StopLoss)
		tp, _ := signedPercent(rec.EntryPrice, rec.TakeProfit)
		key := setupKey{leverage: rec.Leverage, sl: round(sl, 1), tp: round(tp, 1)}
		g, ok := groups[key]
		if !ok {
			g = &acc{key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
		g.pnl += rec.Closure.FinalPnL
		if rec.Outcome == ledger.OutcomeLoss {
			g.losses++
		}
	}

	out := make([]AntiPattern, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		out = append(out, AntiPattern{
			Setup:      describeSetup(key),
			Leverage:   key.leverage,
			StopLoss:   key.sl,
			TakeProfit: key.tp,
			TradeCount: g.count,
			AvgPnL:     round(g.pnl/float64(g.count), 3),
			Losses:     g.losses,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AvgPnL < out[j].AvgPnL })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func describeSetup(k setupKey) string {
	return fmt.Sprintf("Leverage: %dx, SL: %.1f%%, TP: %.1f%%", k.leverage, k.sl, k.tp)
}

func tradeOf(rec ledger.Record) Trade {
	sl, _ := signedPercent(rec.EntryPrice, rec.StopLoss)
	tp, _ := signedPercent(rec.EntryPrice, rec.TakeProfit)
	t := Trade{
		Symbol:     rec.Symbol,
		Operation:  rec.Operation,
		Leverage:   rec.Leverage,
		EntryPrice: rec.EntryPrice,
		StopLoss:   round(sl, 2),
		TakeProfit: round(tp, 2),
		Outcome:    rec.Outcome,
		Rationale:  rec.Rationale,
	}
	if rec.Closure != nil {
		t.ExitReason = rec.Closure.ExitReason
		t.PnL = round(rec.Closure.FinalPnL, 3)
		t.ClosedAt = rec.Closure.ClosedAt
	}
	return t
}

func closedEntry(rec ledger.Record) bool {
	return rec.Operation.IsEntry() && rec.Closure != nil &&
		(rec.Outcome == ledger.OutcomeWin || rec.Outcome == ledger.OutcomeLoss)
}

// signedPercent is the distance from entry to level as a signed percentage,
// negative below entry.
func signedPercent(entry, level float64) (float64, bool) {
	if entry <= 0 || level <= 0 {
		return 0, false
	}
	return (level/entry - 1) * 100, true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

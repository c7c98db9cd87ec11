package account

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"probsbots/pkg/exchange"
	"probsbots/pkg/ledger"
)

// DefaultMaxSeries bounds the length of a returned account series.
const DefaultMaxSeries = 100

// Metrics is one account reading plus the live positions it was derived from.
type Metrics struct {
	ledger.AccountSample
	UnrealizedPnL float64             `json:"unrealizedPnl"`
	Positions     []exchange.Position `json:"openPositions"`
}

// Sampler derives account performance from the venue and appends samples to
// the ledger.
type Sampler struct {
	provider       exchange.Provider
	store          ledger.Store
	initialCapital float64
	now            func() time.Time
}

// Option customises a Sampler.
type Option func(*Sampler)

// WithClock overrides the sample timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSampler constructs a sampler. initialCapital must be positive; it is the
// baseline for total return and the fallback cash value.
func NewSampler(provider exchange.Provider, store ledger.Store, initialCapital float64, opts ...Option) (*Sampler, error) {
	if provider == nil {
		return nil, errors.New("account: exchange provider is required")
	}
	if initialCapital <= 0 {
		return nil, fmt.Errorf("account: initial capital must be positive, got %v", initialCapital)
	}
	s := &Sampler{provider: provider, store: store, initialCapital: initialCapital, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// InitialCapital returns the configured baseline.
func (s *Sampler) InitialCapital() float64 { return s.initialCapital }

// Current reads positions and balance and computes the account metrics.
func (s *Sampler) Current(ctx context.Context) (*Metrics, error) {
	positions, err := s.provider.FetchPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("account: fetch positions: %w", err)
	}
	balance, err := s.provider.FetchBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("account: fetch balance: %w", err)
	}
	return Compute(positions, balance, s.initialCapital, s.now().UTC()), nil
}

// Sample computes the current metrics and appends them to the ledger.
func (s *Sampler) Sample(ctx context.Context) (*Metrics, error) {
	m, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		if err := s.store.RecordAccountSample(ctx, m.AccountSample); err != nil {
			return m, fmt.Errorf("account: record sample: %w", err)
		}
	}
	logx.WithContext(ctx).Infof("account: sampled total=%.2f available=%.2f return=%.4f positions=%d",
		m.TotalCash, m.AvailableCash, m.TotalReturn, m.OpenPositions)
	return m, nil
}

// Series returns samples taken since the given time, thinned to at most max
// points. max <= 0 means DefaultMaxSeries.
func (s *Sampler) Series(ctx context.Context, since time.Time, max int) ([]ledger.AccountSample, error) {
	if s.store == nil {
		return nil, errors.New("account: no store configured")
	}
	samples, err := s.store.AccountSamples(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("account: load samples: %w", err)
	}
	if max <= 0 {
		max = DefaultMaxSeries
	}
	return SampleUniform(samples, max), nil
}

// Compute derives account metrics from a venue reading. A missing or zero
// balance falls back to initialCapital.
func Compute(positions []exchange.Position, balance *exchange.Balance, initialCapital float64, at time.Time) *Metrics {
	var positionsValue, contracts, unrealized float64
	for _, p := range positions {
		value := p.Notional
		if value == 0 {
			price := p.MarkPrice
			if price == 0 {
				price = p.EntryPrice
			}
			value = p.Contracts * price
		}
		positionsValue += value
		contracts += p.Contracts
		unrealized += p.UnrealizedPnL
	}

	total, available := initialCapital, initialCapital
	if balance != nil {
		if balance.Total > 0 {
			total = balance.Total
		}
		if balance.Available > 0 {
			available = balance.Available
		}
	}

	var totalReturn, sharpe float64
	if initialCapital > 0 {
		totalReturn = (total - initialCapital) / initialCapital
		if unrealized != 0 {
			sharpe = totalReturn / (unrealized / initialCapital)
		}
	}
	if math.IsNaN(sharpe) || math.IsInf(sharpe, 0) {
		sharpe = 0
	}

	return &Metrics{
		AccountSample: ledger.AccountSample{
			SampledAt:      at,
			PositionsValue: positionsValue,
			ContractValue:  contracts,
			TotalCash:      total,
			AvailableCash:  available,
			TotalReturn:    totalReturn,
			SharpeRatio:    sharpe,
			OpenPositions:  len(positions),
		},
		UnrealizedPnL: unrealized,
		Positions:     positions,
	}
}

// SampleUniform thins items to at most max elements spread evenly across the
// input, always keeping the first and the last.
func SampleUniform[T any](items []T, max int) []T {
	if max <= 0 || len(items) <= max {
		return items
	}
	if max == 1 {
		return []T{items[len(items)-1]}
	}
	out := make([]T, 0, max)
	step := float64(len(items)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		out = append(out, items[int(math.Round(float64(i)*step))])
	}
	return out
}

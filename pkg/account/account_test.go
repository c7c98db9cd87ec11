package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"probsbots/pkg/exchange"
	"probsbots/pkg/exchange/sim"
	"probsbots/pkg/ledger"
)

func TestCompute(t *testing.T) {
	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	positions := []exchange.Position{
		{Symbol: "BTC", Contracts: 0.01, MarkPrice: 101000, Notional: 1010, UnrealizedPnL: 10},
		{Symbol: "ETH", Contracts: 0.5, EntryPrice: 3000, UnrealizedPnL: -5},
	}
	balance := &exchange.Balance{Asset: "USDT", Total: 10200, Available: 9000}

	m := Compute(positions, balance, 10000, at)
	assert.InDelta(t, 1010+1500, m.PositionsValue, 1e-9, "notional first, contracts*entry when no mark")
	assert.InDelta(t, 0.51, m.ContractValue, 1e-12)
	assert.Equal(t, 10200.0, m.TotalCash)
	assert.Equal(t, 9000.0, m.AvailableCash)
	assert.InDelta(t, 0.02, m.TotalReturn, 1e-12)
	assert.InDelta(t, 0.02/(5.0/10000), m.SharpeRatio, 1e-9)
	assert.Equal(t, 2, m.OpenPositions)
	assert.Equal(t, at, m.SampledAt)
}

func TestComputeFallsBackToInitialCapital(t *testing.T) {
	m := Compute(nil, nil, 10000, time.Now())
	assert.Equal(t, 10000.0, m.TotalCash)
	assert.Equal(t, 10000.0, m.AvailableCash)
	assert.Zero(t, m.TotalReturn)
	assert.Zero(t, m.SharpeRatio, "no unrealized pnl means zero ratio")
}

func TestSamplerSampleAndSeries(t *testing.T) {
	ctx := context.Background()
	venue := sim.New(sim.WithInitialBalance(10000))
	store := ledger.NewMemoryStore()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	sampler, err := NewSampler(venue, store, 10000, WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * 20 * time.Second)
	}))
	require.NoError(t, err)

	for i := 0; i < 150; i++ {
		_, err := sampler.Sample(ctx)
		require.NoError(t, err)
	}

	series, err := sampler.Series(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, series, DefaultMaxSeries)
	assert.Equal(t, base.Add(20*time.Second), series[0].SampledAt)
	assert.Equal(t, base.Add(150*20*time.Second), series[len(series)-1].SampledAt)
}

func TestNewSamplerValidation(t *testing.T) {
	_, err := NewSampler(nil, nil, 10000)
	assert.Error(t, err)
	_, err = NewSampler(sim.New(), nil, 0)
	assert.Error(t, err)
}

func TestSampleUniform(t *testing.T) {
	items := make([]int, 10)
	for i := range items {
		items[i] = i
	}
	assert.Equal(t, items, SampleUniform(items, 20))
	assert.Equal(t, []int{0, 2, 5, 7, 9}, SampleUniform(items, 5))
	assert.Equal(t, []int{9}, SampleUniform(items, 1))
}

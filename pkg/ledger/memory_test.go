package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec := &Record{Symbol: "btc", Operation: OperationBuy, EntryPrice: 100000, AmountUSD: 1000, Leverage: 5, StopLoss: 95000, TakeProfit: 106000}
	require.NoError(t, store.Create(ctx, rec))
	assert.NotEmpty(t, rec.ID, "create should assign an id")
	assert.Equal(t, OutcomeOpen, rec.Outcome)

	open, err := store.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "BTC", open[0].Symbol)

	closure := Closure{Outcome: OutcomeLoss, ExitPrice: 95000, ExitReason: ExitStopLoss, FinalPnL: -30, ClosedAt: time.Now().UTC()}
	require.NoError(t, store.Close(ctx, rec.ID, closure))

	err = store.Close(ctx, rec.ID, Closure{Outcome: OutcomeWin, ClosedAt: time.Now()})
	assert.ErrorIs(t, err, ErrNotOpen, "second close must not overwrite")

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLoss, got.Outcome)
	require.NotNil(t, got.Closure)
	assert.Equal(t, ExitStopLoss, got.Closure.ExitReason)

	open, err = store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUpdatesOnlyOpenRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec := &Record{Symbol: "BTC", Operation: OperationBuy, EntryPrice: 100000, AmountUSD: 1000, Leverage: 3, FillPending: true}
	require.NoError(t, store.Create(ctx, rec))

	require.NoError(t, store.ConfirmFill(ctx, rec.ID, Fill{EntryPrice: 100050, Contracts: 0.01}))
	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.FillPending)
	assert.Equal(t, 100050.0, got.EntryPrice)
	assert.Equal(t, 0.01, got.Contracts)

	assert.Error(t, store.ConfirmFill(ctx, rec.ID, Fill{EntryPrice: 0, Contracts: 0.01}), "zero price is not a fill")
	assert.ErrorIs(t, store.ConfirmFill(ctx, "missing", Fill{EntryPrice: 1, Contracts: 1}), ErrNotFound)

	require.NoError(t, store.Close(ctx, rec.ID, Closure{Outcome: OutcomeWin, ClosedAt: time.Now()}))
	assert.ErrorIs(t, store.UpdateProtection(ctx, rec.ID, Protection{StopLossPlaced: true}), ErrNotOpen)
	assert.ErrorIs(t, store.ConfirmFill(ctx, rec.ID, Fill{EntryPrice: 1, Contracts: 1}), ErrNotOpen)

	got, err = store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.Protection.StopLossPlaced, "closed record keeps its flags")
}

func TestMemoryStoreListClosedFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	for i, sym := range []string{"BTC", "ETH", "BTC"} {
		rec := &Record{Symbol: sym, Operation: OperationBuy, EntryPrice: 10, AmountUSD: 100}
		require.NoError(t, store.Create(ctx, rec))
		require.NoError(t, store.Close(ctx, rec.ID, Closure{Outcome: OutcomeWin, ClosedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	btc, err := store.ListClosed(ctx, ClosedFilter{Symbol: "btc"})
	require.NoError(t, err)
	require.Len(t, btc, 2)
	assert.True(t, btc[0].Closure.ClosedAt.After(btc[1].Closure.ClosedAt), "newest first")

	recent, err := store.ListClosed(ctx, ClosedFilter{Since: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	limited, err := store.ListClosed(ctx, ClosedFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordDerivedValues(t *testing.T) {
	rec := Record{EntryPrice: 100000, AmountUSD: 1000, StopLoss: 95000, TakeProfit: 106000}
	assert.InDelta(t, 0.01, rec.Quantity(), 1e-12)
	assert.InDelta(t, 5.0, rec.StopLossPercent(), 1e-9)
	assert.InDelta(t, 6.0, rec.TakeProfitPercent(), 1e-9)

	rec.Contracts = 0.009
	assert.Equal(t, 0.009, rec.Quantity(), "live contracts take precedence")
}

func TestParseOperation(t *testing.T) {
	op, ok := ParseOperation(" buy ")
	assert.True(t, ok)
	assert.Equal(t, OperationBuy, op)
	assert.True(t, op.IsEntry())

	op, ok = ParseOperation("HOLD")
	assert.True(t, ok)
	assert.False(t, op.IsEntry())

	_, ok = ParseOperation("close")
	assert.False(t, ok)
}

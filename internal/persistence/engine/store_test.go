package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	executorpkg "probsbots/pkg/executor"
	"probsbots/pkg/ledger"
)

// setupStore starts Postgres in a container, applies sql/postgres migrations
// and returns a Store bound to it.
func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("probsbots"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	runMigrations(t, ctx, dsn)

	store, err := NewStore(Config{SQLConn: sqlx.NewSqlConn("pgx", dsn)})
	require.NoError(t, err)
	return store
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close(ctx)

	dir := filepath.Join(findProjectRoot(t), "sql", "postgres")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		body, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		_, err = conn.Exec(ctx, string(body))
		require.NoError(t, err, "apply migration %s", name)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

func TestStore_RecordLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	opened := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := &ledger.Record{
		Symbol:           "btc",
		Operation:        ledger.OperationBuy,
		EntryPrice:       100000,
		AmountUSD:        500,
		Contracts:        0.005,
		Leverage:         3,
		StopLoss:         95000,
		TakeProfit:       106000,
		ExchangeOrderID:  "ord-1",
		IndicatorsAtOpen: json.RawMessage(`{"rsi14":55.2}`),
		Rationale:        "trend continuation",
		FillPending:      true,
		CreatedAt:        opened,
	}
	require.NoError(t, store.Create(ctx, rec))
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, "BTC", rec.Symbol)
	assert.Equal(t, ledger.OutcomeOpen, rec.Outcome)

	open, err := store.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, rec.ID, open[0].ID)
	assert.Equal(t, 0.005, open[0].Quantity())
	assert.JSONEq(t, `{"rsi14":55.2}`, string(open[0].IndicatorsAtOpen))
	assert.Nil(t, open[0].MarketAtOpen)

	require.NoError(t, store.UpdateProtection(ctx, rec.ID, ledger.Protection{StopLossPlaced: true}))
	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Protection.StopLossPlaced)
	assert.False(t, got.Protection.TakeProfitPlaced)
	assert.True(t, got.FillPending)

	require.NoError(t, store.ConfirmFill(ctx, rec.ID, ledger.Fill{EntryPrice: 100050, Contracts: 0.005}))
	got, err = store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.FillPending)
	assert.Equal(t, 100050.0, got.EntryPrice)

	closure := ledger.Closure{
		Outcome:    ledger.OutcomeLoss,
		ExitPrice:  95000,
		ExitReason: ledger.ExitStopLoss,
		FinalPnL:   -25,
		ClosedAt:   opened.Add(2 * time.Hour),
	}
	require.NoError(t, store.Close(ctx, rec.ID, closure))
	assert.ErrorIs(t, store.Close(ctx, rec.ID, closure), ledger.ErrNotOpen)
	assert.ErrorIs(t, store.Close(ctx, "missing", closure), ledger.ErrNotFound)
	assert.ErrorIs(t, store.UpdateProtection(ctx, rec.ID, ledger.Protection{TakeProfitPlaced: true}), ledger.ErrNotOpen)
	assert.ErrorIs(t, store.ConfirmFill(ctx, rec.ID, ledger.Fill{EntryPrice: 1, Contracts: 1}), ledger.ErrNotOpen)
	assert.ErrorIs(t, store.UpdateProtection(ctx, "missing", ledger.Protection{}), ledger.ErrNotFound)

	open, err = store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	closed, err := store.ListClosed(ctx, ledger.ClosedFilter{Symbol: "BTC"})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	require.NotNil(t, closed[0].Closure)
	assert.Equal(t, closure, *closed[0].Closure)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestStore_ListClosedFilters(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, sym := range []string{"BTC", "ETH", "BTC"} {
		rec := &ledger.Record{Symbol: sym, Operation: ledger.OperationSell, EntryPrice: 10, AmountUSD: 100, Leverage: 2, CreatedAt: base}
		require.NoError(t, store.Create(ctx, rec))
		require.NoError(t, store.Close(ctx, rec.ID, ledger.Closure{
			Outcome:    ledger.OutcomeWin,
			ExitPrice:  9,
			ExitReason: ledger.ExitTakeProfit,
			FinalPnL:   float64(i + 1),
			ClosedAt:   base.Add(time.Duration(i+1) * time.Hour),
		}))
	}

	all, err := store.ListClosed(ctx, ledger.ClosedFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 3.0, all[0].Closure.FinalPnL, "newest first")

	btc, err := store.ListClosed(ctx, ledger.ClosedFilter{Symbol: "btc", Limit: 1})
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.Equal(t, 3.0, btc[0].Closure.FinalPnL)

	recent, err := store.ListClosed(ctx, ledger.ClosedFilter{Since: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestStore_CyclesSamplesAndConversations(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	cycle := &ledger.Cycle{
		Operation: ledger.OperationHold,
		Decision:  json.RawMessage(`{"operation":"Hold"}`),
		Rationale: "range bound",
		Result:    ledger.CycleHold,
	}
	require.NoError(t, store.RecordCycle(ctx, cycle))
	require.NotEmpty(t, cycle.ID)
	require.NoError(t, store.RecordCycle(ctx, cycle), "replaying a cycle id is ignored")

	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.RecordAccountSample(ctx, ledger.AccountSample{
			SampledAt:     t0.Add(time.Duration(i) * time.Minute),
			TotalCash:     1000 + float64(i),
			OpenPositions: i,
		}))
	}
	samples, err := store.AccountSamples(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 1001.0, samples[0].TotalCash)
	assert.Equal(t, 2, samples[1].OpenPositions)

	require.NoError(t, store.RecordConversation(ctx, executorpkg.ConversationRecord{
		ModelID:      "gpt-x",
		PromptDigest: "abc",
		Prompt:       "prompt",
		Response:     `{"operation":"Hold"}`,
		TotalTokens:  42,
	}))
	n, err := store.conversations.CountByPromptDigest(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

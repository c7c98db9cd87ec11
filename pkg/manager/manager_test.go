package manager

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"probsbots/pkg/exchange"
	"probsbots/pkg/exchange/sim"
	"probsbots/pkg/executor"
	"probsbots/pkg/journal"
	"probsbots/pkg/ledger"
	"probsbots/pkg/market"
	"probsbots/pkg/reconciler"
)

func f(v float64) *float64 { return &v }

type scriptedOracle struct {
	candidate executor.Candidate
	err       error
	calls     int
	last      *executor.Context
}

func (o *scriptedOracle) Decide(_ context.Context, in *executor.Context) (*executor.Proposal, error) {
	o.calls++
	o.last = in
	return &executor.Proposal{Candidate: o.candidate, PromptDigest: "digest", At: time.Now()}, o.err
}

type staticDigest string

func (d staticDigest) Digest(context.Context, string) (string, error) { return string(d), nil }

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	cfg.CallTimeout = time.Second
	return cfg
}

func testExecConfig() *executor.Config {
	return &executor.Config{
		Symbols:         []string{"BTC", "ETH"},
		MaxLeverage:     20,
		StopLossPct:     0.05,
		TakeProfitPct:   0.06,
		DecisionTimeout: time.Second,
	}
}

func btcBuy() executor.Candidate {
	return executor.Candidate{
		Operation: "Buy",
		Symbol:    "BTC",
		Rationale: "breakout above the 4h range with rising open interest",
		Position: &executor.CandidatePosition{
			EntryPrice: f(100000),
			AmountUSD:  f(1000),
			Leverage:   f(3),
			StopLoss:   f(99000),
			TakeProfit: f(103000),
		},
	}
}

type fixture struct {
	venue   *sim.Provider
	store   *ledger.MemoryStore
	oracle  *scriptedOracle
	journal string
	mgr     *Manager
}

func newFixture(t *testing.T, cfg *Config, candidate executor.Candidate) *fixture {
	t.Helper()
	venue := sim.New()
	return newFixtureOn(t, venue, venue, ledger.NewMemoryStore(), cfg, candidate)
}

// newFixtureOn runs the manager against provider, usually a wrapper around
// venue.
func newFixtureOn(t *testing.T, provider exchange.Provider, venue *sim.Provider, store *ledger.MemoryStore, cfg *Config, candidate executor.Candidate) *fixture {
	t.Helper()
	oracle := &scriptedOracle{candidate: candidate}
	mkt := market.NewStaticProvider(map[string]float64{"BTC": 100000, "ETH": 3000})
	path := filepath.Join(t.TempDir(), "cycles.jsonl")
	w, err := journal.NewWriter(path)
	require.NoError(t, err)

	mgr, err := NewManager(cfg, testExecConfig(), provider, mkt, oracle, store,
		WithJournal(w), WithDigester(staticDigest("no closed trades yet")))
	require.NoError(t, err)
	return &fixture{venue: venue, store: store, oracle: oracle, journal: path, mgr: mgr}
}

func TestRunDecisionCycle_BTCEntry(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testConfig(), btcBuy())

	out, err := fx.mgr.RunDecisionCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.CycleExecuted, out.Cycle.Result)
	require.NotNil(t, out.Execution)
	assert.InDelta(t, 0.01, out.Execution.Contracts, 1e-12)
	assert.True(t, out.Execution.Confirmed)
	assert.True(t, out.Execution.StopLossPlaced)
	assert.True(t, out.Execution.TakeProfitPlaced)

	require.NotNil(t, fx.oracle.last)
	assert.Equal(t, "no closed trades yet", fx.oracle.last.PerformanceDigest)
	assert.Contains(t, fx.oracle.last.Snapshots, "BTC")

	resting := fx.venue.RestingOrders()
	require.Len(t, resting, 2)
	byType := map[exchange.OrderType]exchange.Order{}
	for _, o := range resting {
		byType[o.Type] = o
	}
	sl := byType[exchange.OrderTypeStop]
	assert.Equal(t, exchange.OrderSideSell, sl.Side)
	assert.Equal(t, 99000.0, sl.TriggerPrice)
	assert.True(t, sl.ReduceOnly)
	assert.InDelta(t, 0.01, sl.Quantity, 1e-12)
	tp := byType[exchange.OrderTypeLimit]
	assert.Equal(t, 103000.0, tp.Price)
	assert.True(t, tp.ReduceOnly)

	open, err := fx.store.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	rec := open[0]
	assert.Equal(t, "BTC", rec.Symbol)
	assert.Equal(t, ledger.OperationBuy, rec.Operation)
	assert.InDelta(t, 0.01, rec.Contracts, 1e-12)
	assert.Equal(t, 3, rec.Leverage)
	assert.True(t, rec.Protection.Complete())
	assert.NotEmpty(t, rec.IndicatorsAtOpen)
	assert.NotEmpty(t, rec.ExchangeOrderID)
	assert.Equal(t, rec.ID, out.Cycle.PositionID)

	entries, err := journal.ReadFile(fx.journal, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Buy", entries[0].Operation)
	assert.Equal(t, "executed", entries[0].Result)
	assert.NotEmpty(t, entries[0].Position)

	cycles := fx.store.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, "digest", cycles[0].PromptDigest)
}

func TestRunDecisionCycle_ExistingPositionSkipsEverything(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testConfig(), btcBuy())
	require.NoError(t, fx.venue.SetMarkPrice(ctx, "BTC", 100000))
	_, err := fx.venue.CreateOrder(ctx, exchange.OrderRequest{Symbol: "BTC", Type: exchange.OrderTypeMarket, Side: exchange.OrderSideBuy, Quantity: 0.01})
	require.NoError(t, err)
	before := fx.venue.Calls()

	out, err := fx.mgr.RunDecisionCycle(ctx)
	require.ErrorIs(t, err, ErrGuardSkip)
	assert.Equal(t, ledger.CycleSkipped, out.Cycle.Result)
	assert.Zero(t, fx.oracle.calls, "oracle must not be consulted")

	after := fx.venue.Calls()
	assert.Equal(t, before["FetchPositions"]+1, after["FetchPositions"])
	for _, method := range []string{"CreateOrder", "SetLeverage", "FetchBalance"} {
		assert.Equal(t, before[method], after[method], method)
	}

	open, err := fx.store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Len(t, fx.store.Cycles(), 1, "skips are still audited")
}

func TestRunDecisionCycle_GuardBlocksSameSymbol(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	off := false
	cfg.SkipWhenPositionsOpen = &off
	fx := newFixture(t, cfg, btcBuy())
	require.NoError(t, fx.venue.SetMarkPrice(ctx, "BTC", 100000))
	_, err := fx.venue.CreateOrder(ctx, exchange.OrderRequest{Symbol: "BTC", Type: exchange.OrderTypeMarket, Side: exchange.OrderSideBuy, Quantity: 0.02})
	require.NoError(t, err)
	orders := fx.venue.Calls()["CreateOrder"]

	out, err := fx.mgr.RunDecisionCycle(ctx)
	require.ErrorIs(t, err, ErrGuardSkip)
	assert.Equal(t, 1, fx.oracle.calls)
	assert.Equal(t, ledger.CycleSkipped, out.Cycle.Result)
	assert.Equal(t, orders, fx.venue.Calls()["CreateOrder"], "no order after a guard skip")
}

func TestRunDecisionCycle_Hold(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testConfig(), executor.Candidate{Operation: "Hold", Symbol: "ETH", Rationale: "chop, no edge"})

	out, err := fx.mgr.RunDecisionCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.CycleHold, out.Cycle.Result)
	assert.Equal(t, ledger.OperationHold, out.Cycle.Operation)
	assert.Zero(t, fx.venue.Calls()["CreateOrder"])

	open, err := fx.store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open, "hold never creates a position record")
}

func TestRunDecisionCycle_RejectsInvalidDecision(t *testing.T) {
	ctx := context.Background()
	candidate := btcBuy()
	candidate.Position.Leverage = f(50)
	fx := newFixture(t, testConfig(), candidate)

	out, err := fx.mgr.RunDecisionCycle(ctx)
	require.ErrorIs(t, err, executor.ErrSchemaViolation)
	assert.Equal(t, ledger.CycleRejected, out.Cycle.Result)
	assert.Zero(t, fx.venue.Calls()["CreateOrder"])
	assert.Zero(t, fx.venue.Calls()["SetLeverage"])
}

func TestRunDecisionCycle_FillsMissingProtection(t *testing.T) {
	ctx := context.Background()
	candidate := btcBuy()
	candidate.Position.StopLoss = nil
	candidate.Position.TakeProfit = nil
	fx := newFixture(t, testConfig(), candidate)

	out, err := fx.mgr.RunDecisionCycle(ctx)
	require.NoError(t, err)
	require.NotNil(t, out.Record)
	assert.InDelta(t, 95000, out.Record.StopLoss, 1e-6)
	assert.InDelta(t, 106000, out.Record.TakeProfit, 1e-6)
}

func TestRunDecisionCycle_OracleFailureIsAudited(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testConfig(), executor.Candidate{})
	fx.oracle.err = errors.New("upstream 503")

	out, err := fx.mgr.RunDecisionCycle(ctx)
	require.Error(t, err)
	assert.Equal(t, ledger.CycleFailed, out.Cycle.Result)
	assert.Equal(t, ledger.OperationHold, out.Cycle.Operation)

	entries, err := journal.ReadFile(fx.journal, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "failed", entries[0].Result)
	assert.Contains(t, entries[0].Error, "upstream 503")
}

func TestRunDecisionCycle_EntryRejected(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testConfig(), btcBuy())
	fx.venue.SetOrderFilter(func(req exchange.OrderRequest) error {
		if req.Type == exchange.OrderTypeMarket {
			return exchange.ErrRejected
		}
		return nil
	})

	out, err := fx.mgr.RunDecisionCycle(ctx)
	require.ErrorIs(t, err, ErrEntryOrder)
	assert.Equal(t, ledger.CycleFailed, out.Cycle.Result)
	open, err := fx.store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestProtectiveFailureAndRetry(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	off := false
	cfg.SkipWhenPositionsOpen = &off
	fx := newFixture(t, cfg, btcBuy())
	fx.venue.SetOrderFilter(func(req exchange.OrderRequest) error {
		if req.Type == exchange.OrderTypeStop {
			return errors.New("trigger price too close")
		}
		return nil
	})

	out, err := fx.mgr.RunDecisionCycle(ctx)
	require.NoError(t, err, "protective failures never fail the cycle")
	require.NotNil(t, out.Record)
	assert.False(t, out.Record.Protection.StopLossPlaced)
	assert.True(t, out.Record.Protection.TakeProfitPlaced)
	require.Len(t, out.Execution.ProtectiveErrors, 1)
	assert.ErrorIs(t, out.Execution.ProtectiveErrors[0], ErrProtectiveOrder)
	assert.Contains(t, out.Cycle.Error, "stop-loss")

	fx.venue.SetOrderFilter(nil)
	updated, err := fx.mgr.RetryProtection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	rec, err := fx.store.Get(ctx, out.Record.ID)
	require.NoError(t, err)
	assert.True(t, rec.Protection.Complete())
	assert.Len(t, fx.venue.RestingOrders(), 2, "only the missing leg is re-placed")
}

func TestSyncPaperMarks(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testConfig(), btcBuy())
	require.NoError(t, fx.mgr.SyncPaperMarks(ctx))

	_, err := fx.venue.CreateOrder(ctx, exchange.OrderRequest{Symbol: "ETH", Type: exchange.OrderTypeMarket, Side: exchange.OrderSideBuy, Quantity: 1})
	require.NoError(t, err, "market order fills once the mark is fed")
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(nil, nil, sim.New(), nil, &scriptedOracle{}, ledger.NewMemoryStore())
	assert.Error(t, err)
	_, err = NewManager(nil, testExecConfig(), sim.New(), nil, nil, ledger.NewMemoryStore())
	assert.Error(t, err)
}

// failingCreateStore loses every position record write.
type failingCreateStore struct {
	*ledger.MemoryStore
	creates int
}

func (s *failingCreateStore) Create(context.Context, *ledger.Record) error {
	s.creates++
	return errors.New("connection reset by peer")
}

func TestRunDecisionCycle_UnrecordedEntryIsAudited(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.RecordRetries = 2
	cfg.RecordRetryDelay = 0
	venue := sim.New()
	store := &failingCreateStore{MemoryStore: ledger.NewMemoryStore()}
	mkt := market.NewStaticProvider(map[string]float64{"BTC": 100000, "ETH": 3000})
	mgr, err := NewManager(cfg, testExecConfig(), venue, mkt, &scriptedOracle{candidate: btcBuy()}, store)
	require.NoError(t, err)

	out, err := mgr.RunDecisionCycle(ctx)
	require.ErrorIs(t, err, ErrPositionUntracked)
	assert.Equal(t, 3, store.creates, "one write plus two retries")
	assert.Equal(t, ledger.CycleUntracked, out.Cycle.Result)
	assert.Contains(t, out.Cycle.Error, "position untracked")
	assert.Empty(t, out.Cycle.PositionID)
	assert.Nil(t, out.Record)
	require.NotNil(t, out.Execution, "the entry itself went through")

	live, err := venue.FetchPositions(ctx, "BTC")
	require.NoError(t, err)
	require.Len(t, live, 1)

	cycles := store.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, ledger.CycleUntracked, cycles[0].Result)
	assert.Contains(t, cycles[0].Error, "connection reset by peer")
}

// blindVenue stops answering position reads once an entry has filled, until
// see is called.
type blindVenue struct {
	*sim.Provider
	blind bool
}

func (v *blindVenue) CreateOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	order, err := v.Provider.CreateOrder(ctx, req)
	if err == nil && req.Type == exchange.OrderTypeMarket {
		v.blind = true
	}
	return order, err
}

func (v *blindVenue) FetchPositions(ctx context.Context, symbols ...string) ([]exchange.Position, error) {
	if v.blind {
		return nil, errors.New("read timeout")
	}
	return v.Provider.FetchPositions(ctx, symbols...)
}

func (v *blindVenue) see() { v.blind = false }

// slippedBuy asks for 99950 while the paper venue fills at the 100000 mark.
func slippedBuy() executor.Candidate {
	c := btcBuy()
	c.Position.EntryPrice = f(99950)
	return c
}

func TestRunDecisionCycle_UnconfirmedFillIsRefreshed(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	off := false
	cfg.SkipWhenPositionsOpen = &off
	venue := &blindVenue{Provider: sim.New()}
	fx := newFixtureOn(t, venue, venue.Provider, ledger.NewMemoryStore(), cfg, slippedBuy())

	out, err := fx.mgr.RunDecisionCycle(ctx)
	require.NoError(t, err)
	require.NotNil(t, out.Record)
	assert.False(t, out.Execution.Confirmed)
	assert.True(t, out.Record.FillPending)
	assert.Equal(t, 99950.0, out.Record.EntryPrice)

	venue.see()
	updated, err := fx.mgr.RetryProtection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	rec, err := fx.store.Get(ctx, out.Record.ID)
	require.NoError(t, err)
	assert.False(t, rec.FillPending)
	assert.Equal(t, 100000.0, rec.EntryPrice)
	assert.InDelta(t, 0.01, rec.Contracts, 1e-12)
	assert.Len(t, fx.venue.RestingOrders(), 2, "protection was already complete")
}

func TestUnconfirmedFillClosedBeforeRefreshStillReconciles(t *testing.T) {
	ctx := context.Background()
	venue := &blindVenue{Provider: sim.New()}
	fx := newFixtureOn(t, venue, venue.Provider, ledger.NewMemoryStore(), testConfig(), slippedBuy())

	out, err := fx.mgr.RunDecisionCycle(ctx)
	require.NoError(t, err)
	require.NotNil(t, out.Record)
	require.True(t, out.Record.FillPending)

	venue.see()
	require.NoError(t, fx.venue.SetMarkPrice(ctx, "BTC", 98900))

	rc, err := reconciler.New(nil, venue, fx.store)
	require.NoError(t, err)
	report, err := rc.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Closed, 1)
	assert.Zero(t, report.Misses)

	rec, err := fx.store.Get(ctx, out.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeLoss, rec.Outcome)
	require.NotNil(t, rec.Closure)
	assert.Equal(t, ledger.ExitStopLoss, rec.Closure.ExitReason)
}

func TestRunDecisionCycle_DefaultsDoNotRewriteProposal(t *testing.T) {
	candidate := btcBuy()
	candidate.Position.StopLoss = nil
	candidate.Position.TakeProfit = nil
	fx := newFixture(t, testConfig(), candidate)

	out, err := fx.mgr.RunDecisionCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.Proposal)
	assert.Nil(t, out.Proposal.Candidate.Position.StopLoss, "the oracle sent no stop-loss")
	assert.Nil(t, out.Proposal.Candidate.Position.TakeProfit)
	require.NotNil(t, out.Decision)
	assert.InDelta(t, 95000, out.Decision.Position.StopLoss, 1e-6)
}

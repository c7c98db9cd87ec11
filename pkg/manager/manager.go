package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"probsbots/pkg/account"
	"probsbots/pkg/exchange"
	"probsbots/pkg/executor"
	"probsbots/pkg/journal"
	"probsbots/pkg/ledger"
	"probsbots/pkg/market"
	"probsbots/pkg/metrics"
)

// PerformanceDigester renders trading history for the oracle prompt. An
// empty symbol covers every symbol.
type PerformanceDigester interface {
	Digest(ctx context.Context, symbol string) (string, error)
}

// markFeeder is implemented by paper venues that fill at a caller-supplied
// mark price.
type markFeeder interface {
	SetMarkPrice(ctx context.Context, symbol string, price float64) error
}

// Manager runs decision cycles: snapshot, oracle, validation, guard,
// execution and record keeping.
type Manager struct {
	cfg       *Config
	execCfg   *executor.Config
	provider  exchange.Provider
	market    market.Provider
	oracle    executor.Oracle
	validator *executor.Validator
	guard     *Guard
	orders    *OrderExecutor
	store     ledger.Store

	digester PerformanceDigester
	journal  *journal.Writer
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option customises a Manager.
type Option func(*Manager)

// WithDigester sets the performance digest source for the prompt.
func WithDigester(d PerformanceDigester) Option {
	return func(m *Manager) { m.digester = d }
}

// WithJournal appends one line per cycle to w.
func WithJournal(w *journal.Writer) Option {
	return func(m *Manager) { m.journal = w }
}

// WithMetrics reports cycles and orders to mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithClock overrides the cycle timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager wires a manager. cfg may be nil for defaults; execCfg supplies
// the tracked symbols and the validator rules.
func NewManager(
	cfg *Config,
	execCfg *executor.Config,
	provider exchange.Provider,
	mkt market.Provider,
	oracle executor.Oracle,
	store ledger.Store,
	opts ...Option,
) (*Manager, error) {
	if execCfg == nil {
		return nil, errors.New("manager: executor config is required")
	}
	if provider == nil {
		return nil, errors.New("manager: exchange provider is required")
	}
	if oracle == nil {
		return nil, errors.New("manager: oracle is required")
	}
	if store == nil {
		return nil, errors.New("manager: ledger store is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{
		cfg:       cfg,
		execCfg:   execCfg,
		provider:  provider,
		market:    mkt,
		oracle:    oracle,
		validator: executor.NewValidator(execCfg),
		guard:     NewGuard(provider, cfg.CallTimeout),
		store:     store,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.orders = NewOrderExecutor(provider, cfg, m.metrics)
	return m, nil
}

// CycleOutcome is what one decision cycle did.
type CycleOutcome struct {
	Cycle     ledger.Cycle
	Proposal  *executor.Proposal
	Decision  *executor.Decision
	Execution *ExecutionResult
	Record    *ledger.Record
}

// RunDecisionCycle performs one full cycle. Every outcome, failures included,
// is written as a cycle row and a journal line. A guard skip returns an error
// wrapping ErrGuardSkip.
func (m *Manager) RunDecisionCycle(ctx context.Context) (*CycleOutcome, error) {
	out := &CycleOutcome{Cycle: ledger.Cycle{
		StartedAt: m.now().UTC(),
		Operation: ledger.OperationHold,
	}}
	err := m.runCycle(ctx, out)
	m.finishCycle(ctx, out, err)
	return out, err
}

func (m *Manager) runCycle(ctx context.Context, out *CycleOutcome) error {
	cycle := &out.Cycle

	positions, err := m.fetchPositions(ctx)
	if err != nil {
		cycle.Result = ledger.CycleFailed
		return err
	}
	if m.cfg.protectiveRetry() {
		if _, err := m.retryProtection(ctx, positions); err != nil {
			logx.WithContext(ctx).Errorf("manager: protective retry: %v", err)
		}
	}
	if m.cfg.skipWhenPositionsOpen() && len(positions) > 0 {
		cycle.Result = ledger.CycleSkipped
		return fmt.Errorf("%w: live positions on %s", ErrGuardSkip, strings.Join(positionSymbols(positions), ", "))
	}

	dctx, err := m.buildContext(ctx, positions)
	if err != nil {
		cycle.Result = ledger.CycleFailed
		return err
	}

	proposal, err := m.oracle.Decide(ctx, dctx)
	out.Proposal = proposal
	if proposal != nil {
		cycle.PromptDigest = proposal.PromptDigest
		cycle.Rationale = proposal.Candidate.Rationale
		cycle.Symbol = exchange.NormalizeSymbol(proposal.Candidate.Symbol)
	}
	if err != nil {
		cycle.Result = ledger.CycleFailed
		return err
	}

	// Defaults are filled on a copy so the proposal keeps what the oracle said.
	candidate := proposal.Candidate.Clone()
	snap := dctx.Snapshots[exchange.NormalizeSymbol(candidate.Symbol)]
	var price float64
	if snap != nil {
		price = snap.Price
	}
	if filled := executor.ApplyProtectiveDefaults(m.execCfg, &candidate, price); len(filled) > 0 {
		logx.WithContext(ctx).Infof("manager: %s %s missing %s, filled from price %.4f",
			candidate.Operation, candidate.Symbol, strings.Join(filled, " and "), price)
	}

	decision, err := m.validator.Validate(candidate)
	if err != nil {
		cycle.Result = ledger.CycleRejected
		return err
	}
	out.Decision = &decision
	cycle.Operation = decision.Operation
	cycle.Symbol = decision.Symbol
	cycle.Rationale = decision.Rationale
	cycle.Decision = decision.JSON()

	if decision.Operation == ledger.OperationHold {
		cycle.Result = ledger.CycleHold
		logx.WithContext(ctx).Infof("manager: hold %s: %s", decision.Symbol, journal.Truncate(decision.Rationale, 120))
		return nil
	}

	open, err := m.guard.HasOpenPosition(ctx, decision.Symbol)
	if err != nil {
		cycle.Result = ledger.CycleFailed
		return err
	}
	if open {
		cycle.Result = ledger.CycleSkipped
		logx.WithContext(ctx).Infof("manager: skip %s %s, position already open", decision.Operation, decision.Symbol)
		return fmt.Errorf("%w: %s", ErrGuardSkip, decision.Symbol)
	}

	res, err := m.orders.Execute(ctx, decision.Symbol, decision.Side(), *decision.Position)
	if err != nil {
		cycle.Result = ledger.CycleFailed
		return err
	}
	out.Execution = res

	rec := newPositionRecord(decision, res, snap)
	if err := m.createRecord(ctx, rec); err != nil {
		cycle.Result = ledger.CycleUntracked
		return errors.Join(
			fmt.Errorf("%w: %s %s order %s: %w", ErrPositionUntracked, decision.Operation, decision.Symbol, res.OrderID, err),
			res.ProtectiveErr(),
		)
	}
	out.Record = rec
	cycle.PositionID = rec.ID
	cycle.Result = ledger.CycleExecuted
	if perr := res.ProtectiveErr(); perr != nil {
		cycle.Error = perr.Error()
	}
	return nil
}

// createRecord persists the record of an accepted entry, retrying a fixed
// number of times.
func (m *Manager) createRecord(ctx context.Context, rec *ledger.Record) error {
	var err error
	for attempt := 0; attempt <= m.cfg.RecordRetries; attempt++ {
		if attempt > 0 {
			if serr := sleepContext(ctx, m.cfg.RecordRetryDelay); serr != nil {
				break
			}
		}
		if err = m.store.Create(ctx, rec); err == nil {
			return nil
		}
		logPersistenceError(ctx, err, "create position record", map[string]any{
			"symbol":  rec.Symbol,
			"order":   rec.ExchangeOrderID,
			"attempt": attempt + 1,
		})
	}
	return err
}

func (m *Manager) finishCycle(ctx context.Context, out *CycleOutcome, err error) {
	cycle := &out.Cycle
	if cycle.Result == "" {
		cycle.Result = ledger.CycleFailed
	}
	if err != nil {
		cycle.Error = err.Error()
	}
	cycle.Rationale = journal.Truncate(cycle.Rationale, journal.MaxRationaleRunes)

	logPersistenceError(ctx, m.store.RecordCycle(ctx, cycle), "record decision cycle", map[string]any{
		"result": cycle.Result,
	})
	if m.journal != nil {
		logPersistenceError(ctx, m.journal.Append(journalEntry(*cycle, out.Decision)), "append journal", map[string]any{
			"path": m.journal.Path(),
		})
	}
	m.metrics.RecordCycle(string(cycle.Result), m.now().Sub(cycle.StartedAt).Seconds())

	switch {
	case err == nil:
		logx.WithContext(ctx).Infof("manager: cycle %s %s %s", cycle.Result, cycle.Operation, cycle.Symbol)
	case errors.Is(err, ErrGuardSkip):
		logx.WithContext(ctx).Infof("manager: cycle skipped: %v", err)
	default:
		logx.WithContext(ctx).Errorf("manager: cycle %s: %v", cycle.Result, err)
	}
}

// buildContext assembles the oracle input: snapshots, account metrics, live
// positions and the performance digest.
func (m *Manager) buildContext(ctx context.Context, positions []exchange.Position) (*executor.Context, error) {
	callCtx, cancel := withTimeout(ctx, m.cfg.CallTimeout)
	balance, err := m.provider.FetchBalance(callCtx)
	cancel()
	if err != nil {
		logx.WithContext(ctx).Errorf("manager: fetch balance, using initial capital: %v", err)
		balance = nil
	}
	acct := account.Compute(positions, balance, m.cfg.InitialCapital, m.now().UTC())
	m.metrics.UpdateAccount(acct.TotalCash, acct.TotalReturn, acct.OpenPositions)

	base := &executor.Context{
		Now:       m.now().UTC(),
		Symbols:   m.execCfg.Symbols,
		Positions: positions,
		Account: executor.AccountInfo{
			TotalCash:      acct.TotalCash,
			AvailableCash:  acct.AvailableCash,
			PositionsValue: acct.PositionsValue,
			UnrealizedPnL:  acct.UnrealizedPnL,
			TotalReturn:    acct.TotalReturn,
			SharpeRatio:    acct.SharpeRatio,
		},
	}
	if m.digester != nil {
		digest, err := m.digester.Digest(ctx, "")
		if err != nil {
			logx.WithContext(ctx).Errorf("manager: performance digest: %v", err)
		}
		base.PerformanceDigest = digest
	}

	dctx, err := executor.BuildContext(ctx, base, m.market)
	if err != nil {
		return nil, fmt.Errorf("manager: build decision context: %w", err)
	}
	m.feedMarks(ctx, dctx.Snapshots)
	return dctx, nil
}

// feedMarks pushes snapshot prices into a paper venue so market orders fill
// and resting protective orders can trigger.
func (m *Manager) feedMarks(ctx context.Context, snaps map[string]*market.Snapshot) {
	feeder, ok := m.provider.(markFeeder)
	if !ok {
		return
	}
	for sym, snap := range snaps {
		if snap == nil {
			continue
		}
		price := snap.MarkPrice
		if price <= 0 {
			price = snap.Price
		}
		if price <= 0 {
			continue
		}
		if err := feeder.SetMarkPrice(ctx, sym, price); err != nil {
			logx.WithContext(ctx).Errorf("manager: feed mark %s: %v", sym, err)
		}
	}
}

func (m *Manager) fetchPositions(ctx context.Context) ([]exchange.Position, error) {
	callCtx, cancel := withTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	positions, err := m.provider.FetchPositions(callCtx)
	if err != nil {
		return nil, fmt.Errorf("manager: fetch positions: %w: %w", exchange.ErrTransient, err)
	}
	live := positions[:0:0]
	for _, p := range positions {
		if p.Contracts > 0 {
			live = append(live, p)
		}
	}
	return live, nil
}

// RetryProtection re-attempts missing protective orders for open records
// whose venue position is still live, and replaces the requested entry price
// and size of records opened without a confirmed fill. It returns how many
// record updates were written.
func (m *Manager) RetryProtection(ctx context.Context) (int, error) {
	positions, err := m.fetchPositions(ctx)
	if err != nil {
		return 0, err
	}
	return m.retryProtection(ctx, positions)
}

func (m *Manager) retryProtection(ctx context.Context, positions []exchange.Position) (int, error) {
	records, err := m.store.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("manager: list open records: %w", err)
	}
	updated := 0
	var errs []error
	for _, rec := range records {
		if !rec.Operation.IsEntry() || (rec.Protection.Complete() && !rec.FillPending) {
			continue
		}
		live, ok := findPosition(positions, exchange.NormalizeSymbol(rec.Symbol))
		if !ok {
			continue
		}
		if rec.FillPending && live.EntryPrice > 0 && live.Contracts > 0 {
			fill := ledger.Fill{EntryPrice: live.EntryPrice, Contracts: live.Contracts}
			if err := m.store.ConfirmFill(ctx, rec.ID, fill); err != nil {
				errs = append(errs, fmt.Errorf("manager: confirm fill %s: %w", rec.ID, err))
			} else {
				updated++
				logx.WithContext(ctx).Infof("manager: fill for %s %s confirmed entry=%.4f qty=%.6f (was %.4f)",
					rec.Symbol, rec.ID, fill.EntryPrice, fill.Contracts, rec.EntryPrice)
			}
		}
		if rec.Protection.Complete() {
			continue
		}
		side := exchange.OrderSideBuy
		if rec.Operation == ledger.OperationSell {
			side = exchange.OrderSideSell
		}
		outcome := m.orders.Protect(ctx, live.Symbol, side, live.Contracts, rec.StopLoss, rec.TakeProfit, rec.Protection)
		errs = append(errs, outcome.Errors...)
		if outcome.Protection == rec.Protection {
			continue
		}
		if err := m.store.UpdateProtection(ctx, rec.ID, outcome.Protection); err != nil {
			errs = append(errs, fmt.Errorf("manager: update protection %s: %w", rec.ID, err))
			continue
		}
		updated++
		logx.WithContext(ctx).Infof("manager: protection for %s %s now sl=%t tp=%t",
			rec.Symbol, rec.ID, outcome.StopLossPlaced, outcome.TakeProfitPlaced)
	}
	return updated, errors.Join(errs...)
}

func positionSymbols(positions []exchange.Position) []string {
	out := make([]string, 0, len(positions))
	for _, p := range positions {
		out = append(out, exchange.NormalizeSymbol(p.Symbol))
	}
	sort.Strings(out)
	return out
}

// SyncPaperMarks pushes fresh snapshot prices for every tracked symbol and
// live position into a paper venue. It is a no-op for real venues.
func (m *Manager) SyncPaperMarks(ctx context.Context) error {
	if _, ok := m.provider.(markFeeder); !ok || m.market == nil {
		return nil
	}
	positions, err := m.fetchPositions(ctx)
	if err != nil {
		return err
	}
	dctx, err := executor.BuildContext(ctx, &executor.Context{Symbols: m.execCfg.Symbols, Positions: positions}, m.market)
	if err != nil {
		return fmt.Errorf("manager: paper marks: %w", err)
	}
	m.feedMarks(ctx, dctx.Snapshots)
	return nil
}

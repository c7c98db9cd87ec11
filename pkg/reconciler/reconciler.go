package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"probsbots/pkg/exchange"
	"probsbots/pkg/ledger"
	"probsbots/pkg/metrics"
)

// ErrReconciliationMiss means a record's position is flat but no history
// entry matched it yet. The record stays open for the next pass.
var ErrReconciliationMiss = errors.New("reconciler: no matching history entry")

// Invalidator drops cached aggregates for a symbol after a close.
type Invalidator interface {
	Invalidate(ctx context.Context, symbol string) error
}

// Closed describes one record moved out of the open state.
type Closed struct {
	RecordID string
	Symbol   string
	Closure  ledger.Closure
}

// Report summarises one reconciliation pass.
type Report struct {
	Checked   int
	StillOpen int
	Misses    int
	Closed    []Closed
	// Errors holds per-record failures; the pass continues past them.
	Errors []error
}

// Reconciler moves open records to win or loss once the venue shows them
// closed.
type Reconciler struct {
	cfg         *Config
	provider    exchange.Provider
	store       ledger.Store
	matcher     HistoryMatcher
	invalidator Invalidator
	metrics     *metrics.Metrics
	now         func() time.Time
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithMatcher replaces the default FuzzyMatcher.
func WithMatcher(m HistoryMatcher) Option {
	return func(r *Reconciler) {
		if m != nil {
			r.matcher = m
		}
	}
}

// WithInvalidator is notified with the symbol of every closed record.
func WithInvalidator(inv Invalidator) Option {
	return func(r *Reconciler) { r.invalidator = inv }
}

// WithMetrics reports closures and misses to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock overrides the time source for the lookback window.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// New constructs a reconciler. A nil cfg uses DefaultConfig.
func New(cfg *Config, provider exchange.Provider, store ledger.Store, opts ...Option) (*Reconciler, error) {
	if provider == nil {
		return nil, errors.New("reconciler: exchange provider is required")
	}
	if store == nil {
		return nil, errors.New("reconciler: ledger store is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := &Reconciler{
		cfg:      cfg,
		provider: provider,
		store:    store,
		matcher:  NewFuzzyMatcher(cfg),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run reconciles every open record. Only pass-level failures (listing open
// records, reading live positions) are returned; per-record problems land in
// the report.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	records, err := r.store.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciler: list open records: %w", err)
	}
	report := &Report{}
	if len(records) == 0 {
		return report, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	positions, err := r.provider.FetchPositions(callCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("reconciler: fetch positions: %w: %w", exchange.ErrTransient, err)
	}
	live := make(map[string]bool, len(positions))
	for _, p := range positions {
		if p.Contracts > 0 {
			live[exchange.NormalizeSymbol(p.Symbol)] = true
		}
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++
		if live[exchange.NormalizeSymbol(rec.Symbol)] {
			report.StillOpen++
			continue
		}
		closure, err := r.reconcile(ctx, rec)
		switch {
		case errors.Is(err, ErrReconciliationMiss):
			report.Misses++
			r.metrics.RecordReconcileMiss()
			logx.WithContext(ctx).Infof("reconciler: %s %s flat but unmatched, retrying next pass", rec.Symbol, rec.ID)
		case errors.Is(err, ledger.ErrNotOpen):
			// Closed by a concurrent pass.
		case err != nil:
			report.Errors = append(report.Errors, err)
			logx.WithContext(ctx).Errorf("reconciler: %s %s: %v", rec.Symbol, rec.ID, err)
		default:
			report.Closed = append(report.Closed, Closed{RecordID: rec.ID, Symbol: rec.Symbol, Closure: *closure})
		}
	}
	logx.WithContext(ctx).Infof("reconciler: checked=%d open=%d closed=%d misses=%d errors=%d",
		report.Checked, report.StillOpen, len(report.Closed), report.Misses, len(report.Errors))
	return report, nil
}

func (r *Reconciler) reconcile(ctx context.Context, rec ledger.Record) (*ledger.Closure, error) {
	since := r.now().Add(-r.cfg.Lookback)
	if rec.CreatedAt.After(since) {
		since = rec.CreatedAt
	}
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	entries, err := r.provider.FetchPositionsHistory(callCtx, rec.Symbol, since, r.cfg.HistoryLimit)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("reconciler: history for %s: %w: %w", rec.Symbol, exchange.ErrTransient, err)
	}

	entry, ok := r.matcher.Match(rec, entries)
	if !ok {
		return nil, fmt.Errorf("%w: %s qty=%.6f entry=%.4f among %d entries", ErrReconciliationMiss, rec.Symbol, rec.Quantity(), rec.EntryPrice, len(entries))
	}

	closure := ClosureFor(rec, entry)
	if err := r.store.Close(ctx, rec.ID, closure); err != nil {
		if errors.Is(err, ledger.ErrNotOpen) {
			return nil, err
		}
		return nil, fmt.Errorf("reconciler: close %s: %w", rec.ID, err)
	}
	r.metrics.RecordReconciled(string(closure.Outcome), string(closure.ExitReason))
	logx.WithContext(ctx).Infof("reconciler: closed %s %s outcome=%s reason=%s pnl=%.4f exit=%.4f",
		rec.Symbol, rec.ID, closure.Outcome, closure.ExitReason, closure.FinalPnL, closure.ExitPrice)

	if r.invalidator != nil {
		if err := r.invalidator.Invalidate(ctx, rec.Symbol); err != nil {
			logx.WithContext(ctx).Errorf("reconciler: invalidate cache for %s: %v", rec.Symbol, err)
		}
	}
	return &closure, nil
}

// ClosureFor derives the closing fields of rec from its matched history entry.
func ClosureFor(rec ledger.Record, e exchange.HistoryEntry) ledger.Closure {
	pnl := realisedPnL(rec, e)
	outcome := ledger.OutcomeLoss
	if pnl > 0 {
		outcome = ledger.OutcomeWin
	}
	return ledger.Closure{
		Outcome:    outcome,
		ExitPrice:  e.AvgExitPrice,
		ExitReason: Classify(e),
		FinalPnL:   pnl,
		ClosedAt:   e.UpdatedTime.UTC(),
	}
}

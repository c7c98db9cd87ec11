package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "probsbots/internal/cache"
	"probsbots/internal/model"
	executorpkg "probsbots/pkg/executor"
	"probsbots/pkg/ledger"
)

var (
	_ ledger.Store                     = (*Store)(nil)
	_ executorpkg.ConversationRecorder = (*Store)(nil)
)

// Store persists the trading ledger in Postgres and mirrors the open
// position list into Redis when a cache is configured.
type Store struct {
	positions     model.PositionRecordsModel
	cycles        model.DecisionCyclesModel
	accounts      model.AccountMetricsModel
	conversations model.ConversationsModel
	cache         gocache.Cache
	ttl           cachekeys.TTLSet
	now           func() time.Time
}

// Config enumerates dependencies needed to persist ledger events.
type Config struct {
	SQLConn sqlx.SqlConn
	// Cache is optional; nil disables the open-position mirror.
	Cache gocache.Cache
	TTL   cachekeys.TTLSet
}

// NewStore builds the Postgres ledger. The SQL connection is mandatory.
func NewStore(cfg Config) (*Store, error) {
	if cfg.SQLConn == nil {
		return nil, errors.New("enginepersist: sql connection is required")
	}
	return &Store{
		positions:     model.NewPositionRecordsModel(cfg.SQLConn),
		cycles:        model.NewDecisionCyclesModel(cfg.SQLConn),
		accounts:      model.NewAccountMetricsModel(cfg.SQLConn),
		conversations: model.NewConversationsModel(cfg.SQLConn),
		cache:         cfg.Cache,
		ttl:           cfg.TTL,
		now:           time.Now,
	}, nil
}

func (s *Store) Create(ctx context.Context, rec *ledger.Record) error {
	if rec == nil {
		return errors.New("enginepersist: nil record")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if rec.Outcome == "" {
		rec.Outcome = ledger.OutcomeOpen
	}
	rec.Symbol = strings.ToUpper(strings.TrimSpace(rec.Symbol))

	if _, err := s.positions.Insert(ctx, toPositionRow(rec)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("enginepersist: record %s already exists", rec.ID)
		}
		return fmt.Errorf("enginepersist: insert record %s: %w", rec.ID, err)
	}
	s.invalidateOpen(ctx)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*ledger.Record, error) {
	row, err := s.positions.FindOne(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("enginepersist: get record %s: %w", id, err)
	}
	rec := fromPositionRow(row)
	return &rec, nil
}

func (s *Store) ListOpen(ctx context.Context) ([]ledger.Record, error) {
	key := cachekeys.PositionsOpenKey()
	if s.cache != nil {
		var cached []ledger.Record
		err := s.cache.GetCtx(ctx, key, &cached)
		switch {
		case err == nil:
			return cached, nil
		case !s.cache.IsNotFound(err):
			logx.WithContext(ctx).Errorf("enginepersist: load open positions cache key=%s err=%v", key, err)
		}
	}

	rows, err := s.positions.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("enginepersist: %w", err)
	}
	out := make([]ledger.Record, 0, len(rows))
	for i := range rows {
		out = append(out, fromPositionRow(&rows[i]))
	}

	if s.cache != nil {
		if ttl := cachekeys.PositionsTTL(s.ttl); ttl > 0 {
			if err := s.cache.SetWithExpireCtx(ctx, key, out, ttl); err != nil {
				logx.WithContext(ctx).Errorf("enginepersist: set open positions cache key=%s err=%v", key, err)
			}
		}
	}
	return out, nil
}

func (s *Store) ListClosed(ctx context.Context, filter ledger.ClosedFilter) ([]ledger.Record, error) {
	rows, err := s.positions.ListClosed(ctx, model.ClosedQuery{
		Symbol: filter.Symbol,
		Since:  filter.Since,
		Limit:  filter.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("enginepersist: %w", err)
	}
	out := make([]ledger.Record, 0, len(rows))
	for i := range rows {
		out = append(out, fromPositionRow(&rows[i]))
	}
	return out, nil
}

// Close writes the closure only while the row is still open, so two passes
// racing on the same record leave exactly one closure behind.
func (s *Store) Close(ctx context.Context, id string, closure ledger.Closure) error {
	if closure.Outcome != ledger.OutcomeWin && closure.Outcome != ledger.OutcomeLoss {
		return fmt.Errorf("enginepersist: invalid closing outcome %q", closure.Outcome)
	}
	closedAt := closure.ClosedAt
	if closedAt.IsZero() {
		closedAt = s.now()
	}
	updated, err := s.positions.CloseOpen(ctx, id, model.CloseFields{
		Outcome:    string(closure.Outcome),
		ExitPrice:  closure.ExitPrice,
		ExitReason: string(closure.ExitReason),
		FinalPnl:   closure.FinalPnL,
		ClosedAt:   closedAt,
	})
	if err != nil {
		return fmt.Errorf("enginepersist: close record %s: %w", id, err)
	}
	if !updated {
		return s.missingOrClosed(ctx, id)
	}
	s.invalidateOpen(ctx)
	return nil
}

func (s *Store) UpdateProtection(ctx context.Context, id string, protection ledger.Protection) error {
	updated, err := s.positions.UpdateProtection(ctx, id, protection.StopLossPlaced, protection.TakeProfitPlaced)
	if err != nil {
		return fmt.Errorf("enginepersist: update protection %s: %w", id, err)
	}
	if !updated {
		return s.missingOrClosed(ctx, id)
	}
	s.invalidateOpen(ctx)
	return nil
}

func (s *Store) ConfirmFill(ctx context.Context, id string, fill ledger.Fill) error {
	if fill.EntryPrice <= 0 || fill.Contracts <= 0 {
		return fmt.Errorf("enginepersist: invalid fill %+v", fill)
	}
	updated, err := s.positions.ConfirmFill(ctx, id, fill.EntryPrice, fill.Contracts)
	if err != nil {
		return fmt.Errorf("enginepersist: confirm fill %s: %w", id, err)
	}
	if !updated {
		return s.missingOrClosed(ctx, id)
	}
	s.invalidateOpen(ctx)
	return nil
}

func (s *Store) missingOrClosed(ctx context.Context, id string) error {
	_, err := s.positions.FindOne(ctx, id)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return ledger.ErrNotFound
	case err != nil:
		return fmt.Errorf("enginepersist: reload record %s: %w", id, err)
	default:
		return ledger.ErrNotOpen
	}
}

// RecordCycle appends the audit row. Replaying a cycle id is a no-op.
func (s *Store) RecordCycle(ctx context.Context, cycle *ledger.Cycle) error {
	if cycle == nil {
		return nil
	}
	if cycle.ID == "" {
		cycle.ID = uuid.NewString()
	}
	if cycle.StartedAt.IsZero() {
		cycle.StartedAt = s.now().UTC()
	}
	row := &model.DecisionCycles{
		Id:           cycle.ID,
		StartedAt:    cycle.StartedAt.UTC(),
		Operation:    string(cycle.Operation),
		Symbol:       cycle.Symbol,
		Decision:     nullJSON(cycle.Decision),
		Rationale:    cycle.Rationale,
		PromptDigest: cycle.PromptDigest,
		Result:       string(cycle.Result),
		ErrorMessage: cycle.Error,
		PositionId:   cycle.PositionID,
	}
	if _, err := s.cycles.Insert(ctx, row); err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("enginepersist: insert decision cycle %s: %w", cycle.ID, err)
	}
	return nil
}

func (s *Store) RecordAccountSample(ctx context.Context, sample ledger.AccountSample) error {
	if sample.SampledAt.IsZero() {
		sample.SampledAt = s.now()
	}
	_, err := s.accounts.Insert(ctx, &model.AccountMetrics{
		SampledAt:      sample.SampledAt.UTC(),
		PositionsValue: sample.PositionsValue,
		ContractValue:  sample.ContractValue,
		TotalCash:      sample.TotalCash,
		AvailableCash:  sample.AvailableCash,
		TotalReturn:    sample.TotalReturn,
		SharpeRatio:    sample.SharpeRatio,
		OpenPositions:  int64(sample.OpenPositions),
	})
	if err != nil {
		return fmt.Errorf("enginepersist: insert account sample: %w", err)
	}
	return nil
}

func (s *Store) AccountSamples(ctx context.Context, since time.Time) ([]ledger.AccountSample, error) {
	rows, err := s.accounts.Since(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("enginepersist: %w", err)
	}
	out := make([]ledger.AccountSample, 0, len(rows))
	for _, row := range rows {
		out = append(out, ledger.AccountSample{
			SampledAt:      row.SampledAt.UTC(),
			PositionsValue: row.PositionsValue,
			ContractValue:  row.ContractValue,
			TotalCash:      row.TotalCash,
			AvailableCash:  row.AvailableCash,
			TotalReturn:    row.TotalReturn,
			SharpeRatio:    row.SharpeRatio,
			OpenPositions:  int(row.OpenPositions),
		})
	}
	return out, nil
}

// RecordConversation stores oracle prompt/response pairs for debugging.
func (s *Store) RecordConversation(ctx context.Context, rec executorpkg.ConversationRecord) error {
	if strings.TrimSpace(rec.Prompt) == "" && strings.TrimSpace(rec.Response) == "" {
		return nil
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	_, err := s.conversations.Insert(ctx, &model.Conversations{
		ModelId:          strings.TrimSpace(rec.ModelID),
		PromptDigest:     rec.PromptDigest,
		Prompt:           rec.Prompt,
		Response:         rec.Response,
		PromptTokens:     int64(rec.PromptTokens),
		CompletionTokens: int64(rec.CompletionTokens),
		TotalTokens:      int64(rec.TotalTokens),
		RecordedAt:       ts.UTC(),
	})
	if err != nil {
		return fmt.Errorf("enginepersist: insert conversation: %w", err)
	}
	return nil
}

func (s *Store) invalidateOpen(ctx context.Context) {
	if s.cache == nil {
		return
	}
	key := cachekeys.PositionsOpenKey()
	if err := s.cache.DelCtx(ctx, key); err != nil && !s.cache.IsNotFound(err) {
		logx.WithContext(ctx).Errorf("enginepersist: del open positions cache key=%s err=%v", key, err)
	}
}

// isUniqueViolation recognises duplicate keys from either Postgres driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

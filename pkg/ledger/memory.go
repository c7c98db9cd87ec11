package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the ledger in process memory. It backs paper trading and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
	cycles  []Cycle
	samples []AccountSample
	now     func() time.Time
}

// NewMemoryStore returns an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Create stores rec, assigning an id, creation time and open outcome when unset.
func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("ledger: nil record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("ledger: record %s already exists", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if rec.Outcome == "" {
		rec.Outcome = OutcomeOpen
	}
	rec.Symbol = strings.ToUpper(strings.TrimSpace(rec.Symbol))
	cp := cloneRecord(*rec)
	s.records[rec.ID] = &cp
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneRecord(*rec)
	return &cp, nil
}

func (s *MemoryStore) ListOpen(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0)
	for _, id := range s.order {
		rec := s.records[id]
		if rec.IsOpen() {
			out = append(out, cloneRecord(*rec))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListClosed(_ context.Context, filter ClosedFilter) ([]Record, error) {
	symbol := strings.ToUpper(strings.TrimSpace(filter.Symbol))
	s.mu.RLock()
	out := make([]Record, 0)
	for _, id := range s.order {
		rec := s.records[id]
		if rec.IsOpen() || rec.Closure == nil {
			continue
		}
		if symbol != "" && rec.Symbol != symbol {
			continue
		}
		if !filter.Since.IsZero() && rec.Closure.ClosedAt.Before(filter.Since) {
			continue
		}
		out = append(out, cloneRecord(*rec))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Closure.ClosedAt.After(out[j].Closure.ClosedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Close moves an open record to its closure state.
func (s *MemoryStore) Close(_ context.Context, id string, closure Closure) error {
	if closure.Outcome != OutcomeWin && closure.Outcome != OutcomeLoss {
		return fmt.Errorf("ledger: invalid closing outcome %q", closure.Outcome)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if !rec.IsOpen() {
		return ErrNotOpen
	}
	c := closure
	rec.Outcome = closure.Outcome
	rec.Closure = &c
	return nil
}

func (s *MemoryStore) UpdateProtection(_ context.Context, id string, protection Protection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if !rec.IsOpen() {
		return ErrNotOpen
	}
	rec.Protection = protection
	return nil
}

func (s *MemoryStore) ConfirmFill(_ context.Context, id string, fill Fill) error {
	if fill.EntryPrice <= 0 || fill.Contracts <= 0 {
		return fmt.Errorf("ledger: invalid fill %+v", fill)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if !rec.IsOpen() {
		return ErrNotOpen
	}
	rec.EntryPrice = fill.EntryPrice
	rec.Contracts = fill.Contracts
	rec.FillPending = false
	return nil
}

func (s *MemoryStore) RecordCycle(_ context.Context, cycle *Cycle) error {
	if cycle == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cycle.ID == "" {
		cycle.ID = uuid.NewString()
	}
	if cycle.StartedAt.IsZero() {
		cycle.StartedAt = s.now().UTC()
	}
	s.cycles = append(s.cycles, *cycle)
	return nil
}

// Cycles returns a copy of every recorded decision cycle, oldest first.
func (s *MemoryStore) Cycles() []Cycle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Cycle, len(s.cycles))
	copy(out, s.cycles)
	return out
}

func (s *MemoryStore) RecordAccountSample(_ context.Context, sample AccountSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sample.SampledAt.IsZero() {
		sample.SampledAt = s.now().UTC()
	}
	s.samples = append(s.samples, sample)
	return nil
}

func (s *MemoryStore) AccountSamples(_ context.Context, since time.Time) ([]AccountSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AccountSample, 0, len(s.samples))
	for _, sample := range s.samples {
		if !since.IsZero() && sample.SampledAt.Before(since) {
			continue
		}
		out = append(out, sample)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SampledAt.Before(out[j].SampledAt) })
	return out, nil
}

func cloneRecord(r Record) Record {
	if r.Closure != nil {
		c := *r.Closure
		r.Closure = &c
	}
	if r.IndicatorsAtOpen != nil {
		r.IndicatorsAtOpen = append([]byte(nil), r.IndicatorsAtOpen...)
	}
	if r.MarketAtOpen != nil {
		r.MarketAtOpen = append([]byte(nil), r.MarketAtOpen...)
	}
	return r
}

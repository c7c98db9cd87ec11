package executor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"probsbots/pkg/exchange"
	"probsbots/pkg/llm"
	"probsbots/pkg/market"
)

// fakeLLM answers every structured call with a fixed JSON body.
type fakeLLM struct {
	body     string
	err      error
	requests []*llm.ChatRequest
}

func (f *fakeLLM) Chat(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not used")
}

func (f *fakeLLM) ChatStructured(_ context.Context, req *llm.ChatRequest, target any) (*llm.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	resp := &llm.ChatResponse{
		Model:   "gpt-4o-mini",
		Choices: []llm.Choice{{Message: llm.Message{Role: llm.RoleAssistant, Content: f.body}}},
		Usage:   llm.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}
	return resp, llm.ParseStructured(f.body, target)
}

func (f *fakeLLM) GetConfig() *llm.Config { return &llm.Config{} }
func (f *fakeLLM) Close() error           { return nil }

type memRecorder struct {
	mu   sync.Mutex
	recs []ConversationRecord
}

func (m *memRecorder) RecordConversation(_ context.Context, rec ConversationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func oracleCfg() *Config {
	cfg := baseCfg()
	cfg.DecisionTimeout = time.Second
	cfg.PromptTemplate = filepath.Join("..", "..", "etc", "prompts", "decision.tmpl")
	return cfg
}

func oracleInput() *Context {
	return &Context{
		Now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Symbols: []string{"BTC", "ETH"},
		Snapshots: map[string]*market.Snapshot{
			"BTC": {Symbol: "BTC", Price: 100000, FundingRate: 0.0001},
		},
		Account:           AccountInfo{TotalCash: 10000, AvailableCash: 9000},
		Positions:         []exchange.Position{{Symbol: "ETH", Side: exchange.PositionLong, Contracts: 1, EntryPrice: 3000, Leverage: 2}},
		PerformanceDigest: "Total trades: 3, win rate 66.7%",
	}
}

func TestLLMOracle_Decide(t *testing.T) {
	client := &fakeLLM{body: `{"operation":"Buy","symbol":"BTC","position":{"entryPrice":100000,"amountUsd":1000,"leverage":3,"stopLoss":99000,"takeProfit":103000},"rationale":"trend"}`}
	rec := &memRecorder{}
	now := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)

	oracle, err := NewLLMOracle(oracleCfg(), client, WithConversationRecorder(rec), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	p, err := oracle.Decide(context.Background(), oracleInput())
	require.NoError(t, err)
	assert.Equal(t, "Buy", p.Candidate.Operation)
	require.NotNil(t, p.Candidate.Position)
	assert.Equal(t, 100000.0, *p.Candidate.Position.EntryPrice)
	assert.Len(t, p.PromptDigest, 64)
	assert.Equal(t, llm.DigestString(p.Prompt), p.PromptDigest)
	assert.Equal(t, now, p.At)

	assert.Contains(t, p.Prompt, "2026-03-01T12:00:00Z")
	assert.Contains(t, p.Prompt, "Tradable symbols: BTC, ETH")
	assert.Contains(t, p.Prompt, "ETH long contracts=1.0000")
	assert.Contains(t, p.Prompt, "win rate 66.7%")
	assert.Contains(t, p.Prompt, `"BTC":{"price":100000`)

	require.Len(t, client.requests, 1)
	assert.Equal(t, llm.RoleSystem, client.requests[0].Messages[0].Role)
	require.Len(t, rec.recs, 1)
	assert.Equal(t, 120, rec.recs[0].TotalTokens)
	assert.Equal(t, p.PromptDigest, rec.recs[0].PromptDigest)

	d, err := NewValidator(oracleCfg()).Validate(p.Candidate)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, d.Position.AmountUSD)
}

func TestLLMOracle_DecideErrors(t *testing.T) {
	client := &fakeLLM{err: errors.New("upstream down")}
	oracle, err := NewLLMOracle(oracleCfg(), client)
	require.NoError(t, err)

	p, err := oracle.Decide(context.Background(), oracleInput())
	require.Error(t, err)
	require.NotNil(t, p)
	assert.NotEmpty(t, p.Prompt)

	_, err = oracle.Decide(context.Background(), nil)
	assert.Error(t, err)
}

func TestLLMOracle_MalformedResponseKeepsRaw(t *testing.T) {
	client := &fakeLLM{body: "I think you should buy"}
	oracle, err := NewLLMOracle(oracleCfg(), client)
	require.NoError(t, err)

	p, err := oracle.Decide(context.Background(), oracleInput())
	require.Error(t, err)
	assert.Equal(t, "I think you should buy", p.Response)
}

func TestNewLLMOracle_Requirements(t *testing.T) {
	_, err := NewLLMOracle(nil, &fakeLLM{})
	assert.Error(t, err)
	_, err = NewLLMOracle(oracleCfg(), nil)
	assert.Error(t, err)
	cfg := oracleCfg()
	cfg.PromptTemplate = filepath.Join(t.TempDir(), "missing.tmpl")
	_, err = NewLLMOracle(cfg, &fakeLLM{})
	assert.Error(t, err)
}

type stubMarket struct {
	fail map[string]bool
}

func (s stubMarket) Snapshot(_ context.Context, symbol string) (*market.Snapshot, error) {
	if s.fail[symbol] {
		return nil, errors.New("no data")
	}
	return &market.Snapshot{Symbol: symbol, Price: 1}, nil
}

func TestBuildContext(t *testing.T) {
	base := &Context{
		Symbols:   []string{"BTC", "SOL"},
		Positions: []exchange.Position{{Symbol: "ETH"}},
	}
	out, err := BuildContext(context.Background(), base, stubMarket{fail: map[string]bool{"SOL": true}})
	require.NoError(t, err)
	assert.Len(t, out.Snapshots, 2)
	assert.Contains(t, out.Snapshots, "BTC")
	assert.Contains(t, out.Snapshots, "ETH")
	assert.Nil(t, base.Snapshots)

	_, err = BuildContext(context.Background(), &Context{Symbols: []string{"SOL"}}, stubMarket{fail: map[string]bool{"SOL": true}})
	assert.Error(t, err)

	_, err = BuildContext(context.Background(), nil, nil)
	assert.Error(t, err)
}

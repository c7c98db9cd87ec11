package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"probsbots/pkg/llm"
)

// Oracle produces one candidate decision per cycle. The candidate is
// untrusted until it passes Validate.
type Oracle interface {
	Decide(ctx context.Context, in *Context) (*Proposal, error)
}

// LLMOracle renders the decision prompt and asks an LLM for a structured
// Candidate.
type LLMOracle struct {
	cfg           *Config
	llm           llm.LLMClient
	renderer      *PromptRenderer
	conversations ConversationRecorder
	now           func() time.Time
}

// NewLLMOracle constructs an oracle from cfg, loading cfg.PromptTemplate.
func NewLLMOracle(cfg *Config, client llm.LLMClient, opts ...OracleOption) (*LLMOracle, error) {
	if cfg == nil {
		return nil, errors.New("executor: config is required")
	}
	renderer, err := NewPromptRenderer(cfg, cfg.PromptTemplate)
	if err != nil {
		return nil, err
	}
	return NewLLMOracleWithRenderer(cfg, client, renderer, opts...)
}

// NewLLMOracleWithRenderer constructs an oracle around an existing renderer.
func NewLLMOracleWithRenderer(cfg *Config, client llm.LLMClient, renderer *PromptRenderer, opts ...OracleOption) (*LLMOracle, error) {
	if cfg == nil {
		return nil, errors.New("executor: config is required")
	}
	if client == nil {
		return nil, errors.New("executor: llm client is required")
	}
	if renderer == nil {
		return nil, errors.New("executor: prompt renderer is required")
	}
	o := &LLMOracle{
		cfg:           cfg,
		llm:           client,
		renderer:      renderer,
		conversations: noopConversationRecorder{},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// GetConfig returns the underlying configuration.
func (o *LLMOracle) GetConfig() *Config { return o.cfg }

// Decide renders the prompt from in and returns the oracle's candidate. On a
// parse failure the proposal is still returned so the caller can audit the
// raw response.
func (o *LLMOracle) Decide(ctx context.Context, in *Context) (*Proposal, error) {
	if in == nil {
		return nil, errors.New("executor: input context is required")
	}
	prompt, digest, err := o.renderer.Render(buildPromptInputs(o.cfg, in))
	if err != nil {
		return nil, err
	}

	req := &llm.ChatRequest{
		Model: o.cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompt},
			{Role: llm.RoleUser, Content: "Return exactly one decision as JSON."},
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.DecisionTimeout)
	defer cancel()

	proposal := &Proposal{Prompt: prompt, PromptDigest: digest, At: o.now()}
	resp, err := o.llm.ChatStructured(callCtx, req, &proposal.Candidate)
	if resp != nil {
		proposal.Response = resp.Content()
		proposal.ModelID = resp.Model
		o.record(ctx, proposal, resp)
	}
	if err != nil {
		return proposal, fmt.Errorf("executor: oracle call: %w", err)
	}
	return proposal, nil
}

func (o *LLMOracle) record(ctx context.Context, p *Proposal, resp *llm.ChatResponse) {
	err := o.conversations.RecordConversation(ctx, ConversationRecord{
		ModelID:          resp.Model,
		PromptDigest:     p.PromptDigest,
		Prompt:           p.Prompt,
		Response:         p.Response,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Timestamp:        p.At,
	})
	if err != nil {
		logx.WithContext(ctx).Errorf("executor: record conversation: %v", err)
	}
}

package executor

import (
	"fmt"

	"probsbots/pkg/llm"
)

// PromptInputs contains dynamic data injected into the decision prompt template.
type PromptInputs struct {
	CurrentTime       string
	Symbols           string
	MaxLeverage       int
	StopLossPct       float64
	TakeProfitPct     float64
	AccountOverview   string
	OpenPositions     string
	PerformanceDigest string
	MarketSnapshots   string
}

// PromptRenderer renders the decision prompt from a template file.
type PromptRenderer struct {
	cfg *Config
	tpl *llm.PromptTemplate
}

// NewPromptRenderer constructs a renderer using the supplied template path.
func NewPromptRenderer(cfg *Config, templatePath string) (*PromptRenderer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("executor prompt renderer requires config")
	}
	tpl, err := llm.NewPromptTemplate(templatePath, nil)
	if err != nil {
		return nil, err
	}
	return &PromptRenderer{cfg: cfg, tpl: tpl}, nil
}

// NewPromptRendererFromTemplate wraps an already parsed template.
func NewPromptRendererFromTemplate(cfg *Config, tpl *llm.PromptTemplate) *PromptRenderer {
	return &PromptRenderer{cfg: cfg, tpl: tpl}
}

// Render generates the prompt and the sha256 digest of the rendered text.
func (r *PromptRenderer) Render(inputs PromptInputs) (string, string, error) {
	if r == nil || r.tpl == nil {
		return "", "", fmt.Errorf("executor prompt renderer not initialised")
	}
	return r.tpl.RenderWithDigest(inputs)
}

// Digest returns the template source digest.
func (r *PromptRenderer) Digest() string {
	if r == nil || r.tpl == nil {
		return ""
	}
	return r.tpl.Digest()
}

package executor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"probsbots/pkg/confkit"
)

const (
	defaultMaxLeverage     = 20
	defaultStopLossPct     = 0.05
	defaultTakeProfitPct   = 0.06
	defaultDecisionTimeout = 60 * time.Second
	defaultPromptTemplate  = "prompts/decision.tmpl"
)

// Config controls the decision oracle and the validator.
type Config struct {
	// Symbols is the allow list of base coins the oracle may trade.
	Symbols     []string `yaml:"symbols"`
	MaxLeverage int      `yaml:"max_leverage"`
	// StopLossPct and TakeProfitPct are fractions used when the oracle omits
	// a protective level.
	StopLossPct    float64 `yaml:"stop_loss_pct"`
	TakeProfitPct  float64 `yaml:"take_profit_pct"`
	PromptTemplate string  `yaml:"prompt_template"`
	// Model is an llm model alias; empty means the client default.
	Model string `yaml:"model"`

	DecisionTimeoutRaw string        `yaml:"decision_timeout"`
	DecisionTimeout    time.Duration `yaml:"-"`
}

// LoadConfig reads configuration from disk. A relative prompt template path
// resolves against the config file's directory.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open executor config: %w", err)
	}
	defer file.Close()
	cfg, err := LoadConfigFromReader(file)
	if err != nil {
		return nil, err
	}
	cfg.PromptTemplate = confkit.ResolvePath(confkit.BaseDir(path), cfg.PromptTemplate)
	return cfg, nil
}

// MustLoad reads executor configuration from the default project location and panics on error.
func MustLoad() *Config {
	cfg, err := LoadConfig(confkit.MustProjectPath("etc/executor.yaml"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from a reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	cfg, err := confkit.DecodeYAML[Config]("executor", r)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	cfg.expandFields()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MaxLeverage == 0 {
		c.MaxLeverage = defaultMaxLeverage
	}
	if c.StopLossPct == 0 {
		c.StopLossPct = defaultStopLossPct
	}
	if c.TakeProfitPct == 0 {
		c.TakeProfitPct = defaultTakeProfitPct
	}
	if strings.TrimSpace(c.PromptTemplate) == "" {
		c.PromptTemplate = defaultPromptTemplate
	}
}

func (c *Config) parseDurations() error {
	d, err := confkit.Duration("executor", "decision_timeout", c.DecisionTimeoutRaw, defaultDecisionTimeout)
	if err != nil {
		return err
	}
	if d == 0 {
		return errors.New("executor config: decision_timeout must be positive")
	}
	c.DecisionTimeout = d
	return nil
}

func (c *Config) expandFields() {
	c.PromptTemplate = strings.TrimSpace(os.ExpandEnv(c.PromptTemplate))
	c.Model = strings.TrimSpace(os.ExpandEnv(c.Model))
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

// Validate ensures configuration sanity.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("executor config: symbols must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Symbols))
	for _, s := range c.Symbols {
		if s == "" {
			return errors.New("executor config: symbols contains empty value")
		}
		if _, ok := seen[s]; ok {
			return fmt.Errorf("executor config: symbols contains duplicate %q", s)
		}
		seen[s] = struct{}{}
	}
	if c.MaxLeverage < 1 || c.MaxLeverage > 100 {
		return errors.New("executor config: max_leverage must be between 1 and 100")
	}
	if c.StopLossPct <= 0 || c.StopLossPct >= 1 {
		return errors.New("executor config: stop_loss_pct must be in (0, 1)")
	}
	if c.TakeProfitPct <= 0 || c.TakeProfitPct >= 1 {
		return errors.New("executor config: take_profit_pct must be in (0, 1)")
	}
	return nil
}

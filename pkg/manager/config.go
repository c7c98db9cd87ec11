package manager

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
	defaultSettleDelay     = 2 * time.Second
	defaultCallTimeout     = 10 * time.Second
	defaultLeverageRetries = 2
	defaultRecordRetries   = 2
	defaultRecordDelay     = 500 * time.Millisecond
	defaultPriceDecimals   = 2
	defaultQtyStep         = 0.001
	defaultInitialCapital  = 10000.0
	defaultJournalPath     = "journal/cycles.jsonl"
)

// Config controls order execution and the decision cycle.
type Config struct {
	// SettleDelay is the pause between the entry fill and the live position
	// read that sizes the protective orders.
	SettleDelayRaw string        `yaml:"settle_delay"`
	SettleDelay    time.Duration `yaml:"-"`
	// CallTimeout bounds every exchange call.
	CallTimeoutRaw string        `yaml:"call_timeout"`
	CallTimeout    time.Duration `yaml:"-"`

	LeverageRetries int `yaml:"leverage_retries"`

	// RecordRetries is how many times a failed position record write is
	// retried after the entry order was accepted.
	RecordRetries       int           `yaml:"record_retries"`
	RecordRetryDelayRaw string        `yaml:"record_retry_delay"`
	RecordRetryDelay    time.Duration `yaml:"-"`

	// PriceDecimals is the rounding applied to protective order prices.
	PriceDecimals int `yaml:"price_decimals"`
	// QtyStep is the lot step used when the venue does not publish one.
	QtyStep float64 `yaml:"qty_step"`

	// SkipWhenPositionsOpen skips the oracle while any venue position is open.
	SkipWhenPositionsOpen *bool `yaml:"skip_when_positions_open"`
	// ProtectiveRetry re-attempts missing stop-loss/take-profit orders at
	// the start of each cycle.
	ProtectiveRetry *bool `yaml:"protective_retry"`

	InitialCapital float64 `yaml:"initial_capital"`
	JournalPath    string  `yaml:"journal_path"`
}

// LoadConfig reads configuration from disk. A relative journal path resolves
// against the config file's directory.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manager config: %w", err)
	}
	defer file.Close()
	cfg, err := LoadConfigFromReader(file)
	if err != nil {
		return nil, err
	}
	cfg.JournalPath = confkit.ResolvePath(confkit.BaseDir(path), cfg.JournalPath)
	return cfg, nil
}

// MustLoad reads manager configuration from the default project location and panics on error.
func MustLoad() *Config {
	cfg, err := LoadConfig(confkit.MustProjectPath("etc/manager.yaml"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from a reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	cfg, err := confkit.DecodeYAML[Config]("manager", r)
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

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.SettleDelay = defaultSettleDelay
	cfg.CallTimeout = defaultCallTimeout
	cfg.RecordRetryDelay = defaultRecordDelay
	return cfg
}

func (c *Config) applyDefaults() {
	if c.LeverageRetries == 0 {
		c.LeverageRetries = defaultLeverageRetries
	}
	if c.RecordRetries == 0 {
		c.RecordRetries = defaultRecordRetries
	}
	if c.PriceDecimals == 0 {
		c.PriceDecimals = defaultPriceDecimals
	}
	if c.QtyStep == 0 {
		c.QtyStep = defaultQtyStep
	}
	if c.InitialCapital == 0 {
		c.InitialCapital = defaultInitialCapital
	}
	if strings.TrimSpace(c.JournalPath) == "" {
		c.JournalPath = defaultJournalPath
	}
	if c.SkipWhenPositionsOpen == nil {
		v := true
		c.SkipWhenPositionsOpen = &v
	}
	if c.ProtectiveRetry == nil {
		v := true
		c.ProtectiveRetry = &v
	}
}

func (c *Config) parseDurations() error {
	var err error
	if c.SettleDelay, err = confkit.Duration("manager", "settle_delay", c.SettleDelayRaw, defaultSettleDelay); err != nil {
		return err
	}
	if c.CallTimeout, err = confkit.Duration("manager", "call_timeout", c.CallTimeoutRaw, defaultCallTimeout); err != nil {
		return err
	}
	if c.CallTimeout == 0 {
		return errors.New("manager config: call_timeout must be positive")
	}
	if c.RecordRetryDelay, err = confkit.Duration("manager", "record_retry_delay", c.RecordRetryDelayRaw, defaultRecordDelay); err != nil {
		return err
	}
	return nil
}

func (c *Config) expandFields() {
	c.JournalPath = strings.TrimSpace(os.ExpandEnv(c.JournalPath))
}

// Validate ensures configuration sanity.
func (c *Config) Validate() error {
	if c.LeverageRetries < 0 {
		return errors.New("manager config: leverage_retries cannot be negative")
	}
	if c.RecordRetries < 0 {
		return errors.New("manager config: record_retries cannot be negative")
	}
	if c.PriceDecimals < 0 || c.PriceDecimals > 8 {
		return errors.New("manager config: price_decimals must be between 0 and 8")
	}
	if c.QtyStep <= 0 {
		return errors.New("manager config: qty_step must be positive")
	}
	if c.InitialCapital <= 0 {
		return errors.New("manager config: initial_capital must be positive")
	}
	return nil
}

func (c *Config) skipWhenPositionsOpen() bool {
	return c.SkipWhenPositionsOpen == nil || *c.SkipWhenPositionsOpen
}

func (c *Config) protectiveRetry() bool {
	return c.ProtectiveRetry == nil || *c.ProtectiveRetry
}

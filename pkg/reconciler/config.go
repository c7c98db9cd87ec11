package reconciler

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"probsbots/pkg/confkit"
)

const (
	defaultLookback        = 7 * 24 * time.Hour
	defaultHistoryLimit    = 10
	defaultHeadWindow      = 2
	defaultQtyTolerance    = 0.001
	defaultPriceTolerance  = 0.01
	defaultPendingSlippage = 0.005
	defaultCallTimeout     = 10 * time.Second
)

// Config controls history matching.
type Config struct {
	LookbackRaw string        `yaml:"lookback"`
	Lookback    time.Duration `yaml:"-"`
	// HistoryLimit is how many history entries are requested per symbol.
	HistoryLimit int `yaml:"history_limit"`
	// HeadWindow is how many of the newest entries are considered for a match.
	HeadWindow     int     `yaml:"head_window"`
	QtyTolerance   float64 `yaml:"qty_tolerance"`
	PriceTolerance float64 `yaml:"price_tolerance"`
	// PendingSlippage widens the price tolerance to this fraction of entry
	// for records still carrying the requested entry price.
	PendingSlippage float64 `yaml:"pending_slippage"`

	CallTimeoutRaw string        `yaml:"call_timeout"`
	CallTimeout    time.Duration `yaml:"-"`
}

// DefaultConfig returns the documented matching defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Lookback = defaultLookback
	cfg.CallTimeout = defaultCallTimeout
	return cfg
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reconciler config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads reconciler configuration from the default project location and panics on error.
func MustLoad() *Config {
	cfg, err := LoadConfig(confkit.MustProjectPath("etc/reconciler.yaml"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from a reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	cfg, err := confkit.DecodeYAML[Config]("reconciler", r)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HistoryLimit == 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.HeadWindow == 0 {
		c.HeadWindow = defaultHeadWindow
	}
	if c.QtyTolerance == 0 {
		c.QtyTolerance = defaultQtyTolerance
	}
	if c.PriceTolerance == 0 {
		c.PriceTolerance = defaultPriceTolerance
	}
	if c.PendingSlippage == 0 {
		c.PendingSlippage = defaultPendingSlippage
	}
}

func (c *Config) parseDurations() error {
	var err error
	if c.Lookback, err = confkit.Duration("reconciler", "lookback", c.LookbackRaw, defaultLookback); err != nil {
		return err
	}
	if c.CallTimeout, err = confkit.Duration("reconciler", "call_timeout", c.CallTimeoutRaw, defaultCallTimeout); err != nil {
		return err
	}
	return nil
}

// Validate ensures configuration sanity.
func (c *Config) Validate() error {
	if c.Lookback <= 0 {
		return errors.New("reconciler config: lookback must be positive")
	}
	if c.HistoryLimit < 1 {
		return errors.New("reconciler config: history_limit must be at least 1")
	}
	if c.HeadWindow < 1 || c.HeadWindow > c.HistoryLimit {
		return fmt.Errorf("reconciler config: head_window must be within [1, %d]", c.HistoryLimit)
	}
	if c.QtyTolerance <= 0 || c.PriceTolerance <= 0 {
		return errors.New("reconciler config: tolerances must be positive")
	}
	if c.PendingSlippage < 0 || c.PendingSlippage >= 0.1 {
		return errors.New("reconciler config: pending_slippage must be within [0, 0.1)")
	}
	if c.CallTimeout <= 0 {
		return errors.New("reconciler config: call_timeout must be positive")
	}
	return nil
}

package exchange_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exchange "probsbots/pkg/exchange"
	_ "probsbots/pkg/exchange/sim"
)

func TestLoadConfigAndBuildProviders(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SIM_TIMEOUT", "45s")

	configYAML := `
default: paper
providers:
  paper:
    type: sim
    initial_balance: 5000
    qty_step: 0.01
    timeout: ${SIM_TIMEOUT}
`
	path := filepath.Join(dir, "exchange.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := exchange.LoadConfig(path)
	require.NoError(t, err, "LoadConfig should not error")
	assert.Equal(t, "paper", cfg.Default)
	paper := cfg.Providers["paper"]
	assert.Equal(t, 45*time.Second, paper.Timeout)
	assert.Equal(t, 5*time.Second, paper.RecvWindow, "recv_window should default")
	assert.Equal(t, "linear", paper.Category)
	assert.Equal(t, "USDT", paper.QuoteAsset)

	provider, err := cfg.DefaultProvider()
	require.NoError(t, err)
	assert.NotNil(t, provider)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]struct {
		yaml string
		want string
	}{
		"empty providers": {yaml: "providers: {}\n", want: "providers cannot be empty"},
		"unknown default": {yaml: "default: x\nproviders:\n  paper:\n    type: sim\n", want: `default provider "x" not defined`},
		"unknown type":    {yaml: "providers:\n  p:\n    type: ftx\n", want: `unsupported type "ftx"`},
		"bad timeout":     {yaml: "providers:\n  p:\n    type: sim\n    timeout: later\n", want: "invalid timeout"},
		"bad category":    {yaml: "providers:\n  p:\n    type: sim\n    category: spot\n", want: "not supported"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := exchange.LoadConfigFromReader(strings.NewReader(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestGetProviderInline(t *testing.T) {
	p, err := exchange.GetProvider("sim", nil)
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = exchange.GetProvider("nope", nil)
	assert.Error(t, err)
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "BTC", exchange.NormalizeSymbol("BTC/USDT:USDT"))
	assert.Equal(t, "ETH", exchange.NormalizeSymbol("ethusdt"))
	assert.Equal(t, "SOL", exchange.NormalizeSymbol(" sol "))
	assert.Equal(t, "USDT", exchange.NormalizeSymbol("USDT"))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, exchange.IsTransient(exchange.ErrTransient))
	assert.False(t, exchange.IsTransient(exchange.ErrRejected))
	assert.False(t, exchange.IsTransient(nil))
}

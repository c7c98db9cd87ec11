package manager

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromReader_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.SettleDelay)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
	assert.Equal(t, 2, cfg.LeverageRetries)
	assert.Equal(t, 2, cfg.RecordRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.RecordRetryDelay)
	assert.Equal(t, 2, cfg.PriceDecimals)
	assert.Equal(t, 0.001, cfg.QtyStep)
	assert.Equal(t, 10000.0, cfg.InitialCapital)
	assert.True(t, cfg.skipWhenPositionsOpen())
	assert.True(t, cfg.protectiveRetry())
}

func TestLoadConfigFromReader_Overrides(t *testing.T) {
	body := `
settle_delay: 0s
call_timeout: 5s
leverage_retries: 1
skip_when_positions_open: false
protective_retry: false
initial_capital: 2500
journal_path: ${PROBSBOTS_TEST_JOURNAL}
`
	t.Setenv("PROBSBOTS_TEST_JOURNAL", "/tmp/j.jsonl")
	cfg, err := LoadConfigFromReader(strings.NewReader(body))
	require.NoError(t, err)
	assert.Zero(t, cfg.SettleDelay)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.False(t, cfg.skipWhenPositionsOpen())
	assert.False(t, cfg.protectiveRetry())
	assert.Equal(t, 2500.0, cfg.InitialCapital)
	assert.Equal(t, "/tmp/j.jsonl", cfg.JournalPath)
}

func TestLoadConfigFromReader_Invalid(t *testing.T) {
	cases := map[string]string{
		"zero timeout":   "call_timeout: 0s\n",
		"bad delay":      "settle_delay: soon\n",
		"negative retry": "leverage_retries: -1\n",
		"record retries": "record_retries: -2\n",
		"record delay":   "record_retry_delay: later\n",
		"decimals":       "price_decimals: 12\n",
		"capital":        "initial_capital: -5\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfigFromReader(strings.NewReader(body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "manager config")
		})
	}
}

func TestLoadConfig_ResolvesJournalRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manager.yaml")
	require.NoError(t, os.WriteFile(path, []byte("journal_path: out/cycles.jsonl\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "cycles.jsonl"), cfg.JournalPath)
}

package bybit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"probsbots/pkg/exchange"
)

// newRecordedProvider replays testdata/cassettes/<name>.yaml. Set
// RECORD_CASSETTES=1 with BYBIT_API_KEY/BYBIT_API_SECRET to re-record against
// the demo environment.
func newRecordedProvider(t *testing.T, name string) *Provider {
	t.Helper()
	cassette := filepath.Join("testdata", "cassettes", name)
	mode := recorder.ModeReplaying
	if os.Getenv("RECORD_CASSETTES") == "1" {
		mode = recorder.ModeRecording
	} else if _, err := os.Stat(cassette + ".yaml"); os.IsNotExist(err) {
		t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s", cassette)
	}

	r, err := recorder.NewAsMode(cassette, mode, nil)
	require.NoError(t, err, "recorder should start")
	t.Cleanup(func() { _ = r.Stop() })

	key, secret := os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET")
	if key == "" {
		key, secret = "test-key", "test-secret"
	}
	client := NewClient(key, secret,
		WithBaseURL(DemoURL),
		WithTransport(r),
		WithClock(func() time.Time { return time.UnixMilli(1772440200000) }),
	)
	return NewProvider(client, "linear", "USDT")
}

func TestProvider_Recorded(t *testing.T) {
	p := newRecordedProvider(t, "bybit_trading")
	ctx := context.Background()

	positions, err := p.FetchPositions(ctx)
	require.NoError(t, err, "FetchPositions should not error")
	require.Len(t, positions, 1, "flat ETH row should be dropped")
	assert.Equal(t, "BTC", positions[0].Symbol)
	assert.Equal(t, exchange.PositionLong, positions[0].Side)
	assert.InDelta(t, 0.01, positions[0].Contracts, 1e-12)
	assert.InDelta(t, 100250.5, positions[0].MarkPrice, 1e-9)
	assert.Equal(t, 5, positions[0].Leverage)

	bal, err := p.FetchBalance(ctx)
	require.NoError(t, err, "FetchBalance should not error")
	assert.InDelta(t, 10002.5, bal.Total, 1e-9)
	assert.InDelta(t, 8800, bal.Available, 1e-9)

	err = p.SetLeverage(ctx, "BTC", 5)
	assert.ErrorIs(t, err, exchange.ErrLeverageNotModified, "retCode 110043 should map to not modified")

	order, err := p.CreateOrder(ctx, exchange.OrderRequest{
		Symbol:       "BTC",
		Type:         exchange.OrderTypeStop,
		Side:         exchange.OrderSideSell,
		Quantity:     0.01,
		TriggerPrice: 95000,
		ReduceOnly:   true,
		TimeInForce:  exchange.TimeInForceGTC,
	})
	require.NoError(t, err, "CreateOrder should not error")
	assert.Equal(t, "1a2b3c4d-0000-4000-8000-000000000001", order.ID)

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	history, err := p.FetchPositionsHistory(ctx, "BTC", since, 10)
	require.NoError(t, err, "FetchPositionsHistory should not error")
	require.Len(t, history, 1)
	entry := history[0]
	assert.Equal(t, "BTC", entry.Symbol)
	assert.InDelta(t, 0.01, entry.Qty, 1e-12)
	require.NotNil(t, entry.ClosedPnL)
	assert.InDelta(t, -30, *entry.ClosedPnL, 1e-9)
	assert.InDelta(t, 97000, entry.AvgExitPrice, 1e-9)
	assert.Equal(t, "Trade", entry.ExecType)
	assert.Equal(t, time.UnixMilli(1772440200000).UTC(), entry.UpdatedTime)

	inst, err := p.Instrument(ctx, "BTC")
	require.NoError(t, err, "Instrument should not error")
	assert.Equal(t, 0.001, inst.QtyStep)
	assert.Equal(t, 0.1, inst.TickSize)
}

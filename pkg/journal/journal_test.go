package journal

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cycles.jsonl")
	w, err := NewWriter(path)
	require.NoError(t, err)
	fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	w.nowFn = func() time.Time { return fixed }

	long := strings.Repeat("é", 250)
	require.NoError(t, w.Append(Entry{
		Operation: "Buy",
		Symbol:    "BTC",
		Position:  json.RawMessage(`{"amountUsd":1000}`),
		Rationale: long,
		Result:    "executed",
	}))
	require.NoError(t, w.Append(Entry{Operation: "Hold", Rationale: "flat market", Result: "hold"}))

	entries, err := ReadFile(path, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, fixed, entries[0].Timestamp)
	assert.Equal(t, MaxRationaleRunes, len([]rune(entries[0].Rationale)))
	assert.JSONEq(t, `{"amountUsd":1000}`, string(entries[0].Position))
	assert.Equal(t, "Hold", entries[1].Operation)

	last, err := ReadFile(path, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "hold", last[0].Result)
}

func TestReadFileMissing(t *testing.T) {
	entries, err := ReadFile(filepath.Join(t.TempDir(), "none.jsonl"), 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadSkipsMalformedLines(t *testing.T) {
	in := "{\"operation\":\"Buy\",\"result\":\"executed\"}\nnot json\n\n{\"operation\":\"Sell\",\"result\":\"failed\"}\n"
	entries, err := Read(strings.NewReader(in), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Sell", entries[1].Operation)
}

func TestWriterConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.jsonl")
	w, err := NewWriter(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Append(Entry{Operation: "Hold", Result: "hold"}))
		}()
	}
	wg.Wait()

	entries, err := ReadFile(path, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// StaticProvider serves snapshots set by the caller. It backs paper trading
// without a data feed and tests.
type StaticProvider struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewStaticProvider seeds a provider with last prices per symbol.
func NewStaticProvider(prices map[string]float64) *StaticProvider {
	p := &StaticProvider{snapshots: make(map[string]Snapshot, len(prices))}
	for sym, price := range prices {
		p.Set(Snapshot{Symbol: sym, Price: price, MarkPrice: price})
	}
	return p
}

// Set stores or replaces the snapshot for snap.Symbol.
func (p *StaticProvider) Set(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap.Symbol = strings.ToUpper(strings.TrimSpace(snap.Symbol))
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}
	p.snapshots[snap.Symbol] = snap
}

func (p *StaticProvider) Snapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap, ok := p.snapshots[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return nil, fmt.Errorf("market static: no snapshot for %s", symbol)
	}
	return &snap, nil
}

func init() {
	RegisterProvider("static", func(name string, cfg *ProviderConfig) (Provider, error) {
		return NewStaticProvider(cfg.Prices), nil
	})
}

package manager

import (
	"context"
	"fmt"
	"time"

	"probsbots/pkg/exchange"
)

// Guard answers whether the venue already holds a position for a symbol. It
// reads fresh state on every call and takes no lock, so two concurrent
// entries can still race past it.
type Guard struct {
	provider exchange.Provider
	timeout  time.Duration
}

// NewGuard constructs a guard reading from provider. timeout <= 0 uses the
// caller's context deadline only.
func NewGuard(provider exchange.Provider, timeout time.Duration) *Guard {
	return &Guard{provider: provider, timeout: timeout}
}

// HasOpenPosition reports whether symbol has a live position with non-zero
// contracts. Read failures wrap exchange.ErrTransient.
func (g *Guard) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	sym := exchange.NormalizeSymbol(symbol)
	callCtx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	positions, err := g.provider.FetchPositions(callCtx, sym)
	if err != nil {
		return false, fmt.Errorf("manager: read positions for %s: %w: %w", sym, exchange.ErrTransient, err)
	}
	_, ok := findPosition(positions, sym)
	return ok, nil
}

func findPosition(positions []exchange.Position, symbol string) (exchange.Position, bool) {
	for _, p := range positions {
		if exchange.NormalizeSymbol(p.Symbol) == symbol && p.Contracts > 0 {
			return p, true
		}
	}
	return exchange.Position{}, false
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

package exchange

import (
	"context"
	"time"
)

// Provider exposes the trading operations the engine needs from a
// derivatives venue. Symbols are base coins ("BTC"); adapters map them to the
// venue's instrument names.
type Provider interface {
	// FetchPositions returns live positions, optionally filtered by symbol.
	// Flat entries are omitted.
	FetchPositions(ctx context.Context, symbols ...string) ([]Position, error)
	FetchBalance(ctx context.Context) (*Balance, error)
	// SetLeverage returns an error wrapping ErrLeverageNotModified when the
	// venue already runs the requested leverage.
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// FetchPositionsHistory returns closed-position entries newest first.
	FetchPositionsHistory(ctx context.Context, symbol string, since time.Time, limit int) ([]HistoryEntry, error)
}

// InstrumentProvider is implemented by venues that publish lot and tick sizes.
type InstrumentProvider interface {
	Instrument(ctx context.Context, symbol string) (*Instrument, error)
}

package ledger

import (
	"context"
	"time"
)

// Store is the durable record of position lifecycles and decision cycles.
//
// Close must be conditional on the record still being open and return
// ErrNotOpen otherwise, so concurrent or repeated reconciliation passes never
// overwrite a closure.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	ListOpen(ctx context.Context) ([]Record, error)
	// ListClosed returns closed records newest first.
	ListClosed(ctx context.Context, filter ClosedFilter) ([]Record, error)
	Close(ctx context.Context, id string, closure Closure) error
	// UpdateProtection and ConfirmFill only touch open records and return
	// ErrNotOpen otherwise.
	UpdateProtection(ctx context.Context, id string, protection Protection) error
	// ConfirmFill replaces the entry price and size with the venue's and
	// clears FillPending.
	ConfirmFill(ctx context.Context, id string, fill Fill) error

	RecordCycle(ctx context.Context, cycle *Cycle) error
	RecordAccountSample(ctx context.Context, sample AccountSample) error
	// AccountSamples returns samples taken at or after since, oldest first.
	AccountSamples(ctx context.Context, since time.Time) ([]AccountSample, error)
}

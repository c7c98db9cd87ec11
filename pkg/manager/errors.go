package manager

import "errors"

var (
	// ErrGuardSkip means the cycle stopped because a position is already open.
	ErrGuardSkip = errors.New("manager: position already open")
	// ErrEntryOrder means the venue did not accept the entry order; nothing
	// was opened and no record is written.
	ErrEntryOrder = errors.New("manager: entry order failed")
	// ErrProtectiveOrder marks a stop-loss or take-profit the venue did not
	// accept. The entry stays open.
	ErrProtectiveOrder = errors.New("manager: protective order failed")
	// ErrPositionUntracked means the entry was accepted but its position
	// record could not be written, so the reconciler cannot see it.
	ErrPositionUntracked = errors.New("manager: position untracked")
)

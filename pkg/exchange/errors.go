package exchange

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrTransient marks failures worth retrying on a later cycle: timeouts,
	// rate limits, venue-side 5xx.
	ErrTransient = errors.New("exchange: transient failure")
	// ErrLeverageNotModified is returned by SetLeverage when nothing changed.
	ErrLeverageNotModified = errors.New("exchange: leverage not modified")
	// ErrRejected marks a request the venue refused.
	ErrRejected = errors.New("exchange: request rejected")
)

// IsTransient reports whether err is a retryable exchange failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

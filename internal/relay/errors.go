package relay

import "codeberg.org/mutker/inputrate/internal/errors"

const (
	ErrInvalidCapacity = errors.ErrInvalidCapacity
	ErrStopFailed      = errors.ErrorCode("relay_stop_failed")
)

var (
	// ErrClosed is returned by Send once the relay has been stopped.
	ErrClosed = errors.New().New(errors.ErrChannelClosed)

	// ErrBroken is matched by the error Send returns after the relay
	// goroutine gave up on a failed transport.
	ErrBroken = errors.New().New(errors.ErrChannelBroken)
)

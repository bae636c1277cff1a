package channel

import (
	"fmt"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/event"
)

const (
	ErrCreateFailed    = errors.ErrorCode("channel_create_failed")
	ErrInvalidHandle   = errors.ErrorCode("channel_invalid_handle")
	ErrTransferred     = errors.ErrorCode("channel_handle_transferred")
	ErrAlreadyAdopted  = errors.ErrorCode("channel_handle_already_adopted")
	ErrTransferFailed  = errors.ErrorCode("channel_transfer_failed")
	ErrShortRecord     = errors.ErrorCode("channel_short_record")
	ErrInvalidCapacity = errors.ErrInvalidCapacity
)

// SendError reports a failed Send and hands the unsent value back to the
// caller.
type SendError struct {
	Value event.Timestamp
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %v: %v", e.Value, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

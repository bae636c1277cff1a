package supervisor

import "codeberg.org/mutker/inputrate/internal/errors"

const (
	ErrInvalidArgs = errors.ErrorCode("supervisor_invalid_args")
	ErrSpawnFailed = errors.ErrSpawnFailed
	ErrStopFailed  = errors.ErrorCode("supervisor_stop_failed")
)

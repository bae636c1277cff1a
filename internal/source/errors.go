package source

import "codeberg.org/mutker/inputrate/internal/errors"

const (
	ErrInitFailed     = errors.ErrInitFailed
	ErrUnsupported    = errors.ErrUnsupported
	ErrRegisterFailed = errors.ErrorCode("source_register_failed")
	ErrSurfaceFailed  = errors.ErrorCode("source_surface_failed")
	ErrSinkFailed     = errors.ErrorCode("source_sink_failed")
	ErrAlreadyStarted = errors.ErrorCode("source_already_started")
	ErrNoSink         = errors.ErrorCode("source_no_sink")
)

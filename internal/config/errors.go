package config

import "codeberg.org/mutker/inputrate/internal/errors"

const (
	ErrInvalidConfig   = errors.ErrInvalidConfig
	ErrReadConfig      = errors.ErrReadConfig
	ErrBindFlags       = errors.ErrBindFlags
	ErrInvalidInterval = errors.ErrInvalidInterval
	ErrInvalidCapacity = errors.ErrInvalidCapacity
	ErrInvalidMode     = errors.ErrInvalidMode
	ErrInvalidDevice   = errors.ErrInvalidDevice
	ErrInvalidLogLevel = errors.ErrInvalidLogLevel
	ErrNoListener      = errors.ErrorCode("config_no_listener")
)

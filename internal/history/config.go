package history

import (
	"strings"
	"time"

	"codeberg.org/mutker/inputrate/internal/errors"
	"github.com/benbjohnson/clock"
)

// Mode selects what the aggregator records.
type Mode string

const (
	ModeRate     Mode = "rate"
	ModeInterval Mode = "interval"
	ModeOff      Mode = "off"
)

// Backend selects where entries are kept.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
)

const (
	defaultCapacity      = 1024 * 1024
	defaultBatchSize     = 256
	defaultFlushInterval = time.Second
)

type Config struct {
	Mode    Mode
	Backend Backend
	// Capacity is reserved up front; the log grows past it if needed.
	Capacity int
	// BatchSize and FlushInterval control buffering of the sqlite backend.
	BatchSize     int
	FlushInterval time.Duration
	// Session tags every row of the sqlite backend.
	Session string
	Clock   clock.Clock
}

func DefaultConfig() Config {
	return Config{
		Mode:          ModeRate,
		Backend:       BackendMemory,
		Capacity:      defaultCapacity,
		BatchSize:     defaultBatchSize,
		FlushInterval: defaultFlushInterval,
	}
}

// ParseMode maps a configured mode name onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeRate, ModeInterval, ModeOff:
		return m, nil
	default:
		return "", errors.New().WithData(ErrInvalidMode, s)
	}
}

// ParseBackend maps a configured backend name onto a Backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendMemory, BackendSQLite:
		return b, nil
	default:
		return "", errors.New().WithData(ErrInvalidBackend, s)
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Mode == ModeOff {
		return nil
	}
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if c.Capacity < 0 {
		return errFactory.WithData(errors.ErrInvalidCapacity, c.Capacity)
	}
	if c.Backend == BackendSQLite && (c.BatchSize <= 0 || c.FlushInterval <= 0) {
		return errFactory.WithData(ErrInvalidConfig, struct {
			BatchSize     int
			FlushInterval time.Duration
		}{c.BatchSize, c.FlushInterval})
	}

	return nil
}

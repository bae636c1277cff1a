package history

import (
	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/logger"
)

// New opens the Log selected by cfg. ModeOff yields a Log that keeps
// nothing.
func New(cfg Config, log logger.Logger) (Log, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	switch {
	case cfg.Mode == ModeOff:
		log.Debug().Msg("History disabled, using no-op log")
		return noopLog{}, nil
	case cfg.Backend == BackendSQLite:
		return NewRepository(cfg, log)
	default:
		log.Debug().Int("capacity", cfg.Capacity).Msg("History kept in memory")
		return NewMemory(cfg.Capacity), nil
	}
}

package history

import (
	"database/sql"
	"sync"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/event"
	"codeberg.org/mutker/inputrate/internal/logger"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// repository keeps samples in a private in-memory sqlite database that is
// discarded on Close. Appends are buffered and written in batches.
type repository struct {
	db      *sql.DB
	logger  logger.Logger
	cfg     Config
	mu      sync.Mutex
	buffer  []Sample
	count   int
	closed  bool
	ticker  *clock.Ticker
	stop    chan struct{}
	stopped chan struct{}
}

// NewRepository opens the sqlite backend.
func NewRepository(cfg Config, log logger.Logger) (Log, error) {
	errFactory := errors.New()

	if cfg.Session == "" {
		cfg.Session = uuid.NewString()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	// A named shared-cache memory database lives as long as one connection
	// to it stays open.
	dsn := "file:history-" + cfg.Session + "?mode=memory&cache=shared"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema",
			Error: err.Error(),
		})
	}

	if err := validateSchema(db); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("session", cfg.Session).
		Str("mode", string(cfg.Mode)).
		Int("batch_size", cfg.BatchSize).
		Dur("flush_interval", cfg.FlushInterval).
		Msg("History repository initialized")

	repo := &repository{
		db:      db,
		logger:  log,
		cfg:     cfg,
		buffer:  make([]Sample, 0, cfg.BatchSize),
		ticker:  cfg.Clock.Ticker(cfg.FlushInterval),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go repo.flusher()

	return repo, nil
}

func (r *repository) Append(s Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New().New(ErrClosed)
	}

	r.buffer = append(r.buffer, s)
	r.count++

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *repository) Samples() ([]Sample, error) {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errFactory.New(ErrClosed)
	}
	if err := r.flush(); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(selectSamplesSQL, r.cfg.Session)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	samples := make([]Sample, 0, r.count)
	for rows.Next() {
		var (
			takenAt   int64
			value     float64
			saturated int
		)
		if err := rows.Scan(&takenAt, &value, &saturated); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		samples = append(samples, Sample{
			Time:      event.Timestamp(takenAt),
			Value:     value,
			Saturated: saturated == 1,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return samples, nil
}

func (r *repository) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	// Signal the flusher goroutine to stop and wait for its final flush
	close(r.stop)
	r.ticker.Stop()
	<-r.stopped

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Debug().Int("samples", r.count).Msg("History repository closed")

	return nil
}

func (r *repository) flusher() {
	defer close(r.stopped)

	for {
		select {
		case <-r.ticker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic history flush failed")
			}
			r.mu.Unlock()
		case <-r.stop:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Final history flush failed")
			}
			r.mu.Unlock()
			return
		}
	}
}

// flush writes the buffer in one transaction. Callers hold r.mu.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertSampleSQL)
	if err != nil {
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, s := range r.buffer {
		if _, err := stmt.Exec(r.cfg.Session, string(r.cfg.Mode), int64(s.Time), s.Value, boolToInt(s.Saturated)); err != nil {
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed history to database")
	r.buffer = r.buffer[:0]

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

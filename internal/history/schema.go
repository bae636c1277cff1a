package history

import (
	"database/sql"

	"codeberg.org/mutker/inputrate/internal/errors"
	"codeberg.org/mutker/inputrate/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS samples (
	       seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	       session    TEXT NOT NULL,
	       mode       TEXT NOT NULL CHECK (mode IN ('rate', 'interval')),
	       taken_at   INTEGER NOT NULL CHECK (typeof(taken_at) = 'integer'),
	       value      REAL NOT NULL,
	       saturated  INTEGER NOT NULL CHECK (saturated IN (0, 1))
	   );`

	insertSampleSQL = `
    INSERT INTO samples (
        session, mode, taken_at, value, saturated
    ) VALUES (?, ?, ?, ?, ?)`

	selectSamplesSQL = `
    SELECT taken_at, value, saturated
    FROM samples
    WHERE session = ?
    ORDER BY seq`
)

// initSchema creates the schema and records its version.
func initSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT OR IGNORE INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Debug().Int("version", SchemaVersion).Msg("Schema initialized")

	return nil
}

// validateSchema checks that the database holds the tables and the schema
// version this package writes.
func validateSchema(db *sql.DB) error {
	errFactory := errors.New()

	for _, table := range []string{"schema_versions", "samples"} {
		exists, err := tableExists(db, table)
		if err != nil {
			return err
		}
		if !exists {
			return errFactory.WithData(ErrSchemaValidationFailed, struct {
				Phase string
				Table string
			}{
				Phase: "missing_table",
				Table: table,
			})
		}
	}

	version, err := schemaVersion(db)
	if err != nil {
		return err
	}
	if version != SchemaVersion {
		return errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Found int
			Want  int
		}{
			Phase: "version_mismatch",
			Found: version,
			Want:  SchemaVersion,
		})
	}

	return nil
}

// schemaVersion returns the highest recorded schema version, or 0 for an
// empty database.
func schemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := tableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func tableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}

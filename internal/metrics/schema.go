package metrics

import (
	"database/sql"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS sessions (
	       id          TEXT PRIMARY KEY,
	       started_at  INTEGER NOT NULL,
	       model       TEXT NOT NULL,
	       backend     TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS snapshots (
	       id               INTEGER PRIMARY KEY AUTOINCREMENT,
	       session_id       TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	       timestamp        INTEGER NOT NULL,
	       cpu_temp         INTEGER,
	       cpu_temp_avg     INTEGER,
	       gpu_temp         INTEGER,
	       gpu_temp_avg     INTEGER,
	       cpu_fan_percent  INTEGER,
	       cpu_fan_rpm      INTEGER,
	       gpu_fan_percent  INTEGER,
	       gpu_fan_rpm      INTEGER,
	       fan_mode         TEXT,
	       cooler_boost     INTEGER CHECK (cooler_boost IN (0, 1)),
	       shift_mode       INTEGER CHECK (shift_mode BETWEEN 0 AND 255),
	       super_battery    INTEGER CHECK (super_battery IN (0, 1)),
	       scenario         TEXT NOT NULL,
	       missing          TEXT NOT NULL DEFAULT ''
	   );
	   CREATE INDEX IF NOT EXISTS snapshots_session_time ON snapshots (session_id, timestamp);
	   CREATE TABLE IF NOT EXISTS host_readings (
	       snapshot_id  INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	       source       TEXT NOT NULL,
	       label        TEXT NOT NULL,
	       celsius      REAL NOT NULL
	   );`

	insertSessionSQL = `
    INSERT INTO sessions (id, started_at, model, backend)
    VALUES (?, ?, ?, ?)`

	insertSnapshotSQL = `
    INSERT INTO snapshots (
        session_id, timestamp,
        cpu_temp, cpu_temp_avg, gpu_temp, gpu_temp_avg,
        cpu_fan_percent, cpu_fan_rpm, gpu_fan_percent, gpu_fan_rpm,
        fan_mode, cooler_boost, shift_mode, super_battery,
        scenario, missing
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertHostReadingSQL = `
    INSERT INTO host_readings (snapshot_id, source, label, celsius)
    VALUES (?, ?, ?, ?)`
)

// tables lists every table, dependents first.
var tables = []string{"host_readings", "snapshots", "sessions", "schema_versions"}

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
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
        INSERT INTO schema_versions (version, applied_at)
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

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
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

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
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

package metrics

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/logger"
	"codeberg.org/mutker/ecctl/internal/monitor"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type pending struct {
	session  uuid.UUID
	snapshot *monitor.Snapshot
}

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []pending
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_foreign_keys=1"
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

	if err := ValidateAndUpdateSchema(db, cfg, log); err != nil {
		db.Close()
		return nil, errFactory.WrapWithData(ErrStorageInit, err, struct {
			Phase string
		}{
			Phase: "schema_version",
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Int("batch_timeout", cfg.BatchTimeout).
		Msg("Metrics repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]pending, 0, max(cfg.BatchSize, 1)),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchSize > 1 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) OpenSession(s Session) error {
	if _, err := r.db.Exec(insertSessionSQL, s.ID.String(), time.Now().UTC().UnixMilli(), s.Model, s.Backend); err != nil {
		return errors.New().WrapWithData(ErrTransactionFailed, err, s.ID.String())
	}

	r.logger.Debug().Str("session", s.ID.String()).Msg("Metrics session opened")

	return nil
}

func (r *repository) Record(session uuid.UUID, snapshot *monitor.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, pending{session: session, snapshot: snapshot})

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.flush()
}

func (r *repository) Close() error {
	var closeErr error

	r.closeOnce.Do(func() {
		close(r.shutdownChan)
		if r.flushTicker != nil {
			r.flushTicker.Stop()
		}

		// Wait for the flusher to finish its final flush
		<-r.flushDoneChan

		if err := r.Flush(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to flush pending snapshots")
		}

		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "checkpoint_wal",
				Error: err.Error(),
			})
			r.db.Close()
			return
		}

		if err := r.db.Close(); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "close_database",
				Error: err.Error(),
			})
			return
		}

		r.logger.Info().Msg("Metrics repository closed gracefully")
	})

	return closeErr
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	rollback := func(err error) error {
		r.logger.Error().Err(err).Msg("Failed to write snapshots")
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	snapStmt, err := tx.Prepare(insertSnapshotSQL)
	if err != nil {
		return rollback(err)
	}
	defer snapStmt.Close()

	hostStmt, err := tx.Prepare(insertHostReadingSQL)
	if err != nil {
		return rollback(err)
	}
	defer hostStmt.Close()

	for _, p := range r.buffer {
		res, err := snapStmt.Exec(snapshotValues(p.session, p.snapshot)...)
		if err != nil {
			return rollback(err)
		}

		if len(p.snapshot.Host) == 0 {
			continue
		}

		id, err := res.LastInsertId()
		if err != nil {
			return rollback(err)
		}
		for _, h := range p.snapshot.Host {
			if _, err := hostStmt.Exec(id, h.Source, h.Label, h.Celsius); err != nil {
				return rollback(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed snapshots to database")
	r.buffer = r.buffer[:0]

	return nil
}

func snapshotValues(session uuid.UUID, s *monitor.Snapshot) []any {
	missing := make([]string, 0, len(s.Missing))
	for _, tag := range s.Missing {
		missing = append(missing, string(tag))
	}

	return []any{
		session.String(),
		s.Time.UnixMilli(),
		nullInt(s.CPUTemp),
		nullInt(s.CPUTempAvg),
		nullInt(s.GPUTemp),
		nullInt(s.GPUTempAvg),
		nullInt(s.CPUFan.Percent),
		nullInt(s.CPUFan.RPM),
		nullInt(s.GPUFan.Percent),
		nullInt(s.GPUFan.RPM),
		nullString(s.Mode),
		nullBool(s.CoolerBoost),
		nullByte(s.ShiftMode),
		nullBool(s.SuperBattery),
		string(s.Scenario),
		strings.Join(missing, ","),
	}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullByte(v *byte) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullBool(v *bool) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(boolToInt(*v)), Valid: true}
}

func nullString[T ~string](v *T) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}

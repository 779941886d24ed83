package metrics

import (
	"context"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/logger"
	"codeberg.org/mutker/ecctl/internal/monitor"
	"github.com/google/uuid"
)

type service struct {
	repo    Repository
	cfg     Config
	session uuid.UUID
}

type noopCollector struct {
	session uuid.UUID
}

// NewService opens the metrics database and starts a session. A disabled
// config yields a collector that discards snapshots.
func NewService(cfg Config, model, backend string, log logger.Logger) (Collector, error) {
	errFactory := errors.New()

	if log == nil {
		log = logger.Nop()
	}
	log = log.With("metrics")

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Metrics collection disabled, using no-op collector")
		return &noopCollector{session: uuid.New()}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create metrics repository")
		return nil, err
	}

	return newService(repo, cfg, Session{ID: uuid.New(), Model: model, Backend: backend}, log)
}

func newService(repo Repository, cfg Config, session Session, log logger.Logger) (Collector, error) {
	if err := repo.OpenSession(session); err != nil {
		repo.Close()
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Str("session", session.ID.String()).
		Msg("Metrics service initialized successfully")

	return &service{repo: repo, cfg: cfg, session: session.ID}, nil
}

func (s *service) Record(ctx context.Context, snapshot *monitor.Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidMetrics)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(s.session, snapshot); err != nil {
			return errFactory.Wrap(ErrMetricsCollection, err)
		}
	}

	return nil
}

func (s *service) Session() uuid.UUID {
	return s.session
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}

func (*noopCollector) Record(context.Context, *monitor.Snapshot) error {
	return nil
}

func (n *noopCollector) Session() uuid.UUID {
	return n.session
}

func (*noopCollector) Close() error {
	return nil
}

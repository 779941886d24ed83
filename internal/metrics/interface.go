package metrics

import (
	"context"

	"codeberg.org/mutker/ecctl/internal/monitor"
	"github.com/google/uuid"
)

// Collector records monitor snapshots for one session.
type Collector interface {
	Record(ctx context.Context, snapshot *monitor.Snapshot) error
	Session() uuid.UUID
	Close() error
}

// Repository stores snapshots.
type Repository interface {
	OpenSession(session Session) error
	Record(session uuid.UUID, snapshot *monitor.Snapshot) error
	Flush() error
	Close() error
}

// Session identifies one monitoring run.
type Session struct {
	ID      uuid.UUID
	Model   string
	Backend string
}

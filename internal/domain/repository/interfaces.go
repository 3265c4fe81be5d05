package repository

import (
	"context"
	"time"

	"Pattas/internal/domain/models"
)

// SnapshotStore reads the screening database. Read-only.
type SnapshotStore interface {
	// LatestDate returns the most recent signal date; ok is false when the
	// signal table is empty.
	LatestDate(ctx context.Context) (date string, ok bool, err error)
	// Rows returns one row per ticker for date, ordered by sector then
	// company name.
	Rows(ctx context.Context, date string) ([]models.TickerSnapshot, error)
	Close() error
}

// NewsSource loads the side-loaded ticker -> headlines map.
type NewsSource interface {
	Load(ctx context.Context) (models.NewsIndex, error)
}

// RunStore keeps run history.
type RunStore interface {
	Save(ctx context.Context, run *models.Run) error
	Recent(ctx context.Context, limit int) ([]models.Run, error)
}

// RunEventPublisher emits run lifecycle events.
type RunEventPublisher interface {
	Publish(ctx context.Context, event models.RunEvent) error
}

// RunLock serializes analysis runs across requests and instances.
type RunLock interface {
	Acquire(ctx context.Context, owner string) (bool, error)
	Refresh(ctx context.Context, owner string) (bool, error)
	Release(ctx context.Context, owner string) error
	Held(ctx context.Context) (bool, error)
}

// LastRunStore remembers the most recent finished run.
type LastRunStore interface {
	SaveLast(ctx context.Context, run *models.Run) error
	Last(ctx context.Context) (*models.Run, error)
}

type Metrics interface {
	RecordRun(trigger, result string, d time.Duration)
	RunStarted()
	RunFinished()
	RecordOutput(channel string, bytes int64, chunks int)
	RecordSnapshotRead(result string, rows int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

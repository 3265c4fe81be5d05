package service

import (
	"context"

	"Pattas/internal/domain/models"
	"Pattas/internal/stream"
)

// Analysis triggers and tracks runs of the external analysis command.
type Analysis interface {
	// Trigger runs the command once, streaming its output into sink. It
	// returns after the stream has been terminated.
	Trigger(ctx context.Context, trigger models.Trigger, sink stream.Sink) (*models.Run, error)
	Status(ctx context.Context) (models.RunStatus, error)
	Recent(ctx context.Context, limit int) ([]models.Run, error)
}

// Snapshot serves the latest screening results.
type Snapshot interface {
	Latest(ctx context.Context) (*models.Snapshot, error)
	Table(ctx context.Context, sortKey, order string) (*models.SnapshotTable, error)
}

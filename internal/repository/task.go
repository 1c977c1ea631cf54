package repository

import (
	"context"
	"time"

	"github.com/oncallsupport/rotator/internal/domain"
)

type TaskRepository interface {
	// Put inserts or overwrites a task; the deterministic key makes
	// re-issuing an identical command idempotent.
	Put(ctx context.Context, t *domain.Task) error
	// UpdateOccurrence advances a task's next occurrence. It must fail
	// with domain.ErrTaskNotFound when the key does not already exist,
	// so a concurrently deleted task is never resurrected.
	UpdateOccurrence(ctx context.Context, team, taskID string, nextUnix int64, nextLocal string, updatedAt time.Time) error
	ScanAll(ctx context.Context) ([]*domain.Task, error)
	ListByTeam(ctx context.Context, team string) ([]*domain.Task, error)
	Delete(ctx context.Context, team, taskID string) error
}

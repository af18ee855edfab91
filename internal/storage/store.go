// Package storage provides persistence for protocol entries and runs.
//
// Two implementations exist: DB, backed by PostgreSQL through pgxpool, and
// Memory, an in-process store used by tests and single-user dev setups.
// Both enforce the same lifecycle rule at the data layer: a run row stops
// accepting interaction-state writes the moment its status leaves
// IN_PROGRESS.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/benchbook/benchbook/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrRunCompleted is returned when a write targets a run that has already
// ended. Completed runs are immutable; callers map this to a conflict.
var ErrRunCompleted = errors.New("storage: run already completed")

// Store is the persistence surface the HTTP layer and sessions talk to.
type Store interface {
	CreateEntry(ctx context.Context, entry model.Entry) (model.Entry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (model.Entry, error)
	ListEntries(ctx context.Context, limit, offset int) ([]model.Entry, int, error)
	UpdateEntry(ctx context.Context, id uuid.UUID, req model.UpdateEntryRequest) (model.Entry, error)

	// CreateRun clones the source entry's body into a new IN_PROGRESS run
	// owned by runnerID, titled "<entry title> - Run <n>" where n counts
	// prior runs of that entry plus one.
	CreateRun(ctx context.Context, sourceEntryID uuid.UUID, runnerID string) (model.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (model.Run, error)
	// ListRuns returns runs newest-first. An empty runnerID lists every
	// run; otherwise results are scoped to that runner.
	ListRuns(ctx context.Context, runnerID string, limit, offset int) ([]model.Run, int, error)
	// UpdateRun applies a patch to an IN_PROGRESS run. Patching a run
	// that exists but has completed returns ErrRunCompleted.
	UpdateRun(ctx context.Context, id uuid.UUID, patch model.RunPatch) (model.Run, error)
}

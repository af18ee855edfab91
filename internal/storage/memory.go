package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benchbook/benchbook/internal/model"
)

// Memory is an in-process Store used by tests and single-user dev mode.
// All methods copy on the way in and out, so callers never share state
// with the store's internals.
type Memory struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]model.Entry
	runs    map[uuid.UUID]model.Run
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[uuid.UUID]model.Entry),
		runs:    make(map[uuid.UUID]model.Run),
		now:     time.Now,
	}
}

// SetClock overrides the store's clock. Test use only.
func (m *Memory) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Memory) CreateEntry(_ context.Context, entry model.Entry) (model.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	now := m.now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	m.entries[entry.ID] = entry
	return entry, nil
}

func (m *Memory) GetEntry(_ context.Context, id uuid.UUID) (model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return model.Entry{}, ErrNotFound
	}
	return entry, nil
}

func (m *Memory) ListEntries(_ context.Context, limit, offset int) ([]model.Entry, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]model.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return page(entries, limit, offset), len(entries), nil
}

func (m *Memory) UpdateEntry(_ context.Context, id uuid.UUID, req model.UpdateEntryRequest) (model.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return model.Entry{}, ErrNotFound
	}
	if req.Title != nil {
		entry.Title = *req.Title
	}
	if req.Description != nil {
		entry.Description = *req.Description
	}
	if req.Technique != nil {
		entry.Technique = *req.Technique
	}
	if req.Body != nil {
		entry.Body = *req.Body
	}
	entry.UpdatedAt = m.now().UTC()
	m.entries[id] = entry
	return entry, nil
}

func (m *Memory) CreateRun(_ context.Context, sourceEntryID uuid.UUID, runnerID string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[sourceEntryID]
	if !ok {
		return model.Run{}, ErrNotFound
	}

	prior := 0
	for _, r := range m.runs {
		if r.SourceEntryID == sourceEntryID {
			prior++
		}
	}

	now := m.now().UTC()
	run := model.Run{
		ID:               uuid.New(),
		Title:            fmt.Sprintf("%s - Run %d", entry.Title, prior+1),
		Status:           model.RunStatusInProgress,
		Locked:           true, // the cloned body accepts no further protocol edits
		RunBody:          entry.Body,
		InteractionState: "{}",
		SourceEntryID:    sourceEntryID,
		RunnerID:         runnerID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m.runs[run.ID] = run
	return run, nil
}

func (m *Memory) GetRun(_ context.Context, id uuid.UUID) (model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return model.Run{}, ErrNotFound
	}
	return m.withSummary(run), nil
}

func (m *Memory) ListRuns(_ context.Context, runnerID string, limit, offset int) ([]model.Run, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var runs []model.Run
	for _, r := range m.runs {
		if runnerID != "" && r.RunnerID != runnerID {
			continue
		}
		runs = append(runs, m.withSummary(r))
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return page(runs, limit, offset), len(runs), nil
}

func (m *Memory) UpdateRun(_ context.Context, id uuid.UUID, patch model.RunPatch) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return model.Run{}, ErrNotFound
	}
	// An empty patch is a read, regardless of status.
	if patch.Empty() {
		return m.withSummary(run), nil
	}
	if run.Status != model.RunStatusInProgress {
		return model.Run{}, ErrRunCompleted
	}
	if patch.InteractionState != nil {
		run.InteractionState = *patch.InteractionState
	}
	if patch.Notes != nil {
		run.Notes = *patch.Notes
	}
	if patch.Status != nil {
		run.Status = *patch.Status
		if run.Status == model.RunStatusCompleted {
			run.Locked = true
		}
	}
	run.UpdatedAt = m.now().UTC()
	m.runs[id] = run
	return m.withSummary(run), nil
}

// withSummary attaches the source-entry summary. Callers hold m.mu.
func (m *Memory) withSummary(run model.Run) model.Run {
	if entry, ok := m.entries[run.SourceEntryID]; ok {
		run.SourceEntry = &model.EntrySummary{
			ID:        entry.ID,
			Title:     entry.Title,
			Technique: entry.Technique,
			AuthorID:  entry.AuthorID,
		}
	}
	return run
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 50
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/benchbook/benchbook/internal/model"
)

const runColumns = `r.id, r.title, r.status, r.locked, r.run_body, r.notes,
	r.interaction_state, r.source_entry_id, r.runner_id, r.created_at, r.updated_at,
	e.id, e.title, e.technique, e.author_id`

// CreateRun clones the source entry into a new IN_PROGRESS run. The clone
// is taken inside a transaction so the run number and the body snapshot
// come from the same view of the entry.
func (db *DB) CreateRun(ctx context.Context, sourceEntryID uuid.UUID, runnerID string) (model.Run, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: begin create run: %w", err)
	}
	defer tx.Rollback(ctx)

	var entry model.Entry
	err = tx.QueryRow(ctx,
		`SELECT id, title, body FROM entries WHERE id = $1`, sourceEntryID,
	).Scan(&entry.ID, &entry.Title, &entry.Body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Run{}, ErrNotFound
		}
		return model.Run{}, fmt.Errorf("storage: load source entry: %w", err)
	}

	var prior int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM protocol_runs WHERE source_entry_id = $1`, sourceEntryID,
	).Scan(&prior); err != nil {
		return model.Run{}, fmt.Errorf("storage: count prior runs: %w", err)
	}

	now := time.Now().UTC()
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

	_, err = tx.Exec(ctx,
		`INSERT INTO protocol_runs (id, title, status, locked, run_body, notes, interaction_state,
			source_entry_id, runner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.Title, string(run.Status), run.Locked, run.RunBody, run.Notes,
		run.InteractionState, run.SourceEntryID, run.RunnerID, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: create run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Run{}, fmt.Errorf("storage: commit create run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID with its source-entry summary attached.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (model.Run, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+runColumns+`
		 FROM protocol_runs r
		 JOIN entries e ON e.id = r.source_entry_id
		 WHERE r.id = $1`, id,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Run{}, ErrNotFound
		}
		return model.Run{}, fmt.Errorf("storage: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest-first, optionally scoped to one runner.
func (db *DB) ListRuns(ctx context.Context, runnerID string, limit, offset int) ([]model.Run, int, error) {
	if limit <= 0 {
		limit = 50
	}

	where := ``
	countArgs := []any{}
	listArgs := []any{limit, offset}
	if runnerID != "" {
		where = ` WHERE r.runner_id = $1`
		countArgs = []any{runnerID}
		listArgs = []any{runnerID, limit, offset}
	}

	var total int
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM protocol_runs r`+where, countArgs...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count runs: %w", err)
	}

	limitPos := len(countArgs) + 1
	rows, err := db.pool.Query(ctx,
		fmt.Sprintf(`SELECT `+runColumns+`
			 FROM protocol_runs r
			 JOIN entries e ON e.id = r.source_entry_id
			 %s
			 ORDER BY r.created_at DESC
			 LIMIT $%d OFFSET $%d`, where, limitPos, limitPos+1),
		listArgs...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("storage: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// UpdateRun applies a patch to an IN_PROGRESS run. The status guard is in
// the WHERE clause so a run that completed between read and write loses
// the race at the database rather than silently overwriting.
func (db *DB) UpdateRun(ctx context.Context, id uuid.UUID, patch model.RunPatch) (model.Run, error) {
	if patch.Empty() {
		return db.GetRun(ctx, id)
	}

	var status *string
	locked := false
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
		locked = *patch.Status == model.RunStatusCompleted
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE protocol_runs SET
			interaction_state = COALESCE($1, interaction_state),
			notes             = COALESCE($2, notes),
			status            = COALESCE($3, status),
			locked            = locked OR $4,
			updated_at        = now()
		 WHERE id = $5 AND status = 'IN_PROGRESS'`,
		patch.InteractionState, patch.Notes, status, locked, id,
	)
	if err != nil {
		return model.Run{}, fmt.Errorf("storage: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing run from a completed one.
		var existing string
		err := db.pool.QueryRow(ctx,
			`SELECT status FROM protocol_runs WHERE id = $1`, id,
		).Scan(&existing)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Run{}, ErrNotFound
		}
		if err != nil {
			return model.Run{}, fmt.Errorf("storage: check run status: %w", err)
		}
		return model.Run{}, ErrRunCompleted
	}
	return db.GetRun(ctx, id)
}

func scanRun(row pgx.Row) (model.Run, error) {
	var run model.Run
	var summary model.EntrySummary
	err := row.Scan(
		&run.ID, &run.Title, &run.Status, &run.Locked, &run.RunBody, &run.Notes,
		&run.InteractionState, &run.SourceEntryID, &run.RunnerID, &run.CreatedAt, &run.UpdatedAt,
		&summary.ID, &summary.Title, &summary.Technique, &summary.AuthorID,
	)
	if err != nil {
		return model.Run{}, err
	}
	run.SourceEntry = &summary
	return run, nil
}

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

// CreateEntry inserts a new protocol entry and returns it.
func (db *DB) CreateEntry(ctx context.Context, entry model.Entry) (model.Entry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO entries (id, title, description, technique, body, author_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.Title, entry.Description, entry.Technique,
		entry.Body, entry.AuthorID, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return model.Entry{}, fmt.Errorf("storage: create entry: %w", err)
	}
	return entry, nil
}

// GetEntry retrieves an entry by ID.
func (db *DB) GetEntry(ctx context.Context, id uuid.UUID) (model.Entry, error) {
	var e model.Entry
	err := db.pool.QueryRow(ctx,
		`SELECT id, title, description, technique, body, author_id, created_at, updated_at
		 FROM entries WHERE id = $1`, id,
	).Scan(
		&e.ID, &e.Title, &e.Description, &e.Technique,
		&e.Body, &e.AuthorID, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Entry{}, ErrNotFound
		}
		return model.Entry{}, fmt.Errorf("storage: get entry: %w", err)
	}
	return e, nil
}

// ListEntries returns entries ordered by creation time descending.
func (db *DB) ListEntries(ctx context.Context, limit, offset int) ([]model.Entry, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entries`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count entries: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, title, description, technique, body, author_id, created_at, updated_at
		 FROM entries
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list entries: %w", err)
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Description, &e.Technique,
			&e.Body, &e.AuthorID, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("storage: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// UpdateEntry applies non-nil fields of the request to an entry.
func (db *DB) UpdateEntry(ctx context.Context, id uuid.UUID, req model.UpdateEntryRequest) (model.Entry, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE entries SET
			title       = COALESCE($1, title),
			description = COALESCE($2, description),
			technique   = COALESCE($3, technique),
			body        = COALESCE($4, body),
			updated_at  = now()
		 WHERE id = $5`,
		req.Title, req.Description, req.Technique, req.Body, id,
	)
	if err != nil {
		return model.Entry{}, fmt.Errorf("storage: update entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Entry{}, ErrNotFound
	}
	return db.GetEntry(ctx, id)
}

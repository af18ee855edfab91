package storage_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/benchbook/benchbook/internal/model"
	"github.com/benchbook/benchbook/internal/storage"
	"github.com/benchbook/benchbook/migrations"
)

// setupPostgres starts a disposable Postgres container, runs migrations,
// and returns a ready DB. Skipped under -short or when Docker is absent.
func setupPostgres(t *testing.T) *storage.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("benchbook"),
		tcpostgres.WithUsername("benchbook"),
		tcpostgres.WithPassword("benchbook"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := storage.New(ctx, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.RunMigrations(ctx, migrations.FS))
	return db
}

func TestPostgres_RunLifecycle(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	entry := seedEntry(t, db)

	run, err := db.CreateRun(ctx, entry.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Plasmid Miniprep - Run 1", run.Title)
	assert.Equal(t, entry.Body, run.RunBody)

	state := `{"stepCompletion":{"step-0":true}}`
	updated, err := db.UpdateRun(ctx, run.ID, model.RunPatch{InteractionState: &state})
	require.NoError(t, err)
	assert.Equal(t, state, updated.InteractionState)
	require.NotNil(t, updated.SourceEntry)
	assert.Equal(t, entry.Title, updated.SourceEntry.Title)

	_, err = db.UpdateRun(ctx, run.ID, model.RunPatch{
		Notes:  ptr("done"),
		Status: ptr(model.RunStatusCompleted),
	})
	require.NoError(t, err)

	_, err = db.UpdateRun(ctx, run.ID, model.RunPatch{Notes: ptr("late write")})
	assert.ErrorIs(t, err, storage.ErrRunCompleted)

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.True(t, got.Locked)
	assert.Equal(t, "done", got.Notes)
	assert.Equal(t, state, got.InteractionState)
}

func TestPostgres_EntryCRUD(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	entry := seedEntry(t, db)

	got, err := db.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.Title, got.Title)

	updated, err := db.UpdateEntry(ctx, entry.ID, model.UpdateEntryRequest{
		Description: ptr("high-copy plasmid prep"),
	})
	require.NoError(t, err)
	assert.Equal(t, "high-copy plasmid prep", updated.Description)
	assert.Equal(t, entry.Title, updated.Title)

	list, total, err := db.ListEntries(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
}

func TestPostgres_MigrationsIdempotent(t *testing.T) {
	db := setupPostgres(t)
	require.NoError(t, db.RunMigrations(context.Background(), migrations.FS))
}

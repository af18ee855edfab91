// Package benchbook is the public API for embedding the benchbook run engine.
//
// Desktop shells and lab-automation consumers import this package to drive
// protocol runs without going through the HTTP server:
//
//	wb, err := benchbook.New(ctx,
//	    benchbook.WithLogger(logger),
//	    benchbook.WithConfirmer(myPromptDialog{}),
//	)
//	if err != nil { ... }
//	defer wb.Close()
//	sess, err := wb.Select(ctx, runID)
//
// The import graph enforces a strict no-cycle rule: benchbook (root) imports
// internal/*, but internal/* never imports benchbook (root). The exported
// surface re-uses the internal types directly via aliases; this is the only
// file that sees both sides of the boundary.
package benchbook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/benchbook/benchbook/internal/binder"
	"github.com/benchbook/benchbook/internal/config"
	"github.com/benchbook/benchbook/internal/model"
	"github.com/benchbook/benchbook/internal/session"
	"github.com/benchbook/benchbook/internal/storage"
	"github.com/benchbook/benchbook/migrations"
)

// Aliases re-exporting the run-engine surface. These are true aliases, not
// wrappers: a benchbook.Session is the engine's session, with every method.
type (
	// Session is one open run: frozen body plus live interaction state.
	Session = session.Session
	// Completion names the blank fields and unchecked items of a run.
	Completion = session.Completion
	// Confirmer is asked before destructive actions (ending an incomplete
	// run, resetting a timer). The zero behavior declines everything.
	Confirmer = session.Confirmer
	// View is the render model derived from a session's current state.
	View = binder.View
	// Run is a stored protocol run.
	Run = model.Run
	// Entry is a stored protocol template.
	Entry = model.Entry
	// Store is the persistence backend behind the engine.
	Store = storage.Store
)

// Errors surfaced through the facade.
var (
	ErrRunEnded     = session.ErrRunEnded
	ErrEndDeclined  = session.ErrEndDeclined
	ErrClosed       = session.ErrClosed
	ErrNotFound     = storage.ErrNotFound
	ErrRunCompleted = storage.ErrRunCompleted
)

// Workbench owns a store and the one-session-at-a-time run manager.
// Construct with New(), release with Close(). Workbench has no public
// fields — use New() options to configure it.
type Workbench struct {
	cfg        config.Config
	store      storage.Store
	closeStore func()
	manager    *session.Manager
	logger     *slog.Logger
}

// New builds a ready Workbench. Configuration is read from the environment
// (and a .env file if present) the same way the server binary reads it, then
// option overrides are applied on top. The autosave debounce delay flows from
// BENCHBOOK_AUTOSAVE_DELAY into every session the Workbench opens.
//
// Without WithStore, New connects to the configured backend and, for
// postgres, runs the embedded migrations.
func New(ctx context.Context, opts ...Option) (*Workbench, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.databaseURL != "" {
		cfg.Store = "postgres"
		cfg.DatabaseURL = o.databaseURL
	}
	if o.autoSaveDelay > 0 {
		cfg.AutoSaveDelay = o.autoSaveDelay
	}

	store := o.store
	closeStore := func() {}
	if store == nil {
		switch cfg.Store {
		case "memory":
			logger.Info("storage: in-memory (state is lost on restart)")
			store = storage.NewMemory()
		case "postgres":
			db, err := storage.New(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return nil, fmt.Errorf("storage: %w", err)
			}
			if err := db.RunMigrations(ctx, migrations.FS); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
			store = db
			closeStore = db.Close
		default:
			return nil, fmt.Errorf("unknown store %q", cfg.Store)
		}
	}

	sessCfg := session.Config{
		AutoSaveDelay: cfg.AutoSaveDelay,
		Clock:         o.clock,
		Confirm:       o.confirm,
		OnAlert:       o.onAlert,
		Logger:        logger,
	}

	return &Workbench{
		cfg:        cfg,
		store:      store,
		closeStore: closeStore,
		manager:    session.NewManager(store, sessCfg),
		logger:     logger,
	}, nil
}

// Select closes the currently open session, if any, and opens the given run.
func (w *Workbench) Select(ctx context.Context, runID uuid.UUID) (*Session, error) {
	return w.manager.Select(ctx, runID)
}

// Current returns the open session, or nil.
func (w *Workbench) Current() *Session {
	return w.manager.Current()
}

// StartRun clones the entry's body into a new locked run and returns it.
func (w *Workbench) StartRun(ctx context.Context, entryID uuid.UUID, runnerID string) (Run, error) {
	return w.store.CreateRun(ctx, entryID, runnerID)
}

// GetRun fetches a run by ID.
func (w *Workbench) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	return w.store.GetRun(ctx, id)
}

// Runs lists runs, newest first, optionally filtered to one runner.
func (w *Workbench) Runs(ctx context.Context, runnerID string, limit, offset int) ([]Run, int, error) {
	return w.store.ListRuns(ctx, runnerID, limit, offset)
}

// Entries lists protocol templates, newest first.
func (w *Workbench) Entries(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	return w.store.ListEntries(ctx, limit, offset)
}

// SeedTemplate ensures the bundled demo protocol exists and returns it.
func (w *Workbench) SeedTemplate(ctx context.Context) (Entry, error) {
	return storage.SeedTemplate(ctx, w.store)
}

// Store exposes the backend for callers that need direct reads.
func (w *Workbench) Store() Store {
	return w.store
}

// Close closes the open session, flushing its pending autosave, then
// releases the store.
func (w *Workbench) Close() {
	w.manager.Close()
	w.closeStore()
}

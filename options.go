package benchbook

import (
	"log/slog"
	"time"
)

// Option configures a Workbench.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	store         Store
	databaseURL   string
	autoSaveDelay time.Duration
	clock         func() time.Time
	confirm       Confirmer
	onAlert       func()
	logger        *slog.Logger
}

// WithStore supplies a ready backend, skipping config-driven connection and
// migrations. Useful for tests and for hosts that manage the pool themselves.
func WithStore(s Store) Option {
	return func(o *resolvedOptions) { o.store = s }
}

// WithDatabaseURL overrides the connection string from config (DATABASE_URL
// env var) and forces the postgres backend.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithAutoSaveDelay overrides the autosave debounce delay from config
// (BENCHBOOK_AUTOSAVE_DELAY env var).
func WithAutoSaveDelay(d time.Duration) Option {
	return func(o *resolvedOptions) { o.autoSaveDelay = d }
}

// WithClock substitutes the wall clock used for timers and autosave timing.
func WithClock(now func() time.Time) Option {
	return func(o *resolvedOptions) { o.clock = now }
}

// WithConfirmer sets the prompt handler for destructive actions. If not set,
// every confirmation is declined, so incomplete runs cannot be force-ended
// and running timers cannot be reset.
func WithConfirmer(c Confirmer) Option {
	return func(o *resolvedOptions) { o.confirm = c }
}

// WithOnAlert registers a callback fired while a countdown is inside its
// expiry alert window. It runs on the engine goroutine, so keep it short.
func WithOnAlert(fn func()) Option {
	return func(o *resolvedOptions) { o.onAlert = fn }
}

// WithLogger sets the structured logger. If not set, the default slog
// logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

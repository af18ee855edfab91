package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/benchbook/benchbook/internal/auth"
	"github.com/benchbook/benchbook/internal/config"
	"github.com/benchbook/benchbook/internal/ratelimit"
	"github.com/benchbook/benchbook/internal/server"
	"github.com/benchbook/benchbook/internal/storage"
	"github.com/benchbook/benchbook/internal/telemetry"
	"github.com/benchbook/benchbook/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("BENCHBOOK_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("benchbook starting", "version", version, "port", cfg.Port, "store", cfg.Store)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, true)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer cleanup()

	// Make sure a freshly provisioned instance has something to run.
	if _, err := storage.SeedTemplate(ctx, store); err != nil {
		slog.Warn("template seed failed", "error", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer func() { _ = memLimiter.Close() }()
		limiter = memLimiter
		logger.Info("rate limiting: memory (per-actor token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	}

	srv := server.New(server.ServerConfig{
		Store:               store,
		JWTMgr:              jwtMgr,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		RateLimiter:         limiter,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Wait for shutdown signal or server error.
	<-gctx.Done()

	slog.Info("benchbook shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("benchbook stopped")
	return nil
}

// openStore builds the configured storage backend. The memory backend is
// for local development and demos; postgres is the production path.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, func(), error) {
	switch cfg.Store {
	case "memory":
		logger.Info("storage: in-memory (state is lost on restart)")
		return storage.NewMemory(), func() {}, nil
	case "postgres":
		db, err := storage.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		return db, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

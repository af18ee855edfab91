package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.Store != "postgres" {
		t.Fatalf("expected default store postgres, got %q", cfg.Store)
	}
	if cfg.AutoSaveDelay != 5*time.Second {
		t.Fatalf("expected default autosave delay 5s, got %s", cfg.AutoSaveDelay)
	}
}

func TestLoadMemoryStoreNeedsNoDatabase(t *testing.T) {
	t.Setenv("BENCHBOOK_STORE", "memory")
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("BENCHBOOK_STORE", "sqlite")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown store, got nil")
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("BENCHBOOK_AUTOSAVE_DELAY", "250ms")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AutoSaveDelay != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", cfg.AutoSaveDelay)
	}
}

func TestRateLimitDisabledByDefault(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RateLimitEnabled {
		t.Fatal("expected rate limiting off by default")
	}
}

func TestRateLimitRejectsNonPositiveRPS(t *testing.T) {
	t.Setenv("BENCHBOOK_RATE_LIMIT_ENABLED", "true")
	t.Setenv("BENCHBOOK_RATE_LIMIT_RPS", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative rate limit RPS, got nil")
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("BENCHBOOK_PORT", "not-a-port")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected fallback 8080, got %d", cfg.Port)
	}
}

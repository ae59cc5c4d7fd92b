package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "HTTP_PORT", "STORE_BACKEND", "ACCESS_TTL", "RATE_LIMIT_PER_MIN", "CORS_ORIGINS"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.Env != "dev" || cfg.HTTPPort != "8081" {
		t.Fatalf("unexpected defaults: env=%q port=%q", cfg.Env, cfg.HTTPPort)
	}
	if cfg.StoreBackend != "postgres" {
		t.Errorf("StoreBackend = %q, want postgres", cfg.StoreBackend)
	}
	if cfg.AccessTTL != 24*time.Hour {
		t.Errorf("AccessTTL = %s", cfg.AccessTTL)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", cfg.Warnings)
	}
	if cfg.Production() {
		t.Error("dev config reported as production")
	}
}

func TestLoadOverridesAndWarnings(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("ACCESS_TTL", "90m")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")
	t.Setenv("AUTO_MIGRATE", "nope")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()
	if !cfg.Production() {
		t.Error("expected production")
	}
	if cfg.StoreBackend != "memory" {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if cfg.AccessTTL != 90*time.Minute {
		t.Errorf("AccessTTL = %s", cfg.AccessTTL)
	}
	if cfg.RateLimitPerMin != 120 || !cfg.AutoMigrate {
		t.Errorf("fallbacks not applied: rate=%d migrate=%v", cfg.RateLimitPerMin, cfg.AutoMigrate)
	}
	if len(cfg.Warnings) != 2 {
		t.Errorf("warnings = %v, want 2 entries", cfg.Warnings)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

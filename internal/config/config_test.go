package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv unsets every key Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CONFIG_FILE", "PORT", "ENV", "LOG_LEVEL", "LOG_FORMAT", "ALLOWED_ORIGINS",
		"TURNSTILE_SECRET_KEY", "TURNSTILE_SKIP", "RATE_LIMIT_RPM", "RATE_LIMIT_BURST",
		"MAX_WORKERS", "MAX_QUEUE_SIZE", "R2_ACCOUNT_ID", "R2_ACCESS_KEY_ID",
		"R2_SECRET_ACCESS_KEY", "R2_BUCKET_NAME", "R2_PUBLIC_URL", "MAX_FILE_SIZE",
		"MAX_DURATION", "PRESIGNED_URL_EXPIRY", "DOWNLOAD_TIMEOUT", "ARTIFACT_TTL",
		"INFO_CACHE_TTL", "LOCAL_CLEANUP_INTERVAL", "LOCAL_MAX_FILE_AGE",
		"R2_CLEANUP_INTERVAL", "R2_MAX_FILE_AGE", "TEMP_DIR", "YTDLP_PATH", "FFMPEG_PATH",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" || cfg.MaxWorkers != 3 || cfg.ArtifactTTL != time.Hour {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.R2Enabled() {
		t.Error("expected R2 to be disabled by default")
	}
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Error("expected development environment")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("TURNSTILE_SKIP", "true")
	t.Setenv("MAX_WORKERS", "7")
	t.Setenv("MAX_FILE_SIZE", "1048576")
	t.Setenv("ARTIFACT_TTL", "30")
	t.Setenv("MAX_QUEUE_SIZE", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9090" || cfg.MaxWorkers != 7 || cfg.MaxFileSize != 1048576 {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %q", cfg.AllowedOrigins)
	}
	if !cfg.TurnstileSkip {
		t.Error("expected turnstile skip")
	}
	if cfg.ArtifactTTL != 30*time.Minute {
		t.Errorf("expected 30m artifact ttl, got %s", cfg.ArtifactTTL)
	}
	if cfg.MaxQueueSize != 10 {
		t.Errorf("expected invalid int to fall back to default, got %d", cfg.MaxQueueSize)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
port: "7000"
log_level: debug
max_workers: 5
artifact_ttl: 90m
local_max_file_age: 3h
allowed_origins:
  - https://app.example
r2_bucket_name: media
`
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAX_WORKERS", "2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "7000" || cfg.LogLevel != "debug" {
		t.Errorf("YAML values not applied: %+v", cfg)
	}
	if cfg.MaxWorkers != 2 {
		t.Errorf("expected env to win over YAML, got %d", cfg.MaxWorkers)
	}
	if cfg.ArtifactTTL != 90*time.Minute || cfg.LocalMaxFileAge != 3*time.Hour {
		t.Errorf("unexpected durations %s / %s", cfg.ArtifactTTL, cfg.LocalMaxFileAge)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://app.example" {
		t.Errorf("unexpected origins %q", cfg.AllowedOrigins)
	}
	if cfg.MaxQueueSize != 10 {
		t.Errorf("expected untouched default, got %d", cfg.MaxQueueSize)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("max_workers: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no workers", func(c *Config) { c.MaxWorkers = 0 }},
		{"no queue", func(c *Config) { c.MaxQueueSize = 0 }},
		{"no rate", func(c *Config) { c.RateLimitRPM = 0 }},
		{"zero ttl", func(c *Config) { c.ArtifactTTL = 0 }},
		{"sweeper shorter than ttl", func(c *Config) { c.LocalMaxFileAge = 10 * time.Minute }},
		{"no temp dir", func(c *Config) { c.TempDir = "" }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

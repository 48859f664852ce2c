package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected port %d", cfg.Server.Port)
	}
	if cfg.Validation.AgeThreshold != 7*24*time.Hour {
		t.Fatalf("unexpected age threshold %v", cfg.Validation.AgeThreshold)
	}
	if cfg.Database.DSN != "" {
		t.Fatalf("expected empty DSN by default")
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lifecycle.yaml")
	data := []byte(`
server:
  port: 9090
validation:
  token_ttl: 12h
  confirm_base_url: https://file.example
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("CONFIRM_BASE_URL", "https://env.example")
	t.Setenv("VALIDATION_AGE_THRESHOLD", "48h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("file override lost: %d", cfg.Server.Port)
	}
	if cfg.Validation.TokenTTL != 12*time.Hour {
		t.Fatalf("file token ttl lost: %v", cfg.Validation.TokenTTL)
	}
	// Environment wins over the file.
	if cfg.Validation.ConfirmBaseURL != "https://env.example" {
		t.Fatalf("env override lost: %s", cfg.Validation.ConfirmBaseURL)
	}
	if cfg.Validation.AgeThreshold != 48*time.Hour {
		t.Fatalf("env age threshold lost: %v", cfg.Validation.AgeThreshold)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lifecycle.yaml")
	if err := os.WriteFile(path, []byte("validation:\n  token_ttl: -1h\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error for negative ttl")
	}
}

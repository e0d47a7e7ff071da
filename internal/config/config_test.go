package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/panel")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("PANEL_CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultFileLimitMB != 100 {
		t.Errorf("DefaultFileLimitMB = %d, want 100", cfg.DefaultFileLimitMB)
	}
	if cfg.DefaultFileLimitBytes() != 100*1024*1024 {
		t.Errorf("DefaultFileLimitBytes = %d", cfg.DefaultFileLimitBytes())
	}
	if cfg.TerminalTimeout != 30*time.Second {
		t.Errorf("TerminalTimeout = %v, want 30s", cfg.TerminalTimeout)
	}
	if cfg.TerminalMaxOutput != 1024*1024 {
		t.Errorf("TerminalMaxOutput = %d, want 1MiB", cfg.TerminalMaxOutput)
	}
	if cfg.TerminalAdminOnly {
		t.Error("TerminalAdminOnly should default to false")
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "x")
	if _, err := Load(); err == nil {
		t.Error("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/panel")
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Error("expected error without JWT_SECRET")
	}
}

func TestEnvDurationAcceptsMilliseconds(t *testing.T) {
	setRequired(t)
	t.Setenv("TERMINAL_TIMEOUT", "30000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TerminalTimeout != 30*time.Second {
		t.Errorf("TerminalTimeout = %v, want 30s", cfg.TerminalTimeout)
	}
}

func TestYAMLOverlay(t *testing.T) {
	setRequired(t)
	t.Setenv("UPLOADS_ROOT", "/from/env")

	path := filepath.Join(t.TempDir(), "panel.yaml")
	doc := "uploads_root: /from/file\nterminal_timeout: 5s\nterminal_admin_only: true\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PANEL_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UploadsRoot != "/from/file" {
		t.Errorf("UploadsRoot = %q, want /from/file", cfg.UploadsRoot)
	}
	if cfg.TerminalTimeout != 5*time.Second {
		t.Errorf("TerminalTimeout = %v, want 5s", cfg.TerminalTimeout)
	}
	if !cfg.TerminalAdminOnly {
		t.Error("TerminalAdminOnly should be overridden to true")
	}
	if cfg.JWTSecret != "test-secret" {
		t.Errorf("JWTSecret = %q, env value should survive overlay", cfg.JWTSecret)
	}
}

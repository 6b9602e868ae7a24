package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile_DefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	content := `
server:
  port: 9090
database:
  driver: sqlite
  name: panel
  path: /tmp/data
grid:
  overflow_threshold: 6
expressions:
  disable_on_error: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Grid.OverflowThreshold != 6 {
		t.Fatalf("expected overflow threshold 6, got %d", cfg.Grid.OverflowThreshold)
	}
	if cfg.Grid.DefaultPageSize != 10 {
		t.Fatalf("expected default page size 10, got %d", cfg.Grid.DefaultPageSize)
	}
	if cfg.Expressions.DisableOnError {
		t.Fatal("expected disable_on_error override to false")
	}
	if cfg.Resolver.MaxConcurrency != 8 {
		t.Fatalf("expected resolver concurrency 8, got %d", cfg.Resolver.MaxConcurrency)
	}
	if cfg.Operations.Timeout() != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.Operations.Timeout())
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" || cfg.Metrics.Namespace != "panel" {
		t.Fatalf("unexpected metrics defaults: %+v", cfg.Metrics)
	}
	if cfg.Auth.Issuer != "panel-runtime" || cfg.Auth.TokenTTL() != 8*time.Hour {
		t.Fatalf("unexpected auth defaults: %+v", cfg.Auth)
	}
	if !cfg.Database.IsSQLite() || cfg.Database.DSN() != "/tmp/data/panel.db" {
		t.Fatalf("unexpected sqlite DSN: %s", cfg.Database.DSN())
	}
}

func TestDatabaseConfig_PostgresDSN(t *testing.T) {
	d := DatabaseConfig{Driver: "postgres", User: "u", Password: "p", Host: "db", Port: 5432, Name: "panel"}
	want := "postgres://u:p@db:5432/panel?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Fatalf("DSN() = %s, want %s", got, want)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Port != 5432 {
		t.Errorf("expected default db port 5432, got %d", cfg.Database.Port)
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Errorf("expected default redis addr localhost:6379, got %q", cfg.Redis.Addr())
	}
	if cfg.Service.InitialCapital != 10_000 {
		t.Errorf("expected default initial capital 10000, got %g", cfg.Service.InitialCapital)
	}
	if cfg.Database.Enabled || cfg.Redis.Enabled {
		t.Error("expected database and redis disabled by default")
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Data.BaseURL == "" {
		t.Error("expected default data base URL")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"database": {"enabled": true, "host": "db.internal", "port": 5433},
		"service": {"log_level": "debug", "initial_capital": 25000}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.Database.Enabled {
		t.Error("expected database enabled")
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 5433 {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Service.InitialCapital != 25000 {
		t.Errorf("expected initial capital 25000, got %g", cfg.Service.InitialCapital)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"redis": {"host": "from-file"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("REDIS_HOST", "from-env")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("SERVICE_WORKERS", "4")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Redis.Host != "from-env" {
		t.Errorf("expected env to win, got %q", cfg.Redis.Host)
	}
	if cfg.Redis.Port != 6380 {
		t.Errorf("expected redis port 6380, got %d", cfg.Redis.Port)
	}
	if cfg.Service.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Service.Workers)
	}
}

func TestConnString(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, Name: "n", User: "u", Password: "p"}
	want := "postgres://u:p@h:5432/n?sslmode=disable"
	if got := d.ConnString(); got != want {
		t.Errorf("ConnString() = %q, want %q", got, want)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad log level", map[string]string{"SERVICE_LOG_LEVEL": "loud"}},
		{"negative capital", map[string]string{"SERVICE_INITIAL_CAPITAL": "-5"}},
		{"negative workers", map[string]string{"SERVICE_WORKERS": "-1"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

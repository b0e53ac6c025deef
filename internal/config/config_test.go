package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabaseURL != "time_planner.db" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.RefreshInterval != 30*time.Second {
		t.Errorf("RefreshInterval = %s, want 30s", cfg.RefreshInterval)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("SweepInterval = %s, want 5m", cfg.SweepInterval)
	}
	if cfg.TelegramToken != "" {
		t.Errorf("TelegramToken = %q, want empty", cfg.TelegramToken)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "database_url: /tmp/planner.db\nsweep_interval: 1m\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabaseURL != "/tmp/planner.db" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %s, want 1m", cfg.SweepInterval)
	}
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("TIMEPLANNER_TELEGRAM_TOKEN", "  token-123 ")
	t.Setenv("TIMEPLANNER_REFRESH_INTERVAL", "45s")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TelegramToken != "token-123" {
		t.Errorf("TelegramToken = %q", cfg.TelegramToken)
	}
	if cfg.RefreshInterval != 45*time.Second {
		t.Errorf("RefreshInterval = %s, want 45s", cfg.RefreshInterval)
	}
}

func TestLoadRejectsSlowRefresh(t *testing.T) {
	t.Setenv("TIMEPLANNER_REFRESH_INTERVAL", "2m")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for refresh interval above one minute")
	}
}

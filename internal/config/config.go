package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config keeps runtime settings. Values are layered: defaults, then an
// optional YAML file, then TIMEPLANNER_* environment variables.
type Config struct {
	TelegramToken   string        `koanf:"telegram_token"`
	DatabaseURL     string        `koanf:"database_url"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
	SweepInterval   time.Duration `koanf:"sweep_interval"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"telegram_token": "",
		"database_url":   "time_planner.db",
		// The clock must re-read the wall at least once per minute in
		// system mode; half that keeps urgency fresh with margin.
		"refresh_interval": "30s",
		"sweep_interval":   "5m",
	}
}

// Load reads configuration, layering an optional config file and
// environment variables over the defaults. A missing Telegram token is not
// an error: the app degrades to notifications-disabled mode.
func Load(configPath string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider("TIMEPLANNER_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "TIMEPLANNER_"))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "time_planner.db"
	}
	if cfg.RefreshInterval <= 0 || cfg.RefreshInterval > time.Minute {
		return Config{}, fmt.Errorf("refresh_interval must be positive and at most 1m, got %s", cfg.RefreshInterval)
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("sweep_interval must be positive, got %s", cfg.SweepInterval)
	}

	return cfg, nil
}

// Package config loads and validates focusd configuration from
// $FOCUS_HOME/config.yaml, with environment overrides for deployment knobs.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// OtelConfig mirrors the otel package config so the whole file stays
// yaml-decodable in one pass.
type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// RetentionConfig controls pruning of aged, already-read action records.
type RetentionConfig struct {
	// Schedule is a standard 5-field cron expression. Empty disables pruning.
	Schedule string `yaml:"schedule"`
	// MaxAgeDays is the minimum age of a read record before it is pruned.
	MaxAgeDays int `yaml:"max_age_days"`
}

// LedgerConfig tunes the fire-and-forget action recorder.
type LedgerConfig struct {
	// QueueSize bounds the in-memory record queue. When full, records are
	// dropped and counted rather than blocking the mutation path.
	QueueSize int `yaml:"queue_size"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	BindAddr string `yaml:"bind_addr"`
	LogLevel string `yaml:"log_level"`

	// DBPath overrides the default SQLite location under HomeDir.
	DBPath string `yaml:"db_path"`

	// SessionCookie is the cookie name checked by the session provider.
	SessionCookie string `yaml:"session_cookie"`

	Ledger    LedgerConfig    `yaml:"ledger"`
	Retention RetentionConfig `yaml:"retention"`
	Otel      OtelConfig      `yaml:"otel"`
}

func defaultConfig() Config {
	return Config{
		BindAddr:      "127.0.0.1:18600",
		LogLevel:      "info",
		SessionCookie: "focus_session",
		Ledger:        LedgerConfig{QueueSize: 256},
		Retention:     RetentionConfig{Schedule: "30 3 * * *", MaxAgeDays: 90},
	}
}

func HomeDir() string {
	if override := os.Getenv("FOCUS_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".focus")
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom reads config.yaml beneath the given home directory. A missing
// file is not an error: defaults apply and the directory is created.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create focus home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:18600"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.SessionCookie) == "" {
		cfg.SessionCookie = "focus_session"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.HomeDir, "focus.db")
	}
	if cfg.Ledger.QueueSize <= 0 {
		cfg.Ledger.QueueSize = 256
	}
	if cfg.Retention.MaxAgeDays <= 0 {
		cfg.Retention.MaxAgeDays = 90
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("FOCUS_BIND_ADDR"); raw != "" {
		cfg.BindAddr = raw
	}
	if raw := os.Getenv("FOCUS_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("FOCUS_DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}
	if raw := os.Getenv("FOCUS_LEDGER_QUEUE_SIZE"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Ledger.QueueSize = v
		}
	}
	if raw := os.Getenv("FOCUS_RETENTION_MAX_AGE_DAYS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Retention.MaxAgeDays = v
		}
	}
}

// Fingerprint returns a stable hash of the active config, logged at startup
// so operators can tell which configuration a process is running.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "bind=%s|log=%s|db=%s|queue=%d|retention=%s/%d",
		c.BindAddr, c.LogLevel, c.DBPath, c.Ledger.QueueSize,
		c.Retention.Schedule, c.Retention.MaxAgeDays)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

// Package config loads the top-level YAML configuration with environment
// overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mediaheat/heatwatch/internal/gate"
	"github.com/mediaheat/heatwatch/internal/govern"
	"github.com/mediaheat/heatwatch/internal/httpapi"
	"github.com/mediaheat/heatwatch/internal/scoring"
)

// SourceConfig is the per-source collector configuration. The core never
// talks to upstreams itself; this controls the workers around it.
type SourceConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// Outbound request budget for the source's upstream API.
	RateLimit struct {
		Rate     int           `yaml:"rate"`
		Interval time.Duration `yaml:"interval"`
		Burst    int           `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// SchedulerConfig holds the background job cadence.
type SchedulerConfig struct {
	ScoreInterval time.Duration `yaml:"score_interval"`
	AlertInterval time.Duration `yaml:"alert_interval"`
	TikTokFold    bool          `yaml:"tiktok_fold"`
	AlertLimit    int           `yaml:"alert_limit"`
}

// Config is the full application configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`

	Slack struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"slack"`

	HTTP      httpapi.ServerConfig    `yaml:"http"`
	Scoring   scoring.Config          `yaml:"scoring"`
	Gate      gate.Config             `yaml:"gate"`
	Scheduler SchedulerConfig         `yaml:"scheduler"`
	Sources   map[string]SourceConfig `yaml:"sources"`
}

// Default returns a runnable configuration with every knob at its
// production default. The database DSN still has to come from file or env.
func Default() Config {
	var cfg Config
	cfg.LogLevel = "info"
	cfg.HTTP = httpapi.DefaultServerConfig()
	cfg.Scoring = scoring.DefaultConfig()
	cfg.Gate = gate.DefaultConfig()
	cfg.Scheduler = SchedulerConfig{
		ScoreInterval: 15 * time.Minute,
		AlertInterval: 15 * time.Minute,
		TikTokFold:    true,
		AlertLimit:    10,
	}
	cfg.Sources = map[string]SourceConfig{}
	return cfg
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file and uses defaults
// plus environment only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv lets deployment secrets override the file so they stay out of it.
func applyEnv(cfg *Config) {
	if dsn := os.Getenv("HEATWATCH_DB_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if addr := os.Getenv("HEATWATCH_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if hook := os.Getenv("HEATWATCH_SLACK_WEBHOOK"); hook != "" {
		cfg.Slack.WebhookURL = hook
	}
	if level := os.Getenv("HEATWATCH_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
}

// BucketConfig converts a source's rate-limit block into a govern bucket.
func (s SourceConfig) BucketConfig(source string) govern.BucketConfig {
	return govern.BucketConfig{
		Key:      "source:" + source,
		Rate:     s.RateLimit.Rate,
		Interval: s.RateLimit.Interval,
		Burst:    s.RateLimit.Burst,
	}
}

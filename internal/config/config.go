package config

import (
	"fmt"
	"os"
	"time"

	"github.com/elonfeng/skylimit/pkg/quota"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Quota    QuotaConfig    `yaml:"quota"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// QuotaConfig configures the quota computation.
type QuotaConfig struct {
	Viewer            string   `yaml:"viewer"`
	ViewsPerDay       float64  `yaml:"views_per_day"`
	DaysOfData        int      `yaml:"days_of_data"`
	IntervalHours     int      `yaml:"interval_hours"` // must divide 24
	SecretKey         string   `yaml:"secret_key"`
	Anonymize         bool     `yaml:"anonymize"`
	MinWeight         float64  `yaml:"min_weight"`
	MaxWeight         float64  `yaml:"max_weight"`
	MinQuotaThreshold float64  `yaml:"min_quota_threshold"`
	MustShowTags      []string `yaml:"must_show_tags"`
	PriorityTag       string   `yaml:"priority_tag"`
}

// Params converts the section into pipeline parameters.
func (q QuotaConfig) Params() quota.Params {
	return quota.Params{
		Viewer:            q.Viewer,
		ViewsPerDay:       q.ViewsPerDay,
		DaysOfData:        q.DaysOfData,
		IntervalHours:     q.IntervalHours,
		SecretKey:         q.SecretKey,
		Anonymize:         q.Anonymize,
		MinWeight:         q.MinWeight,
		MaxWeight:         q.MaxWeight,
		MinQuotaThreshold: q.MinQuotaThreshold,
		MustShowTags:      q.MustShowTags,
		PriorityTag:       q.PriorityTag,
	}
}

// Retention is how long events are kept: the lookback plus one day of slack.
func (q QuotaConfig) Retention() time.Duration {
	return time.Duration(q.DaysOfData+1) * 24 * time.Hour
}

// ScheduleConfig configures ingest and compute intervals.
type ScheduleConfig struct {
	IngestInterval  string `yaml:"ingest_interval"`
	ComputeInterval string `yaml:"compute_interval"`
}

// ParseIngestInterval returns the ingest interval as time.Duration.
func (s ScheduleConfig) ParseIngestInterval() time.Duration {
	d, err := time.ParseDuration(s.IngestInterval)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// ParseComputeInterval returns the compute interval as time.Duration.
func (s ScheduleConfig) ParseComputeInterval() time.Duration {
	d, err := time.ParseDuration(s.ComputeInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

// IngestConfig configures the feed collector.
type IngestConfig struct {
	Timeout   string `yaml:"timeout"`
	UserAgent string `yaml:"user_agent"`
}

// ParseTimeout returns the HTTP timeout for feed requests.
func (i IngestConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(i.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// AlertsConfig configures snapshot notifications.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	p := quota.DefaultParams()
	return &Config{
		Database: DatabaseConfig{Path: "./skylimit.db"},
		Quota: QuotaConfig{
			ViewsPerDay:       p.ViewsPerDay,
			DaysOfData:        p.DaysOfData,
			IntervalHours:     p.IntervalHours,
			MinWeight:         p.MinWeight,
			MaxWeight:         p.MaxWeight,
			MinQuotaThreshold: p.MinQuotaThreshold,
			MustShowTags:      p.MustShowTags,
			PriorityTag:       p.PriorityTag,
		},
		Schedule: ScheduleConfig{
			IngestInterval:  "15m",
			ComputeInterval: "1h",
		},
		Ingest: IngestConfig{
			Timeout:   "30s",
			UserAgent: "skylimit/1.0",
		},
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the quota section.
func (c *Config) Validate() error {
	return c.Quota.Params().Validate()
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SKYLIMIT_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SKYLIMIT_SECRET_KEY"); v != "" {
		cfg.Quota.SecretKey = v
	}
	if v := os.Getenv("SKYLIMIT_VIEWER"); v != "" {
		cfg.Quota.Viewer = v
	}
	if v := os.Getenv("SKYLIMIT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}

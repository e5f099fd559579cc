// Package config loads application configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Slack         SlackConfig
	Elasticsearch ElasticsearchConfig
	Ingest        IngestConfig
	Report        ReportConfig
	Alert         AlertConfig
	MetricsAddr   string
}

// SlackConfig holds Slack API configuration
type SlackConfig struct {
	BotToken string
	Channels []string
}

// ElasticsearchConfig holds Elasticsearch connection configuration
type ElasticsearchConfig struct {
	Addresses []string
	Username  string
	Password  string
}

// IngestConfig holds ingestion pipeline configuration
type IngestConfig struct {
	BatchSize      int
	PageLimit      int
	IncludeThreads bool
	PagePause      time.Duration
}

// ReportConfig holds report generation configuration
type ReportConfig struct {
	Timezone *time.Location
	DryRun   bool
}

// AlertConfig holds alerting configuration
type AlertConfig struct {
	Channel        string
	MinLevel       string
	ThrottleWindow time.Duration
	HourlyLimit    int
}

// Load loads configuration from environment variables. A .env file in
// the working directory is applied first when present; real
// environment variables win over file entries.
func Load() (*Config, error) {
	// Ignore a missing .env; it only exists in local development.
	_ = godotenv.Load()

	tz, err := time.LoadLocation(getEnv("SLACKLYTICS_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid SLACKLYTICS_TIMEZONE: %w", err)
	}

	cfg := &Config{
		Slack: SlackConfig{
			BotToken: getEnv("SLACK_BOT_TOKEN", ""),
			Channels: getEnvList("SLACK_CHANNELS"),
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses: getEnvList("ELASTICSEARCH_ADDRESSES"),
			Username:  getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:  getEnv("ELASTICSEARCH_PASSWORD", ""),
		},
		Ingest: IngestConfig{
			BatchSize:      getEnvInt("INGEST_BATCH_SIZE", 500),
			PageLimit:      getEnvInt("INGEST_PAGE_LIMIT", 100),
			IncludeThreads: getEnvBool("INGEST_INCLUDE_THREADS", true),
			PagePause:      getEnvDuration("INGEST_PAGE_PAUSE", 500*time.Millisecond),
		},
		Report: ReportConfig{
			Timezone: tz,
			DryRun:   getEnvBool("REPORT_DRY_RUN", false),
		},
		Alert: AlertConfig{
			Channel:        getEnv("ALERT_CHANNEL", ""),
			MinLevel:       getEnv("ALERT_MIN_LEVEL", "warning"),
			ThrottleWindow: getEnvDuration("ALERT_THROTTLE_WINDOW", time.Hour),
			HourlyLimit:    getEnvInt("ALERT_HOURLY_LIMIT", 10),
		},
		MetricsAddr: getEnv("METRICS_ADDR", ""),
	}

	if len(cfg.Elasticsearch.Addresses) == 0 {
		cfg.Elasticsearch.Addresses = []string{"http://localhost:9200"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Slack.BotToken == "" {
		return fmt.Errorf("SLACK_BOT_TOKEN is required")
	}

	for _, addr := range c.Elasticsearch.Addresses {
		if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
			return fmt.Errorf("invalid Elasticsearch address %q: must start with http:// or https://", addr)
		}
	}

	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("INGEST_BATCH_SIZE must be positive")
	}
	if c.Ingest.PageLimit < 1 || c.Ingest.PageLimit > 1000 {
		return fmt.Errorf("INGEST_PAGE_LIMIT must be between 1 and 1000")
	}

	switch strings.ToLower(c.Alert.MinLevel) {
	case "info", "warning", "error", "critical":
	default:
		return fmt.Errorf("invalid ALERT_MIN_LEVEL: %s", c.Alert.MinLevel)
	}

	return nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList gets a comma-separated environment variable as a slice,
// blank entries dropped.
func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvInt gets an integer environment variable with a fallback
// default value. Unparseable values fall back.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a fallback
// default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a fallback
// default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

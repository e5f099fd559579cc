package config

import (
	"testing"
	"time"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("ELASTICSEARCH_ADDRESSES", "http://localhost:9200")
}

func TestLoadDefaults(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Ingest.BatchSize != 500 || cfg.Ingest.PageLimit != 100 {
		t.Errorf("ingest defaults = %+v", cfg.Ingest)
	}
	if !cfg.Ingest.IncludeThreads {
		t.Error("IncludeThreads default = false, want true")
	}
	if cfg.Report.Timezone != time.UTC {
		t.Errorf("Timezone = %v, want UTC", cfg.Report.Timezone)
	}
	if cfg.Alert.MinLevel != "warning" || cfg.Alert.HourlyLimit != 10 {
		t.Errorf("alert defaults = %+v", cfg.Alert)
	}
}

func TestLoadOverrides(t *testing.T) {
	setValidEnv(t)
	t.Setenv("SLACK_CHANNELS", "C1, C2 ,,C3")
	t.Setenv("INGEST_BATCH_SIZE", "100")
	t.Setenv("INGEST_INCLUDE_THREADS", "false")
	t.Setenv("INGEST_PAGE_PAUSE", "2s")
	t.Setenv("SLACKLYTICS_TIMEZONE", "Asia/Tokyo")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Slack.Channels) != 3 || cfg.Slack.Channels[1] != "C2" {
		t.Errorf("Channels = %v, want trimmed [C1 C2 C3]", cfg.Slack.Channels)
	}
	if cfg.Ingest.BatchSize != 100 || cfg.Ingest.IncludeThreads || cfg.Ingest.PagePause != 2*time.Second {
		t.Errorf("ingest = %+v", cfg.Ingest)
	}
	if cfg.Report.Timezone.String() != "Asia/Tokyo" {
		t.Errorf("Timezone = %v, want Asia/Tokyo", cfg.Report.Timezone)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"missing token", func(c *Config) { c.Slack.BotToken = "" }, true},
		{"bad address scheme", func(c *Config) { c.Elasticsearch.Addresses = []string{"localhost:9200"} }, true},
		{"zero batch size", func(c *Config) { c.Ingest.BatchSize = 0 }, true},
		{"page limit too large", func(c *Config) { c.Ingest.PageLimit = 5000 }, true},
		{"bad alert level", func(c *Config) { c.Alert.MinLevel = "loud" }, true},
		{"valid", func(c *Config) {}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Slack:         SlackConfig{BotToken: "xoxb-test"},
				Elasticsearch: ElasticsearchConfig{Addresses: []string{"http://localhost:9200"}},
				Ingest:        IngestConfig{BatchSize: 500, PageLimit: 100},
				Alert:         AlertConfig{MinLevel: "warning"},
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// Package analysis computes channel statistics from the document
// store. All rollups are aggregation queries against indexed messages;
// raw history is never replayed.
package analysis

import (
	"context"
	"time"

	"github.com/slacklytics/slacklytics/pkg/store"
)

// Searcher is the slice of the store client the engine needs.
type Searcher interface {
	Search(ctx context.Context, index string, query map[string]any, size, from int) (*store.SearchResult, error)
}

// Config tunes an analysis Engine.
type Config struct {
	// Timezone anchors day boundaries for daily and weekly windows.
	Timezone *time.Location

	// TopUserCount bounds the most-active-users ranking per day.
	TopUserCount int

	// TopReactionCount bounds the most-used-reactions ranking per day.
	TopReactionCount int

	// TopPostCount bounds the weekly top-posts ranking.
	TopPostCount int

	// TopPostsFetchSize is how many reacted posts are fetched as
	// ranking candidates before weighting in memory.
	TopPostsFetchSize int
}

// DefaultConfig mirrors the production reporting defaults.
func DefaultConfig() Config {
	return Config{
		Timezone:          time.UTC,
		TopUserCount:      5,
		TopReactionCount:  5,
		TopPostCount:      3,
		TopPostsFetchSize: 100,
	}
}

// Engine computes statistics for channels. It is stateless apart from
// its configuration and safe for concurrent use.
type Engine struct {
	search Searcher
	cfg    Config
}

// NewEngine creates an analysis engine. Omitted config fields fall
// back to DefaultConfig.
func NewEngine(s Searcher, config ...Config) *Engine {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.TopUserCount <= 0 {
		cfg.TopUserCount = DefaultConfig().TopUserCount
	}
	if cfg.TopReactionCount <= 0 {
		cfg.TopReactionCount = DefaultConfig().TopReactionCount
	}
	if cfg.TopPostCount <= 0 {
		cfg.TopPostCount = DefaultConfig().TopPostCount
	}
	if cfg.TopPostsFetchSize <= 0 {
		cfg.TopPostsFetchSize = DefaultConfig().TopPostsFetchSize
	}
	return &Engine{search: s, cfg: cfg}
}

// dayBounds returns the inclusive start and end instants of date's
// calendar day in the engine timezone.
func (e *Engine) dayBounds(date time.Time) (time.Time, time.Time) {
	local := date.In(e.cfg.Timezone)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.cfg.Timezone)
	return start, start.Add(24*time.Hour - time.Nanosecond)
}

package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Log is the process-wide logger. Init must be called once at startup;
// packages that may run before Init (tests, library use) should go
// through L, which falls back to slog.Default.
var Log *slog.Logger

// Init initializes the global logger with a text handler writing to
// stdout. Level and sink can be overridden via SLACKLYTICS_LOG_LEVEL
// and SLACKLYTICS_LOG_SINK (e.g. "file:/var/log/slacklytics.log").
func Init() {
	InitWithLevel(os.Getenv("SLACKLYTICS_LOG_LEVEL"))
}

// InitWithLevel initializes the global logger honoring the provided
// level string ("debug", "info", "warn", "error"). An empty level
// falls back to SLACKLYTICS_LOG_LEVEL, then to info.
func InitWithLevel(level string) {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("SLACKLYTICS_LOG_LEVEL")))
	}
	var lv slog.Level
	switch lvl {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	sink := os.Getenv("SLACKLYTICS_LOG_SINK")
	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			Log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: lv}))
			return
		}
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
	}
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}

// L returns the global logger, or slog.Default when Init has not run.
func L() *slog.Logger {
	if Log != nil {
		return Log
	}
	return slog.Default()
}

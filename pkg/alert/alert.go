// Package alert delivers operational alerts to a channel, with
// per-key throttling and an hourly volume cap so a flapping failure
// cannot flood the channel. All throttle state is scoped to the
// Alerter instance.
package alert

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slacklytics/slacklytics/pkg/logger"
)

// Level is the severity of an alert.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel maps a level name to its Level, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "info":
		return LevelInfo, nil
	case "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "critical":
		return LevelCritical, nil
	default:
		return LevelWarning, fmt.Errorf("unknown alert level %q", s)
	}
}

func (l Level) emoji() string {
	switch l {
	case LevelInfo:
		return ":information_source:"
	case LevelWarning:
		return ":warning:"
	case LevelError:
		return ":x:"
	case LevelCritical:
		return ":rotating_light:"
	default:
		return ":grey_question:"
	}
}

// Poster is the message-sending surface alerts go out through.
type Poster interface {
	PostMessage(ctx context.Context, channelID, text string) (string, error)
}

// Config tunes an Alerter.
type Config struct {
	// Channel receives the alerts.
	Channel string

	// MinLevel suppresses alerts below this severity.
	MinLevel Level

	// ThrottleWindow suppresses repeats of the same alert key.
	ThrottleWindow time.Duration

	// HourlyLimit caps total alerts sent per rolling hour.
	HourlyLimit int
}

// DefaultConfig mirrors the production alerting defaults.
func DefaultConfig() Config {
	return Config{
		MinLevel:       LevelWarning,
		ThrottleWindow: time.Hour,
		HourlyLimit:    10,
	}
}

// Alerter sends throttled alerts through a Poster. It is safe for
// concurrent use. Two Alerters never share throttle state, so separate
// subsystems can alert independently.
type Alerter struct {
	poster Poster
	cfg    Config

	mu       sync.Mutex
	lastSent map[string]time.Time
	sent     []time.Time

	now func() time.Time
}

// New creates an alerter posting to cfg.Channel. Omitted config fields
// fall back to DefaultConfig.
func New(poster Poster, config ...Config) *Alerter {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.ThrottleWindow <= 0 {
		cfg.ThrottleWindow = DefaultConfig().ThrottleWindow
	}
	if cfg.HourlyLimit <= 0 {
		cfg.HourlyLimit = DefaultConfig().HourlyLimit
	}
	return &Alerter{
		poster:   poster,
		cfg:      cfg,
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Send delivers one alert. Alerts below the minimum level, repeats of
// a key inside the throttle window, and alerts beyond the hourly cap
// are dropped silently; dropping is the intended behavior, not a
// failure, so Send returns nil for all of them.
func (a *Alerter) Send(ctx context.Context, level Level, key, message string) error {
	if level < a.cfg.MinLevel {
		return nil
	}

	now := a.now()
	if !a.admit(key, now) {
		logger.L().Debug("alert suppressed", "key", key, "level", level.String())
		return nil
	}

	text := fmt.Sprintf("%s *[%s]* %s\n_%s_",
		level.emoji(), level.String(), message, now.UTC().Format(time.RFC3339))
	if _, err := a.poster.PostMessage(ctx, a.cfg.Channel, text); err != nil {
		a.forget(key, now)
		return fmt.Errorf("send alert %s: %w", key, err)
	}
	return nil
}

// admit records the send attempt and reports whether throttling allows
// it. The hourly window is rolling.
func (a *Alerter) admit(key string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if last, ok := a.lastSent[key]; ok && now.Sub(last) < a.cfg.ThrottleWindow {
		return false
	}

	cutoff := now.Add(-time.Hour)
	kept := a.sent[:0]
	for _, t := range a.sent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	a.sent = kept
	if len(a.sent) >= a.cfg.HourlyLimit {
		return false
	}

	a.lastSent[key] = now
	a.sent = append(a.sent, now)
	return true
}

// forget clears the throttle records admit made for this send after a
// failed delivery, so the next attempt is not suppressed. It removes
// exactly the entries recorded at ts: other sends admitted between the
// post and the failure keep theirs.
func (a *Alerter) forget(key string, ts time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if last, ok := a.lastSent[key]; ok && last.Equal(ts) {
		delete(a.lastSent, key)
	}
	for i, t := range a.sent {
		if t.Equal(ts) {
			a.sent = append(a.sent[:i], a.sent[i+1:]...)
			break
		}
	}
}

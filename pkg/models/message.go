// Package models defines the canonical message entity stored in the
// search index, the raw API record it is normalized from, and the
// derived statistics types.
package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Placeholders used when the source record carries no user information
// (e.g. messages posted by apps).
const (
	UnknownUserID   = "unknown"
	UnknownUsername = "Unknown User"
)

// RawReaction is one reaction entry as returned by the message API.
type RawReaction struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// RawFile is one file entry as returned by the message API.
type RawFile struct {
	Filetype   string `json:"filetype"`
	Size       int64  `json:"size"`
	URLPrivate string `json:"url_private"`
}

// RawMessage is a message record as returned by the message API. Every
// field is optional in the wire format; absent fields decode to zero
// values and Normalize applies the documented defaults.
type RawMessage struct {
	TS         string        `json:"ts"`
	User       string        `json:"user"`
	Username   string        `json:"username"`
	Text       string        `json:"text"`
	ThreadTS   string        `json:"thread_ts"`
	ReplyCount int           `json:"reply_count"`
	Reactions  []RawReaction `json:"reactions"`
	Files      []RawFile     `json:"files"`
}

// Reaction is one emoji reaction on a stored message. Users may be
// shorter than Count when the source truncates the reactor list.
type Reaction struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// Attachment is one file attached to a stored message.
type Attachment struct {
	Type string `json:"type"`
	Size int64  `json:"size"`
	URL  string `json:"url,omitempty"`
}

// Message is the canonical, immutable message entity. TS is unique
// within a channel and doubles as the store's document ID, which makes
// re-ingestion an idempotent upsert.
type Message struct {
	ChannelID string `json:"channel_id"`
	TS        string `json:"ts"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Text      string `json:"text"`

	Timestamp time.Time `json:"timestamp"`
	IsWeekend bool      `json:"is_weekend"`
	HourOfDay int       `json:"hour_of_day"`
	DayOfWeek int       `json:"day_of_week"` // 0=Monday .. 6=Sunday

	ThreadTS   string `json:"thread_ts,omitempty"`
	ReplyCount int    `json:"reply_count"`

	Reactions   []Reaction   `json:"reactions"`
	Mentions    []string     `json:"mentions"`
	Attachments []Attachment `json:"attachments"`
}

// mentionPattern matches the platform's inline mention syntax <@U12345>.
var mentionPattern = regexp.MustCompile(`<@([A-Z0-9]+)>`)

// Normalize converts one raw API record into a Message, deriving the
// calendar fields in loc. It fails only when the timestamp field is
// absent or unparseable; that is a terminal condition for the record
// (malformed input does not become valid on retry).
func Normalize(channelID string, raw RawMessage, loc *time.Location) (Message, error) {
	ts, err := ParseTS(raw.TS)
	if err != nil {
		return Message{}, fmt.Errorf("normalize message: %w", err)
	}
	ts = ts.In(loc)

	userID := raw.User
	if userID == "" {
		userID = UnknownUserID
	}
	username := raw.Username
	if username == "" {
		username = UnknownUsername
	}

	reactions := make([]Reaction, 0, len(raw.Reactions))
	for _, r := range raw.Reactions {
		users := r.Users
		if users == nil {
			users = []string{}
		}
		reactions = append(reactions, Reaction{Name: r.Name, Count: r.Count, Users: users})
	}

	attachments := make([]Attachment, 0, len(raw.Files))
	for _, f := range raw.Files {
		ftype := f.Filetype
		if ftype == "" {
			ftype = "unknown"
		}
		attachments = append(attachments, Attachment{Type: ftype, Size: f.Size, URL: f.URLPrivate})
	}

	return Message{
		ChannelID:   channelID,
		TS:          raw.TS,
		UserID:      userID,
		Username:    username,
		Text:        raw.Text,
		Timestamp:   ts,
		IsWeekend:   isWeekend(ts),
		HourOfDay:   ts.Hour(),
		DayOfWeek:   dayOfWeek(ts),
		ThreadTS:    raw.ThreadTS,
		ReplyCount:  raw.ReplyCount,
		Reactions:   reactions,
		Mentions:    ExtractMentions(raw.Text),
		Attachments: attachments,
	}, nil
}

// ExtractMentions returns the user IDs referenced in text, in order of
// occurrence. Duplicates are preserved: the result reflects raw
// occurrence counts, not distinct users.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	mentions := make([]string, 0, len(matches))
	for _, m := range matches {
		mentions = append(mentions, m[1])
	}
	return mentions
}

// ParseTS parses the API's opaque timestamp format: epoch seconds with
// optional fractional precision, e.g. "1704067200.123456".
func ParseTS(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	secPart, fracPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	var nsec int64
	if fracPart != "" {
		// Right-pad or truncate the fraction to nanosecond precision.
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		frac, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		for i := len(fracPart); i < 9; i++ {
			frac *= 10
		}
		nsec = frac
	}
	return time.Unix(sec, nsec), nil
}

// Document renders the message as a store document. The timestamp is
// serialized in RFC 3339 so the index's date mapping accepts it.
func (m Message) Document() map[string]any {
	reactions := make([]map[string]any, 0, len(m.Reactions))
	for _, r := range m.Reactions {
		reactions = append(reactions, map[string]any{
			"name":  r.Name,
			"count": r.Count,
			"users": r.Users,
		})
	}
	attachments := make([]map[string]any, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, map[string]any{
			"type": a.Type,
			"size": a.Size,
			"url":  a.URL,
		})
	}
	return map[string]any{
		"channel_id":  m.ChannelID,
		"ts":          m.TS,
		"user_id":     m.UserID,
		"username":    m.Username,
		"text":        m.Text,
		"timestamp":   m.Timestamp.Format(time.RFC3339Nano),
		"is_weekend":  m.IsWeekend,
		"hour_of_day": m.HourOfDay,
		"day_of_week": m.DayOfWeek,
		"thread_ts":   m.ThreadTS,
		"reply_count": m.ReplyCount,
		"reactions":   reactions,
		"mentions":    m.Mentions,
		"attachments": attachments,
	}
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// dayOfWeek maps time.Weekday (0=Sunday) onto the stored convention
// 0=Monday .. 6=Sunday.
func dayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

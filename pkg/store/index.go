package store

import "strings"

// IndexPrefix is shared by all message indices; the index template
// below matches on it.
const IndexPrefix = "slack-"

// TemplateName is the index template applied to every channel index.
const TemplateName = "slack-messages"

// IndexName derives the deterministic store index for a channel:
// lowercase, with every non-alphanumeric run replaced by a dash.
func IndexName(channelName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(channelName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return IndexPrefix + b.String()
}

// MessageTemplate returns the index template predefining the message
// field mappings (keyword/date/nested) for all channel indices.
func MessageTemplate() map[string]any {
	return map[string]any{
		"index_patterns": []string{IndexPrefix + "*"},
		"priority":       100,
		"version":        1,
		"_meta":          map[string]any{"description": "Template for chat message indices"},
		"template": map[string]any{
			"settings": map[string]any{
				"number_of_shards":   1,
				"number_of_replicas": 0,
			},
			"mappings": map[string]any{
				"properties": map[string]any{
					"timestamp":  map[string]any{"type": "date"},
					"channel_id": map[string]any{"type": "keyword"},
					"ts":         map[string]any{"type": "keyword"},
					"user_id":    map[string]any{"type": "keyword"},
					"username":   map[string]any{"type": "keyword"},
					"text": map[string]any{
						"type": "text",
						"fields": map[string]any{
							"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
						},
					},
					"thread_ts":   map[string]any{"type": "keyword"},
					"reply_count": map[string]any{"type": "integer"},
					"reactions": map[string]any{
						"type": "nested",
						"properties": map[string]any{
							"name":  map[string]any{"type": "keyword"},
							"count": map[string]any{"type": "integer"},
							"users": map[string]any{"type": "keyword"},
						},
					},
					"mentions": map[string]any{"type": "keyword"},
					"attachments": map[string]any{
						"type": "nested",
						"properties": map[string]any{
							"type": map[string]any{"type": "keyword"},
							"size": map[string]any{"type": "long"},
							"url":  map[string]any{"type": "keyword"},
						},
					},
					"is_weekend":  map[string]any{"type": "boolean"},
					"hour_of_day": map[string]any{"type": "integer"},
					"day_of_week": map[string]any{"type": "integer"},
				},
			},
		},
	}
}

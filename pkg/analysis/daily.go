package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/slacklytics/slacklytics/pkg/models"
	"github.com/slacklytics/slacklytics/pkg/store"
)

// DailyStats aggregates one calendar day of a channel: message total,
// reaction total, a complete 24-slot hourly series, and the top users
// and reactions of the day. A missing channel index is an error so
// weekly rollups can record the day as failed.
func (e *Engine) DailyStats(ctx context.Context, channelName string, date time.Time) (models.DailyStats, error) {
	start, end := e.dayBounds(date)
	dateStr := start.Format("2006-01-02")
	index := store.IndexName(channelName)

	reactionNames := store.TermsAgg("reactions.name", e.cfg.TopReactionCount)
	reactionNames["aggs"] = map[string]any{"total": store.SumAgg("reactions.count")}

	query := store.AggregationQuery(map[string]any{
		"reactions": store.NestedAgg("reactions", map[string]any{
			"total": store.SumAgg("reactions.count"),
			"names": reactionNames,
		}),
		"hours": store.TermsAgg("hour_of_day", 24),
		"users": store.TermsAgg("username", e.cfg.TopUserCount),
	}, store.DateRangeQuery("timestamp", start, end))

	result, err := e.search.Search(ctx, index, query, 0, 0)
	if err != nil {
		return models.DailyStats{}, fmt.Errorf("daily stats %s/%s: %w", channelName, dateStr, err)
	}
	if result.IndexNotFound {
		return models.DailyStats{}, fmt.Errorf("daily stats %s/%s: index %s does not exist", channelName, dateStr, index)
	}

	stats := models.DailyStats{
		Date:                dateStr,
		MessageCount:        result.Total,
		HourlyMessageCounts: make([]int, 24),
	}

	if raw, ok := result.Aggregations["hours"]; ok {
		var hours struct {
			Buckets []struct {
				Key      int `json:"key"`
				DocCount int `json:"doc_count"`
			} `json:"buckets"`
		}
		if err := json.Unmarshal(raw, &hours); err != nil {
			return models.DailyStats{}, fmt.Errorf("daily stats %s/%s: decode hours: %w", channelName, dateStr, err)
		}
		for _, b := range hours.Buckets {
			if b.Key >= 0 && b.Key < 24 {
				stats.HourlyMessageCounts[b.Key] = b.DocCount
			}
		}
	}

	if raw, ok := result.Aggregations["reactions"]; ok {
		var reactions struct {
			Total struct {
				Value float64 `json:"value"`
			} `json:"total"`
			Names struct {
				Buckets []struct {
					Key   string `json:"key"`
					Total struct {
						Value float64 `json:"value"`
					} `json:"total"`
				} `json:"buckets"`
			} `json:"names"`
		}
		if err := json.Unmarshal(raw, &reactions); err != nil {
			return models.DailyStats{}, fmt.Errorf("daily stats %s/%s: decode reactions: %w", channelName, dateStr, err)
		}
		stats.ReactionCount = int(reactions.Total.Value)
		for _, b := range reactions.Names.Buckets {
			stats.TopReactions = append(stats.TopReactions, models.ReactionStat{
				Name:  b.Key,
				Count: int(b.Total.Value),
			})
		}
	}

	if raw, ok := result.Aggregations["users"]; ok {
		var users struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int    `json:"doc_count"`
			} `json:"buckets"`
		}
		if err := json.Unmarshal(raw, &users); err != nil {
			return models.DailyStats{}, fmt.Errorf("daily stats %s/%s: decode users: %w", channelName, dateStr, err)
		}
		for _, b := range users.Buckets {
			stats.UserStats = append(stats.UserStats, models.UserStat{
				Username:     b.Key,
				MessageCount: b.DocCount,
			})
		}
	}

	return stats, nil
}

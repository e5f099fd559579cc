package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/slacklytics/slacklytics/pkg/logger"
	"github.com/slacklytics/slacklytics/pkg/models"
	"github.com/slacklytics/slacklytics/pkg/store"
)

// maxSummaryLen bounds the text shown per top post.
const maxSummaryLen = 100

// TopPosts ranks the window's reacted posts by total reaction count,
// descending, and returns at most limit entries. Candidates are
// over-fetched and weighted in memory; ties keep store order, so the
// ranking is deterministic for a given index state. A missing index
// yields an empty ranking.
func (e *Engine) TopPosts(ctx context.Context, channelName string, start, end time.Time, limit int) ([]models.TopPost, error) {
	index := store.IndexName(channelName)

	query := store.SearchQuery(e.cfg.TopPostsFetchSize, 0,
		store.DateRangeQuery("timestamp", start, end),
		store.NestedQuery("reactions", store.ExistsQuery("reactions.name")),
	)

	result, err := e.search.Search(ctx, index, query, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("top posts %s: %w", channelName, err)
	}
	if result.IndexNotFound {
		return nil, nil
	}

	type candidate struct {
		msg    models.Message
		weight int
	}
	candidates := make([]candidate, 0, len(result.Hits))
	for _, hit := range result.Hits {
		var msg models.Message
		if err := json.Unmarshal(hit.Source, &msg); err != nil {
			logger.L().Warn("skipping undecodable document", "index", index, "id", hit.ID, "err", err)
			continue
		}
		weight := 0
		for _, r := range msg.Reactions {
			weight += r.Count
		}
		if weight == 0 {
			continue
		}
		candidates = append(candidates, candidate{msg: msg, weight: weight})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].weight > candidates[j].weight
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	posts := make([]models.TopPost, 0, len(candidates))
	for _, c := range candidates {
		posts = append(posts, models.TopPost{
			Text:          summarize(c.msg.Text),
			Link:          permalink(c.msg),
			UserID:        c.msg.UserID,
			ReactionCount: c.weight,
			Reactions:     c.msg.Reactions,
		})
	}
	return posts, nil
}

// summarize keeps the first line of text, truncated to maxSummaryLen
// runes with an ellipsis.
func summarize(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	runes := []rune(line)
	if len(runes) > maxSummaryLen {
		return string(runes[:maxSummaryLen]) + "..."
	}
	return line
}

// permalink builds the archive URL for a post. The timestamp source is
// thread_ts when present, then ts, then a value synthesized from the
// indexed timestamp; with no source at all the link is omitted.
func permalink(msg models.Message) string {
	ts := msg.ThreadTS
	if ts == "" {
		ts = msg.TS
	}
	if ts == "" && !msg.Timestamp.IsZero() {
		ts = fmt.Sprintf("%d.%06d", msg.Timestamp.Unix(), msg.Timestamp.Nanosecond()/1000)
	}
	if ts == "" || msg.ChannelID == "" {
		return ""
	}
	return fmt.Sprintf("https://slack.com/archives/%s/p%s",
		msg.ChannelID, strings.ReplaceAll(ts, ".", ""))
}

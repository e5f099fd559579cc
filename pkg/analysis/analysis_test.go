package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/slacklytics/slacklytics/pkg/models"
	"github.com/slacklytics/slacklytics/pkg/store"
)

// mockSearcher implements Searcher for testing.
type mockSearcher struct {
	searchFunc func(call int, index string, query map[string]any) (*store.SearchResult, error)
	calls      int
}

func (m *mockSearcher) Search(ctx context.Context, index string, query map[string]any, size, from int) (*store.SearchResult, error) {
	m.calls++
	return m.searchFunc(m.calls, index, query)
}

func rawAggs(t *testing.T, aggs map[string]any) map[string]json.RawMessage {
	t.Helper()
	out := make(map[string]json.RawMessage, len(aggs))
	for name, agg := range aggs {
		data, err := json.Marshal(agg)
		if err != nil {
			t.Fatalf("marshal agg %s: %v", name, err)
		}
		out[name] = data
	}
	return out
}

func dailyResult(t *testing.T, total int, reactionTotal int, hours map[int]int) *store.SearchResult {
	t.Helper()
	hourBuckets := []map[string]any{}
	for hour, count := range hours {
		hourBuckets = append(hourBuckets, map[string]any{"key": hour, "doc_count": count})
	}
	return &store.SearchResult{
		Total: total,
		Aggregations: rawAggs(t, map[string]any{
			"hours": map[string]any{"buckets": hourBuckets},
			"reactions": map[string]any{
				"total": map[string]any{"value": float64(reactionTotal)},
				"names": map[string]any{"buckets": []map[string]any{}},
			},
			"users": map[string]any{"buckets": []map[string]any{}},
		}),
	}
}

func messageHit(t *testing.T, msg models.Message) store.Hit {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return store.Hit{ID: msg.TS, Source: data}
}

func TestDailyStats(t *testing.T) {
	searcher := &mockSearcher{
		searchFunc: func(call int, index string, query map[string]any) (*store.SearchResult, error) {
			if index != "slack-general" {
				t.Errorf("index = %s, want slack-general", index)
			}
			return &store.SearchResult{
				Total: 30,
				Aggregations: rawAggs(t, map[string]any{
					"hours": map[string]any{"buckets": []map[string]any{
						{"key": 0, "doc_count": 10},
						{"key": 1, "doc_count": 20},
					}},
					"reactions": map[string]any{
						"total": map[string]any{"value": 7.0},
						"names": map[string]any{"buckets": []map[string]any{
							{"key": "+1", "total": map[string]any{"value": 4.0}},
							{"key": "eyes", "total": map[string]any{"value": 3.0}},
						}},
					},
					"users": map[string]any{"buckets": []map[string]any{
						{"key": "alice", "doc_count": 18},
						{"key": "bob", "doc_count": 12},
					}},
				}),
			}, nil
		},
	}

	engine := NewEngine(searcher)
	stats, err := engine.DailyStats(context.Background(), "general", time.Date(2024, 1, 6, 15, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DailyStats() error = %v", err)
	}

	if stats.Date != "2024-01-06" {
		t.Errorf("Date = %s, want 2024-01-06", stats.Date)
	}
	if stats.MessageCount != 30 {
		t.Errorf("MessageCount = %d, want 30", stats.MessageCount)
	}
	if stats.ReactionCount != 7 {
		t.Errorf("ReactionCount = %d, want 7", stats.ReactionCount)
	}
	if len(stats.HourlyMessageCounts) != 24 {
		t.Fatalf("hourly series length = %d, want 24", len(stats.HourlyMessageCounts))
	}
	if stats.HourlyMessageCounts[0] != 10 || stats.HourlyMessageCounts[1] != 20 {
		t.Errorf("hourly[0:2] = %v, want [10 20]", stats.HourlyMessageCounts[:2])
	}
	sum := 0
	for _, c := range stats.HourlyMessageCounts {
		sum += c
	}
	if sum != 30 {
		t.Errorf("hourly sum = %d, want 30 (silent hours are explicit zeros)", sum)
	}
	if len(stats.TopReactions) != 2 || stats.TopReactions[0].Name != "+1" || stats.TopReactions[0].Count != 4 {
		t.Errorf("TopReactions = %+v", stats.TopReactions)
	}
	if len(stats.UserStats) != 2 || stats.UserStats[0].Username != "alice" || stats.UserStats[0].MessageCount != 18 {
		t.Errorf("UserStats = %+v", stats.UserStats)
	}
}

func TestDailyStatsIndexNotFound(t *testing.T) {
	searcher := &mockSearcher{
		searchFunc: func(call int, index string, query map[string]any) (*store.SearchResult, error) {
			return &store.SearchResult{IndexNotFound: true}, nil
		},
	}

	engine := NewEngine(searcher)
	if _, err := engine.DailyStats(context.Background(), "ghost", time.Now()); err == nil {
		t.Error("DailyStats() error = nil for missing index, want error")
	}
}

func TestWeeklyStatsToleratesFailedDay(t *testing.T) {
	topPost := models.Message{
		ChannelID: "C1",
		TS:        "100.000400",
		UserID:    "U1",
		Text:      "release shipped",
		Reactions: []models.Reaction{{Name: "tada", Count: 12}},
	}

	searcher := &mockSearcher{
		searchFunc: func(call int, index string, query map[string]any) (*store.SearchResult, error) {
			switch {
			case call == 3:
				return nil, errors.New("search timed out")
			case call <= 7:
				return dailyResult(t, 10, 2, map[int]int{9: 10}), nil
			default:
				return &store.SearchResult{Hits: []store.Hit{messageHit(t, topPost)}}, nil
			}
		},
	}

	engine := NewEngine(searcher)
	weekly, err := engine.WeeklyStats(context.Background(), "general", time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("WeeklyStats() error = %v", err)
	}

	if weekly.StartDate != "2024-01-01" || weekly.EndDate != "2024-01-07" {
		t.Errorf("window = %s..%s, want 2024-01-01..2024-01-07", weekly.StartDate, weekly.EndDate)
	}
	if weekly.MessageCount != 60 || weekly.ReactionCount != 12 {
		t.Errorf("totals = %d msgs / %d reactions, want 60 / 12", weekly.MessageCount, weekly.ReactionCount)
	}
	if len(weekly.DailyStats) != 6 {
		t.Errorf("successful days = %d, want 6", len(weekly.DailyStats))
	}
	if len(weekly.HourlyMessageCounts) != 144 {
		t.Errorf("hourly series length = %d, want 144 (24 per successful day)", len(weekly.HourlyMessageCounts))
	}
	if len(weekly.ErrorDates) != 1 || weekly.ErrorDates[0] != "2024-01-03" {
		t.Errorf("ErrorDates = %v, want [2024-01-03]", weekly.ErrorDates)
	}
	if len(weekly.TopPosts) != 1 || weekly.TopPosts[0].ReactionCount != 12 {
		t.Errorf("TopPosts = %+v, want the reacted post", weekly.TopPosts)
	}
	if weekly.IsEmpty() {
		t.Error("IsEmpty() = true with 6 successful days")
	}
}

func TestWeeklyStatsAllDaysFailed(t *testing.T) {
	searcher := &mockSearcher{
		searchFunc: func(call int, index string, query map[string]any) (*store.SearchResult, error) {
			return nil, errors.New("cluster unavailable")
		},
	}

	engine := NewEngine(searcher)
	weekly, err := engine.WeeklyStats(context.Background(), "general", time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("WeeklyStats() error = %v", err)
	}

	if !weekly.IsEmpty() {
		t.Error("IsEmpty() = false, want true when every day failed")
	}
	if len(weekly.ErrorDates) != 7 {
		t.Errorf("ErrorDates = %v, want all 7 days", weekly.ErrorDates)
	}
	if searcher.calls != 7 {
		t.Errorf("search calls = %d, want 7 (no top-posts query for an empty week)", searcher.calls)
	}
}

func TestTopPostsRanking(t *testing.T) {
	mk := func(ts, text string, count int) models.Message {
		return models.Message{
			ChannelID: "C1", TS: ts, UserID: "U1", Text: text,
			Reactions: []models.Reaction{{Name: "+1", Count: count}},
		}
	}
	hits := []store.Hit{
		messageHit(t, mk("1.000000", "post A", 12)),
		messageHit(t, mk("2.000000", "post B", 5)),
		messageHit(t, mk("3.000000", "post C", 12)),
		messageHit(t, mk("4.000000", "post D", 3)),
		messageHit(t, models.Message{ChannelID: "C1", TS: "5.000000", Text: "unreacted"}),
		{ID: "bad", Source: json.RawMessage(`{"reactions": "not an array"}`)},
	}
	searcher := &mockSearcher{
		searchFunc: func(call int, index string, query map[string]any) (*store.SearchResult, error) {
			return &store.SearchResult{Total: len(hits), Hits: hits}, nil
		},
	}

	engine := NewEngine(searcher)
	posts, err := engine.TopPosts(context.Background(), "general", time.Time{}, time.Now(), 2)
	if err != nil {
		t.Fatalf("TopPosts() error = %v", err)
	}

	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(posts))
	}
	// Equal weights keep store order, so A ranks ahead of C.
	if posts[0].Text != "post A" || posts[1].Text != "post C" {
		t.Errorf("ranking = [%s %s], want [post A, post C]", posts[0].Text, posts[1].Text)
	}
	if posts[0].ReactionCount != 12 {
		t.Errorf("ReactionCount = %d, want 12", posts[0].ReactionCount)
	}
	if posts[0].Link != "https://slack.com/archives/C1/p1000000" {
		t.Errorf("Link = %s", posts[0].Link)
	}
}

func TestTopPostsMissingIndex(t *testing.T) {
	searcher := &mockSearcher{
		searchFunc: func(call int, index string, query map[string]any) (*store.SearchResult, error) {
			return &store.SearchResult{IndexNotFound: true}, nil
		},
	}

	engine := NewEngine(searcher)
	posts, err := engine.TopPosts(context.Background(), "ghost", time.Time{}, time.Now(), 3)
	if err != nil {
		t.Fatalf("TopPosts() error = %v", err)
	}
	if posts != nil {
		t.Errorf("posts = %v, want nil for missing index", posts)
	}
}

func TestPermalink(t *testing.T) {
	tests := []struct {
		name string
		msg  models.Message
		want string
	}{
		{
			name: "thread_ts preferred",
			msg:  models.Message{ChannelID: "C1", ThreadTS: "100.000400", TS: "101.000000"},
			want: "https://slack.com/archives/C1/p100000400",
		},
		{
			name: "ts fallback",
			msg:  models.Message{ChannelID: "C1", TS: "101.000200"},
			want: "https://slack.com/archives/C1/p101000200",
		},
		{
			name: "synthesized from indexed timestamp",
			msg:  models.Message{ChannelID: "C1", Timestamp: time.Unix(1704510245, 123456000).UTC()},
			want: "https://slack.com/archives/C1/p1704510245123456",
		},
		{
			name: "no timestamp source",
			msg:  models.Message{ChannelID: "C1"},
			want: "",
		},
		{
			name: "no channel",
			msg:  models.Message{TS: "101.000000"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := permalink(tt.msg); got != tt.want {
				t.Errorf("permalink() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	if got := summarize("first line\nsecond line"); got != "first line" {
		t.Errorf("summarize() = %q, want first line only", got)
	}
	long := strings.Repeat("x", 150)
	got := summarize(long)
	if len([]rune(got)) != maxSummaryLen+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("summarize(long) = %d runes, want %d plus ellipsis", len([]rune(got)), maxSummaryLen)
	}
}

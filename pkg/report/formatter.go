// Package report turns channel statistics into mrkdwn report messages
// and delivers them.
package report

import (
	"fmt"
	"strings"

	"github.com/slacklytics/slacklytics/pkg/models"
)

// FormatDaily renders one day's statistics as a mrkdwn message.
func FormatDaily(channelName string, stats models.DailyStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Daily stats for #%s — %s*\n", channelName, stats.Date)
	fmt.Fprintf(&b, "Messages: %d\n", stats.MessageCount)
	fmt.Fprintf(&b, "Reactions: %d\n", stats.ReactionCount)

	if hour, count := busiestHour(stats.HourlyMessageCounts); count > 0 {
		fmt.Fprintf(&b, "Busiest hour: %02d:00 (%d messages)\n", hour, count)
	}

	if len(stats.UserStats) > 0 {
		b.WriteString("Top users:\n")
		for i, u := range stats.UserStats {
			fmt.Fprintf(&b, "  %d. %s — %d\n", i+1, u.Username, u.MessageCount)
		}
	}
	if len(stats.TopReactions) > 0 {
		b.WriteString("Top reactions:\n")
		for i, r := range stats.TopReactions {
			fmt.Fprintf(&b, "  %d. :%s: ×%d\n", i+1, r.Name, r.Count)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatWeekly renders a week's statistics as a mrkdwn message. Days
// that failed to compute are called out so readers know the totals are
// partial. An empty week renders a no-data notice.
func FormatWeekly(channelName string, stats models.WeeklyStats) string {
	if stats.IsEmpty() {
		return fmt.Sprintf("No message data for #%s between %s and %s.",
			channelName, stats.StartDate, stats.EndDate)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Weekly stats for #%s — %s to %s*\n", channelName, stats.StartDate, stats.EndDate)
	fmt.Fprintf(&b, "Messages: %d\n", stats.MessageCount)
	fmt.Fprintf(&b, "Reactions: %d\n", stats.ReactionCount)

	if len(stats.ErrorDates) > 0 {
		fmt.Fprintf(&b, ":warning: Partial data, %d day(s) could not be computed: %s\n",
			len(stats.ErrorDates), strings.Join(stats.ErrorDates, ", "))
	}

	if len(stats.TopPosts) > 0 {
		b.WriteString("Top posts:\n")
		for i, p := range stats.TopPosts {
			fmt.Fprintf(&b, "  %d. (%d reactions) %s", i+1, p.ReactionCount, p.Text)
			if p.Link != "" {
				fmt.Fprintf(&b, " <%s|link>", p.Link)
			}
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// busiestHour returns the hour with the highest count. Ties go to the
// earlier hour.
func busiestHour(counts []int) (int, int) {
	bestHour, bestCount := 0, 0
	for hour, count := range counts {
		if count > bestCount {
			bestHour, bestCount = hour, count
		}
	}
	return bestHour, bestCount
}

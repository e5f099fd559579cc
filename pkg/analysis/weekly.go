package analysis

import (
	"context"
	"time"

	"github.com/slacklytics/slacklytics/pkg/logger"
	"github.com/slacklytics/slacklytics/pkg/models"
)

// WeeklyStats aggregates the 7 calendar days ending at endDate. A day
// whose daily rollup fails is recorded in ErrorDates and excluded from
// every total; the remaining days still produce a report. When every
// day fails the result satisfies IsEmpty and top posts are not fetched.
func (e *Engine) WeeklyStats(ctx context.Context, channelName string, endDate time.Time) (models.WeeklyStats, error) {
	end, endOfWeek := e.dayBounds(endDate)
	start := end.AddDate(0, 0, -6)

	weekly := models.WeeklyStats{
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
	}

	for d := 0; d < 7; d++ {
		day := start.AddDate(0, 0, d)
		daily, err := e.DailyStats(ctx, channelName, day)
		if err != nil {
			logger.L().Warn("excluding failed day from weekly stats",
				"channel", channelName, "date", day.Format("2006-01-02"), "err", err)
			weekly.ErrorDates = append(weekly.ErrorDates, day.Format("2006-01-02"))
			continue
		}
		weekly.MessageCount += daily.MessageCount
		weekly.ReactionCount += daily.ReactionCount
		weekly.HourlyMessageCounts = append(weekly.HourlyMessageCounts, daily.HourlyMessageCounts...)
		weekly.DailyStats = append(weekly.DailyStats, daily)
	}

	if weekly.IsEmpty() {
		return weekly, nil
	}

	topPosts, err := e.TopPosts(ctx, channelName, start, endOfWeek, e.cfg.TopPostCount)
	if err != nil {
		// Top posts are decoration on the weekly report, not part of
		// the totals.
		logger.L().Warn("weekly top posts unavailable", "channel", channelName, "err", err)
	} else {
		weekly.TopPosts = topPosts
	}

	return weekly, nil
}

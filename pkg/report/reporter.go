package report

import (
	"context"
	"fmt"
	"time"

	"github.com/slacklytics/slacklytics/pkg/alert"
	"github.com/slacklytics/slacklytics/pkg/logger"
	"github.com/slacklytics/slacklytics/pkg/models"
	"github.com/slacklytics/slacklytics/pkg/pipeline"
)

// StatsProvider computes the statistics a report is built from.
type StatsProvider interface {
	DailyStats(ctx context.Context, channelName string, date time.Time) (models.DailyStats, error)
	WeeklyStats(ctx context.Context, channelName string, endDate time.Time) (models.WeeklyStats, error)
}

// Poster delivers a finished report message.
type Poster interface {
	PostMessage(ctx context.Context, channelID, text string) (string, error)
}

// Uploader delivers a report attachment file to a channel.
type Uploader interface {
	UploadFile(ctx context.Context, channelID, path, title string) error
}

// Attachment is one rendered file to upload alongside a report.
type Attachment struct {
	Path  string
	Title string
}

// ChartRenderer renders a weekly report's charts to files.
type ChartRenderer interface {
	RenderWeekly(stats models.WeeklyStats) ([]Attachment, error)
}

// Capturer produces a dashboard snapshot file covering the report
// window.
type Capturer interface {
	CaptureWeekly(ctx context.Context, startDate, endDate string) (Attachment, error)
}

// Config tunes a Reporter.
type Config struct {
	// DryRun logs the rendered report instead of posting it.
	DryRun bool

	// Renderer produces chart attachments for weekly reports; nil
	// disables charts.
	Renderer ChartRenderer

	// Capturer produces a dashboard snapshot for weekly reports; nil
	// disables capture.
	Capturer Capturer

	// Uploader delivers attachments after the text post; nil disables
	// all uploads.
	Uploader Uploader
}

// Reporter computes, formats and delivers channel reports. The
// optional alerter is notified when a report cannot be produced or
// delivered.
type Reporter struct {
	stats   StatsProvider
	poster  Poster
	alerter *alert.Alerter
	cfg     Config
}

// NewReporter creates a reporter. alerter may be nil to disable
// failure alerts.
func NewReporter(stats StatsProvider, poster Poster, alerter *alert.Alerter, config ...Config) *Reporter {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Reporter{stats: stats, poster: poster, alerter: alerter, cfg: cfg}
}

// PostDaily computes and posts the daily report for channel covering
// date. Stats are computed for channel.Name and the report is posted
// to channel.ID.
func (r *Reporter) PostDaily(ctx context.Context, channel pipeline.Channel, date time.Time) error {
	stats, err := r.stats.DailyStats(ctx, channel.Name, date)
	if err != nil {
		r.alertFailure(ctx, "daily-stats-"+channel.Name, fmt.Sprintf("daily stats for #%s failed: %v", channel.Name, err))
		return fmt.Errorf("daily report for %s: %w", channel.Name, err)
	}
	return r.deliver(ctx, channel, FormatDaily(channel.Name, stats), "daily")
}

// PostWeekly computes and posts the weekly report for channel ending
// at endDate. A week with no data still posts the no-data notice so a
// silent channel is distinguishable from a broken report job.
func (r *Reporter) PostWeekly(ctx context.Context, channel pipeline.Channel, endDate time.Time) error {
	stats, err := r.stats.WeeklyStats(ctx, channel.Name, endDate)
	if err != nil {
		r.alertFailure(ctx, "weekly-stats-"+channel.Name, fmt.Sprintf("weekly stats for #%s failed: %v", channel.Name, err))
		return fmt.Errorf("weekly report for %s: %w", channel.Name, err)
	}
	if len(stats.ErrorDates) > 0 && !stats.IsEmpty() {
		r.alertFailure(ctx, "weekly-partial-"+channel.Name,
			fmt.Sprintf("weekly report for #%s is partial; failed days: %v", channel.Name, stats.ErrorDates))
	}

	attachments := r.weeklyAttachments(ctx, channel, stats)
	if err := r.deliver(ctx, channel, FormatWeekly(channel.Name, stats), "weekly"); err != nil {
		return err
	}
	r.upload(ctx, channel, attachments)
	return nil
}

// weeklyAttachments renders the week's charts and dashboard snapshot.
// Attachments are decoration on the report: any of them failing is
// downgraded to a warning and the text report still goes out.
func (r *Reporter) weeklyAttachments(ctx context.Context, channel pipeline.Channel, stats models.WeeklyStats) []Attachment {
	if stats.IsEmpty() || r.cfg.Uploader == nil || r.cfg.DryRun {
		return nil
	}

	var out []Attachment
	if r.cfg.Renderer != nil {
		charts, err := r.cfg.Renderer.RenderWeekly(stats)
		if err != nil {
			logger.L().Warn("chart rendering failed", "channel", channel.Name, "err", err)
			r.alertWarning(ctx, "weekly-charts-"+channel.Name,
				fmt.Sprintf("charts for #%s weekly report failed: %v", channel.Name, err))
		} else {
			out = append(out, charts...)
		}
	}
	if r.cfg.Capturer != nil {
		snapshot, err := r.cfg.Capturer.CaptureWeekly(ctx, stats.StartDate, stats.EndDate)
		if err != nil {
			logger.L().Warn("dashboard capture failed", "channel", channel.Name, "err", err)
			r.alertWarning(ctx, "weekly-capture-"+channel.Name,
				fmt.Sprintf("dashboard capture for #%s weekly report failed: %v", channel.Name, err))
		} else {
			out = append(out, snapshot)
		}
	}
	return out
}

// upload delivers attachments after the text post. A failed upload
// leaves the already-posted report intact, so it warns and moves on.
func (r *Reporter) upload(ctx context.Context, channel pipeline.Channel, attachments []Attachment) {
	for _, att := range attachments {
		if err := r.cfg.Uploader.UploadFile(ctx, channel.ID, att.Path, att.Title); err != nil {
			logger.L().Warn("attachment upload failed",
				"channel", channel.Name, "path", att.Path, "err", err)
			r.alertWarning(ctx, "weekly-upload-"+channel.Name,
				fmt.Sprintf("uploading %q to #%s failed: %v", att.Title, channel.Name, err))
			continue
		}
		logger.L().Info("attachment uploaded", "channel", channel.ID, "title", att.Title)
	}
}

func (r *Reporter) deliver(ctx context.Context, channel pipeline.Channel, text, kind string) error {
	if r.cfg.DryRun {
		logger.L().Info("dry run, report not posted", "kind", kind, "channel", channel.ID, "report", text)
		return nil
	}
	if _, err := r.poster.PostMessage(ctx, channel.ID, text); err != nil {
		r.alertFailure(ctx, kind+"-post-"+channel.Name, fmt.Sprintf("posting %s report to #%s failed: %v", kind, channel.Name, err))
		return fmt.Errorf("post %s report to %s: %w", kind, channel.ID, err)
	}
	logger.L().Info("report posted", "kind", kind, "channel", channel.ID)
	return nil
}

func (r *Reporter) alertFailure(ctx context.Context, key, message string) {
	r.sendAlert(ctx, alert.LevelError, key, message)
}

func (r *Reporter) alertWarning(ctx context.Context, key, message string) {
	r.sendAlert(ctx, alert.LevelWarning, key, message)
}

func (r *Reporter) sendAlert(ctx context.Context, level alert.Level, key, message string) {
	if r.alerter == nil {
		return
	}
	if err := r.alerter.Send(ctx, level, key, message); err != nil {
		logger.L().Warn("failed to send alert", "key", key, "err", err)
	}
}

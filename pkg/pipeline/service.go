// Package pipeline implements the batch ingestion run: paginate the
// remote message source, normalize records, and flush fixed-size
// batches into the document store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/slacklytics/slacklytics/pkg/logger"
	"github.com/slacklytics/slacklytics/pkg/models"
	"github.com/slacklytics/slacklytics/pkg/retry"
	"github.com/slacklytics/slacklytics/pkg/store"
	"github.com/slacklytics/slacklytics/pkg/telemetry"
)

// Page is one page of raw records from the remote source, with the
// opaque continuation cursor for the next page (empty when exhausted).
type Page struct {
	Messages   []models.RawMessage
	NextCursor string
}

// HistoryOptions bounds one history page request. A zero Oldest means
// "from the beginning of history".
type HistoryOptions struct {
	Oldest time.Time
	Latest time.Time
	Cursor string
	Limit  int
}

// Source is the remote message API consumed by the pipeline.
type Source interface {
	// History returns one page of top-level channel messages.
	History(ctx context.Context, channelID string, opts HistoryOptions) (Page, error)

	// Replies returns one page of a thread's replies, including the
	// thread parent as its first message on the first page.
	Replies(ctx context.Context, channelID, threadTS, cursor string) (Page, error)
}

// Channel identifies the channel being ingested. Name determines the
// store index; ID is what the remote API addresses.
type Channel struct {
	ID   string
	Name string
}

// Window is the ingestion time window. Latest is inclusive; a zero
// Oldest fetches from the beginning of history.
type Window struct {
	Oldest time.Time
	Latest time.Time
}

// Config tunes an ingestion Service.
type Config struct {
	// BatchSize is the write-buffer size flushed per bulk call.
	BatchSize int

	// PageLimit is the page size requested from the source.
	PageLimit int

	// IncludeThreads expands thread replies of each top-level message.
	IncludeThreads bool

	// PagePause spaces consecutive page requests to stay clear of the
	// source's rate limits, independent of retry backoff.
	PagePause time.Duration

	// Timezone for derived calendar fields.
	Timezone *time.Location

	// Retry governs page fetches. Zero value gets the default policy.
	Retry retry.Policy
}

// DefaultConfig mirrors the production ingestion defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:      500,
		PageLimit:      100,
		IncludeThreads: true,
		PagePause:      500 * time.Millisecond,
		Timezone:       time.UTC,
	}
}

// Service runs ingestion against one source/store pair. Each call owns
// its buffers and counters; a Service is safe to reuse sequentially.
type Service struct {
	source  Source
	store   store.Client
	cfg     Config
	limiter *rate.Limiter
	policy  retry.Policy
}

// NewService creates an ingestion service. Omitted config fields fall
// back to DefaultConfig.
func NewService(source Source, st store.Client, config ...Config) *Service {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultConfig().PageLimit
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.PagePause <= 0 {
		cfg.PagePause = DefaultConfig().PagePause
	}

	policy := cfg.Retry
	if policy.BackoffFactor == 0 {
		shouldRetry := policy.ShouldRetry
		policy = retry.DefaultPolicy()
		policy.ShouldRetry = shouldRetry
	}
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = retry.IsTemporaryError
	}

	return &Service{
		source:  source,
		store:   st,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.PagePause), 1),
		policy:  policy,
	}
}

// FetchAndStore pages through the window, normalizes every record, and
// bulk-writes batches of cfg.BatchSize documents keyed by their source
// timestamp. The returned BatchResult accumulates every flush. A page
// fetch that exhausts retries aborts the run; re-running the same
// window is safe because document IDs are idempotent.
func (s *Service) FetchAndStore(ctx context.Context, channel Channel, window Window) (models.BatchResult, error) {
	index := store.IndexName(channel.Name)

	var total models.BatchResult
	buffer := make([]map[string]any, 0, s.cfg.BatchSize)

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		result, err := s.store.BulkIndex(ctx, index, buffer, "ts")
		total.Add(result)
		if err != nil {
			// Whole-batch failure after retries: account for it and
			// keep going; the failed count surfaces in the run total.
			logger.L().Error("batch flush failed", "index", index, "size", len(buffer), "err", err)
		}
		buffer = buffer[:0]
	}

	err := s.Fetch(ctx, channel, window, func(msg models.Message) error {
		buffer = append(buffer, msg.Document())
		if len(buffer) >= s.cfg.BatchSize {
			flush()
		}
		return nil
	})
	if err != nil {
		flush()
		return total, err
	}

	flush()
	return total, nil
}

// Fetch pages through the window and calls fn for every normalized
// message, thread replies included when enabled. Only the current page
// is held in memory, so arbitrarily large windows stream through. A
// non-nil error from fn aborts the run.
func (s *Service) Fetch(ctx context.Context, channel Channel, window Window, fn func(models.Message) error) error {
	runID := uuid.NewString()
	log := logger.L().With("run_id", runID, "channel", channel.ID)
	log.Info("starting fetch",
		"oldest", window.Oldest, "latest", window.Latest, "include_threads", s.cfg.IncludeThreads)

	messageCount := 0
	replyCount := 0
	skipped := 0

	cursor := ""
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		var page Page
		err := s.policy.Do(func() error {
			var err error
			page, err = s.source.History(ctx, channel.ID, HistoryOptions{
				Oldest: window.Oldest,
				Latest: window.Latest,
				Cursor: cursor,
				Limit:  s.cfg.PageLimit,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("fetch history page: %w", err)
		}
		telemetry.PagesFetched.WithLabelValues("history").Inc()

		for _, raw := range page.Messages {
			msg, err := models.Normalize(channel.ID, raw, s.cfg.Timezone)
			if err != nil {
				// Malformed input stays malformed on retry; skip it.
				skipped++
				telemetry.MessagesSkipped.Inc()
				log.Warn("skipping malformed record", "err", err)
				continue
			}
			messageCount++
			telemetry.MessagesIngested.Inc()
			if err := fn(msg); err != nil {
				return err
			}

			if s.cfg.IncludeThreads && raw.ReplyCount > 0 && raw.ThreadTS != "" {
				n, err := s.fetchThread(ctx, channel, raw.ThreadTS, log, fn)
				if err != nil {
					return err
				}
				replyCount += n
			}
		}

		cursor = page.NextCursor
		if cursor == "" {
			break
		}
	}

	log.Info("fetch complete",
		"messages", messageCount, "thread_replies", replyCount, "skipped", skipped)
	return nil
}

// fetchThread pages through one thread's replies. The parent message
// appears as the first reply of the first page and is skipped, since
// the history page already yielded it. A thread page failure after
// retries is logged and ends the thread early rather than failing the
// whole run; the replies gathered so far are kept.
func (s *Service) fetchThread(ctx context.Context, channel Channel, threadTS string, log *slog.Logger, fn func(models.Message) error) (int, error) {
	count := 0
	cursor := ""
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return count, err
		}

		var page Page
		err := s.policy.Do(func() error {
			var err error
			page, err = s.source.Replies(ctx, channel.ID, threadTS, cursor)
			return err
		})
		if err != nil {
			log.Warn("thread fetch failed, keeping partial replies", "thread_ts", threadTS, "err", err)
			return count, nil
		}
		telemetry.PagesFetched.WithLabelValues("replies").Inc()

		for _, raw := range page.Messages {
			if raw.TS == threadTS {
				continue // the parent, already yielded by the history page
			}
			msg, err := models.Normalize(channel.ID, raw, s.cfg.Timezone)
			if err != nil {
				telemetry.MessagesSkipped.Inc()
				log.Warn("skipping malformed thread reply", "thread_ts", threadTS, "err", err)
				continue
			}
			count++
			telemetry.MessagesIngested.Inc()
			if err := fn(msg); err != nil {
				return count, err
			}
		}

		cursor = page.NextCursor
		if cursor == "" {
			return count, nil
		}
	}
}

// Package slackapi adapts the Slack Web API to the pipeline's Source
// interface and provides the posting surface reports are delivered
// through.
package slackapi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/slack-go/slack"

	"github.com/slacklytics/slacklytics/pkg/models"
	"github.com/slacklytics/slacklytics/pkg/pipeline"
	"github.com/slacklytics/slacklytics/pkg/retry"
)

// repliesPageLimit is the page size for thread reply fetches.
const repliesPageLimit = 200

// api is the slice of the Slack client the adapter uses. *slack.Client
// satisfies it.
type api interface {
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

// Client wraps the Slack Web API. It implements pipeline.Source for
// ingestion and exposes posting operations for report delivery.
type Client struct {
	api api
}

// New creates a client authenticated with the given bot token.
func New(token string) *Client {
	return &Client{api: slack.New(token)}
}

// History implements pipeline.Source.
func (c *Client) History(ctx context.Context, channelID string, opts pipeline.HistoryOptions) (pipeline.Page, error) {
	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Cursor:    opts.Cursor,
		Limit:     opts.Limit,
		Oldest:    formatTS(opts.Oldest),
		Latest:    formatTS(opts.Latest),
		Inclusive: true,
	})
	if err != nil {
		return pipeline.Page{}, translate(err)
	}

	page := pipeline.Page{
		Messages:   make([]models.RawMessage, 0, len(resp.Messages)),
		NextCursor: resp.ResponseMetaData.NextCursor,
	}
	for _, m := range resp.Messages {
		page.Messages = append(page.Messages, rawFromSlack(m))
	}
	return page, nil
}

// Replies implements pipeline.Source. The thread parent arrives as the
// first message of the first page, per the API contract.
func (c *Client) Replies(ctx context.Context, channelID, threadTS, cursor string) (pipeline.Page, error) {
	msgs, _, nextCursor, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
		Cursor:    cursor,
		Limit:     repliesPageLimit,
	})
	if err != nil {
		return pipeline.Page{}, translate(err)
	}

	page := pipeline.Page{
		Messages:   make([]models.RawMessage, 0, len(msgs)),
		NextCursor: nextCursor,
	}
	for _, m := range msgs {
		page.Messages = append(page.Messages, rawFromSlack(m))
	}
	return page, nil
}

// ChannelInfo resolves a channel ID to the identity the pipeline
// ingests under.
func (c *Client) ChannelInfo(ctx context.Context, channelID string) (pipeline.Channel, error) {
	ch, err := c.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
	if err != nil {
		return pipeline.Channel{}, translate(err)
	}
	return pipeline.Channel{ID: ch.ID, Name: ch.Name}, nil
}

// PostMessage posts mrkdwn text to a channel and returns the posted
// message's timestamp.
func (c *Client) PostMessage(ctx context.Context, channelID, text string) (string, error) {
	_, ts, err := c.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return "", translate(err)
	}
	return ts, nil
}

// UploadFile uploads a local file to a channel with the given title.
func (c *Client) UploadFile(ctx context.Context, channelID, path, title string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat upload file: %w", err)
	}
	_, err = c.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:  channelID,
		File:     path,
		Filename: filepath.Base(path),
		FileSize: int(info.Size()),
		Title:    title,
	})
	if err != nil {
		return translate(err)
	}
	return nil
}

// rawFromSlack maps a Slack API message onto the pipeline's raw record.
func rawFromSlack(m slack.Message) models.RawMessage {
	raw := models.RawMessage{
		TS:         m.Timestamp,
		User:       m.User,
		Username:   m.Username,
		Text:       m.Text,
		ThreadTS:   m.ThreadTimestamp,
		ReplyCount: m.ReplyCount,
	}
	for _, r := range m.Reactions {
		raw.Reactions = append(raw.Reactions, models.RawReaction{
			Name:  r.Name,
			Count: r.Count,
			Users: r.Users,
		})
	}
	for _, f := range m.Files {
		raw.Files = append(raw.Files, models.RawFile{
			Filetype:   f.Filetype,
			Size:       int64(f.Size),
			URLPrivate: f.URLPrivate,
		})
	}
	return raw
}

// formatTS renders a time as the API's seconds.microseconds timestamp.
// The zero time renders empty, meaning "unbounded".
func formatTS(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

// translate maps library errors onto the executor's classification so
// rate-limit hints survive the adapter boundary.
func translate(err error) error {
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		return &retry.RateLimitedError{RetryAfter: rle.RetryAfter, Err: err}
	}
	return err
}

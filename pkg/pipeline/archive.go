package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/slacklytics/slacklytics/pkg/logger"
	"github.com/slacklytics/slacklytics/pkg/models"
)

// ArchiveSource serves a channel's exported message history from disk
// as a paginated Source: one export file per page, read lazily so large
// archives never load whole. Export files are the platform's per-day
// JSON arrays of raw message records; thread replies appear inline in
// the day files, so Replies always returns an empty page.
type ArchiveSource struct {
	dir string

	// SkipErrors drops records that fail to decode instead of failing
	// the file.
	SkipErrors bool

	files []string
}

// NewArchiveSource creates a source over the export files in dir.
func NewArchiveSource(dir string) *ArchiveSource {
	return &ArchiveSource{dir: dir, SkipErrors: true}
}

func (a *ArchiveSource) fileList() ([]string, error) {
	if a.files != nil {
		return a.files, nil
	}
	files, err := filepath.Glob(filepath.Join(a.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list export files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no export files found in %s", a.dir)
	}
	sort.Strings(files)
	a.files = files
	return a.files, nil
}

// History implements Source. The continuation cursor is the index of
// the next export file.
func (a *ArchiveSource) History(ctx context.Context, channelID string, opts HistoryOptions) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	files, err := a.fileList()
	if err != nil {
		return Page{}, err
	}

	idx := 0
	if opts.Cursor != "" {
		idx, err = strconv.Atoi(opts.Cursor)
		if err != nil || idx < 0 || idx >= len(files) {
			return Page{}, fmt.Errorf("invalid archive cursor %q", opts.Cursor)
		}
	}

	records, err := a.readFile(files[idx])
	if err != nil {
		return Page{}, err
	}

	page := Page{Messages: make([]models.RawMessage, 0, len(records))}
	for _, raw := range records {
		if !a.inWindow(raw.TS, opts) {
			continue
		}
		page.Messages = append(page.Messages, raw)
	}
	if idx+1 < len(files) {
		page.NextCursor = strconv.Itoa(idx + 1)
	}
	return page, nil
}

// Replies implements Source. Export files carry replies inline, so
// there is nothing further to expand.
func (a *ArchiveSource) Replies(ctx context.Context, channelID, threadTS, cursor string) (Page, error) {
	return Page{}, nil
}

func (a *ArchiveSource) readFile(path string) ([]models.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	defer f.Close()

	// Decode element by element so one bad record can be skipped
	// without discarding the file.
	var elems []json.RawMessage
	if err := json.NewDecoder(f).Decode(&elems); err != nil {
		return nil, fmt.Errorf("parse export file %s: %w", filepath.Base(path), err)
	}

	records := make([]models.RawMessage, 0, len(elems))
	for i, elem := range elems {
		var raw models.RawMessage
		if err := json.Unmarshal(elem, &raw); err != nil {
			if a.SkipErrors {
				logger.L().Warn("skipping undecodable export record",
					"file", filepath.Base(path), "record", i, "err", err)
				continue
			}
			return nil, fmt.Errorf("parse record %d in %s: %w", i, filepath.Base(path), err)
		}
		records = append(records, raw)
	}
	return records, nil
}

// inWindow filters by the raw timestamp. Records whose timestamp does
// not parse pass through so the pipeline can account for them as
// malformed input.
func (a *ArchiveSource) inWindow(ts string, opts HistoryOptions) bool {
	t, err := models.ParseTS(ts)
	if err != nil {
		return true
	}
	if !opts.Oldest.IsZero() && t.Before(opts.Oldest) {
		return false
	}
	if !opts.Latest.IsZero() && t.After(opts.Latest) {
		return false
	}
	return true
}

package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"Pattas/internal/domain/models"
	applogger "Pattas/pkg/logger"
	"Pattas/pkg/util"
)

const (
	legacyNewsTitle     = "Latest News"
	legacyNewsPublisher = "External"
)

// NewsFile reads the ticker -> headlines sidecar written by the analysis
// script. Each value is either a list of news items or, in files written by
// older script versions, a bare link string.
type NewsFile struct {
	path string
	l    *applogger.Logger
}

func NewNewsFile(path string, l *applogger.Logger) *NewsFile {
	if l == nil {
		l = applogger.NewNop()
	}
	return &NewsFile{path: path, l: l}
}

// Load returns the parsed index. A missing file is an empty index. A file
// that is not a JSON object returns an error along with an empty index.
func (f *NewsFile) Load(ctx context.Context) (models.NewsIndex, error) {
	if err := ctx.Err(); err != nil {
		return models.NewsIndex{}, err
	}

	info, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.l.Debug("news file not found", applogger.String("path", f.path))
		return models.NewsIndex{}, nil
	}
	if err != nil {
		return models.NewsIndex{}, fmt.Errorf("stat news file: %w", err)
	}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		return models.NewsIndex{}, fmt.Errorf("read news file: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return models.NewsIndex{}, fmt.Errorf("parse news file: %w", err)
	}

	// Legacy entries carry no timestamp; the file's mtime keeps repeated
	// reads of an unchanged file identical.
	legacyTime := util.UnixSeconds(info.ModTime())

	index := make(models.NewsIndex, len(entries))
	for ticker, value := range entries {
		if items, ok := f.parseEntry(ticker, value, legacyTime); ok {
			index[ticker] = items
		}
	}
	return index, nil
}

func (f *NewsFile) parseEntry(ticker string, value json.RawMessage, legacyTime float64) ([]models.NewsItem, bool) {
	value = bytes.TrimSpace(value)
	if len(value) == 0 {
		return nil, false
	}

	switch value[0] {
	case '[':
		var rawItems []json.RawMessage
		if err := json.Unmarshal(value, &rawItems); err != nil {
			f.l.Warn("news entry is not a list", applogger.String("ticker", ticker), applogger.Error(err))
			return nil, false
		}
		items := make([]models.NewsItem, 0, len(rawItems))
		for _, ri := range rawItems {
			var item models.NewsItem
			if err := json.Unmarshal(ri, &item); err != nil {
				f.l.Warn("skipping malformed news item", applogger.String("ticker", ticker), applogger.Error(err))
				continue
			}
			items = append(items, item)
		}
		return items, true
	case '"':
		var link string
		if err := json.Unmarshal(value, &link); err != nil {
			return nil, false
		}
		return []models.NewsItem{{
			Title:     legacyNewsTitle,
			Link:      link,
			Publisher: legacyNewsPublisher,
			Time:      legacyTime,
		}}, true
	default:
		return nil, false
	}
}

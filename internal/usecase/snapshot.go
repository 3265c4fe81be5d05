package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"Pattas/internal/domain/models"
	domrepo "Pattas/internal/domain/repository"
	applogger "Pattas/pkg/logger"
	"Pattas/pkg/util"
)

// ErrNoSnapshot means the signal table has no dated rows yet.
var ErrNoSnapshot = errors.New("no snapshot available")

const (
	SortAsc  = "asc"
	SortDesc = "desc"

	defaultSortKey = "ticker_symbol"
)

// SnapshotService reads the latest screening snapshot and merges the news
// sidecar into it.
type SnapshotService struct {
	store   domrepo.SnapshotStore
	news    domrepo.NewsSource
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewSnapshotService(store domrepo.SnapshotStore, news domrepo.NewsSource, metrics domrepo.Metrics, l *applogger.Logger) *SnapshotService {
	if l == nil {
		l = applogger.NewNop()
	}
	return &SnapshotService{store: store, news: news, metrics: metrics, log: l}
}

// Latest returns the rows of the most recent date grouped by sector.
func (s *SnapshotService) Latest(ctx context.Context) (*models.Snapshot, error) {
	date, rows, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]models.TickerSnapshot)
	for _, row := range rows {
		key := row.SectorKey()
		grouped[key] = append(grouped[key], row)
	}
	return &models.Snapshot{Sectors: grouped, Date: date}, nil
}

// Table returns the same rows flattened and sorted by one column. Rows
// with a null value in that column always go last; equal values fall back
// to ticker order.
func (s *SnapshotService) Table(ctx context.Context, sortKey, order string) (*models.SnapshotTable, error) {
	if sortKey == "" {
		sortKey = defaultSortKey
	}
	if order == "" {
		order = SortAsc
	}
	get, ok := sortColumns[sortKey]
	if !ok {
		return nil, fmt.Errorf("unknown sort column %q", sortKey)
	}

	date, rows, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	desc := order == SortDesc
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := get(&rows[i]), get(&rows[j])
		switch {
		case a.null && b.null:
			return rows[i].TickerSymbol < rows[j].TickerSymbol
		case a.null:
			return false
		case b.null:
			return true
		}
		c := a.compare(b)
		if c == 0 {
			return rows[i].TickerSymbol < rows[j].TickerSymbol
		}
		if desc {
			return c > 0
		}
		return c < 0
	})

	return &models.SnapshotTable{Rows: rows, Date: date, Sort: sortKey, Order: order}, nil
}

func (s *SnapshotService) load(ctx context.Context) (string, []models.TickerSnapshot, error) {
	start := time.Now()
	defer func() { s.metrics.RecordLatency("snapshot_read", time.Since(start).Seconds()) }()

	date, ok, err := s.store.LatestDate(ctx)
	if err != nil {
		s.metrics.RecordSnapshotRead("error", 0)
		return "", nil, fmt.Errorf("latest snapshot date: %w", err)
	}
	if !ok {
		s.metrics.RecordSnapshotRead("empty", 0)
		return "", nil, ErrNoSnapshot
	}

	rows, err := s.store.Rows(ctx, date)
	if err != nil {
		s.metrics.RecordSnapshotRead("error", 0)
		return "", nil, fmt.Errorf("snapshot rows: %w", err)
	}

	index, err := s.news.Load(ctx)
	if err != nil {
		s.metrics.RecordError("news_file")
		s.log.Warn("news file unreadable, serving snapshot without news", applogger.Error(err))
		index = models.NewsIndex{}
	}
	for i := range rows {
		if items, ok := index[rows[i].TickerSymbol]; ok {
			rows[i].NewsList = items
		} else {
			rows[i].NewsList = []models.NewsItem{}
		}
	}

	s.metrics.RecordSnapshotRead("ok", len(rows))
	return util.NormalizeDate(date), rows, nil
}

type sortValue struct {
	null bool
	num  float64
	str  string
	text bool
}

func (a sortValue) compare(b sortValue) int {
	if a.text {
		return strings.Compare(a.str, b.str)
	}
	switch {
	case a.num < b.num:
		return -1
	case a.num > b.num:
		return 1
	}
	return 0
}

func num(f *float64) sortValue {
	if f == nil {
		return sortValue{null: true}
	}
	return sortValue{num: *f}
}

func text(s *string) sortValue {
	if s == nil {
		return sortValue{null: true, text: true}
	}
	return sortValue{str: *s, text: true}
}

var sortColumns = map[string]func(*models.TickerSnapshot) sortValue{
	"ticker_symbol":     func(t *models.TickerSnapshot) sortValue { return text(&t.TickerSymbol) },
	"company_name":      func(t *models.TickerSnapshot) sortValue { return text(t.CompanyName) },
	"sector":            func(t *models.TickerSnapshot) sortValue { return text(t.Sector) },
	"market_cap":        func(t *models.TickerSnapshot) sortValue { return num(t.MarketCap) },
	"p_e_ratio":         func(t *models.TickerSnapshot) sortValue { return num(t.PERatio) },
	"fii_pct":           func(t *models.TickerSnapshot) sortValue { return num(t.FIIPct) },
	"dii_pct":           func(t *models.TickerSnapshot) sortValue { return num(t.DIIPct) },
	"owner_pct":         func(t *models.TickerSnapshot) sortValue { return num(t.OwnerPct) },
	"price":             func(t *models.TickerSnapshot) sortValue { return num(t.Price) },
	"rsi":               func(t *models.TickerSnapshot) sortValue { return num(t.RSI) },
	"macd_signal":       func(t *models.TickerSnapshot) sortValue { return text(t.MACDSignal) },
	"sentiment_score":   func(t *models.TickerSnapshot) sortValue { return num(t.SentimentScore) },
	"status":            func(t *models.TickerSnapshot) sortValue { return text(t.Status) },
	"held_pct_insiders": func(t *models.TickerSnapshot) sortValue { return num(t.HeldPctInsiders) },
	"trailing_pe":       func(t *models.TickerSnapshot) sortValue { return num(t.TrailingPE) },
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"Pattas/internal/domain/models"
	applogger "Pattas/pkg/logger"

	_ "modernc.org/sqlite"
)

const (
	latestDateQuery = `SELECT MAX(date) AS max_date FROM daily_signals`

	snapshotRowsQuery = `
        SELECT
            p.ticker_symbol, p.company_name, p.sector, p.market_cap, p.p_e_ratio,
            p.fii_pct, p.dii_pct, p.owner_pct,
            d.price, d.rsi, d.macd_signal, d.sentiment_score, d.status,
            d.held_pct_insiders, d.trailing_pe
        FROM pattas_list p
        LEFT JOIN daily_signals d ON p.ticker_symbol = d.ticker_symbol
        WHERE d.date = ?
        ORDER BY COALESCE(NULLIF(p.sector, ''), 'Uncategorized') ASC, p.company_name ASC
    `
)

// SQLiteSnapshotStore reads the screening database written by the analysis
// scripts. The connection is opened read-only; the scripts may be writing
// concurrently, so readers wait on the busy timeout instead of failing.
type SQLiteSnapshotStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewSQLiteSnapshotStore(path string, busyTimeout time.Duration, l *applogger.Logger) (*SQLiteSnapshotStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}
	db, err := sql.Open("sqlite", sqliteDSN(path, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(time.Minute)

	if l == nil {
		l = applogger.NewNop()
	}
	return &SQLiteSnapshotStore{db: db, l: l}, nil
}

func sqliteDSN(path string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Set("mode", "ro")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "query_only(1)")
	return "file:" + path + "?" + q.Encode()
}

// LatestDate returns MAX(date) exactly as stored, so Rows can match on it.
func (s *SQLiteSnapshotStore) LatestDate(ctx context.Context) (string, bool, error) {
	var maxDate sql.NullString
	if err := s.db.QueryRowContext(ctx, latestDateQuery).Scan(&maxDate); err != nil {
		s.l.Error("sqlite latest_date query error", applogger.Error(err))
		return "", false, fmt.Errorf("latest date: %w", err)
	}
	if !maxDate.Valid || maxDate.String == "" {
		return "", false, nil
	}
	return maxDate.String, true, nil
}

func (s *SQLiteSnapshotStore) Rows(ctx context.Context, date string) ([]models.TickerSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, snapshotRowsQuery, date)
	if err != nil {
		s.l.Error("sqlite snapshot query error",
			applogger.String("date", date),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("snapshot rows: %w", err)
	}
	defer rows.Close()

	out := make([]models.TickerSnapshot, 0, 256)
	for rows.Next() {
		var (
			t                                         models.TickerSnapshot
			company, sector, macd, status             sql.NullString
			mcap, pe, fii, dii, owner                 sql.NullFloat64
			price, rsi, sentiment, insiders, trailing sql.NullFloat64
		)
		if err := rows.Scan(
			&t.TickerSymbol, &company, &sector, &mcap, &pe,
			&fii, &dii, &owner,
			&price, &rsi, &macd, &sentiment, &status,
			&insiders, &trailing,
		); err != nil {
			s.l.Error("sqlite snapshot scan error",
				applogger.String("date", date),
				applogger.Error(err),
			)
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}

		t.CompanyName = nullString(company)
		t.Sector = nullString(sector)
		t.MarketCap = nullFloat(mcap)
		t.PERatio = nullFloat(pe)
		t.FIIPct = nullFloat(fii)
		t.DIIPct = nullFloat(dii)
		t.OwnerPct = nullFloat(owner)
		t.Price = nullFloat(price)
		t.RSI = nullFloat(rsi)
		t.MACDSignal = nullString(macd)
		t.SentimentScore = nullFloat(sentiment)
		t.Status = nullString(status)
		t.HeldPctInsiders = nullFloat(insiders)
		t.TrailingPE = nullFloat(trailing)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("sqlite snapshot rows error",
			applogger.String("date", date),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteSnapshotStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteSnapshotStore) Close() error {
	return s.db.Close()
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"Pattas/internal/domain/models"
	"Pattas/pkg/cache"

	"github.com/alicebob/miniredis/v2"
)

const fixtureSchema = `
CREATE TABLE pattas_list (
    ticker_symbol TEXT PRIMARY KEY,
    company_name  TEXT,
    sector        TEXT,
    market_cap    REAL,
    p_e_ratio     REAL,
    fii_pct       REAL,
    dii_pct       REAL,
    owner_pct     REAL
);
CREATE TABLE daily_signals (
    ticker_symbol     TEXT,
    date              TEXT,
    price             REAL,
    rsi               REAL,
    macd_signal       TEXT,
    sentiment_score   REAL,
    status            TEXT,
    held_pct_insiders REAL,
    trailing_pe       REAL
);
`

func newFixtureDB(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pattas_list.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer db.Close()

	for _, stmt := range append([]string{fixtureSchema}, stmts...) {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return path
}

func openStore(t *testing.T, path string) *SQLiteSnapshotStore {
	t.Helper()
	s, err := NewSQLiteSnapshotStore(path, time.Second, nil)
	if err != nil {
		t.Fatalf("NewSQLiteSnapshotStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLatestDateEmptyTable(t *testing.T) {
	s := openStore(t, newFixtureDB(t))

	date, ok, err := s.LatestDate(context.Background())
	if err != nil {
		t.Fatalf("LatestDate: %v", err)
	}
	if ok || date != "" {
		t.Errorf("LatestDate() = %q, %v; want no date", date, ok)
	}
}

func TestRowsAtLatestDate(t *testing.T) {
	path := newFixtureDB(t,
		`INSERT INTO pattas_list VALUES ('TCS.NS', 'Tata Consultancy', 'IT', 1.4e13, 30.1, 12.5, 10.2, 72.3)`,
		`INSERT INTO pattas_list VALUES ('INFY.NS', 'Infosys', 'IT', 6.1e12, 24.0, 33.0, 35.1, 14.9)`,
		`INSERT INTO pattas_list (ticker_symbol, company_name) VALUES ('XYZ.BO', 'Xyz Ltd')`,
		`INSERT INTO pattas_list (ticker_symbol, company_name, sector) VALUES ('OLD.NS', 'Old Co', 'Energy')`,
		`INSERT INTO daily_signals VALUES ('TCS.NS', '2024-05-02', 3900.5, 61.2, 'Bullish Crossover', 0.25, 'BUY', 0.7, 29.8)`,
		`INSERT INTO daily_signals VALUES ('INFY.NS', '2024-05-02', 1420, 48, 'Neutral', NULL, 'HOLD', NULL, NULL)`,
		`INSERT INTO daily_signals (ticker_symbol, date, price) VALUES ('XYZ.BO', '2024-05-02', 10)`,
		`INSERT INTO daily_signals (ticker_symbol, date, price) VALUES ('OLD.NS', '2024-05-01', 55)`,
	)
	s := openStore(t, path)
	ctx := context.Background()

	date, ok, err := s.LatestDate(ctx)
	if err != nil || !ok {
		t.Fatalf("LatestDate() = %q, %v, %v", date, ok, err)
	}
	if date != "2024-05-02" {
		t.Fatalf("date = %q, want 2024-05-02", date)
	}

	rows, err := s.Rows(ctx, date)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3 (OLD.NS has no signal at the latest date)", len(rows))
	}

	// IT by company name, then the NULL sector under its display name.
	wantOrder := []string{"INFY.NS", "TCS.NS", "XYZ.BO"}
	for i, want := range wantOrder {
		if rows[i].TickerSymbol != want {
			t.Errorf("rows[%d] = %s, want %s", i, rows[i].TickerSymbol, want)
		}
	}

	infy := rows[0]
	if infy.Price == nil || *infy.Price != 1420 {
		t.Errorf("INFY price = %v", infy.Price)
	}
	if infy.SentimentScore != nil || infy.TrailingPE != nil {
		t.Error("NULL columns should scan as nil")
	}
	if infy.MACDSignal == nil || *infy.MACDSignal != "Neutral" {
		t.Errorf("INFY macd_signal = %v", infy.MACDSignal)
	}
	if rows[2].Sector != nil || rows[2].SectorKey() != models.UncategorizedSector {
		t.Errorf("XYZ sector = %v", rows[2].Sector)
	}
}

func TestRowsMatchDatetimeShapedDate(t *testing.T) {
	path := newFixtureDB(t,
		`INSERT INTO pattas_list VALUES ('TCS.NS', 'Tata Consultancy', 'IT', 1.4e13, 30.1, 12.5, 10.2, 72.3)`,
		`INSERT INTO daily_signals (ticker_symbol, date, price) VALUES ('TCS.NS', '2024-05-01 00:00:00', 3880)`,
		`INSERT INTO daily_signals (ticker_symbol, date, price) VALUES ('TCS.NS', '2024-05-02 00:00:00', 3900.5)`,
	)
	s := openStore(t, path)
	ctx := context.Background()

	date, ok, err := s.LatestDate(ctx)
	if err != nil || !ok {
		t.Fatalf("LatestDate() = %q, %v, %v", date, ok, err)
	}
	if date != "2024-05-02 00:00:00" {
		t.Errorf("date = %q, want the stored value", date)
	}

	rows, err := s.Rows(ctx, date)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 1 || rows[0].Price == nil || *rows[0].Price != 3900.5 {
		t.Fatalf("rows = %+v, want the single 2024-05-02 signal", rows)
	}
}

func TestRowsUncategorizedOrderedByCompany(t *testing.T) {
	path := newFixtureDB(t,
		`INSERT INTO pattas_list (ticker_symbol, company_name, sector) VALUES ('ZZ.NS', 'Zeta Ltd', NULL)`,
		`INSERT INTO pattas_list (ticker_symbol, company_name, sector) VALUES ('AA.NS', 'Alpha Ltd', '')`,
		`INSERT INTO pattas_list (ticker_symbol, company_name, sector) VALUES ('MM.NS', 'Mid Ltd', 'Uncategorized')`,
		`INSERT INTO pattas_list (ticker_symbol, company_name, sector) VALUES ('BK.NS', 'Bank Ltd', 'Banking')`,
		`INSERT INTO daily_signals (ticker_symbol, date, price) VALUES ('ZZ.NS', '2024-05-02', 1)`,
		`INSERT INTO daily_signals (ticker_symbol, date, price) VALUES ('AA.NS', '2024-05-02', 2)`,
		`INSERT INTO daily_signals (ticker_symbol, date, price) VALUES ('MM.NS', '2024-05-02', 3)`,
		`INSERT INTO daily_signals (ticker_symbol, date, price) VALUES ('BK.NS', '2024-05-02', 4)`,
	)
	s := openStore(t, path)

	rows, err := s.Rows(context.Background(), "2024-05-02")
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}

	var got []string
	for _, r := range rows {
		got = append(got, r.SectorKey()+":"+*r.CompanyName)
	}
	want := []string{
		"Banking:Bank Ltd",
		"Uncategorized:Alpha Ltd",
		"Uncategorized:Mid Ltd",
		"Uncategorized:Zeta Ltd",
	}
	if len(got) != len(want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rows = %v, want %v", got, want)
			break
		}
	}
}

func TestSnapshotStoreIsReadOnly(t *testing.T) {
	s := openStore(t, newFixtureDB(t))

	_, err := s.db.Exec(`INSERT INTO pattas_list (ticker_symbol) VALUES ('NEW.NS')`)
	if err == nil {
		t.Fatal("expected write to a read-only store to fail")
	}
}

func writeNews(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "news_links.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewsFileFormats(t *testing.T) {
	path := writeNews(t, `{
  "TCS.NS": [{"title": "TCS wins deal", "link": "https://example.com/tcs", "publisher": "Reuters", "time": 1714600000}],
  "INFY.NS": "https://www.google.com/search?q=INFY+share+news&tbm=nws",
  "BAD.NS": 42
}`)
	mtime := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	index, err := NewNewsFile(path, nil).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tcs := index["TCS.NS"]
	if len(tcs) != 1 || tcs[0].Publisher != "Reuters" || tcs[0].Time != 1714600000 {
		t.Errorf("TCS news = %+v", tcs)
	}

	infy := index["INFY.NS"]
	if len(infy) != 1 {
		t.Fatalf("INFY news = %+v", infy)
	}
	if infy[0].Title != "Latest News" || infy[0].Publisher != "External" ||
		infy[0].Link != "https://www.google.com/search?q=INFY+share+news&tbm=nws" {
		t.Errorf("legacy entry = %+v", infy[0])
	}
	if infy[0].Time != float64(mtime.Unix()) {
		t.Errorf("legacy time = %v, want file mtime %d", infy[0].Time, mtime.Unix())
	}

	if _, ok := index["BAD.NS"]; ok {
		t.Error("non list, non string entry should be dropped")
	}
}

func TestNewsFileMissingAndMalformed(t *testing.T) {
	ctx := context.Background()

	index, err := NewNewsFile(filepath.Join(t.TempDir(), "absent.json"), nil).Load(ctx)
	if err != nil || len(index) != 0 {
		t.Errorf("missing file: index=%v err=%v", index, err)
	}

	index, err = NewNewsFile(writeNews(t, `{"TCS.NS": [`), nil).Load(ctx)
	if err == nil {
		t.Error("malformed file should report an error")
	}
	if index == nil || len(index) != 0 {
		t.Errorf("malformed file should still yield an empty index, got %v", index)
	}
}

func cacheBackends(t *testing.T) map[string]cache.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(cache.WithRedisAddr(mr.Addr()), cache.WithRedisPrefix("pattas"))
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	mc := cache.NewMemoryCache()
	t.Cleanup(func() {
		_ = rc.Close()
		_ = mc.Close()
	})
	return map[string]cache.Service{"redis": rc, "memory": mc}
}

func TestCacheRunLock(t *testing.T) {
	for name, c := range cacheBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			lock := NewCacheRunLock(c, time.Minute)

			ok, err := lock.Acquire(ctx, "run-a")
			if err != nil || !ok {
				t.Fatalf("first Acquire = %v, %v", ok, err)
			}
			if ok, _ := lock.Acquire(ctx, "run-b"); ok {
				t.Fatal("second Acquire must fail while held")
			}
			if held, _ := lock.Held(ctx); !held {
				t.Error("Held() = false while locked")
			}
			if ok, _ := lock.Refresh(ctx, "run-b"); ok {
				t.Error("non-owner must not refresh the lock")
			}
			if ok, _ := lock.Refresh(ctx, "run-a"); !ok {
				t.Error("owner should refresh the lock")
			}

			// A stale release by someone else leaves the lock in place.
			_ = lock.Release(ctx, "run-b")
			if held, _ := lock.Held(ctx); !held {
				t.Error("lock released by non-owner")
			}

			if err := lock.Release(ctx, "run-a"); err != nil {
				t.Fatalf("Release: %v", err)
			}
			if ok, _ := lock.Acquire(ctx, "run-b"); !ok {
				t.Error("Acquire after release should succeed")
			}
		})
	}
}

func TestCacheLastRun(t *testing.T) {
	for name, c := range cacheBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := NewCacheLastRun(c, 0)

			last, err := store.Last(ctx)
			if err != nil || last != nil {
				t.Fatalf("Last() on empty cache = %v, %v", last, err)
			}

			code := 0
			finished := time.Now().UTC().Truncate(time.Millisecond)
			run := &models.Run{ID: "r1", Trigger: models.TriggerHTTP, ExitCode: &code, FinishedAt: &finished}
			if err := store.SaveLast(ctx, run); err != nil {
				t.Fatalf("SaveLast: %v", err)
			}

			last, err = store.Last(ctx)
			if err != nil || last == nil {
				t.Fatalf("Last() = %v, %v", last, err)
			}
			if last.ID != "r1" || last.ExitCode == nil || *last.ExitCode != 0 || !last.FinishedAt.Equal(finished) {
				t.Errorf("Last() = %+v", last)
			}
		})
	}
}

func TestMemoryRunStoreRing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRunStore(3)

	if runs, _ := s.Recent(ctx, 10); len(runs) != 0 {
		t.Fatalf("empty store returned %d runs", len(runs))
	}

	for _, id := range []string{"r1", "r2", "r3", "r4"} {
		if err := s.Save(ctx, &models.Run{ID: id}); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]string, len(runs))
	for i, r := range runs {
		got[i] = r.ID
	}
	if len(got) != 3 || got[0] != "r4" || got[1] != "r3" || got[2] != "r2" {
		t.Errorf("Recent() = %v, want [r4 r3 r2]", got)
	}

	if runs, _ := s.Recent(ctx, 1); len(runs) != 1 || runs[0].ID != "r4" {
		t.Errorf("Recent(1) = %+v", runs)
	}
}

type recordingProducer struct {
	topic string
	key   []byte
	value interface{}
	err   error
}

func (p *recordingProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

func TestKafkaRunPublisher(t *testing.T) {
	prod := &recordingProducer{}
	pub := NewKafkaRunPublisher(prod, "pattas.runs")

	event := models.RunEvent{Type: models.RunStarted, Run: models.Run{ID: "run-42"}, At: time.Now()}
	if err := pub.Publish(context.Background(), event); err != nil {
		t.Fatal(err)
	}
	if prod.topic != "pattas.runs" || string(prod.key) != "run-42" {
		t.Errorf("published to %s key %s", prod.topic, prod.key)
	}
	raw, _ := json.Marshal(prod.value)
	var decoded models.RunEvent
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.Type != models.RunStarted {
		t.Errorf("payload = %s", raw)
	}

	prod.err = errors.New("broker down")
	if err := pub.Publish(context.Background(), event); err == nil {
		t.Error("producer error should propagate")
	}
}

func TestKafkaLogPublisher(t *testing.T) {
	prod := &recordingProducer{}
	pub := NewKafkaLogPublisher(prod)

	if err := pub.PublishMessage(context.Background(), "pattas.logs", []string{"boom"}); err != nil {
		t.Fatal(err)
	}
	if prod.topic != "pattas.logs" || prod.key != nil {
		t.Errorf("published to %s key %v", prod.topic, prod.key)
	}
}

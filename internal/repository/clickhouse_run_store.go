package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"Pattas/internal/domain/models"
	pkgch "Pattas/pkg/clickhouse"
	applogger "Pattas/pkg/logger"
)

const runsTable = "analysis_runs"

// RunSchema is the DDL for the run history table.
var RunSchema = []string{
	`CREATE TABLE IF NOT EXISTS analysis_runs (
        id           String,
        trigger      LowCardinality(String),
        command      String,
        started_at   DateTime64(3),
        finished_at  DateTime64(3),
        exit_code    Nullable(Int32),
        fatal_error  String,
        canceled     UInt8,
        result       LowCardinality(String),
        stdout_bytes Int64,
        stderr_bytes Int64,
        chunks       Int32
    ) ENGINE = MergeTree
    ORDER BY (started_at, id)
    TTL toDateTime(started_at) + INTERVAL 180 DAY`,
}

// ClickHouseRunStore keeps run history in ClickHouse.
type ClickHouseRunStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewClickHouseRunStore(ch *pkgch.Client, l *applogger.Logger) *ClickHouseRunStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &ClickHouseRunStore{db: ch.DB(), l: l}
}

func (s *ClickHouseRunStore) Save(ctx context.Context, run *models.Run) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, trigger, command, started_at, finished_at, exit_code,
        fatal_error, canceled, result, stdout_bytes, stderr_bytes, chunks)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, runsTable)

	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	var exitCode *int32
	if run.ExitCode != nil {
		c := int32(*run.ExitCode)
		exitCode = &c
	}
	var canceled uint8
	if run.Canceled {
		canceled = 1
	}

	// clickhouse-go only sends an INSERT inside a transaction (batch).
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run insert: %w", err)
	}
	_, err = tx.ExecContext(ctx, q,
		run.ID,
		string(run.Trigger),
		run.Command,
		run.StartedAt,
		finished,
		exitCode,
		run.FatalError,
		canceled,
		run.Result(),
		run.StdoutBytes,
		run.StderrBytes,
		int32(run.Chunks),
	)
	if err != nil {
		_ = tx.Rollback()
		s.l.Error("clickhouse save_run error", applogger.String("run_id", run.ID), applogger.Error(err))
		return fmt.Errorf("insert run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.l.Error("clickhouse save_run commit error", applogger.String("run_id", run.ID), applogger.Error(err))
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

func (s *ClickHouseRunStore) Recent(ctx context.Context, limit int) ([]models.Run, error) {
	q := fmt.Sprintf(`SELECT id, trigger, command, started_at, finished_at, exit_code,
        fatal_error, canceled, stdout_bytes, stderr_bytes, chunks
        FROM %s ORDER BY started_at DESC LIMIT ?`, runsTable)

	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		s.l.Error("clickhouse recent_runs query error", applogger.Int("limit", limit), applogger.Error(err))
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	out := make([]models.Run, 0, limit)
	for rows.Next() {
		var (
			r        models.Run
			trigger  string
			finished time.Time
			exitCode sql.NullInt32
			canceled uint8
			chunks   int32
		)
		if err := rows.Scan(&r.ID, &trigger, &r.Command, &r.StartedAt, &finished, &exitCode,
			&r.FatalError, &canceled, &r.StdoutBytes, &r.StderrBytes, &chunks); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Trigger = models.Trigger(trigger)
		r.FinishedAt = &finished
		if exitCode.Valid {
			c := int(exitCode.Int32)
			r.ExitCode = &c
		}
		r.Canceled = canceled == 1
		r.Chunks = int(chunks)
		out = append(out, r)
	}
	return out, rows.Err()
}

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hazyhaar/stockwatch/stock"
)

// SQLite is the local backend.
//
// Pragmas applied on open:
//
//	journal_mode = WAL
//	busy_timeout = 10000
//	synchronous  = NORMAL
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating parent directories) the database at path.
// ":memory:" is accepted and pinned to a single connection.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}
	// Each connection to ":memory:" is a separate database, and a single
	// writer avoids SQLITE_BUSY churn for a file too.
	db.SetMaxOpenConns(1)

	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", p, err)
		}
	}

	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := execRetry(ctx, s.db, stmt); err != nil {
			return fmt.Errorf("history: ensure schema: %w", err)
		}
	}
	s.logger.Info("history: schema verified", "backend", "sqlite")
	return nil
}

func (s *SQLite) Append(ctx context.Context, name string, rarity stock.Rarity) error {
	_, err := execRetry(ctx, s.db,
		`INSERT INTO fruit_history (fruit_name, rarity) VALUES (?, ?)`,
		name, string(rarity))
	if err != nil {
		return fmt.Errorf("history: append %s: %w", name, err)
	}
	return nil
}

func (s *SQLite) RecordRun(ctx context.Context, run Run) error {
	_, err := execRetry(ctx, s.db, `
		INSERT INTO stock_runs (
			run_id, started_at, finished_at, outcome, extracted, skipped,
			unrecognized, baseline, persisted, persist_failures, alerted,
			alert_failures, degraded, error
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.RunID, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.Outcome,
		run.Extracted, run.Skipped, run.Unrecognized, run.Baseline, run.Persisted,
		run.PersistFailures, run.Alerted, run.AlertFailures, run.Degraded, run.Error)
	if err != nil {
		return fmt.Errorf("history: record run: %w", err)
	}
	return nil
}

// Recent returns sightings newest first. limit <= 0 returns everything.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Record, error) {
	q := recentQuery
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var rarity, detected string
		if err := rows.Scan(&r.ID, &r.FruitName, &rarity, &detected); err != nil {
			return nil, fmt.Errorf("history: scan recent: %w", err)
		}
		r.Rarity = stock.Rarity(rarity)
		r.DetectedAt, err = time.Parse(time.RFC3339Nano, detected)
		if err != nil {
			return nil, fmt.Errorf("history: parse detected_at %q: %w", detected, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of sightings in the log.
func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, countQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}

func (s *SQLite) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("history: close sqlite", "error", err)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

const busyRetries = 3

// isBusy reports whether err carries a BUSY or LOCKED primary result code.
// Extended codes such as SQLITE_BUSY_SNAPSHOT share the low byte.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// execRetry retries on SQLITE_BUSY with 100/200 ms backoff.
func execRetry(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	for i := range busyRetries {
		res, err := db.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		if !isBusy(err) || i == busyRetries-1 {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(100*(i+1)) * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("history: exec: retries exhausted")
}

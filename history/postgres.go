package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hazyhaar/stockwatch/stock"
)

// Postgres is the hosted backend. The pool connects lazily: OpenPostgres
// never dials, so connectivity problems surface from EnsureSchema.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres creates a pool for dsn. Each operation acquires its own
// connection and autocommits before returning.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history: parse postgres dsn: %w", err)
	}
	// One run at a time; a couple of connections is plenty.
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history: postgres pool: %w", err)
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("history: ensure schema: %w", err)
		}
	}
	p.logger.Info("history: schema verified", "backend", "postgres")
	return nil
}

func (p *Postgres) Append(ctx context.Context, name string, rarity stock.Rarity) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO fruit_history (fruit_name, rarity) VALUES ($1, $2)`,
		name, string(rarity))
	if err != nil {
		return fmt.Errorf("history: append %s: %w", name, err)
	}
	return nil
}

func (p *Postgres) RecordRun(ctx context.Context, run Run) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO stock_runs (
			run_id, started_at, finished_at, outcome, extracted, skipped,
			unrecognized, baseline, persisted, persist_failures, alerted,
			alert_failures, degraded, error
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		run.RunID, run.StartedAt, run.FinishedAt, run.Outcome, run.Extracted, run.Skipped,
		run.Unrecognized, run.Baseline, run.Persisted, run.PersistFailures, run.Alerted,
		run.AlertFailures, run.Degraded, run.Error)
	if err != nil {
		return fmt.Errorf("history: record run: %w", err)
	}
	return nil
}

// Recent returns sightings newest first. limit <= 0 returns everything.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Record, error) {
	q := recentQuery
	var args []any
	if limit > 0 {
		q += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		var rarity string
		if err := row.Scan(&r.ID, &r.FruitName, &rarity, &r.DetectedAt); err != nil {
			return r, err
		}
		r.Rarity = stock.Rarity(rarity)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: scan recent: %w", err)
	}
	return recs, nil
}

// Count returns the number of sightings in the log.
func (p *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, countQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// Package history is the append-only sighting log.
//
// Every non-baseline entry seen on a run becomes one fruit_history row with
// a store-assigned detected_at. Rows are never updated or deleted and there
// is no uniqueness constraint: the table records sightings, not state.
//
// Two backends share the schema contract: Postgres (pgx pool, used against
// the hosted database) and SQLite (modernc, local runs and tests).
package history

import (
	"context"
	"time"

	"github.com/hazyhaar/stockwatch/stock"
)

// Table is the sighting table read by the dashboard.
const Table = "fruit_history"

// Record is one persisted sighting.
type Record struct {
	ID         int64
	FruitName  string
	Rarity     stock.Rarity
	DetectedAt time.Time
}

// Run is one orchestrator invocation as written to stock_runs.
type Run struct {
	RunID           string
	StartedAt       time.Time
	FinishedAt      time.Time
	Outcome         string
	Extracted       int
	Skipped         int
	Unrecognized    int
	Baseline        int
	Persisted       int
	PersistFailures int
	Alerted         int
	AlertFailures   int

	// Degraded marks a run whose schema setup failed, so nothing was
	// persisted. The row itself is written best-effort.
	Degraded bool
	Error    string
}

// Store is implemented by both backends.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, name string, rarity stock.Rarity) error
	RecordRun(ctx context.Context, run Run) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Count(ctx context.Context) (int64, error)
	Close()
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*SQLite)(nil)
)

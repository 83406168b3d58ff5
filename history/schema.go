package history

// Statements are applied one by one; each is idempotent.

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS fruit_history (
		id          BIGSERIAL PRIMARY KEY,
		fruit_name  VARCHAR(50) NOT NULL,
		rarity      VARCHAR(50) NOT NULL,
		detected_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fruit_history_detected_at ON fruit_history (detected_at)`,
	`CREATE TABLE IF NOT EXISTS stock_runs (
		id               BIGSERIAL PRIMARY KEY,
		run_id           TEXT NOT NULL DEFAULT '',
		started_at       TIMESTAMPTZ NOT NULL,
		finished_at      TIMESTAMPTZ NOT NULL,
		outcome          TEXT NOT NULL,
		extracted        INTEGER NOT NULL DEFAULT 0,
		skipped          INTEGER NOT NULL DEFAULT 0,
		unrecognized     INTEGER NOT NULL DEFAULT 0,
		baseline         INTEGER NOT NULL DEFAULT 0,
		persisted        INTEGER NOT NULL DEFAULT 0,
		persist_failures INTEGER NOT NULL DEFAULT 0,
		alerted          INTEGER NOT NULL DEFAULT 0,
		alert_failures   INTEGER NOT NULL DEFAULT 0,
		degraded         BOOLEAN NOT NULL DEFAULT FALSE,
		error            TEXT NOT NULL DEFAULT ''
	)`,
}

// detected_at is ISO-8601 UTC text with millisecond precision so that
// lexical order matches insertion order within a run.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS fruit_history (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		fruit_name  TEXT NOT NULL,
		rarity      TEXT NOT NULL,
		detected_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fruit_history_detected_at ON fruit_history (detected_at)`,
	`CREATE TABLE IF NOT EXISTS stock_runs (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id           TEXT NOT NULL DEFAULT '',
		started_at       TEXT NOT NULL,
		finished_at      TEXT NOT NULL,
		outcome          TEXT NOT NULL,
		extracted        INTEGER NOT NULL DEFAULT 0,
		skipped          INTEGER NOT NULL DEFAULT 0,
		unrecognized     INTEGER NOT NULL DEFAULT 0,
		baseline         INTEGER NOT NULL DEFAULT 0,
		persisted        INTEGER NOT NULL DEFAULT 0,
		persist_failures INTEGER NOT NULL DEFAULT 0,
		alerted          INTEGER NOT NULL DEFAULT 0,
		alert_failures   INTEGER NOT NULL DEFAULT 0,
		degraded         INTEGER NOT NULL DEFAULT 0,
		error            TEXT NOT NULL DEFAULT ''
	)`,
}

// recentQuery is the dashboard query plus id, which breaks ties between
// rows inserted within the same clock tick.
const recentQuery = `SELECT id, fruit_name, rarity, detected_at FROM fruit_history ORDER BY detected_at DESC, id DESC`

const countQuery = `SELECT count(*) FROM fruit_history`

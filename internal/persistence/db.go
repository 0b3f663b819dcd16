// Package persistence provides SQLite-based storage for run results: one row
// per simulation run plus every reported series point.
package persistence

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/gossip-market/internal/report"
)

// DB wraps a SQLite connection for result storage.
type DB struct {
	conn *sqlx.DB
}

// Run describes one stored simulation run.
type Run struct {
	ID         string
	Seed       int64
	Repetition int
	Steps      int
	Halted     string // fatal error text, empty for a clean run
	Config     string // JSON
	StartedAt  time.Time
	FinishedAt time.Time // zero until FinishRun
}

type runRow struct {
	ID         string `db:"id"`
	Seed       int64  `db:"seed"`
	Repetition int    `db:"repetition"`
	Steps      int    `db:"steps"`
	Halted     string `db:"halted"`
	Config     string `db:"config_json"`
	StartedAt  int64  `db:"started_at"`
	FinishedAt int64  `db:"finished_at"`
}

func (r runRow) run() Run {
	out := Run{
		ID:         r.ID,
		Seed:       r.Seed,
		Repetition: r.Repetition,
		Steps:      r.Steps,
		Halted:     r.Halted,
		Config:     r.Config,
		StartedAt:  time.UnixMilli(r.StartedAt).UTC(),
	}
	if r.FinishedAt != 0 {
		out.FinishedAt = time.UnixMilli(r.FinishedAt).UTC()
	}
	return out
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		repetition INTEGER NOT NULL,
		steps INTEGER NOT NULL DEFAULT 0,
		halted TEXT NOT NULL DEFAULT '',
		config_json TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS series (
		run_id TEXT NOT NULL REFERENCES runs(id),
		name TEXT NOT NULL,
		step INTEGER NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (run_id, name, step)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveRun inserts or replaces a run row.
func (db *DB) SaveRun(r Run) error {
	var finished int64
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.UnixMilli()
	}
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO runs
		(id, seed, repetition, steps, halted, config_json, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Seed, r.Repetition, r.Steps, r.Halted, r.Config,
		r.StartedAt.UnixMilli(), finished,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun records the completed step count and any fatal error.
func (db *DB) FinishRun(id string, steps int, halted string, at time.Time) error {
	res, err := db.conn.Exec(
		"UPDATE runs SET steps = ?, halted = ?, finished_at = ? WHERE id = ?",
		steps, halted, at.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: no such run", id)
	}
	return nil
}

// SaveSeries writes every point of s for the run (full replace).
func (db *DB) SaveSeries(runID string, s *report.Series) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM series WHERE run_id = ?", runID); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO series (run_id, name, step, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	rows := 0
	for _, name := range s.Names() {
		for _, p := range s.Points(name) {
			if _, err := stmt.Exec(runID, name, p.Step, p.Value); err != nil {
				return fmt.Errorf("insert %s@%d: %w", name, p.Step, err)
			}
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("series saved", "run_id", runID, "series", s.Len(), "rows", rows)
	return nil
}

// LoadSeries returns one stored series ordered by step.
func (db *DB) LoadSeries(runID, name string) ([]report.Point, error) {
	var pts []report.Point
	err := db.conn.Select(&pts,
		"SELECT step, value FROM series WHERE run_id = ? AND name = ? ORDER BY step",
		runID, name,
	)
	if err != nil {
		return nil, fmt.Errorf("load series %s/%s: %w", runID, name, err)
	}
	return pts, nil
}

// SeriesNames lists the series stored for a run.
func (db *DB) SeriesNames(runID string) ([]string, error) {
	var names []string
	err := db.conn.Select(&names,
		"SELECT DISTINCT name FROM series WHERE run_id = ? ORDER BY name", runID)
	return names, err
}

// Runs returns every stored run, most recent first.
func (db *DB) Runs() ([]Run, error) {
	var rows []runRow
	if err := db.conn.Select(&rows, "SELECT * FROM runs ORDER BY started_at DESC, id"); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]Run, len(rows))
	for i, r := range rows {
		out[i] = r.run()
	}
	return out, nil
}

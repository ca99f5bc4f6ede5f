// Package store persists pipeline runs in SQLite so a run's steps can be
// inspected after the fact.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"stitcher/internal/lint"
	"stitcher/internal/logging"
	"stitcher/internal/pipeline"
)

// Supported database/sql driver names.
const (
	DriverSQLite  = "sqlite"  // modernc.org/sqlite, pure Go
	DriverSQLite3 = "sqlite3" // github.com/mattn/go-sqlite3, cgo
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Run summarizes one journaled run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is open
	Initial    string
	Final      string
	StepCount  int
}

// Finished reports whether the run was closed.
func (r Run) Finished() bool { return !r.FinishedAt.IsZero() }

// StepRecord is one journaled step.
type StepRecord struct {
	RunID       string
	Index       int
	Name        string
	Strategy    string
	Rejected    bool
	Cause       string
	Diagnostics []lint.Diagnostic
	Added       int
	Removed     int
	Patch       string
	Duration    time.Duration
	Code        string
	RecordedAt  time.Time
}

// Journal is a SQLite-backed pipeline.Journal. It is safe for concurrent use.
type Journal struct {
	db     *sql.DB
	path   string
	driver string
	mu     sync.RWMutex
}

var _ pipeline.Journal = (*Journal)(nil)

// Open creates or opens the journal database at path.
func Open(driver, path string) (*Journal, error) {
	if driver != DriverSQLite && driver != DriverSQLite3 {
		return nil, fmt.Errorf("unsupported journal driver %q", driver)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("%s failed: %v", pragma, err)
		}
	}

	j := &Journal{db: db, path: path, driver: driver}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	logging.Store("journal opened at %s (driver %s)", path, driver)
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		initial_code TEXT NOT NULL,
		final_code TEXT
	);

	CREATE TABLE IF NOT EXISTS steps (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		step_index INTEGER NOT NULL,
		name TEXT NOT NULL,
		strategy TEXT NOT NULL,
		rejected BOOLEAN NOT NULL,
		cause TEXT,
		diagnostics_json TEXT,
		added INTEGER NOT NULL,
		removed INTEGER NOT NULL,
		patch TEXT,
		duration_ns INTEGER NOT NULL,
		code TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		PRIMARY KEY (run_id, step_index)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// BeginRun records the start of a run.
func (j *Journal) BeginRun(ctx context.Context, runID, initial string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, initial_code) VALUES (?, ?, ?)`,
		runID, time.Now().UnixNano(), initial)
	if err != nil {
		return fmt.Errorf("failed to begin run: %w", err)
	}
	logging.StoreDebug("run %s begun", runID)
	return nil
}

// RecordStep appends a step report to a run.
func (j *Journal) RecordStep(ctx context.Context, runID string, r pipeline.StepReport) error {
	timer := logging.StartTimer(logging.CategoryStore, "RecordStep")
	defer timer.Stop()

	diags, err := json.Marshal(r.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO steps
		(run_id, step_index, name, strategy, rejected, cause, diagnostics_json,
		 added, removed, patch, duration_ns, code, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.Index, r.Name, string(r.Strategy), r.Rejected, r.Cause, string(diags),
		r.Added, r.Removed, r.Patch, int64(r.Duration), r.Code, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record step %d: %w", r.Index, err)
	}
	return nil
}

// FinishRun closes a run with its final program.
func (j *Journal) FinishRun(ctx context.Context, runID, final string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, final_code = ? WHERE id = ?`,
		time.Now().UnixNano(), final, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish %s: %w", runID, ErrRunNotFound)
	}
	logging.StoreDebug("run %s finished", runID)
	return nil
}

// Runs lists the most recent runs first. limit <= 0 means all.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	query := `
		SELECT r.id, r.started_at, r.finished_at, r.initial_code, r.final_code,
		       (SELECT COUNT(*) FROM steps s WHERE s.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
			final    sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Initial, &final, &r.StepCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64)
		}
		r.Final = final.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Steps returns the steps of a run in order.
func (j *Journal) Steps(ctx context.Context, runID string) ([]StepRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var exists int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("steps of %s: %w", runID, ErrRunNotFound)
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT step_index, name, strategy, rejected, cause, diagnostics_json,
		       added, removed, patch, duration_ns, code, recorded_at
		FROM steps WHERE run_id = ? ORDER BY step_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var out []StepRecord
	for rows.Next() {
		var (
			s        = StepRecord{RunID: runID}
			cause    sql.NullString
			diags    sql.NullString
			patch    sql.NullString
			duration int64
			recorded int64
		)
		if err := rows.Scan(&s.Index, &s.Name, &s.Strategy, &s.Rejected, &cause, &diags,
			&s.Added, &s.Removed, &patch, &duration, &s.Code, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		s.Cause, s.Patch = cause.String, patch.String
		s.Duration = time.Duration(duration)
		s.RecordedAt = time.Unix(0, recorded)
		if diags.Valid && diags.String != "" && diags.String != "null" {
			if err := json.Unmarshal([]byte(diags.String), &s.Diagnostics); err != nil {
				logging.Get(logging.CategoryStore).With("run_id", runID).Warn("step %d: bad diagnostics: %v", s.Index, err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

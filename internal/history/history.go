// Package history keeps a SQLite log of stage runs next to the manifest.
package history

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

	_ "modernc.org/sqlite"
)

// FileName is the database file inside the cache directory.
const FileName = "history.db"

// Run is one recorded stage execution.
type Run struct {
	ID        int64
	RunID     string
	Stage     string
	Success   bool
	Message   string
	Stats     json.RawMessage
	StartedAt time.Time
	Duration  time.Duration
}

// Store implements run persistence using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Path returns the database path for cacheDir.
func Path(cacheDir string) string {
	return filepath.Join(cacheDir, FileName)
}

// Open creates or opens the database at dbPath. Use ":memory:" for tests.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stage_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		success INTEGER NOT NULL,
		message TEXT NOT NULL,
		stats TEXT,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stage_runs_run_id ON stage_runs(run_id);
	CREATE INDEX IF NOT EXISTS idx_stage_runs_stage ON stage_runs(stage, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends a run and returns its row id.
func (s *Store) Record(ctx context.Context, run Run) (int64, error) {
	if run.Stage == "" {
		return 0, errors.New("stage is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats any
	if len(run.Stats) > 0 {
		stats = string(run.Stats)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO stage_runs (run_id, stage, success, message, stats, started_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?)",
		run.RunID, run.Stage, run.Success, run.Message, stats, run.StartedAt.UnixMilli(), run.Duration.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert stage run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read stage run id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit runs, newest first. An empty stage matches all.
func (s *Store) Recent(ctx context.Context, stage string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, stage, success, message, stats, started_at, duration_ms FROM stage_runs WHERE ? = '' OR stage = ? ORDER BY id DESC LIMIT ?",
		stage, stage, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query stage runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// ByRunID returns every stage recorded under runID in insertion order.
func (s *Store) ByRunID(ctx context.Context, runID string) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, stage, success, message, stats, started_at, duration_ms FROM stage_runs WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stage runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// LastSuccess returns the newest successful run of stage.
func (s *Store) LastSuccess(ctx context.Context, stage string) (Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, stage, success, message, stats, started_at, duration_ms FROM stage_runs WHERE stage = ? AND success = 1 ORDER BY id DESC LIMIT 1",
		stage,
	)
	if err != nil {
		return Run{}, false, fmt.Errorf("query stage runs: %w", err)
	}
	defer rows.Close()
	runs, err := scanRuns(rows)
	if err != nil || len(runs) == 0 {
		return Run{}, false, err
	}
	return runs[0], true, nil
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		var (
			r          Run
			stats      sql.NullString
			startedAt  int64
			durationMS int64
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Stage, &r.Success, &r.Message, &stats, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		if stats.Valid {
			r.Stats = json.RawMessage(stats.String)
		}
		r.StartedAt = time.UnixMilli(startedAt).UTC()
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return runs, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

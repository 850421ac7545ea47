// Package history records suite runs in a local SQLite database.
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

	"lintgate/internal/lint"
	"lintgate/internal/logging"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when no recorded run matches an id.
var ErrRunNotFound = errors.New("run not found")

// ErrAmbiguousRun is returned when a run id prefix matches more than one run.
var ErrAmbiguousRun = errors.New("ambiguous run id")

// slowWrite is the RecordReport duration above which a warning is logged.
const slowWrite = time.Second

// Run summarizes one recorded suite run.
type Run struct {
	ID        string        `json:"run_id"`
	Suite     string        `json:"suite"`
	Root      string        `json:"root"`
	Python    string        `json:"python"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
}

// OK is true when nothing failed.
func (r Run) OK() bool { return r.Failed == 0 }

// Store persists reports.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.History("Opened history database %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		suite TEXT NOT NULL,
		root TEXT NOT NULL,
		python TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		passed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		skipped INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	resultsTable := `
	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL,
		tool TEXT NOT NULL,
		argv TEXT NOT NULL,
		dir TEXT NOT NULL,
		env TEXT,
		exit_code INTEGER NOT NULL,
		started_at INTEGER,
		duration_ns INTEGER NOT NULL,
		cpu_ns INTEGER NOT NULL DEFAULT 0,
		max_rss INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		output TEXT,
		truncated INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		UNIQUE(run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
	CREATE INDEX IF NOT EXISTS idx_results_name ON results(name);
	`

	for _, table := range []string{runsTable, resultsTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordReport stores a report and all of its results in one transaction.
func (s *Store) RecordReport(ctx context.Context, report *lint.Report) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("record report: missing run id")
	}

	timer := logging.StartTimer(logging.CategoryHistory, "RecordReport")
	defer timer.StopWithThreshold(slowWrite)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	passed, failed, skipped := report.Counts()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, suite, root, python, started_at, finished_at, passed, failed, skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Suite, report.Root, report.Python,
		report.StartedAt.UnixNano(), report.FinishedAt.UnixNano(), passed, failed, skipped,
	)
	if err != nil {
		logging.HistoryWarn("Failed to insert run %s: %v", report.RunID, err)
		return fmt.Errorf("insert run %s: %w", report.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (run_id, seq, name, tool, argv, dir, env, exit_code, started_at, duration_ns, cpu_ns, max_rss, status, output, truncated, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare result insert: %w", err)
	}
	defer stmt.Close()

	for seq, res := range report.Results {
		argv, err := json.Marshal(res.Argv)
		if err != nil {
			return fmt.Errorf("encode argv of %s: %w", res.Name, err)
		}
		env, err := json.Marshal(res.Env)
		if err != nil {
			return fmt.Errorf("encode env of %s: %w", res.Name, err)
		}
		var startedAt sql.NullInt64
		if !res.StartedAt.IsZero() {
			startedAt = sql.NullInt64{Int64: res.StartedAt.UnixNano(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			report.RunID, seq, res.Name, string(res.Tool), string(argv), res.Dir, string(env),
			res.ExitCode, startedAt, int64(res.Duration), int64(res.CPUTime), res.MaxRSSBytes, res.Status(), res.Output, res.Truncated, res.Error,
		); err != nil {
			return fmt.Errorf("insert result %s: %w", res.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", report.RunID, err)
	}

	logging.History("Recorded run %s: %d passed, %d failed, %d skipped", report.RunID, passed, failed, skipped)
	return nil
}

const runColumns = `run_id, suite, root, python, started_at, finished_at, passed, failed, skipped`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var (
		run               Run
		started, finished int64
	)
	if err := row.Scan(&run.ID, &run.Suite, &run.Root, &run.Python, &started, &finished,
		&run.Passed, &run.Failed, &run.Skipped); err != nil {
		return Run{}, err
	}
	run.StartedAt = time.Unix(0, started)
	run.Duration = time.Duration(finished - started)
	return run, nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 means 20.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logging.HistoryDebug("Listed %d run(s) (limit=%d)", len(runs), limit)
	return runs, nil
}

// FindRun returns the run whose id equals or starts with idOrPrefix.
func (s *Store) FindRun(ctx context.Context, idOrPrefix string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idOrPrefix == "" {
		return Run{}, fmt.Errorf("%w: empty id", ErrRunNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE run_id = ? OR substr(run_id, 1, ?) = ? LIMIT 2`,
		idOrPrefix, len(idOrPrefix), idOrPrefix)
	if err != nil {
		return Run{}, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return Run{}, fmt.Errorf("scan run: %w", err)
		}
		if run.ID == idOrPrefix {
			return run, nil
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}

	switch len(matches) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, idOrPrefix)
	case 1:
		return matches[0], nil
	default:
		return Run{}, fmt.Errorf("%w: %s", ErrAmbiguousRun, idOrPrefix)
	}
}

// Results returns the stored results of a run in table order.
func (s *Store) Results(ctx context.Context, runID string) ([]*lint.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, tool, argv, dir, env, exit_code, started_at, duration_ns, cpu_ns, max_rss, status, output, truncated, error
		 FROM results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []*lint.Result
	for rows.Next() {
		var (
			res                  lint.Result
			tool, argv, status   string
			env, output, errText sql.NullString
			startedAt            sql.NullInt64
			duration, cpu        int64
		)
		if err := rows.Scan(&res.Name, &tool, &argv, &res.Dir, &env, &res.ExitCode, &startedAt,
			&duration, &cpu, &res.MaxRSSBytes, &status, &output, &res.Truncated, &errText); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res.Tool = lint.Tool(tool)
		res.Duration = time.Duration(duration)
		res.CPUTime = time.Duration(cpu)
		res.Output = output.String
		res.Error = errText.String
		if startedAt.Valid {
			res.StartedAt = time.Unix(0, startedAt.Int64)
		}
		switch status {
		case "pass":
			res.Passed = true
		case "skip":
			res.Skipped = true
		}
		if err := json.Unmarshal([]byte(argv), &res.Argv); err != nil {
			return nil, fmt.Errorf("decode argv of %s: %w", res.Name, err)
		}
		if env.Valid && env.String != "" {
			if err := json.Unmarshal([]byte(env.String), &res.Env); err != nil {
				return nil, fmt.Errorf("decode env of %s: %w", res.Name, err)
			}
		}
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Report reassembles a recorded run as a report.
func (s *Store) Report(ctx context.Context, idOrPrefix string) (*lint.Report, error) {
	run, err := s.FindRun(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	results, err := s.Results(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return &lint.Report{
		RunID:      run.ID,
		Suite:      run.Suite,
		Root:       run.Root,
		Python:     run.Python,
		StartedAt:  run.StartedAt,
		FinishedAt: run.StartedAt.Add(run.Duration),
		Results:    results,
	}, nil
}

// Prune deletes all but the newest keep runs and returns how many were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		keep = 0
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stale := `SELECT run_id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("prune results: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}

	logging.History("Pruned %d run(s), kept %d", n, keep)
	return n, nil
}

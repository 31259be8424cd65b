// Package store persists run results in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"warrior/internal/domain"
)

// Outcomes stored in the execution journal.
const (
	OutcomePassed = "passed"
	OutcomeFailed = "failed"
)

// ExecutionRecord is one journal row.
type ExecutionRecord struct {
	RunID       string
	Test        string
	Kind        domain.TestKind
	Outcome     string
	Expectation string // failing call site, e.g. "expect.equal:42"
	Message     string
	Duration    time.Duration
	At          time.Time
}

// Run is one row of the runs table.
type Run struct {
	ID        string
	StartedAt time.Time
	StoppedAt time.Time // zero while running or after a crash
}

// Store implements result persistence using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at path and runs the schema
// migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrResultStore, path, err)
	}
	// The journal and the final save write from different goroutines.
	db.SetMaxOpenConns(1)
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %w", domain.ErrResultStore, err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			stopped_at TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS executions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			test        TEXT NOT NULL,
			kind        TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			expectation TEXT NOT NULL DEFAULT '',
			message     TEXT NOT NULL DEFAULT '',
			duration_ns INTEGER NOT NULL DEFAULT 0,
			at          TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_executions_run ON executions(run_id);
		CREATE TABLE IF NOT EXISTS results (
			run_id     TEXT NOT NULL,
			test       TEXT NOT NULL,
			executions INTEGER NOT NULL,
			passes     INTEGER NOT NULL,
			PRIMARY KEY (run_id, test)
		);
		CREATE TABLE IF NOT EXISTS expectations (
			run_id   TEXT NOT NULL,
			test     TEXT NOT NULL,
			kind     TEXT NOT NULL,
			line     INTEGER NOT NULL,
			checks   INTEGER NOT NULL,
			passes   INTEGER NOT NULL,
			attempts TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (run_id, test, kind, line)
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts a run row.
func (s *Store) StartRun(ctx context.Context, runID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO runs (id, started_at) VALUES (?, ?)",
		runID, at.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// FinishRun stamps the stop time of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET stopped_at = ? WHERE id = ?",
		at.UTC().Format(time.RFC3339Nano), runID,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewDomainError("store.FinishRun", domain.ErrNotFound, runID)
	}
	return nil
}

// RecordExecution appends one execution to the journal.
func (s *Store) RecordExecution(ctx context.Context, rec ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (run_id, test, kind, outcome, expectation, message, duration_ns, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Test, string(rec.Kind), rec.Outcome, rec.Expectation, rec.Message,
		int64(rec.Duration), rec.At.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// SaveRun replaces the aggregate results of a run.
func (s *Store) SaveRun(ctx context.Context, runID string, results []domain.TestResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM results WHERE run_id = ?", runID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM expectations WHERE run_id = ?", runID); err != nil {
		return err
	}
	for _, r := range results {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO results (run_id, test, executions, passes) VALUES (?, ?, ?, ?)",
			runID, r.Test, r.Executions, r.Passes,
		); err != nil {
			return err
		}
		for _, e := range r.Expectations {
			attempts, err := json.Marshal(e.Attempts)
			if err != nil {
				return fmt.Errorf("marshal attempts of %s: %w", e.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO expectations (run_id, test, kind, line, checks, passes, attempts) VALUES (?, ?, ?, ?, ?, ?, ?)",
				runID, r.Test, e.ID.Kind, e.ID.Line, e.Checks, e.Passes, string(attempts),
			); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// GetRun returns one run.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	var started, stopped string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, started_at, stopped_at FROM runs WHERE id = ?", runID,
	).Scan(&run.ID, &started, &stopped)
	if err == sql.ErrNoRows {
		return nil, domain.NewDomainError("store.GetRun", domain.ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if stopped != "" {
		run.StoppedAt, _ = time.Parse(time.RFC3339Nano, stopped)
	}
	return &run, nil
}

// Executions returns the journal of a run in insertion order.
func (s *Store) Executions(ctx context.Context, runID string) ([]ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, test, kind, outcome, expectation, message, duration_ns, at
		 FROM executions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		var rec ExecutionRecord
		var kind, at string
		var dur int64
		if err := rows.Scan(&rec.RunID, &rec.Test, &kind, &rec.Outcome, &rec.Expectation, &rec.Message, &dur, &at); err != nil {
			return nil, err
		}
		rec.Kind = domain.TestKind(kind)
		rec.Duration = time.Duration(dur)
		rec.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Results loads the aggregate saved for a run, ordered by test name.
func (s *Store) Results(ctx context.Context, runID string) ([]domain.TestResult, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT test, executions, passes FROM results WHERE run_id = ? ORDER BY test", runID)
	if err != nil {
		return nil, err
	}
	var out []domain.TestResult
	index := make(map[string]int)
	for rows.Next() {
		var r domain.TestResult
		if err := rows.Scan(&r.Test, &r.Executions, &r.Passes); err != nil {
			rows.Close()
			return nil, err
		}
		index[r.Test] = len(out)
		out = append(out, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	erows, err := s.db.QueryContext(ctx,
		"SELECT test, kind, line, checks, passes, attempts FROM expectations WHERE run_id = ? ORDER BY test, line", runID)
	if err != nil {
		return nil, err
	}
	defer erows.Close()
	for erows.Next() {
		var test, attempts string
		e := &domain.ExpectationResult{}
		if err := erows.Scan(&test, &e.ID.Kind, &e.ID.Line, &e.Checks, &e.Passes, &attempts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attempts), &e.Attempts); err != nil {
			return nil, fmt.Errorf("unmarshal attempts of %s: %w", e.ID, err)
		}
		i, ok := index[test]
		if !ok {
			continue
		}
		out[i].Expectations = append(out[i].Expectations, e)
	}
	return out, erows.Err()
}

// Journal subscribes to run lifecycle events on bus and writes them to the
// store. It returns the unsubscribe function.
func (s *Store) Journal(bus domain.EventBus, logger *slog.Logger) func() {
	return bus.SubscribeAll(func(ctx context.Context, e domain.Event) {
		var err error
		switch e.Type {
		case domain.EventRunStarted:
			err = s.StartRun(ctx, e.RunID, e.Timestamp)
		case domain.EventRunStopped:
			err = s.FinishRun(ctx, e.RunID, e.Timestamp)
		case domain.EventTestPassed, domain.EventTestFailed:
			var p domain.ExecutionPayload
			if err = json.Unmarshal(e.Payload, &p); err != nil {
				break
			}
			rec := ExecutionRecord{
				RunID:    e.RunID,
				Test:     p.Test,
				Kind:     p.Kind,
				Outcome:  OutcomePassed,
				Message:  p.Message,
				Duration: p.Duration,
				At:       e.Timestamp,
			}
			if e.Type == domain.EventTestFailed {
				rec.Outcome = OutcomeFailed
				if !p.Expectation.IsZero() {
					rec.Expectation = p.Expectation.String()
				}
			}
			err = s.RecordExecution(ctx, rec)
		default:
			return
		}
		if err != nil {
			logger.Warn("results journal write failed", "event", string(e.Type), "run_id", e.RunID, "error", err)
		}
	})
}

// Package sqlite keeps run history in a local SQLite file for single-node use.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/store"
	_ "modernc.org/sqlite"
)

// sortableTime keeps fixed-width fractions so TEXT ordering matches time ordering.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS research_runs (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	status TEXT NOT NULL,
	mode TEXT NOT NULL DEFAULT 'inline',
	candidate_count INTEGER NOT NULL DEFAULT 0,
	degraded_count INTEGER NOT NULL DEFAULT 0,
	analysis_degraded INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	started_at TEXT NOT NULL,
	completed_at TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_research_runs_started_at ON research_runs(started_at);
CREATE TABLE IF NOT EXISTS research_run_events (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	type TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS research_run_event_sequences (
	run_id TEXT PRIMARY KEY,
	last_seq INTEGER NOT NULL
);
`

type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

func New(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run store.Run) error {
	status := strings.TrimSpace(run.Status)
	if status == "" {
		status = store.RunStatusRunning
	}
	mode := strings.TrimSpace(run.Mode)
	if mode == "" {
		mode = "inline"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO research_runs (id, query, status, mode, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Query, status, mode, formatTime(run.StartedAt))
	return err
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run store.Run) error {
	var runError any
	if strings.TrimSpace(run.Error) != "" {
		runError = run.Error
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE research_runs
		SET status = ?, candidate_count = ?, degraded_count = ?, analysis_degraded = ?, error = ?, completed_at = ?, duration_ms = ?
		WHERE id = ?`,
		run.Status, run.CandidateCount, run.DegradedCount, run.AnalysisDegraded, runError, formatTime(run.CompletedAt), run.DurationMs, run.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const runColumns = `id, query, status, mode, candidate_count, degraded_count, analysis_degraded, error, started_at, completed_at, duration_ms`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM research_runs WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM research_runs ORDER BY started_at DESC, id ASC LIMIT ?`,
		store.ClampListLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, run)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (store.Run, error) {
	var (
		run         store.Run
		runError    sql.NullString
		startedAt   string
		completedAt sql.NullString
	)
	if err := row.Scan(
		&run.ID,
		&run.Query,
		&run.Status,
		&run.Mode,
		&run.CandidateCount,
		&run.DegradedCount,
		&run.AnalysisDegraded,
		&runError,
		&startedAt,
		&completedAt,
		&run.DurationMs,
	); err != nil {
		return store.Run{}, err
	}
	run.Error = runError.String
	run.StartedAt = readTime(startedAt)
	if completedAt.Valid {
		run.CompletedAt = readTime(completedAt.String)
	}
	return run, nil
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, event store.RunEvent) error {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO research_run_events (run_id, seq, type, timestamp, payload) VALUES (?, ?, ?, ?, ?)`,
		event.RunID, event.Seq, store.NormalizeEventType(event.Type), formatTime(event.Timestamp), string(encoded))
	return err
}

func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, afterSeq int64) ([]store.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, type, timestamp, payload FROM research_run_events WHERE run_id = ? AND seq > ? ORDER BY seq ASC`,
		runID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.RunEvent{}
	for rows.Next() {
		var event store.RunEvent
		var timestamp, payload string
		if err := rows.Scan(&event.RunID, &event.Seq, &event.Type, &timestamp, &payload); err != nil {
			return nil, err
		}
		event.Timestamp = readTime(timestamp)
		event.Payload = map[string]any{}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &event.Payload); err != nil {
				return nil, err
			}
		}
		results = append(results, event)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) NextSeq(ctx context.Context, runID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO research_run_event_sequences (run_id, last_seq) VALUES (?, 1)
		ON CONFLICT (run_id) DO UPDATE SET last_seq = last_seq + 1
		RETURNING last_seq`, runID).Scan(&seq)
	return seq, err
}

func formatTime(value string) string {
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		parsed = time.Now()
	}
	return parsed.UTC().Format(sortableTime)
}

func readTime(value string) string {
	parsed, err := time.Parse(sortableTime, value)
	if err != nil {
		return value
	}
	return parsed.UTC().Format(time.RFC3339Nano)
}

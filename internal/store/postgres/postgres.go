package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/store"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type PostgresStore struct {
	db *sql.DB
}

var _ store.Store = (*PostgresStore)(nil)

var (
	openDB        = sql.Open
	runMigrations = migrate
)

// New connects to conn and applies any pending migrations.
func New(conn string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) CreateRun(ctx context.Context, run store.Run) error {
	status := strings.TrimSpace(run.Status)
	if status == "" {
		status = store.RunStatusRunning
	}
	mode := strings.TrimSpace(run.Mode)
	if mode == "" {
		mode = "inline"
	}
	const query = `
		INSERT INTO research_runs (id, query, status, mode, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := p.db.ExecContext(ctx, query, run.ID, run.Query, status, mode, timestampOrNow(run.StartedAt))
	return err
}

func (p *PostgresStore) CompleteRun(ctx context.Context, run store.Run) error {
	const query = `
		UPDATE research_runs
		SET status = $2,
			candidate_count = $3,
			degraded_count = $4,
			analysis_degraded = $5,
			error = $6,
			completed_at = $7,
			duration_ms = $8
		WHERE id = $1
	`
	result, err := p.db.ExecContext(
		ctx,
		query,
		run.ID,
		run.Status,
		run.CandidateCount,
		run.DegradedCount,
		run.AnalysisDegraded,
		nullString(run.Error),
		timestampOrNow(run.CompletedAt),
		run.DurationMs,
	)
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

func (p *PostgresStore) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM research_runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (p *PostgresStore) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM research_runs ORDER BY started_at DESC, id ASC LIMIT $1`
	rows, err := p.db.QueryContext(ctx, query, store.ClampListLimit(limit))
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (store.Run, error) {
	var (
		run         store.Run
		runError    sql.NullString
		startedAt   time.Time
		completedAt sql.NullTime
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
	if runError.Valid {
		run.Error = runError.String
	}
	run.StartedAt = startedAt.UTC().Format(time.RFC3339Nano)
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time.UTC().Format(time.RFC3339Nano)
	}
	return run, nil
}

func (p *PostgresStore) AppendEvent(ctx context.Context, event store.RunEvent) error {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO research_run_events (run_id, seq, type, timestamp, payload)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = p.db.ExecContext(ctx, query, event.RunID, event.Seq, store.NormalizeEventType(event.Type), timestampOrNow(event.Timestamp), encoded)
	return err
}

func (p *PostgresStore) ListEvents(ctx context.Context, runID string, afterSeq int64) ([]store.RunEvent, error) {
	const query = `
		SELECT run_id, seq, type, timestamp, payload
		FROM research_run_events
		WHERE run_id = $1 AND seq > $2
		ORDER BY seq ASC
	`
	rows, err := p.db.QueryContext(ctx, query, runID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.RunEvent{}
	for rows.Next() {
		var payloadBytes []byte
		var timestamp time.Time
		var event store.RunEvent
		if err := rows.Scan(&event.RunID, &event.Seq, &event.Type, &timestamp, &payloadBytes); err != nil {
			return nil, err
		}
		event.Timestamp = timestamp.UTC().Format(time.RFC3339Nano)
		event.Payload = map[string]any{}
		if len(payloadBytes) > 0 {
			if err := json.Unmarshal(payloadBytes, &event.Payload); err != nil {
				return nil, err
			}
		}
		results = append(results, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) NextSeq(ctx context.Context, runID string) (int64, error) {
	const query = `
		INSERT INTO research_run_event_sequences (run_id, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (run_id)
		DO UPDATE SET last_seq = research_run_event_sequences.last_seq + 1
		RETURNING last_seq
	`
	var seq int64
	if err := p.db.QueryRowContext(ctx, query, runID).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func timestampOrNow(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Now().UTC()
	}
	return parsed.UTC()
}

func nullString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// Package store persists research run metadata and the stage events emitted while a
// run executes. Results themselves are never stored.
package store

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("not found")

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

const (
	EventRunStarted         = "run.started"
	EventRunCompleted       = "run.completed"
	EventRunFailed          = "run.failed"
	EventStageChanged       = "run.stage.changed"
	EventCandidateCompleted = "candidate.completed"
)

type Run struct {
	ID               string
	Query            string
	Status           string
	Mode             string
	CandidateCount   int
	DegradedCount    int
	AnalysisDegraded bool
	Error            string
	StartedAt        string
	CompletedAt      string
	DurationMs       int64
}

type RunEvent struct {
	RunID     string
	Seq       int64
	Type      string
	Timestamp string
	Payload   map[string]any
}

type Store interface {
	CreateRun(ctx context.Context, run Run) error
	CompleteRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	AppendEvent(ctx context.Context, event RunEvent) error
	ListEvents(ctx context.Context, runID string, afterSeq int64) ([]RunEvent, error)
	NextSeq(ctx context.Context, runID string) (int64, error)
	Ping(ctx context.Context) error
}

// NormalizeEventType lowercases and converts underscores so "RUN_STAGE_CHANGED" and
// "run.stage.changed" are stored the same way.
func NormalizeEventType(eventType string) string {
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		return ""
	}
	return strings.ReplaceAll(normalized, "_", ".")
}

func ClampListLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/metrics"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tracker wraps an engine so every run gets an ID, a stored summary, lifecycle events
// and metrics. The result itself is returned to the caller and never stored.
type Tracker struct {
	Engine   research.Engine
	Store    store.Store
	Recorder *Recorder
	Metrics  *metrics.Metrics
	Mode     string
	Logger   *zap.Logger
	NewID    func() string
}

var _ research.Engine = (*Tracker)(nil)

func (t *Tracker) Run(ctx context.Context, query string) (research.ResearchResult, error) {
	_, result, err := t.RunTracked(ctx, query)
	return result, err
}

// RunTracked is Run that also reports the run ID it assigned.
func (t *Tracker) RunTracked(ctx context.Context, query string) (string, research.ResearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", research.ResearchResult{}, research.ErrEmptyQuery
	}
	runID := t.newID()
	started := time.Now()
	ctx = research.ContextWithRunID(ctx, runID)

	t.Metrics.RunStarted()
	if t.Store != nil {
		err := t.Store.CreateRun(context.WithoutCancel(ctx), store.Run{
			ID:        runID,
			Query:     query,
			Status:    store.RunStatusRunning,
			Mode:      t.Mode,
			StartedAt: started.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			t.logger().Warn("failed to record run", zap.String("run_id", runID), zap.Error(err))
		}
	}
	t.Recorder.Append(ctx, runID, store.EventRunStarted, map[string]any{"query": query, "mode": t.Mode})

	result, err := t.Engine.Run(ctx, query)
	elapsed := time.Since(started)

	summary := store.Run{
		ID:               runID,
		Status:           statusFor(err),
		CandidateCount:   len(result.Records),
		DegradedCount:    result.DegradedCount(),
		AnalysisDegraded: result.AnalysisDegraded,
		CompletedAt:      time.Now().UTC().Format(time.RFC3339Nano),
		DurationMs:       elapsed.Milliseconds(),
	}
	eventType := store.EventRunCompleted
	payload := map[string]any{
		"candidates":        summary.CandidateCount,
		"degraded":          summary.DegradedCount,
		"analysis_degraded": summary.AnalysisDegraded,
		"duration_ms":       summary.DurationMs,
	}
	if err != nil {
		summary.Error = err.Error()
		eventType = store.EventRunFailed
		payload["error"] = err.Error()
	}
	t.Recorder.Append(ctx, runID, eventType, payload)
	if t.Store != nil {
		if storeErr := t.Store.CompleteRun(context.WithoutCancel(ctx), summary); storeErr != nil {
			t.logger().Warn("failed to complete run", zap.String("run_id", runID), zap.Error(storeErr))
		}
	}
	t.Metrics.ObserveRun(summary.Status, summary.CandidateCount, summary.DegradedCount, summary.AnalysisDegraded, elapsed)
	return runID, result, err
}

func statusFor(err error) string {
	switch {
	case err == nil:
		return store.RunStatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return store.RunStatusCancelled
	default:
		return store.RunStatusFailed
	}
}

func (t *Tracker) newID() string {
	if t.NewID != nil {
		return t.NewID()
	}
	return uuid.NewString()
}

func (t *Tracker) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}

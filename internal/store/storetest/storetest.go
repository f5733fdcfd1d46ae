// Package storetest holds behaviour checks shared by every store implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Run exercises s against the store contract. Run IDs are random so the checks can
// share a database with other tests.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	t.Run("RunLifecycle", func(t *testing.T) { runLifecycle(t, s) })
	t.Run("ListRunsNewestFirst", func(t *testing.T) { listRunsNewestFirst(t, s) })
	t.Run("Events", func(t *testing.T) { events(t, s) })
	t.Run("NextSeqConcurrent", func(t *testing.T) { nextSeqConcurrent(t, s) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, s.Ping(context.Background())) })
}

func runLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	runID := uuid.NewString()
	require.NoError(t, s.CreateRun(ctx, store.Run{
		ID:        runID,
		Query:     "feature flag tools",
		Status:    store.RunStatusRunning,
		Mode:      "inline",
		StartedAt: "2026-02-07T00:00:00Z",
	}))

	run, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, "feature flag tools", run.Query)
	require.Equal(t, store.RunStatusRunning, run.Status)
	require.Empty(t, run.CompletedAt)

	require.NoError(t, s.CompleteRun(ctx, store.Run{
		ID:               runID,
		Status:           store.RunStatusCompleted,
		CandidateCount:   4,
		DegradedCount:    1,
		AnalysisDegraded: true,
		CompletedAt:      "2026-02-07T00:00:03Z",
		DurationMs:       3000,
	}))
	run, err = s.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, store.RunStatusCompleted, run.Status)
	require.Equal(t, "feature flag tools", run.Query)
	require.Equal(t, "inline", run.Mode)
	require.Equal(t, 4, run.CandidateCount)
	require.Equal(t, 1, run.DegradedCount)
	require.True(t, run.AnalysisDegraded)
	require.Equal(t, int64(3000), run.DurationMs)
	require.Equal(t, "2026-02-07T00:00:03Z", run.CompletedAt)

	_, err = s.GetRun(ctx, uuid.NewString())
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.CompleteRun(ctx, store.Run{ID: uuid.NewString(), Status: store.RunStatusFailed}), store.ErrNotFound)
}

func listRunsNewestFirst(t *testing.T, s store.Store) {
	ctx := context.Background()
	ids := make([]string, 3)
	for i := range ids {
		ids[i] = uuid.NewString()
		require.NoError(t, s.CreateRun(ctx, store.Run{
			ID:        ids[i],
			Query:     fmt.Sprintf("query %d", i),
			Status:    store.RunStatusRunning,
			StartedAt: fmt.Sprintf("2099-01-0%dT00:00:00Z", i+1),
		}))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, ids[2], runs[0].ID)
	require.Equal(t, ids[1], runs[1].ID)
}

func events(t *testing.T, s store.Store) {
	ctx := context.Background()
	runID := uuid.NewString()
	require.NoError(t, s.CreateRun(ctx, store.Run{ID: runID, Query: "q", Status: store.RunStatusRunning, StartedAt: "2026-02-07T00:00:00Z"}))

	for i, stage := range []string{"discovering", "extracting", "synthesizing"} {
		seq, err := s.NextSeq(ctx, runID)
		require.NoError(t, err)
		require.Equal(t, int64(i+1), seq)
		require.NoError(t, s.AppendEvent(ctx, store.RunEvent{
			RunID:     runID,
			Seq:       seq,
			Type:      "RUN_STAGE_CHANGED",
			Timestamp: fmt.Sprintf("2026-02-07T00:00:0%dZ", i),
			Payload:   map[string]any{"stage": stage},
		}))
	}

	all, err := s.ListEvents(ctx, runID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, store.EventStageChanged, all[0].Type)
	require.Equal(t, "discovering", all[0].Payload["stage"])
	require.Equal(t, "2026-02-07T00:00:00Z", all[0].Timestamp)

	tail, err := s.ListEvents(ctx, runID, 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, "synthesizing", tail[0].Payload["stage"])

	none, err := s.ListEvents(ctx, uuid.NewString(), 0)
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)
}

func nextSeqConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	runID := uuid.NewString()
	require.NoError(t, s.CreateRun(ctx, store.Run{ID: runID, Query: "q", Status: store.RunStatusRunning, StartedAt: "2026-02-07T00:00:00Z"}))

	var (
		mu   sync.Mutex
		seen = map[int64]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := s.NextSeq(ctx, runID)
			if err != nil {
				t.Errorf("next seq: %v", err)
				return
			}
			mu.Lock()
			seen[seq] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, 10)
}

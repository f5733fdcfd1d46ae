package workflows

import (
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

type ResearchInput struct {
	RunID       string
	Query       string
	Limit       int
	Concurrency int
}

var activityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 3 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		MaximumAttempts: 1,
	},
}

// ResearchWorkflow runs discovery, a bounded fan-out of per-candidate research, and
// synthesis as activities. Records keep discovery order whatever the completion order.
func ResearchWorkflow(ctx workflow.Context, input ResearchInput) (research.ResearchResult, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return research.ResearchResult{}, temporal.NewNonRetryableApplicationError(research.ErrEmptyQuery.Error(), "EmptyQuery", nil)
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)
	logger := workflow.GetLogger(ctx)

	var discovered DiscoverOutput
	err := workflow.ExecuteActivity(ctx, DiscoverCandidatesActivity, DiscoverInput{
		RunID: input.RunID,
		Query: query,
		Limit: input.Limit,
	}).Get(ctx, &discovered)
	if ctx.Err() != nil {
		return research.ResearchResult{}, ctx.Err()
	}
	if err != nil {
		logger.Warn("discovery activity failed", "error", err)
		discovered.Candidates = nil
	}

	records := researchCandidates(ctx, input, discovered.Candidates)
	if ctx.Err() != nil {
		return research.ResearchResult{}, ctx.Err()
	}

	var synthesized SynthesizeOutput
	err = workflow.ExecuteActivity(ctx, SynthesizeAnalysisActivity, SynthesizeInput{
		RunID:   input.RunID,
		Query:   query,
		Records: records,
	}).Get(ctx, &synthesized)
	if ctx.Err() != nil {
		return research.ResearchResult{}, ctx.Err()
	}
	if err != nil {
		logger.Warn("synthesis activity failed", "error", err)
		synthesized.Analysis = research.StaticAnalysis(query, records)
	}

	return research.ResearchResult{
		Query:            query,
		Records:          records,
		Analysis:         synthesized.Analysis.Text,
		AnalysisDegraded: synthesized.Analysis.Degraded,
	}, nil
}

// researchCandidates keeps at most Concurrency activities in flight and starts the
// next one as soon as any finishes.
func researchCandidates(ctx workflow.Context, input ResearchInput, candidates []research.Candidate) []research.Record {
	records := make([]research.Record, len(candidates))
	if len(candidates) == 0 {
		return records
	}
	limit := input.Concurrency
	if limit <= 0 {
		limit = research.DefaultConcurrency
	}
	logger := workflow.GetLogger(ctx)
	selector := workflow.NewSelector(ctx)
	inFlight := 0
	start := func(index int) {
		candidate := candidates[index]
		future := workflow.ExecuteActivity(ctx, ResearchCandidateActivity, CandidateInput{
			RunID:     input.RunID,
			Index:     index,
			Candidate: candidate,
		})
		inFlight++
		selector.AddFuture(future, func(f workflow.Future) {
			inFlight--
			var out CandidateOutput
			if err := f.Get(ctx, &out); err != nil {
				logger.Warn("candidate activity failed", "index", index, "candidate", candidate.Identifier, "error", err)
				records[index] = research.DegradedRecord(candidate, "activity failed: "+err.Error(), false)
				return
			}
			records[index] = out.Record
		})
	}

	next := 0
	for ; next < len(candidates) && inFlight < limit; next++ {
		start(next)
	}
	for inFlight > 0 {
		selector.Select(ctx)
		if next < len(candidates) && ctx.Err() == nil {
			start(next)
			next++
		}
	}
	for ; next < len(candidates); next++ {
		records[next] = research.DegradedRecord(candidates[next], "cancelled before processing", false)
	}
	return records
}

package workflows

import (
	"context"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"go.temporal.io/sdk/activity"
)

const (
	DiscoverCandidatesActivity = "DiscoverCandidates"
	ResearchCandidateActivity  = "ResearchCandidate"
	SynthesizeAnalysisActivity = "SynthesizeAnalysis"
)

type DiscoverInput struct {
	RunID string
	Query string
	Limit int
}

type DiscoverOutput struct {
	Candidates []research.Candidate `json:"candidates"`
}

type CandidateInput struct {
	RunID     string
	Index     int
	Candidate research.Candidate
}

type CandidateOutput struct {
	Record research.Record `json:"record"`
}

type SynthesizeInput struct {
	RunID   string
	Query   string
	Records []research.Record
}

type SynthesizeOutput struct {
	Analysis research.Analysis `json:"analysis"`
}

// ResearchActivities runs the workflow stages inside a Temporal worker. None of the
// activities return errors for capability failures; those become degraded output.
type ResearchActivities struct {
	workflow *research.Workflow
	observer research.Observer
}

func NewResearchActivities(workflow *research.Workflow) *ResearchActivities {
	return &ResearchActivities{workflow: workflow, observer: workflow.Observer}
}

func (a *ResearchActivities) DiscoverCandidates(ctx context.Context, input DiscoverInput) (DiscoverOutput, error) {
	ctx = research.ContextWithRunID(ctx, input.RunID)
	a.stage(ctx, research.StageDiscovering, map[string]any{"query": input.Query})
	candidates := a.workflow.Discovery.Discover(ctx, input.Query, research.ClampLimit(input.Limit))
	if err := ctx.Err(); err != nil {
		return DiscoverOutput{}, err
	}
	if len(candidates) > 0 {
		a.stage(ctx, research.StageExtracting, map[string]any{"candidates": len(candidates)})
	}
	return DiscoverOutput{Candidates: candidates}, nil
}

func (a *ResearchActivities) ResearchCandidate(ctx context.Context, input CandidateInput) (CandidateOutput, error) {
	ctx = research.ContextWithRunID(ctx, input.RunID)
	record := a.workflow.ResearchCandidate(ctx, input.Candidate)
	if a.observer != nil {
		a.observer.CandidateCompleted(ctx, input.Index, input.Candidate, record)
	}
	return CandidateOutput{Record: record}, nil
}

func (a *ResearchActivities) SynthesizeAnalysis(ctx context.Context, input SynthesizeInput) (SynthesizeOutput, error) {
	ctx = research.ContextWithRunID(ctx, input.RunID)
	a.stage(ctx, research.StageSynthesizing, map[string]any{"records": len(input.Records)})
	analysis := a.workflow.Synthesizer.Synthesize(ctx, input.Query, input.Records)
	if err := ctx.Err(); err != nil {
		return SynthesizeOutput{}, err
	}
	a.stage(ctx, research.StageDone, map[string]any{"analysis_degraded": analysis.Degraded})
	return SynthesizeOutput{Analysis: analysis}, nil
}

func (a *ResearchActivities) stage(ctx context.Context, stage research.Stage, detail map[string]any) {
	if activity.IsActivity(ctx) {
		activity.GetLogger(ctx).Debug("research stage", "stage", string(stage), "run_id", research.RunIDFromContext(ctx))
	}
	if a.observer != nil {
		a.observer.StageChanged(ctx, stage, detail)
	}
}

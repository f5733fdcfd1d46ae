package workflows

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	tests "go.temporal.io/sdk/testsuite"
)

type WorkflowTestSuite struct {
	suite.Suite
	testSuite *tests.WorkflowTestSuite
	env       *tests.TestWorkflowEnvironment
	observer  *recordingObserver
}

func (s *WorkflowTestSuite) SetupTest() {
	s.testSuite = &tests.WorkflowTestSuite{}
	s.env = s.testSuite.NewTestWorkflowEnvironment()
	s.observer = newRecordingObserver()
	s.env.RegisterWorkflow(ResearchWorkflow)
	s.env.RegisterActivity(NewResearchActivities(testResearch(s.observer, nil)))
}

func (s *WorkflowTestSuite) TearDownTest() {
	s.env.AssertExpectations(s.T())
}

func (s *WorkflowTestSuite) result() research.ResearchResult {
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var result research.ResearchResult
	s.NoError(s.env.GetWorkflowResult(&result))
	return result
}

func names(records []research.Record) []string {
	out := make([]string, 0, len(records))
	for _, record := range records {
		out = append(out, record.Company.Name)
	}
	return out
}

func (s *WorkflowTestSuite) TestResearchWorkflow_Success() {
	s.env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RunID: "run-1", Query: " ci tools ", Limit: 3, Concurrency: 2})
	result := s.result()

	s.Equal("ci tools", result.Query)
	s.Equal([]string{"Alpha", "Broken", "Gamma"}, names(result.Records))
	s.True(result.Records[1].Degraded())
	s.False(result.Records[0].Degraded())
	s.Equal("Pick Alpha.", result.Analysis)
	s.False(result.AnalysisDegraded)

	s.Equal([]research.Stage{research.StageDiscovering, research.StageExtracting, research.StageSynthesizing, research.StageDone}, s.observer.stages)
	s.Equal(map[int]string{0: "Alpha", 1: "Broken", 2: "Gamma"}, s.observer.candidates)
	s.Equal(map[string]bool{"run-1": true}, s.observer.runIDs)
}

func (s *WorkflowTestSuite) TestResearchWorkflow_CandidateActivityFailureIsIsolated() {
	s.env.OnActivity(ResearchCandidateActivity, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, input CandidateInput) (CandidateOutput, error) {
			if input.Index == 2 {
				return CandidateOutput{}, errors.New("worker lost")
			}
			return CandidateOutput{Record: research.Record{
				Company: research.Company{Name: input.Candidate.Identifier},
				Outcome: research.OutcomeOK,
			}}, nil
		})

	s.env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RunID: "run-2", Query: "ci", Limit: 3})
	result := s.result()

	s.Len(result.Records, 3)
	s.False(result.Records[0].Degraded())
	s.False(result.Records[1].Degraded())
	s.True(result.Records[2].Degraded())
	s.Equal("Gamma", result.Records[2].Company.Name)
	s.Contains(result.Records[2].Reason, "worker lost")
}

func (s *WorkflowTestSuite) TestResearchWorkflow_OrderIndependentOfCompletion() {
	var inFlight, peak atomic.Int32
	s.env.OnActivity(ResearchCandidateActivity, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, input CandidateInput) (CandidateOutput, error) {
			current := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				old := peak.Load()
				if current <= old || peak.CompareAndSwap(old, current) {
					break
				}
			}
			time.Sleep(time.Duration(3-input.Index) * 10 * time.Millisecond)
			return CandidateOutput{Record: research.Record{
				Company: research.Company{Name: input.Candidate.Identifier},
				Outcome: research.OutcomeOK,
			}}, nil
		})

	s.env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RunID: "run-3", Query: "ci", Limit: 3, Concurrency: 2})
	result := s.result()

	s.Equal([]string{"Alpha", "Broken", "Gamma"}, names(result.Records))
	s.LessOrEqual(peak.Load(), int32(2))
}

func (s *WorkflowTestSuite) TestResearchWorkflow_SynthesisFailureFallsBack() {
	s.env.OnActivity(SynthesizeAnalysisActivity, mock.Anything, mock.Anything).
		Return(SynthesizeOutput{}, temporal.NewApplicationError("generator down", "Unavailable"))

	s.env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RunID: "run-4", Query: "ci", Limit: 3})
	result := s.result()

	s.Len(result.Records, 3)
	s.True(result.AnalysisDegraded)
	s.Contains(result.Analysis, "Alpha")
	s.Contains(result.Analysis, "Could not be analyzed: Broken.")
}

func (s *WorkflowTestSuite) TestResearchWorkflow_DiscoveryFailureIsEmptyResult() {
	s.env.OnActivity(DiscoverCandidatesActivity, mock.Anything, mock.Anything).
		Return(DiscoverOutput{}, errors.New("activity timed out"))

	s.env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RunID: "run-5", Query: "ci"})
	result := s.result()

	s.Empty(result.Records)
	s.Equal(research.NoMatchesNarrative("ci"), result.Analysis)
	s.False(result.AnalysisDegraded)
}

func (s *WorkflowTestSuite) TestResearchWorkflow_EmptyQuery() {
	s.env.ExecuteWorkflow(ResearchWorkflow, ResearchInput{RunID: "run-6", Query: "  "})
	s.True(s.env.IsWorkflowCompleted())

	err := s.env.GetWorkflowError()
	s.Error(err)
	var appErr *temporal.ApplicationError
	s.True(errors.As(err, &appErr))
	s.Equal("EmptyQuery", appErr.Type())
}

func TestWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(WorkflowTestSuite))
}

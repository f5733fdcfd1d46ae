package workflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
)

const DefaultTaskQueue = "research-runs"

// Service runs research through Temporal and waits for the result, so callers see
// the same synchronous contract as the in-process workflow.
type Service struct {
	client      client.Client
	taskQueue   string
	limit       int
	concurrency int
}

var _ research.Engine = (*Service)(nil)

func NewService(client client.Client, taskQueue string, limit int, concurrency int) *Service {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Service{client: client, taskQueue: taskQueue, limit: limit, concurrency: concurrency}
}

func (s *Service) Run(ctx context.Context, query string) (research.ResearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return research.ResearchResult{}, research.ErrEmptyQuery
	}
	runID := research.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
	}
	options := client.StartWorkflowOptions{
		ID:        workflowID(runID),
		TaskQueue: s.taskQueue,
	}
	run, err := s.client.ExecuteWorkflow(ctx, options, ResearchWorkflow, ResearchInput{
		RunID:       runID,
		Query:       query,
		Limit:       s.limit,
		Concurrency: s.concurrency,
	})
	if err != nil {
		return research.ResearchResult{}, err
	}

	var result research.ResearchResult
	err = run.Get(ctx, &result)
	if ctxErr := ctx.Err(); ctxErr != nil {
		cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = s.client.CancelWorkflow(cancelCtx, run.GetID(), run.GetRunID())
		return research.ResearchResult{}, ctxErr
	}
	if err != nil {
		return research.ResearchResult{}, err
	}
	return result, nil
}

func (s *Service) CancelRun(ctx context.Context, runID string) error {
	return s.client.CancelWorkflow(ctx, workflowID(runID), "")
}

func workflowID(runID string) string {
	return fmt.Sprintf("research:%s", runID)
}

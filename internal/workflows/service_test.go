package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
)

func TestNewService_DefaultTaskQueue(t *testing.T) {
	service := NewService(mocks.NewClient(t), "", 5, 4)
	require.Equal(t, DefaultTaskQueue, service.taskQueue)
}

func TestRun_Success(t *testing.T) {
	mockClient := mocks.NewClient(t)
	workflowRun := mocks.NewWorkflowRun(t)
	runID := "run-123"
	taskQueue := "research-runs-test"

	mockClient.On(
		"ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(opts client.StartWorkflowOptions) bool {
			return opts.ID == workflowID(runID) && opts.TaskQueue == taskQueue
		}),
		mock.Anything,
		ResearchInput{RunID: runID, Query: "feature flags", Limit: 5, Concurrency: 2},
	).Return(workflowRun, nil)
	workflowRun.On("Get", mock.Anything, mock.AnythingOfType("*research.ResearchResult")).
		Run(func(args mock.Arguments) {
			out := args.Get(1).(*research.ResearchResult)
			*out = research.ResearchResult{Query: "feature flags", Analysis: "Use Unleash."}
		}).
		Return(nil)

	service := NewService(mockClient, taskQueue, 5, 2)
	ctx := research.ContextWithRunID(context.Background(), runID)
	result, err := service.Run(ctx, "  feature flags ")
	require.NoError(t, err)
	require.Equal(t, "Use Unleash.", result.Analysis)
}

func TestRun_EmptyQuery(t *testing.T) {
	service := NewService(mocks.NewClient(t), "", 5, 4)
	_, err := service.Run(context.Background(), " ")
	require.ErrorIs(t, err, research.ErrEmptyQuery)
}

func TestRun_StartError(t *testing.T) {
	mockClient := mocks.NewClient(t)
	expectedErr := errors.New("start failed")
	mockClient.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return((*mocks.WorkflowRun)(nil), expectedErr)

	_, err := NewService(mockClient, "", 5, 4).Run(context.Background(), "ci")
	require.ErrorIs(t, err, expectedErr)
}

func TestRun_WorkflowError(t *testing.T) {
	mockClient := mocks.NewClient(t)
	workflowRun := mocks.NewWorkflowRun(t)
	expectedErr := errors.New("workflow failed")
	mockClient.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(workflowRun, nil)
	workflowRun.On("Get", mock.Anything, mock.Anything).Return(expectedErr)

	_, err := NewService(mockClient, "", 5, 4).Run(context.Background(), "ci")
	require.ErrorIs(t, err, expectedErr)
}

func TestRun_CallerGoneCancelsWorkflow(t *testing.T) {
	mockClient := mocks.NewClient(t)
	workflowRun := mocks.NewWorkflowRun(t)
	ctx, cancel := context.WithCancel(context.Background())

	mockClient.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(workflowRun, nil)
	workflowRun.On("Get", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(context.Canceled)
	workflowRun.On("GetID").Return("research:run-9")
	workflowRun.On("GetRunID").Return("temporal-run")
	mockClient.On("CancelWorkflow", mock.Anything, "research:run-9", "temporal-run").Return(nil).Once()

	_, err := NewService(mockClient, "", 5, 4).Run(ctx, "ci")
	require.ErrorIs(t, err, context.Canceled)
}

func TestCancelRun(t *testing.T) {
	mockClient := mocks.NewClient(t)
	expectedErr := errors.New("not found")
	mockClient.On("CancelWorkflow", mock.Anything, workflowID("run-2"), "").Return(nil)
	mockClient.On("CancelWorkflow", mock.Anything, workflowID("missing"), "").Return(expectedErr)

	service := NewService(mockClient, "", 5, 4)
	require.NoError(t, service.CancelRun(context.Background(), "run-2"))
	require.ErrorIs(t, service.CancelRun(context.Background(), "missing"), expectedErr)
}

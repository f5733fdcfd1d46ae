package api

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateRun(ctx context.Context, run store.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockStore) CompleteRun(ctx context.Context, run store.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockStore) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	args := m.Called(ctx, runID)
	if value := args.Get(0); value != nil {
		return value.(*store.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	args := m.Called(ctx, limit)
	var result []store.Run
	if value := args.Get(0); value != nil {
		result = value.([]store.Run)
	}
	return result, args.Error(1)
}

func (m *MockStore) AppendEvent(ctx context.Context, event store.RunEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockStore) ListEvents(ctx context.Context, runID string, afterSeq int64) ([]store.RunEvent, error) {
	args := m.Called(ctx, runID, afterSeq)
	var result []store.RunEvent
	if value := args.Get(0); value != nil {
		result = value.([]store.RunEvent)
	}
	return result, args.Error(1)
}

func (m *MockStore) NextSeq(ctx context.Context, runID string) (int64, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockResearcher struct {
	mock.Mock
}

func (m *MockResearcher) RunTracked(ctx context.Context, query string) (string, research.ResearchResult, error) {
	args := m.Called(ctx, query)
	return args.String(0), args.Get(1).(research.ResearchResult), args.Error(2)
}

func newTestServer(t *testing.T, researcher Researcher, s store.Store, cfg config.Config) *httptest.Server {
	t.Helper()
	server := NewServer(researcher, s, nil, nil, cfg, nil)
	return httptest.NewServer(server.Router())
}

func strPtr(value string) *string {
	return &value
}

func boolPtr(value bool) *bool {
	return &value
}

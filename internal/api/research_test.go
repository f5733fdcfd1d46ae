package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/history"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/store/memory"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sampleResult(query string) research.ResearchResult {
	return research.ResearchResult{
		Query: query,
		Records: []research.Record{
			{
				Company: research.Company{
					Name:                    "Unleash",
					Website:                 strPtr("https://www.getunleash.io"),
					PricingModel:            strPtr("Freemium"),
					IsOpenSource:            boolPtr(true),
					TechStack:               []string{"Node.js", "TypeScript", "PostgreSQL", "React", "Docker", "Kubernetes"},
					LanguageSupport:         []string{"Go", "Java", "Python", "Ruby", "PHP", "Rust", ".NET"},
					APIAvailable:            boolPtr(true),
					IntegrationCapabilities: []string{"Slack", "Jira", "Datadog", "Terraform", "GitHub"},
					Description:             strPtr("Open-source feature management."),
				},
				Outcome:        research.OutcomeOK,
				ContentFetched: true,
			},
			{
				Company: research.Company{
					Name:         "LaunchDarkly",
					APIAvailable: boolPtr(false),
				},
				Outcome:        research.OutcomeOK,
				ContentFetched: true,
			},
			research.DegradedRecord(research.Candidate{Identifier: "Flagsmith", SourceLocation: "https://flagsmith.com"}, "extraction failed", true),
		},
		Analysis: "Pick Unleash for self-hosting.",
	}
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	return resp
}

func TestRunResearch_OriginalContract(t *testing.T) {
	researcher := &MockResearcher{}
	researcher.On("RunTracked", mock.Anything, "feature flags").Return("run-1", sampleResult("feature flags"), nil).Once()
	server := newTestServer(t, researcher, memory.New(), config.Config{})
	defer server.Close()

	resp := postJSON(t, server.URL+"/run-research", `{"query":"  feature flags "}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "feature flags", payload["query"])
	require.Equal(t, "Pick Unleash for self-hosting.", payload["developer_recommendations"])
	require.NotContains(t, payload, "run_id")

	companies := payload["companies"].([]any)
	require.Len(t, companies, 3)

	first := companies[0].(map[string]any)
	require.Equal(t, "Unleash", first["name"])
	require.Len(t, first["tech_stack"], 5)
	require.Len(t, first["language_support"], 5)
	require.Len(t, first["integration_capabilities"], 4)
	require.Equal(t, "✅ Available", first["api_available"])
	require.Equal(t, "Open-source feature management.", first["description"])

	second := companies[1].(map[string]any)
	require.Equal(t, "❌ Not Available", second["api_available"])
	require.Equal(t, []any{}, second["tech_stack"])
	require.Nil(t, second["website"])

	degraded := companies[2].(map[string]any)
	require.Equal(t, "Flagsmith", degraded["name"])
	require.Nil(t, degraded["description"])
	require.Nil(t, degraded["api_available"])
	require.Equal(t, []any{}, degraded["integration_capabilities"])
	researcher.AssertExpectations(t)
}

func TestRunResearch_RejectsBlankQuery(t *testing.T) {
	researcher := &MockResearcher{}
	server := newTestServer(t, researcher, memory.New(), config.Config{})
	defer server.Close()

	for _, body := range []string{`{"query":""}`, `{"query":"   "}`, `{}`, ``} {
		resp := postJSON(t, server.URL+"/run-research", body)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
	}

	resp := postJSON(t, server.URL+"/research", `{"query":`)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	researcher.AssertNotCalled(t, "RunTracked", mock.Anything, mock.Anything)
}

func TestRunResearch_EngineErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "contract violation", err: research.ErrEmptyQuery, status: http.StatusBadRequest},
		{name: "cancelled", err: context.Canceled, status: http.StatusServiceUnavailable},
		{name: "orchestrator failure", err: errors.New("workflow execution failed"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			researcher := &MockResearcher{}
			researcher.On("RunTracked", mock.Anything, "q").Return("run-1", research.ResearchResult{}, tc.err).Once()
			server := newTestServer(t, researcher, memory.New(), config.Config{})
			defer server.Close()

			resp := postJSON(t, server.URL+"/run-research", `{"query":"q"}`)
			defer resp.Body.Close()
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestRunResearch_NoEngine(t *testing.T) {
	server := newTestServer(t, nil, memory.New(), config.Config{})
	defer server.Close()

	resp := postJSON(t, server.URL+"/run-research", `{"query":"q"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestResearch_FullResultWithRunID(t *testing.T) {
	researcher := &MockResearcher{}
	researcher.On("RunTracked", mock.Anything, "feature flags").Return("run-7", sampleResult("feature flags"), nil).Once()
	server := newTestServer(t, researcher, memory.New(), config.Config{})
	defer server.Close()

	resp := postJSON(t, server.URL+"/research", `{"query":"feature flags"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		RunID string `json:"run_id"`
		research.ResearchResult
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "run-7", payload.RunID)
	require.Len(t, payload.Records, 3)
	require.Len(t, payload.Records[0].Company.TechStack, 6)
	require.Equal(t, research.OutcomeDegraded, payload.Records[2].Outcome)
	require.Equal(t, "extraction failed", payload.Records[2].Reason)
	require.Nil(t, payload.Records[2].Company.Description)
}

func TestRunResearch_SerializationIsStable(t *testing.T) {
	researcher := &MockResearcher{}
	researcher.On("RunTracked", mock.Anything, "q").Return("run-1", sampleResult("q"), nil).Twice()
	server := newTestServer(t, researcher, memory.New(), config.Config{})
	defer server.Close()

	read := func() string {
		resp := postJSON(t, server.URL+"/run-research", `{"query":"q"}`)
		defer resp.Body.Close()
		var buf bytes.Buffer
		_, err := buf.ReadFrom(resp.Body)
		require.NoError(t, err)
		return buf.String()
	}
	require.Equal(t, read(), read())
}

func TestResearch_TrackedRunIsListed(t *testing.T) {
	memStore := memory.New()
	tracker := &history.Tracker{
		Engine: research.EngineFunc(func(ctx context.Context, query string) (research.ResearchResult, error) {
			return sampleResult(query), nil
		}),
		Store:    memStore,
		Recorder: history.NewRecorder(memStore, nil),
		Mode:     "inline",
		NewID:    func() string { return "run-42" },
	}
	server := newTestServer(t, tracker, memStore, config.Config{})
	defer server.Close()

	resp := postJSON(t, server.URL+"/research", `{"query":"feature flags"}`)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(server.URL + "/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	var listed listRunsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	require.Len(t, listed.Runs, 1)
	require.Equal(t, "run-42", listed.Runs[0].ID)
	require.Equal(t, store.RunStatusCompleted, listed.Runs[0].Status)
	require.Equal(t, 3, listed.Runs[0].CandidateCount)
	require.Equal(t, 1, listed.Runs[0].DegradedCount)
	require.True(t, strings.HasPrefix(listed.Runs[0].Query, "feature"))
}

func TestPresentCompany(t *testing.T) {
	company := research.Company{
		Name:            "Short",
		TechStack:       []string{"Go"},
		LanguageSupport: nil,
		Description:     strPtr(research.FailureSentinel),
	}
	out := presentCompany(company)
	require.Equal(t, []string{"Go"}, out.TechStack)
	require.Equal(t, []string{}, out.LanguageSupport)
	require.Nil(t, out.Description)
	require.Nil(t, out.APIAvailable)

	original := []string{"a", "b", "c", "d", "e", "f"}
	truncated := head(original, 4)
	truncated[0] = "changed"
	require.Equal(t, "a", original[0])
}

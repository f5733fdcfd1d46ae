package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/store"
	"github.com/go-chi/chi/v5"
)

type runSummaryResponse struct {
	ID               string `json:"id"`
	Query            string `json:"query"`
	Status           string `json:"status"`
	Mode             string `json:"mode,omitempty"`
	CandidateCount   int    `json:"candidate_count"`
	DegradedCount    int    `json:"degraded_count"`
	AnalysisDegraded bool   `json:"analysis_degraded"`
	Error            string `json:"error,omitempty"`
	StartedAt        string `json:"started_at"`
	CompletedAt      string `json:"completed_at,omitempty"`
	DurationMs       int64  `json:"duration_ms"`
}

type listRunsResponse struct {
	Runs []runSummaryResponse `json:"runs"`
}

type runEventResponse struct {
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type runStageResponse struct {
	Name        string         `json:"name"`
	Status      string         `json:"status"`
	StartedAt   string         `json:"started_at,omitempty"`
	CompletedAt string         `json:"completed_at,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	Details     map[string]any `json:"details,omitempty"`
}

type runDetailResponse struct {
	Run    runSummaryResponse `json:"run"`
	Stages []runStageResponse `json:"stages"`
	Events []runEventResponse `json:"events"`
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, listRunsResponse{Runs: []runSummaryResponse{}})
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	runs, err := s.store.ListRuns(r.Context(), store.ClampListLimit(limit))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response := listRunsResponse{Runs: make([]runSummaryResponse, 0, len(runs))}
	for _, run := range runs {
		response.Runs = append(response.Runs, toRunSummary(run))
	}
	writeJSON(w, response)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if runID == "" {
		http.Error(w, "run id required", http.StatusBadRequest)
		return
	}
	if s.store == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	run, err := s.store.GetRun(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	events, err := s.store.ListEvents(r.Context(), runID, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := runDetailResponse{
		Run:    toRunSummary(*run),
		Stages: []runStageResponse{},
		Events: make([]runEventResponse, 0, len(events)),
	}
	for _, step := range store.BuildStageTimeline(events) {
		response.Stages = append(response.Stages, runStageResponse{
			Name:        step.Name,
			Status:      step.Status,
			StartedAt:   step.StartedAt,
			CompletedAt: step.CompletedAt,
			DurationMs:  step.DurationMs,
			Details:     step.Details,
		})
	}
	for _, event := range events {
		response.Events = append(response.Events, runEventResponse{
			Seq:       event.Seq,
			Type:      event.Type,
			Timestamp: event.Timestamp,
			Payload:   event.Payload,
		})
	}
	writeJSON(w, response)
}

func toRunSummary(run store.Run) runSummaryResponse {
	return runSummaryResponse{
		ID:               run.ID,
		Query:            run.Query,
		Status:           run.Status,
		Mode:             run.Mode,
		CandidateCount:   run.CandidateCount,
		DegradedCount:    run.DegradedCount,
		AnalysisDegraded: run.AnalysisDegraded,
		Error:            run.Error,
		StartedAt:        run.StartedAt,
		CompletedAt:      run.CompletedAt,
		DurationMs:       run.DurationMs,
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"go.uber.org/zap"
)

const (
	maxTechStack    = 5
	maxLanguages    = 5
	maxIntegrations = 4

	apiAvailable    = "✅ Available"
	apiNotAvailable = "❌ Not Available"
)

type researchRequest struct {
	Query string `json:"query"`
}

type companyResponse struct {
	Name                    string   `json:"name"`
	Website                 *string  `json:"website"`
	PricingModel            *string  `json:"pricing_model"`
	IsOpenSource            *bool    `json:"is_open_source"`
	TechStack               []string `json:"tech_stack"`
	LanguageSupport         []string `json:"language_support"`
	APIAvailable            *string  `json:"api_available"`
	IntegrationCapabilities []string `json:"integration_capabilities"`
	Description             *string  `json:"description"`
}

type runResearchResponse struct {
	Query                    string            `json:"query"`
	Companies                []companyResponse `json:"companies"`
	DeveloperRecommendations string            `json:"developer_recommendations"`
}

type researchResponse struct {
	RunID string `json:"run_id"`
	research.ResearchResult
}

// runResearch serves the original response contract: companies flattened for display,
// degraded ones with a null description.
func (s *Server) runResearch(w http.ResponseWriter, r *http.Request) {
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	_, result, ok := s.execute(w, r, query)
	if !ok {
		return
	}
	compat := research.Compat(result)
	response := runResearchResponse{
		Query:                    query,
		Companies:                make([]companyResponse, 0, len(compat.Companies)),
		DeveloperRecommendations: compat.Analysis,
	}
	for _, company := range compat.Companies {
		response.Companies = append(response.Companies, presentCompany(company))
	}
	writeJSON(w, response)
}

func (s *Server) research(w http.ResponseWriter, r *http.Request) {
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	runID, result, ok := s.execute(w, r, query)
	if !ok {
		return
	}
	writeJSON(w, researchResponse{RunID: runID, ResearchResult: result})
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req researchRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return "", false
		}
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		http.Error(w, research.ErrEmptyQuery.Error(), http.StatusBadRequest)
		return "", false
	}
	return query, true
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, query string) (string, research.ResearchResult, bool) {
	if s.researcher == nil {
		http.Error(w, "research engine not configured", http.StatusServiceUnavailable)
		return "", research.ResearchResult{}, false
	}
	runID, result, err := s.researcher.RunTracked(r.Context(), query)
	switch {
	case err == nil:
		return runID, result, true
	case errors.Is(err, research.ErrEmptyQuery):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Info("research run abandoned", zap.String("run_id", runID), zap.Error(err))
		http.Error(w, "research run cancelled", http.StatusServiceUnavailable)
	default:
		s.logger.Error("research run failed", zap.String("run_id", runID), zap.Error(err))
		http.Error(w, "research run failed", http.StatusInternalServerError)
	}
	return "", research.ResearchResult{}, false
}

func presentCompany(company research.Company) companyResponse {
	description := company.Description
	if research.IsFailureSentinel(description) {
		description = nil
	}
	return companyResponse{
		Name:                    company.Name,
		Website:                 company.Website,
		PricingModel:            company.PricingModel,
		IsOpenSource:            company.IsOpenSource,
		TechStack:               head(company.TechStack, maxTechStack),
		LanguageSupport:         head(company.LanguageSupport, maxLanguages),
		APIAvailable:            presentAPIAvailable(company.APIAvailable),
		IntegrationCapabilities: head(company.IntegrationCapabilities, maxIntegrations),
		Description:             description,
	}
}

func presentAPIAvailable(value *bool) *string {
	if value == nil {
		return nil
	}
	label := apiNotAvailable
	if *value {
		label = apiAvailable
	}
	return &label
}

func head(values []string, n int) []string {
	if len(values) > n {
		values = values[:n]
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

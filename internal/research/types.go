// Package research turns a free-text request such as "developer tools for feature flags"
// into structured company records and a comparative recommendation.
//
// The pipeline runs Discovery, then Retrieval and Extraction for each candidate
// independently, then Synthesis over the whole set. Failures at any capability boundary
// degrade the affected candidate (or the analysis) instead of aborting the run.
package research

import (
	"errors"
	"strings"
)

// FailureSentinel is written into the description of a degraded record at the
// serialization boundary. Internally degraded records are tagged with OutcomeDegraded.
const FailureSentinel = "Analysis failed"

var ErrEmptyQuery = errors.New("query must not be empty")

type Candidate struct {
	Identifier     string `json:"identifier"`
	SourceLocation string `json:"source_location"`
}

type RawContent struct {
	Candidate      Candidate `json:"candidate"`
	Body           string    `json:"body"`
	FetchSucceeded bool      `json:"fetch_succeeded"`
	Status         int       `json:"status,omitempty"`
	ContentType    string    `json:"content_type,omitempty"`
}

type Company struct {
	Name                    string   `json:"name"`
	Website                 *string  `json:"website"`
	PricingModel            *string  `json:"pricing_model"`
	IsOpenSource            *bool    `json:"is_open_source"`
	TechStack               []string `json:"tech_stack"`
	LanguageSupport         []string `json:"language_support"`
	APIAvailable            *bool    `json:"api_available"`
	IntegrationCapabilities []string `json:"integration_capabilities"`
	Description             *string  `json:"description"`
}

type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeDegraded Outcome = "degraded"
)

// Record is the tagged result of researching one candidate.
type Record struct {
	Company        Company `json:"company"`
	Outcome        Outcome `json:"outcome"`
	Reason         string  `json:"reason,omitempty"`
	ContentFetched bool    `json:"content_fetched"`
}

func (r Record) Degraded() bool {
	return r.Outcome == OutcomeDegraded
}

type ResearchResult struct {
	Query            string   `json:"query"`
	Records          []Record `json:"records"`
	Analysis         string   `json:"analysis"`
	AnalysisDegraded bool     `json:"analysis_degraded"`
}

func (r ResearchResult) Companies() []Company {
	companies := make([]Company, 0, len(r.Records))
	for _, record := range r.Records {
		companies = append(companies, record.Company)
	}
	return companies
}

func (r ResearchResult) DegradedCount() int {
	count := 0
	for _, record := range r.Records {
		if record.Degraded() {
			count++
		}
	}
	return count
}

// DegradedRecord builds the canonical degraded shape for a candidate: the identifier
// as name and every other attribute null or empty.
func DegradedRecord(candidate Candidate, reason string, contentFetched bool) Record {
	return Record{
		Company: Company{
			Name:                    candidateName(candidate),
			TechStack:               []string{},
			LanguageSupport:         []string{},
			IntegrationCapabilities: []string{},
		},
		Outcome:        OutcomeDegraded,
		Reason:         reason,
		ContentFetched: contentFetched,
	}
}

func candidateName(candidate Candidate) string {
	if name := strings.TrimSpace(candidate.Identifier); name != "" {
		return name
	}
	return strings.TrimSpace(candidate.SourceLocation)
}

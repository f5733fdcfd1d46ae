package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultExtractTimeout = 45 * time.Second

var (
	errEmptyExtraction     = errors.New("extraction returned no content")
	errMalformedExtraction = errors.New("extraction returned malformed JSON")
)

// Extractor fills a Company record from fetched content through a schema-constrained
// capability. It never returns an error: failures come back as degraded records.
type Extractor struct {
	Capability StructuredExtractor
	Timeout    time.Duration
	Logger     *zap.Logger
}

type extractedCompany struct {
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

func (e *Extractor) Extract(ctx context.Context, candidate Candidate, content RawContent) Record {
	if e == nil || e.Capability == nil {
		return DegradedRecord(candidate, "no extraction capability configured", content.FetchSucceeded)
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}
	extractCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := extractionPrompt(candidate, content)
	raw, err := e.call(extractCtx, prompt)
	if err != nil {
		reason := fmt.Sprintf("extraction failed: %v", err)
		e.logger().Warn("structured extraction failed", zap.String("candidate", candidate.Identifier), zap.Error(err))
		return DegradedRecord(candidate, reason, content.FetchSucceeded)
	}
	company, err := decodeCompany(raw)
	if err != nil {
		e.logger().Warn("structured extraction unusable", zap.String("candidate", candidate.Identifier), zap.Error(err))
		return DegradedRecord(candidate, err.Error(), content.FetchSucceeded)
	}
	if company.Name == "" {
		company.Name = candidateName(candidate)
	}
	return Record{Company: company, Outcome: OutcomeOK, ContentFetched: content.FetchSucceeded}
}

func (e *Extractor) call(ctx context.Context, prompt string) (raw json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			raw, err = nil, fmt.Errorf("extractor panicked: %v", rec)
		}
	}()
	return e.Capability.ExtractStructured(ctx, prompt, CompanySchema())
}

func (e *Extractor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func decodeCompany(raw json.RawMessage) (Company, error) {
	text := stripCodeFence(string(raw))
	if text == "" || text == "null" {
		return Company{}, errEmptyExtraction
	}
	var parsed extractedCompany
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return Company{}, fmt.Errorf("%w: %v", errMalformedExtraction, err)
	}
	return Company{
		Name:                    strings.TrimSpace(parsed.Name),
		Website:                 cleanOptional(parsed.Website),
		PricingModel:            cleanOptional(parsed.PricingModel),
		IsOpenSource:            parsed.IsOpenSource,
		TechStack:               cleanList(parsed.TechStack),
		LanguageSupport:         cleanList(parsed.LanguageSupport),
		APIAvailable:            parsed.APIAvailable,
		IntegrationCapabilities: cleanList(parsed.IntegrationCapabilities),
		Description:             cleanDescription(parsed.Description),
	}, nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimPrefix(text, "json")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func cleanOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// cleanDescription also drops the failure sentinel so a model echoing it cannot pass
// for a degraded record at the serialization boundary.
func cleanDescription(value *string) *string {
	cleaned := cleanOptional(value)
	if cleaned != nil && *cleaned == FailureSentinel {
		return nil
	}
	return cleaned
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := map[string]bool{}
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, trimmed)
	}
	return out
}

func extractionPrompt(candidate Candidate, content RawContent) string {
	if !content.FetchSucceeded || strings.TrimSpace(content.Body) == "" {
		return fmt.Sprintf(`Analyze the developer tool %q (source: %s).
Its website content could not be retrieved. Fill in only what is well known about this tool
and use null for anything you cannot state with confidence. Leave lists empty rather than guessing.`,
			candidate.Identifier, orUnknown(candidate.SourceLocation))
	}
	return fmt.Sprintf(`Analyze this content from %s's website (%s) from a developer's perspective.
Focus on pricing model, whether it is open source, its tech stack, supported programming languages,
API or SDK availability, and integrations. Use null for anything the content does not state.

Content:
%s`, candidate.Identifier, orUnknown(candidate.SourceLocation), content.Body)
}

func orUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return "unknown"
	}
	return value
}

package main

import (
	"fmt"
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/charmbracelet/glamour"
)

const (
	reportTechStack    = 5
	reportLanguages    = 5
	reportIntegrations = 4
)

func renderMarkdown(result research.ResearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Developer tools for %q\n\n", result.Query)
	if len(result.Records) == 0 {
		b.WriteString("_No tools found._\n\n")
	}
	for i, record := range result.Records {
		company := record.Company
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, company.Name)
		if record.Degraded() {
			b.WriteString("_Analysis failed for this tool._\n\n")
			continue
		}
		writeField(&b, "Website", optional(company.Website))
		writeField(&b, "Pricing", optional(company.PricingModel))
		writeField(&b, "Open source", yesNo(company.IsOpenSource))
		writeField(&b, "Tech stack", list(company.TechStack, reportTechStack))
		writeField(&b, "Languages", list(company.LanguageSupport, reportLanguages))
		writeField(&b, "API", apiLabel(company.APIAvailable))
		writeField(&b, "Integrations", list(company.IntegrationCapabilities, reportIntegrations))
		if company.Description != nil && *company.Description != "" {
			fmt.Fprintf(&b, "\n> %s\n", *company.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Developer recommendations\n\n")
	b.WriteString(strings.TrimSpace(result.Analysis))
	b.WriteString("\n")
	return b.String()
}

func renderReport(markdown string, plain bool) (string, error) {
	if plain {
		return markdown, nil
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(markdown)
}

func writeField(b *strings.Builder, label string, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- **%s:** %s\n", label, value)
}

func optional(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func yesNo(value *bool) string {
	switch {
	case value == nil:
		return ""
	case *value:
		return "yes"
	default:
		return "no"
	}
}

func apiLabel(value *bool) string {
	switch {
	case value == nil:
		return ""
	case *value:
		return "✅ Available"
	default:
		return "❌ Not Available"
	}
}

func list(values []string, limit int) string {
	if len(values) > limit {
		values = values[:limit]
	}
	return strings.Join(values, ", ")
}

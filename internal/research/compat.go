package research

// CompatResult is the flat result shape older clients consume: companies without
// outcome tags, degraded ones marked by the failure sentinel in their description.
type CompatResult struct {
	Query     string    `json:"query"`
	Companies []Company `json:"companies"`
	Analysis  string    `json:"analysis"`
}

func Compat(result ResearchResult) CompatResult {
	companies := make([]Company, 0, len(result.Records))
	for _, record := range result.Records {
		company := record.Company
		company.TechStack = nonNil(company.TechStack)
		company.LanguageSupport = nonNil(company.LanguageSupport)
		company.IntegrationCapabilities = nonNil(company.IntegrationCapabilities)
		if record.Degraded() {
			sentinel := FailureSentinel
			company.Description = &sentinel
		}
		companies = append(companies, company)
	}
	return CompatResult{Query: result.Query, Companies: companies, Analysis: result.Analysis}
}

// IsFailureSentinel reports whether a serialized description marks a failed extraction.
func IsFailureSentinel(description *string) bool {
	return description != nil && *description == FailureSentinel
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

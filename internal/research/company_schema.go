package research

import "github.com/Keyring-Network/keyring-gavryn/research/internal/schema"

var companyFieldOrder = []string{
	"name",
	"website",
	"pricing_model",
	"is_open_source",
	"tech_stack",
	"language_support",
	"api_available",
	"integration_capabilities",
	"description",
}

// CompanySchema is the fixed output shape handed to the structured-extraction capability.
func CompanySchema() *schema.Schema {
	return &schema.Schema{
		Name:        "company_analysis",
		Type:        schema.TypeObject,
		Description: "Structured facts about one developer tool or the company behind it.",
		Properties: map[string]*schema.Schema{
			"name":                     schema.String("Product or company name"),
			"website":                  schema.NullableString("Official website URL"),
			"pricing_model":            schema.NullableString("One of Free, Freemium, Paid, Enterprise, or Unknown"),
			"is_open_source":           schema.NullableBool("True when the core product is open source, null when unknown"),
			"tech_stack":               schema.StringList("Technologies, frameworks and platforms the tool uses or supports"),
			"language_support":         schema.StringList("Programming languages with first-class support"),
			"api_available":            schema.NullableBool("True when a public API or SDK is offered, null when unknown"),
			"integration_capabilities": schema.StringList("Tools and platforms it integrates with, such as GitHub or Slack"),
			"description":              schema.NullableString("One sentence on what the tool does for developers"),
		},
		Order:    companyFieldOrder,
		Required: companyFieldOrder,
	}
}

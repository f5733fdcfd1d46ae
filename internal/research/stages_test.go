package research

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/schema"
	"github.com/stretchr/testify/require"
)

func TestRetrieve_Success(t *testing.T) {
	r := &Retrieval{Fetcher: pageFetcher(), MaxContentChars: 7}
	content := r.Retrieve(context.Background(), Candidate{Identifier: "Alpha", SourceLocation: "https://alpha.dev"})
	require.True(t, content.FetchSucceeded)
	require.Equal(t, "page of", content.Body)
	require.Equal(t, 200, content.Status)
}

func TestRetrieve_FailuresAreAbsorbed(t *testing.T) {
	cases := map[string]Fetcher{
		"error": pageFetcher("https://alpha.dev"),
		"status": FetcherFunc(func(ctx context.Context, location string) (FetchResponse, error) {
			return FetchResponse{Status: 404, Body: "not found"}, nil
		}),
		"timeout": FetcherFunc(func(ctx context.Context, location string) (FetchResponse, error) {
			<-ctx.Done()
			return FetchResponse{}, ctx.Err()
		}),
		"panic": FetcherFunc(func(ctx context.Context, location string) (FetchResponse, error) {
			panic("boom")
		}),
	}
	for name, fetcher := range cases {
		t.Run(name, func(t *testing.T) {
			r := &Retrieval{Fetcher: fetcher, Timeout: 20 * time.Millisecond}
			content := r.Retrieve(context.Background(), Candidate{Identifier: "Alpha", SourceLocation: "https://alpha.dev"})
			require.False(t, content.FetchSucceeded)
			require.Empty(t, content.Body)
		})
	}
}

func TestRetrieve_MissingLocation(t *testing.T) {
	called := false
	r := &Retrieval{Fetcher: FetcherFunc(func(ctx context.Context, location string) (FetchResponse, error) {
		called = true
		return FetchResponse{Status: 200}, nil
	})}
	content := r.Retrieve(context.Background(), Candidate{Identifier: "Alpha"})
	require.False(t, content.FetchSucceeded)
	require.False(t, called)
}

func TestExtract_CleansModelOutput(t *testing.T) {
	capability := StructuredExtractorFunc(func(ctx context.Context, text string, shape *schema.Schema) (json.RawMessage, error) {
		require.Equal(t, "company_analysis", shape.Name)
		return json.RawMessage("```json\n" + `{"name":"","website":"  ","pricing_model":"Freemium","is_open_source":null,
			"tech_stack":["Go"," go ","","Rust"],"language_support":null,"api_available":false,
			"integration_capabilities":["GitHub"],"description":"Analysis failed"}` + "\n```"), nil
	})
	e := &Extractor{Capability: capability}
	record := e.Extract(context.Background(), Candidate{Identifier: "Alpha"}, RawContent{FetchSucceeded: true, Body: "x"})

	require.Equal(t, OutcomeOK, record.Outcome)
	require.Equal(t, "Alpha", record.Company.Name)
	require.Nil(t, record.Company.Website)
	require.Equal(t, "Freemium", *record.Company.PricingModel)
	require.Nil(t, record.Company.IsOpenSource)
	require.False(t, *record.Company.APIAvailable)
	require.Equal(t, []string{"Go", "Rust"}, record.Company.TechStack)
	require.Equal(t, []string{}, record.Company.LanguageSupport)
	require.Nil(t, record.Company.Description)
}

func TestExtract_DegradedPromptWhenFetchFailed(t *testing.T) {
	var prompt string
	capability := StructuredExtractorFunc(func(ctx context.Context, text string, shape *schema.Schema) (json.RawMessage, error) {
		prompt = text
		return json.RawMessage(`{"name":"Alpha"}`), nil
	})
	e := &Extractor{Capability: capability}
	record := e.Extract(context.Background(), Candidate{Identifier: "Alpha", SourceLocation: "https://alpha.dev"}, RawContent{})

	require.Contains(t, prompt, "could not be retrieved")
	require.Contains(t, prompt, `"Alpha"`)
	require.Equal(t, OutcomeOK, record.Outcome)
	require.False(t, record.ContentFetched)
}

func TestExtract_FailuresDegrade(t *testing.T) {
	cases := map[string]StructuredExtractorFunc{
		"error": func(ctx context.Context, text string, shape *schema.Schema) (json.RawMessage, error) {
			return nil, errors.New("quota exceeded")
		},
		"malformed": func(ctx context.Context, text string, shape *schema.Schema) (json.RawMessage, error) {
			return json.RawMessage(`{"name": "Alpha", "tech_stack": "Go"`), nil
		},
		"empty": func(ctx context.Context, text string, shape *schema.Schema) (json.RawMessage, error) {
			return json.RawMessage(" "), nil
		},
		"timeout": func(ctx context.Context, text string, shape *schema.Schema) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		"panic": func(ctx context.Context, text string, shape *schema.Schema) (json.RawMessage, error) {
			panic("boom")
		},
	}
	for name, capability := range cases {
		t.Run(name, func(t *testing.T) {
			e := &Extractor{Capability: capability, Timeout: 20 * time.Millisecond}
			record := e.Extract(context.Background(), Candidate{Identifier: "Alpha"}, RawContent{FetchSucceeded: true, Body: "x"})
			assertDegradedShape(t, record)
			require.Equal(t, "Alpha", record.Company.Name)
			require.NotEmpty(t, record.Reason)
			require.True(t, record.ContentFetched)
		})
	}
}

func TestSynthesize_EmptySetIsNoMatches(t *testing.T) {
	s := &Synthesizer{Generator: GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		t.Fatal("generator must not be called")
		return "", nil
	})}
	analysis := s.Synthesize(context.Background(), "queues", nil)
	require.False(t, analysis.Degraded)
	require.Contains(t, analysis.Text, "No matching developer tools")
}

func TestSynthesize_ExcludesDegradedEvidence(t *testing.T) {
	var prompt string
	s := &Synthesizer{Generator: GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		prompt = p
		return "  Pick Alpha.  ", nil
	})}
	records := []Record{
		{Company: Company{Name: "Alpha", TechStack: []string{"Go"}}, Outcome: OutcomeOK},
		DegradedRecord(Candidate{Identifier: "Bravo"}, "extraction failed", false),
	}
	analysis := s.Synthesize(context.Background(), "queues", records)
	require.Equal(t, "Pick Alpha.", analysis.Text)
	require.Contains(t, prompt, `"name": "Alpha"`)
	require.NotContains(t, prompt, `"name": "Bravo"`)
	require.Contains(t, prompt, "could not be analyzed, mention them only as such: Bravo")
	require.NotContains(t, prompt, FailureSentinel)
}

func TestSynthesize_GeneratorFailureFallsBack(t *testing.T) {
	for name, generator := range map[string]Generator{
		"error": GeneratorFunc(func(ctx context.Context, prompt string) (string, error) { return "", errors.New("503") }),
		"empty": GeneratorFunc(func(ctx context.Context, prompt string) (string, error) { return "\n", nil }),
	} {
		t.Run(name, func(t *testing.T) {
			open := true
			s := &Synthesizer{Generator: generator}
			analysis := s.Synthesize(context.Background(), "queues", []Record{
				{Company: Company{Name: "Alpha", IsOpenSource: &open}, Outcome: OutcomeOK},
			})
			require.True(t, analysis.Degraded)
			require.True(t, strings.HasPrefix(analysis.Text, degradedPrefix))
			require.Contains(t, analysis.Text, "Alpha (open source)")
		})
	}
}

func TestStaticAnalysis(t *testing.T) {
	require.Equal(t, Analysis{Text: NoMatchesNarrative("queues")}, StaticAnalysis("queues", nil))

	analysis := StaticAnalysis("queues", []Record{{Company: Company{Name: "Alpha"}, Outcome: OutcomeOK}})
	require.True(t, analysis.Degraded)
	require.Contains(t, analysis.Text, "- Alpha")
}

func TestCompat_SentinelOnlyForDegraded(t *testing.T) {
	description := "Flags for everyone"
	result := ResearchResult{
		Query: "flags",
		Records: []Record{
			{Company: Company{Name: "Alpha", Description: &description}, Outcome: OutcomeOK},
			DegradedRecord(Candidate{Identifier: "Bravo"}, "timeout", false),
		},
		Analysis: "ok",
	}
	compat := Compat(result)
	require.Len(t, compat.Companies, 2)
	require.False(t, IsFailureSentinel(compat.Companies[0].Description))
	require.True(t, IsFailureSentinel(compat.Companies[1].Description))
	require.Equal(t, []string{}, compat.Companies[0].TechStack)
	// The tagged result itself never carries the sentinel.
	require.Nil(t, result.Records[1].Company.Description)
}

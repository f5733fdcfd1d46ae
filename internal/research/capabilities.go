package research

import (
	"context"
	"encoding/json"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/schema"
)

type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type FetchResponse struct {
	Status      int
	Body        string
	ContentType string
	FinalURL    string
}

type Searcher interface {
	Search(ctx context.Context, text string, limit int) ([]SearchHit, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

type StructuredExtractor interface {
	ExtractStructured(ctx context.Context, text string, shape *schema.Schema) (json.RawMessage, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Engine is what the API and CLI run queries against. Both the in-process Workflow
// and the Temporal-backed service implement it.
type Engine interface {
	Run(ctx context.Context, query string) (ResearchResult, error)
}

type SearcherFunc func(ctx context.Context, text string, limit int) ([]SearchHit, error)

func (f SearcherFunc) Search(ctx context.Context, text string, limit int) ([]SearchHit, error) {
	return f(ctx, text, limit)
}

type FetcherFunc func(ctx context.Context, url string) (FetchResponse, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (FetchResponse, error) {
	return f(ctx, url)
}

type StructuredExtractorFunc func(ctx context.Context, text string, shape *schema.Schema) (json.RawMessage, error)

func (f StructuredExtractorFunc) ExtractStructured(ctx context.Context, text string, shape *schema.Schema) (json.RawMessage, error) {
	return f(ctx, text, shape)
}

type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type EngineFunc func(ctx context.Context, query string) (ResearchResult, error)

func (f EngineFunc) Run(ctx context.Context, query string) (ResearchResult, error) {
	return f(ctx, query)
}

package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/schema"
)

type recordingObserver struct {
	mu         sync.Mutex
	stages     []research.Stage
	candidates map[int]string
	runIDs     map[string]bool
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{candidates: map[int]string{}, runIDs: map[string]bool{}}
}

func (o *recordingObserver) StageChanged(ctx context.Context, stage research.Stage, detail map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
	o.runIDs[research.RunIDFromContext(ctx)] = true
}

func (o *recordingObserver) CandidateCompleted(ctx context.Context, index int, candidate research.Candidate, record research.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.candidates[index] = candidate.Identifier
	o.runIDs[research.RunIDFromContext(ctx)] = true
}

// testResearch builds an in-process workflow over three tools. Fetching "Broken"
// fails; extraction names the record after the first word of the page.
func testResearch(observer research.Observer, searchErr error) *research.Workflow {
	caps := research.Capabilities{
		Searcher: research.SearcherFunc(func(ctx context.Context, text string, limit int) ([]research.SearchHit, error) {
			if searchErr != nil {
				return nil, searchErr
			}
			return []research.SearchHit{
				{Title: "Alpha - CI", URL: "https://alpha.example"},
				{Title: "Broken - CI", URL: "https://broken.example"},
				{Title: "Gamma - CI", URL: "https://gamma.example"},
			}, nil
		}),
		Fetcher: research.FetcherFunc(func(ctx context.Context, url string) (research.FetchResponse, error) {
			if strings.Contains(url, "broken") {
				return research.FetchResponse{}, errors.New("connection refused")
			}
			return research.FetchResponse{Status: 200, Body: "page " + url}, nil
		}),
		Extractor: research.StructuredExtractorFunc(func(ctx context.Context, text string, shape *schema.Schema) (json.RawMessage, error) {
			if strings.Contains(text, "could not be retrieved") {
				return nil, errors.New("nothing to extract")
			}
			name := "Alpha"
			if strings.Contains(text, "gamma") {
				name = "Gamma"
			}
			return json.Marshal(map[string]any{
				"name":                     name,
				"website":                  nil,
				"pricing_model":            "Free",
				"is_open_source":           true,
				"tech_stack":               []string{"Go"},
				"language_support":         []string{"Go"},
				"api_available":            true,
				"integration_capabilities": []string{"GitHub"},
				"description":              name + " runs pipelines.",
			})
		}),
		Generator: research.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
			return "Pick Alpha.", nil
		}),
	}
	workflow := research.New(caps, research.Settings{Limit: 3, Concurrency: 2}, nil)
	workflow.Observer = observer
	return workflow
}

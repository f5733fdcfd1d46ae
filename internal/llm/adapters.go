package llm

import (
	"context"
	"encoding/json"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/schema"
)

const (
	extractionSystemPrompt = "You extract structured facts about developer tools. Answer only with JSON matching the schema. Use null when the source does not say."
	synthesisSystemPrompt  = "You are a senior software engineer giving quick, concise tech recommendations. Keep responses brief and actionable."
)

// Generator exposes a provider as the research text-generation capability.
type Generator struct {
	Provider Provider
	System   string
}

var _ research.Generator = Generator{}

func NewGenerator(provider Provider) Generator {
	return Generator{Provider: provider, System: synthesisSystemPrompt}
}

func (g Generator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.Provider.Generate(ctx, withSystem(g.System, prompt))
}

// Extractor exposes a provider as the research structured-extraction capability.
type Extractor struct {
	Provider StructuredProvider
	System   string
}

var _ research.StructuredExtractor = Extractor{}

func NewExtractor(provider StructuredProvider) Extractor {
	return Extractor{Provider: provider, System: extractionSystemPrompt}
}

func (e Extractor) ExtractStructured(ctx context.Context, text string, shape *schema.Schema) (json.RawMessage, error) {
	return e.Provider.GenerateStructured(ctx, withSystem(e.System, text), shape)
}

func withSystem(system string, prompt string) []Message {
	messages := make([]Message, 0, 2)
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	return append(messages, Message{Role: "user", Content: prompt})
}

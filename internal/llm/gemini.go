package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/schema"
	"google.golang.org/genai"
)

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing API key for remote provider")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiProvider{client: client, model: cfg.Model}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	contents, config := geminiRequest(messages)
	return p.generate(ctx, contents, config)
}

func (p *GeminiProvider) GenerateStructured(ctx context.Context, messages []Message, shape *schema.Schema) (json.RawMessage, error) {
	if shape == nil {
		return nil, errors.New("missing response schema")
	}
	contents, config := geminiRequest(messages)
	config.ResponseMIMEType = "application/json"
	config.ResponseSchema = toGeminiSchema(shape)
	config.Temperature = genai.Ptr[float32](0.1)
	text, err := p.generate(ctx, contents, config)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("LLM response was not valid JSON")
	}
	return json.RawMessage(text), nil
}

func (p *GeminiProvider) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	if p.model == "" {
		return "", errors.New("missing model for remote provider")
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("LLM response was empty")
	}
	return text, nil
}

// geminiRequest moves system messages into the system instruction and maps the
// assistant role onto Gemini's "model" role.
func geminiRequest(messages []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, message := range messages {
		switch message.Role {
		case "system":
			system = append(system, message.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(message.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(message.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, config
}

func toGeminiSchema(s *schema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{Description: s.Description}
	switch s.Type {
	case schema.TypeObject:
		out.Type = genai.TypeObject
	case schema.TypeArray:
		out.Type = genai.TypeArray
	case schema.TypeBoolean:
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	if s.Nullable {
		out.Nullable = genai.Ptr(true)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGeminiSchema(prop)
		}
		out.PropertyOrdering = s.PropertyNames()
		out.Required = append([]string(nil), s.Required...)
	}
	if s.Items != nil {
		out.Items = toGeminiSchema(s.Items)
	}
	return out
}

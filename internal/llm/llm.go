package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/schema"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// StructuredProvider returns a JSON document shaped by the given schema.
type StructuredProvider interface {
	Provider
	GenerateStructured(ctx context.Context, messages []Message, shape *schema.Schema) (json.RawMessage, error)
}

type Config struct {
	Mode             string
	Provider         string
	Model            string
	BaseURL          string
	FallbackProvider string
	FallbackModel    string
	FallbackBaseURL  string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
	GeminiAPIKey     string
}

func NewProvider(cfg Config) (StructuredProvider, error) {
	if cfg.Mode == "local" {
		return LocalProvider{}, nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}), nil
	case "openrouter":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   cfg.Model,
			BaseURL: defaultIfEmpty(cfg.BaseURL, "https://openrouter.ai/api/v1"),
		}), nil
	case "gemini":
		return NewGeminiProvider(context.Background(), GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   defaultIfEmpty(cfg.Model, "gemini-2.5-flash"),
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
}

// NewProviders returns the primary provider followed by the configured fallback, if any.
func NewProviders(cfg Config) ([]Candidate, error) {
	primary, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	candidates := []Candidate{{Name: providerName(cfg), Provider: primary}}
	fallback := strings.TrimSpace(cfg.FallbackProvider)
	if fallback == "" || cfg.Mode == "local" {
		return candidates, nil
	}
	fallbackCfg := cfg
	fallbackCfg.Provider = fallback
	fallbackCfg.Model = defaultIfEmpty(cfg.FallbackModel, cfg.Model)
	fallbackCfg.BaseURL = cfg.FallbackBaseURL
	secondary, err := NewProvider(fallbackCfg)
	if err != nil {
		return nil, err
	}
	return append(candidates, Candidate{Name: providerName(fallbackCfg), Provider: secondary}), nil
}

func providerName(cfg Config) string {
	if cfg.Mode == "local" {
		return "local"
	}
	return strings.ToLower(strings.TrimSpace(cfg.Provider))
}

func defaultIfEmpty(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

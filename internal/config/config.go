package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort           string
	CORSAllowOrigins  []string
	ExecutionMode     string
	TemporalAddress   string
	TemporalNamespace string
	TemporalTaskQueue string
	StoreDriver       string
	PostgresURL       string
	SQLitePath        string
	SearchProviders   []string
	SearchFeeds       []string
	FirecrawlAPIKey   string
	FirecrawlBaseURL  string
	FetchMode         string
	BrowserBin        string
	UserAgent         string
	LLMMode           string
	LLMProvider       string
	LLMModel          string
	LLMBaseURL        string
	LLMFallback       string
	LLMFallbackModel  string
	LLMFallbackURL    string
	OpenAIAPIKey      string
	OpenRouterAPIKey  string
	GeminiAPIKey      string
	DiscoveryStrategy string
	CandidateLimit    int
	Concurrency       int
	SearchTimeout     time.Duration
	FetchTimeout      time.Duration
	ExtractTimeout    time.Duration
	SynthesizeTimeout time.Duration
	MaxContentChars   int
	MaxBodyBytes      int
	LogLevel          string
	LogJSON           bool
}

// defaultOrigins are the deployed frontend and API origins.
var defaultOrigins = []string{
	"https://research-ai-frontend-4qn2.onrender.com",
	"https://research-api-0ff3.onrender.com",
}

// Load reads configuration from the environment. When RESEARCH_CONFIG names a YAML
// file its values fill in anything the environment leaves unset.
func Load() (Config, error) {
	src := source{}
	if path := os.Getenv("RESEARCH_CONFIG"); path != "" {
		overlay, err := readOverlay(path)
		if err != nil {
			return Config{}, err
		}
		src.overlay = overlay
	}
	postgresURL := src.get("POSTGRES_URL", "")
	if postgresURL == "" {
		postgresURL = src.buildPostgresURL()
	}
	return Config{
		APIPort:           src.get("RESEARCH_API_PORT", "8000"),
		CORSAllowOrigins:  src.getList("CORS_ALLOW_ORIGINS", defaultOrigins),
		ExecutionMode:     strings.ToLower(src.get("EXECUTION_MODE", "inline")),
		TemporalAddress:   src.get("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace: src.get("TEMPORAL_NAMESPACE", "default"),
		TemporalTaskQueue: src.get("TEMPORAL_TASK_QUEUE", "research-runs"),
		StoreDriver:       strings.ToLower(src.get("STORE_DRIVER", "memory")),
		PostgresURL:       postgresURL,
		SQLitePath:        src.get("SQLITE_PATH", "research.db"),
		SearchProviders:   src.getList("SEARCH_PROVIDERS", []string{"duckduckgo"}),
		SearchFeeds:       src.getList("SEARCH_FEEDS", nil),
		FirecrawlAPIKey:   src.get("FIRECRAWL_API_KEY", ""),
		FirecrawlBaseURL:  src.get("FIRECRAWL_BASE_URL", "https://api.firecrawl.dev"),
		FetchMode:         strings.ToLower(src.get("FETCH_MODE", "http")),
		BrowserBin:        src.get("BROWSER_BIN", ""),
		UserAgent:         src.get("USER_AGENT", "Mozilla/5.0 (compatible; DevToolsResearch/1.0)"),
		LLMMode:           strings.ToLower(src.get("LLM_MODE", "remote")),
		LLMProvider:       strings.ToLower(src.get("LLM_PROVIDER", "openai")),
		LLMModel:          src.get("LLM_MODEL", "gpt-4o-mini"),
		LLMBaseURL:        src.get("LLM_BASE_URL", ""),
		LLMFallback:       strings.ToLower(src.get("LLM_FALLBACK_PROVIDER", "")),
		LLMFallbackModel:  src.get("LLM_FALLBACK_MODEL", ""),
		LLMFallbackURL:    src.get("LLM_FALLBACK_BASE_URL", ""),
		OpenAIAPIKey:      src.get("OPENAI_API_KEY", ""),
		OpenRouterAPIKey:  src.get("OPENROUTER_API_KEY", ""),
		GeminiAPIKey:      src.get("GEMINI_API_KEY", ""),
		DiscoveryStrategy: strings.ToLower(src.get("DISCOVERY_STRATEGY", "direct")),
		CandidateLimit:    src.getInt("CANDIDATE_LIMIT", 5),
		Concurrency:       src.getInt("EXTRACT_CONCURRENCY", 4),
		SearchTimeout:     src.getDuration("SEARCH_TIMEOUT", 15*time.Second),
		FetchTimeout:      src.getDuration("FETCH_TIMEOUT", 20*time.Second),
		ExtractTimeout:    src.getDuration("EXTRACT_TIMEOUT", 45*time.Second),
		SynthesizeTimeout: src.getDuration("SYNTHESIZE_TIMEOUT", 60*time.Second),
		MaxContentChars:   src.getInt("MAX_CONTENT_CHARS", 12000),
		MaxBodyBytes:      src.getInt("MAX_BODY_BYTES", 5<<20),
		LogLevel:          src.get("LOG_LEVEL", "info"),
		LogJSON:           src.getBool("LOG_JSON", true),
	}, nil
}

type source struct {
	overlay map[string]string
}

func (s source) get(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value := s.overlay[key]; value != "" {
		return value
	}
	return fallback
}

func (s source) getInt(key string, fallback int) int {
	if value := s.get(key, ""); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func (s source) getBool(key string, fallback bool) bool {
	if value := s.get(key, ""); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

// getDuration accepts Go duration strings ("20s") and bare seconds ("20").
func (s source) getDuration(key string, fallback time.Duration) time.Duration {
	value := s.get(key, "")
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func (s source) getList(key string, fallback []string) []string {
	value := s.get(key, "")
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func (s source) buildPostgresURL() string {
	user := s.get("POSTGRES_USER", "research")
	password := s.get("POSTGRES_PASSWORD", "research")
	host := s.get("POSTGRES_HOST", "localhost")
	port := s.get("POSTGRES_PORT", "5432")
	database := s.get("POSTGRES_DB", "research")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, database)
}

// readOverlay flattens a YAML document into environment-style keys: nested maps join
// with "_" and keys are upper-cased, so {llm: {provider: gemini}} sets LLM_PROVIDER.
func readOverlay(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	out := map[string]string{}
	flatten("", doc, out)
	return out, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	keys := make([]string, 0, len(node))
	for key := range node {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		name := strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		if prefix != "" {
			name = prefix + "_" + name
		}
		switch value := node[key].(type) {
		case map[string]any:
			flatten(name, value, out)
		case []any:
			parts := make([]string, 0, len(value))
			for _, item := range value {
				parts = append(parts, fmt.Sprint(item))
			}
			out[name] = strings.Join(parts, ",")
		case nil:
		default:
			out[name] = fmt.Sprint(value)
		}
	}
}

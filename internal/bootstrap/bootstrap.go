// Package bootstrap builds the research stack from configuration. The API server, the
// Temporal worker and the CLI all assemble their dependencies here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/fetch"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/firecrawl"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/history"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/metrics"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/search"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/store/memory"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/store/postgres"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/store/sqlite"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/workflows"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

const (
	ModeInline   = "inline"
	ModeTemporal = "temporal"
)

var errMissingFirecrawlKey = errors.New("firecrawl requires FIRECRAWL_API_KEY")

// Cleanup releases whatever a builder opened. It is safe to call more than once.
type Cleanup func() error

func (c Cleanup) Close() error {
	if c == nil {
		return nil
	}
	return c()
}

func noCleanup() error { return nil }

func closers(items ...io.Closer) Cleanup {
	done := false
	return func() error {
		if done {
			return nil
		}
		done = true
		var errs []error
		for _, item := range items {
			if item == nil {
				continue
			}
			if err := item.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// Searcher combines the configured search providers in order.
func Searcher(cfg config.Config) (research.Searcher, error) {
	if len(cfg.SearchProviders) == 0 {
		return nil, errors.New("no search providers configured")
	}
	var searchers search.Multi
	for _, name := range cfg.SearchProviders {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "duckduckgo":
			searchers = append(searchers, search.NewDuckDuckGo(cfg.UserAgent))
		case "firecrawl":
			if cfg.FirecrawlAPIKey == "" {
				return nil, errMissingFirecrawlKey
			}
			searchers = append(searchers, firecrawl.NewClient(cfg.FirecrawlAPIKey, cfg.FirecrawlBaseURL, cfg.SearchTimeout))
		case "feeds":
			if len(cfg.SearchFeeds) == 0 {
				return nil, errors.New("feeds search provider requires SEARCH_FEEDS")
			}
			searchers = append(searchers, search.NewFeeds(cfg.SearchFeeds))
		default:
			return nil, fmt.Errorf("unsupported search provider %q", name)
		}
	}
	if len(searchers) == 1 {
		return searchers[0], nil
	}
	return searchers, nil
}

// Fetcher returns the fetcher for cfg.FetchMode. Browser mode keeps plain HTTP as the
// first attempt and only launches a browser for pages that come back empty.
func Fetcher(cfg config.Config, logger *zap.Logger) (research.Fetcher, Cleanup, error) {
	logger = orNop(logger)
	plain := fetch.NewHTTPFetcher(cfg.FetchTimeout, int64(cfg.MaxBodyBytes), cfg.UserAgent)
	switch strings.ToLower(strings.TrimSpace(cfg.FetchMode)) {
	case "", "http":
		return plain, noCleanup, nil
	case "browser":
		browser := fetch.NewBrowserFetcher(cfg.BrowserBin, cfg.FetchTimeout)
		logger.Debug("browser fallback enabled for retrieval")
		return fetch.Fallback{Primary: plain, Secondary: browser}, closers(browser), nil
	case "firecrawl":
		if cfg.FirecrawlAPIKey == "" {
			return nil, nil, errMissingFirecrawlKey
		}
		scraper := firecrawl.NewClient(cfg.FirecrawlAPIKey, cfg.FirecrawlBaseURL, cfg.FetchTimeout)
		return fetch.Fallback{Primary: scraper, Secondary: plain}, noCleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported fetch mode %q", cfg.FetchMode)
	}
}

func llmConfig(cfg config.Config) llm.Config {
	return llm.Config{
		Mode:             cfg.LLMMode,
		Provider:         cfg.LLMProvider,
		Model:            cfg.LLMModel,
		BaseURL:          cfg.LLMBaseURL,
		FallbackProvider: cfg.LLMFallback,
		FallbackModel:    cfg.LLMFallbackModel,
		FallbackBaseURL:  cfg.LLMFallbackURL,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenRouterAPIKey: cfg.OpenRouterAPIKey,
		GeminiAPIKey:     cfg.GeminiAPIKey,
	}
}

// Models returns the structured extractor and the text generator, both backed by the
// same retrying provider chain.
func Models(cfg config.Config, logger *zap.Logger) (research.StructuredExtractor, research.Generator, error) {
	logger = orNop(logger)
	candidates, err := llm.NewProviders(llmConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	provider := llm.NewRetrying(candidates, logger.Named("llm"))
	return llm.NewExtractor(provider), llm.NewGenerator(provider), nil
}

func Settings(cfg config.Config) research.Settings {
	return research.Settings{
		Limit:             cfg.CandidateLimit,
		Concurrency:       cfg.Concurrency,
		Strategy:          cfg.DiscoveryStrategy,
		SearchTimeout:     cfg.SearchTimeout,
		FetchTimeout:      cfg.FetchTimeout,
		ExtractTimeout:    cfg.ExtractTimeout,
		SynthesizeTimeout: cfg.SynthesizeTimeout,
		MaxContentChars:   cfg.MaxContentChars,
	}
}

// Workflow assembles the in-process research workflow from every configured capability.
func Workflow(cfg config.Config, logger *zap.Logger) (*research.Workflow, Cleanup, error) {
	logger = orNop(logger)
	searcher, err := Searcher(cfg)
	if err != nil {
		return nil, nil, err
	}
	extractor, generator, err := Models(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	fetcher, cleanup, err := Fetcher(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	workflow := research.New(research.Capabilities{
		Searcher:  searcher,
		Fetcher:   fetcher,
		Extractor: extractor,
		Generator: generator,
	}, Settings(cfg), logger.Named("research"))
	return workflow, cleanup, nil
}

// Store opens the run history backend named by cfg.StoreDriver.
func Store(cfg config.Config) (store.Store, Cleanup, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case "", "memory":
		return memory.New(), noCleanup, nil
	case "postgres":
		st, err := postgres.New(cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return st, closers(st), nil
	case "sqlite":
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, closers(st), nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

// Engine picks where runs execute. Temporal mode needs a connected client; inline mode
// runs the workflow in the calling process.
func Engine(cfg config.Config, workflow *research.Workflow, temporalClient client.Client) (research.Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.ExecutionMode)) {
	case "", ModeInline:
		if workflow == nil {
			return nil, errors.New("inline execution requires a research workflow")
		}
		return workflow, nil
	case ModeTemporal:
		if temporalClient == nil {
			return nil, errors.New("temporal execution requires a temporal client")
		}
		return workflows.NewService(temporalClient, cfg.TemporalTaskQueue, cfg.CandidateLimit, cfg.Concurrency), nil
	default:
		return nil, fmt.Errorf("unsupported execution mode %q", cfg.ExecutionMode)
	}
}

// Tracker wraps engine with run history and metrics. In inline mode the workflow's
// stage events go to the same recorder.
func Tracker(cfg config.Config, engine research.Engine, workflow *research.Workflow, st store.Store, m *metrics.Metrics, logger *zap.Logger) *history.Tracker {
	logger = orNop(logger)
	recorder := history.NewRecorder(st, logger.Named("history"))
	if workflow != nil && isInline(cfg) {
		workflow.Observer = recorder
	}
	return &history.Tracker{
		Engine:   engine,
		Store:    st,
		Recorder: recorder,
		Metrics:  m,
		Mode:     executionMode(cfg),
		Logger:   logger.Named("tracker"),
	}
}

func isInline(cfg config.Config) bool {
	return executionMode(cfg) == ModeInline
}

func executionMode(cfg config.Config) string {
	mode := strings.ToLower(strings.TrimSpace(cfg.ExecutionMode))
	if mode == "" {
		return ModeInline
	}
	return mode
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// Ping is a cheap reachability check used before serving.
func Ping(ctx context.Context, st store.Store) error {
	if st == nil {
		return nil
	}
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("store unavailable: %w", err)
	}
	return nil
}

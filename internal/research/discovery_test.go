package research

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClampLimit(t *testing.T) {
	require.Equal(t, DefaultCandidateLimit, ClampLimit(0))
	require.Equal(t, DefaultCandidateLimit, ClampLimit(-3))
	require.Equal(t, 1, ClampLimit(1))
	require.Equal(t, MaxCandidateLimit, ClampLimit(50))
}

func TestNormalizeLocation(t *testing.T) {
	cases := map[string]string{
		"https://www.LaunchDarkly.com/":           "launchdarkly.com",
		"http://launchdarkly.com":                 "launchdarkly.com",
		"//launchdarkly.com/pricing/?utm=x#plans": "launchdarkly.com/pricing",
		"  HTTPS://GitHub.com/Unleash/unleash/  ": "github.com/unleash/unleash",
	}
	for input, want := range cases {
		require.Equal(t, want, NormalizeLocation(input), input)
	}
	require.Empty(t, NormalizeLocation(""))
}

func TestDiscover_DeduplicatesAndKeepsOrder(t *testing.T) {
	hits := []SearchHit{
		{Title: "LaunchDarkly | Feature Management", URL: "https://launchdarkly.com/"},
		{Title: "Unleash - Open source feature flags", URL: "https://www.getunleash.io"},
		{Title: "LaunchDarkly Pricing", URL: "http://www.launchdarkly.com"},
		{Title: "unleash: docs", URL: "https://docs.getunleash.io/"},
		{Title: "Flagsmith", URL: "https://flagsmith.com/?ref=ddg"},
	}
	d := &Discovery{Searcher: staticSearcher(hits)}

	candidates := d.Discover(context.Background(), "feature flags", 5)
	require.Equal(t, []Candidate{
		{Identifier: "LaunchDarkly", SourceLocation: "https://launchdarkly.com/"},
		{Identifier: "Unleash", SourceLocation: "https://www.getunleash.io"},
		{Identifier: "Flagsmith", SourceLocation: "https://flagsmith.com/?ref=ddg"},
	}, candidates)
}

func TestDiscover_RespectsLimit(t *testing.T) {
	var requested int
	searcher := SearcherFunc(func(ctx context.Context, text string, limit int) ([]SearchHit, error) {
		requested = limit
		return hitsFor(candidatesNamed(9)...), nil
	})
	d := &Discovery{Searcher: searcher}

	candidates := d.Discover(context.Background(), "tools", 3)
	require.Len(t, candidates, 3)
	require.Equal(t, 6, requested)
}

func TestDiscover_FailuresAreEmpty(t *testing.T) {
	failing := &Discovery{Searcher: SearcherFunc(func(ctx context.Context, text string, limit int) ([]SearchHit, error) {
		return nil, errors.New("unreachable")
	})}
	require.Empty(t, failing.Discover(context.Background(), "tools", 5))

	panicking := &Discovery{Searcher: SearcherFunc(func(ctx context.Context, text string, limit int) ([]SearchHit, error) {
		panic("boom")
	})}
	require.Empty(t, panicking.Discover(context.Background(), "tools", 5))

	var missing *Discovery
	require.Empty(t, missing.Discover(context.Background(), "tools", 5))
}

func TestDiscover_HostnameWhenTitleMissing(t *testing.T) {
	d := &Discovery{Searcher: staticSearcher([]SearchHit{{URL: "https://www.posthog.com/docs"}})}
	candidates := d.Discover(context.Background(), "analytics", 5)
	require.Equal(t, "posthog.com", candidates[0].Identifier)
}

func TestDiscover_ArticleMining(t *testing.T) {
	var queries []string
	searcher := SearcherFunc(func(ctx context.Context, text string, limit int) ([]SearchHit, error) {
		queries = append(queries, text)
		switch {
		case strings.HasSuffix(text, "tools comparison best alternatives"):
			return []SearchHit{{Title: "Top 10 flag tools", URL: "https://blog.example.com/top-flags", Snippet: "We compared tools"}}, nil
		case text == "Unleash official site":
			return []SearchHit{{Title: "Unleash", URL: "https://www.getunleash.io/"}}, nil
		case text == "Flagsmith official site":
			return []SearchHit{{Title: "Flagsmith", URL: "https://flagsmith.com/"}}, nil
		}
		return nil, nil
	})
	generator := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		require.Contains(t, prompt, "article body")
		return "1. Unleash\n- Flagsmith\n\n* unleash\n", nil
	})
	fetcher := FetcherFunc(func(ctx context.Context, location string) (FetchResponse, error) {
		return FetchResponse{Status: 200, Body: "article body"}, nil
	})
	d := &Discovery{Searcher: searcher, Fetcher: fetcher, Generator: generator, Strategy: StrategyArticles}

	candidates := d.Discover(context.Background(), "feature flags", 5)
	require.Equal(t, []Candidate{
		{Identifier: "Unleash", SourceLocation: "https://www.getunleash.io/"},
		{Identifier: "Flagsmith", SourceLocation: "https://flagsmith.com/"},
	}, candidates)
	require.Equal(t, "feature flags tools comparison best alternatives", queries[0])
}

func TestDiscover_ArticleMiningFallsBackToDirect(t *testing.T) {
	searcher := SearcherFunc(func(ctx context.Context, text string, limit int) ([]SearchHit, error) {
		if strings.HasSuffix(text, "best alternatives") {
			return nil, nil
		}
		return hitsFor("Alpha"), nil
	})
	d := &Discovery{Searcher: searcher, Generator: echoGenerator(), Strategy: StrategyArticles}
	candidates := d.Discover(context.Background(), "feature flags", 5)
	require.Len(t, candidates, 1)
	require.Equal(t, "Alpha", candidates[0].Identifier)
}

func TestParseToolNames(t *testing.T) {
	got := parseToolNames("1. **Sentry**\n2) Rollbar\n- `Bugsnag`\n\nsentry\n")
	require.Equal(t, []string{"Sentry", "Rollbar", "Bugsnag"}, got)
}

func articleSearcher() Searcher {
	return SearcherFunc(func(ctx context.Context, text string, limit int) ([]SearchHit, error) {
		if strings.HasSuffix(text, "best alternatives") {
			return []SearchHit{{Title: "Best flag tools", URL: "https://blog.example.com/flags", Snippet: "Unleash and Flagsmith compared"}}, nil
		}
		return hitsFor("Alpha"), nil
	})
}

func TestRun_ArticleMiningGenerationTimesOut(t *testing.T) {
	generator := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "List the specific developer tools") {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "Recommendation based on the data.", nil
	})
	wf := New(Capabilities{
		Searcher:  articleSearcher(),
		Fetcher:   pageFetcher(),
		Extractor: populatedExtractor(),
		Generator: generator,
	}, Settings{
		Limit:             5,
		Concurrency:       2,
		Strategy:          StrategyArticles,
		SearchTimeout:     50 * time.Millisecond,
		SynthesizeTimeout: 50 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	started := time.Now()
	result, err := wf.Run(ctx, "feature flags")
	require.NoError(t, err)
	require.Less(t, time.Since(started), time.Second)
	require.Equal(t, []string{"Alpha"}, names(result.Records))
}

func TestDiscover_ArticleMiningPanicsFallBackToDirect(t *testing.T) {
	panickingFetcher := FetcherFunc(func(ctx context.Context, location string) (FetchResponse, error) {
		panic("boom")
	})
	d := &Discovery{Searcher: articleSearcher(), Fetcher: panickingFetcher, Generator: echoGenerator(), Strategy: StrategyArticles}
	var candidates []Candidate
	require.NotPanics(t, func() {
		candidates = d.Discover(context.Background(), "feature flags", 5)
	})
	require.NotEmpty(t, candidates)

	panickingGenerator := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		panic("boom")
	})
	d = &Discovery{Searcher: articleSearcher(), Fetcher: pageFetcher(), Generator: panickingGenerator, Strategy: StrategyArticles}
	require.NotPanics(t, func() {
		candidates = d.Discover(context.Background(), "feature flags", 5)
	})
	require.Equal(t, []Candidate{{Identifier: "Alpha", SourceLocation: "https://alpha.example.com/"}}, candidates)
}

func TestDiscover_ArticleFetchUsesFetchTimeout(t *testing.T) {
	var remaining time.Duration
	fetcher := FetcherFunc(func(ctx context.Context, location string) (FetchResponse, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		remaining = time.Until(deadline)
		return FetchResponse{Status: 200, Body: "article body"}, nil
	})
	d := &Discovery{
		Searcher:     articleSearcher(),
		Fetcher:      fetcher,
		Generator:    echoGenerator(),
		Strategy:     StrategyArticles,
		Timeout:      20 * time.Millisecond,
		FetchTimeout: 5 * time.Second,
	}
	d.Discover(context.Background(), "feature flags", 5)
	require.Greater(t, remaining, time.Second)

	wf := New(Capabilities{}, Settings{FetchTimeout: 3 * time.Second, SynthesizeTimeout: 7 * time.Second}, nil)
	discovery := wf.Discovery.(*Discovery)
	require.Equal(t, 3*time.Second, discovery.FetchTimeout)
	require.Equal(t, 7*time.Second, discovery.GenerateTimeout)
}

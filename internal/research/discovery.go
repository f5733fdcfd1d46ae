package research

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultCandidateLimit = 5
	MaxCandidateLimit     = 10

	StrategyDirect   = "direct"
	StrategyArticles = "articles"
)

const (
	articleSearchLimit = 3
	articleBodyChars   = 3000
)

// Discovery turns a query into a bounded, de-duplicated list of candidates.
// With the articles strategy it first mines comparison articles for tool names and
// resolves each name to an official site, falling back to direct search when that
// produces nothing.
type Discovery struct {
	Searcher Searcher
	// Fetcher and Generator are only used by the articles strategy.
	Fetcher   Fetcher
	Generator Generator
	Strategy  string
	// Timeout bounds each search call. Zero values fall back to the stage defaults.
	Timeout         time.Duration
	FetchTimeout    time.Duration
	GenerateTimeout time.Duration
	Logger          *zap.Logger
}

func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultCandidateLimit
	}
	if limit > MaxCandidateLimit {
		return MaxCandidateLimit
	}
	return limit
}

func (d *Discovery) Discover(ctx context.Context, query string, limit int) []Candidate {
	limit = ClampLimit(limit)
	query = strings.TrimSpace(query)
	if query == "" || d == nil || d.Searcher == nil {
		return []Candidate{}
	}
	if d.Strategy == StrategyArticles && d.Generator != nil {
		if candidates := d.fromArticles(ctx, query, limit); len(candidates) > 0 {
			return candidates
		}
		d.logger().Debug("article mining found no tools, searching directly", zap.String("query", query))
	}
	return d.direct(ctx, query, limit)
}

func (d *Discovery) direct(ctx context.Context, query string, limit int) []Candidate {
	hits, err := d.search(ctx, query, limit*2)
	if err != nil {
		d.logger().Warn("candidate search failed", zap.String("query", query), zap.Error(err))
		return []Candidate{}
	}
	seen := newCandidateSet()
	candidates := make([]Candidate, 0, limit)
	for _, hit := range hits {
		candidate := candidateFromHit(hit)
		if candidate.Identifier == "" && candidate.SourceLocation == "" {
			continue
		}
		if !seen.add(candidate) {
			continue
		}
		candidates = append(candidates, candidate)
		if len(candidates) == limit {
			break
		}
	}
	return candidates
}

func (d *Discovery) fromArticles(ctx context.Context, query string, limit int) []Candidate {
	hits, err := d.search(ctx, query+" tools comparison best alternatives", articleSearchLimit)
	if err != nil || len(hits) == 0 {
		return nil
	}
	var content strings.Builder
	for _, hit := range hits {
		if hit.Snippet != "" {
			content.WriteString(hit.Snippet)
			content.WriteString("\n")
		}
		if d.Fetcher == nil || strings.TrimSpace(hit.URL) == "" {
			continue
		}
		resp, err := d.fetch(ctx, hit.URL)
		if err != nil || resp.Status < 200 || resp.Status >= 300 {
			continue
		}
		content.WriteString(truncateRunes(resp.Body, articleBodyChars))
		content.WriteString("\n\n")
	}
	if strings.TrimSpace(content.String()) == "" {
		return nil
	}
	text, err := d.generate(ctx, toolNamesPrompt(query, content.String()))
	if err != nil {
		d.logger().Warn("tool name extraction failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	names := parseToolNames(text)
	seen := newCandidateSet()
	candidates := make([]Candidate, 0, limit)
	for _, name := range names {
		candidate := Candidate{Identifier: name}
		site, err := d.search(ctx, name+" official site", 1)
		if err == nil && len(site) > 0 {
			candidate.SourceLocation = strings.TrimSpace(site[0].URL)
		}
		if !seen.add(candidate) {
			continue
		}
		candidates = append(candidates, candidate)
		if len(candidates) == limit {
			break
		}
	}
	return candidates
}

func (d *Discovery) search(ctx context.Context, text string, limit int) (hits []SearchHit, err error) {
	ctx, cancel := context.WithTimeout(ctx, orDefault(d.Timeout, DefaultSearchTimeout))
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			hits, err = nil, fmt.Errorf("searcher panicked: %v", r)
		}
	}()
	return d.Searcher.Search(ctx, text, limit)
}

func (d *Discovery) fetch(ctx context.Context, location string) (resp FetchResponse, err error) {
	ctx, cancel := context.WithTimeout(ctx, orDefault(d.FetchTimeout, DefaultFetchTimeout))
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			resp, err = FetchResponse{}, fmt.Errorf("fetcher panicked: %v", r)
		}
	}()
	return d.Fetcher.Fetch(ctx, location)
}

func (d *Discovery) generate(ctx context.Context, prompt string) (text string, err error) {
	ctx, cancel := context.WithTimeout(ctx, orDefault(d.GenerateTimeout, DefaultSynthesizeTimeout))
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("generator panicked: %v", r)
		}
	}()
	text, err = d.Generator.Generate(ctx, prompt)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return text, err
}

func orDefault(timeout, fallback time.Duration) time.Duration {
	if timeout <= 0 {
		return fallback
	}
	return timeout
}

func (d *Discovery) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func toolNamesPrompt(query string, articles string) string {
	return fmt.Sprintf(`The following articles discuss %q.
List the specific developer tools, products or services mentioned in them.
Return one name per line, no numbering, no descriptions, at most 8 names.

%s`, query, articles)
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)])\s*`)

func parseToolNames(text string) []string {
	var names []string
	seen := map[string]bool{}
	for _, line := range strings.Split(text, "\n") {
		name := listMarker.ReplaceAllString(line, "")
		name = strings.Trim(name, " \t*`\"'")
		if name == "" || len(name) > 80 {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names
}

var titleSeparators = []string{" | ", " - ", " – ", " — ", ": "}

func candidateFromHit(hit SearchHit) Candidate {
	location := strings.TrimSpace(hit.URL)
	name := strings.TrimSpace(hit.Title)
	for _, sep := range titleSeparators {
		if idx := strings.Index(name, sep); idx > 0 {
			name = strings.TrimSpace(name[:idx])
		}
	}
	if name == "" && location != "" {
		if parsed, err := url.Parse(location); err == nil {
			name = strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
		}
	}
	return Candidate{Identifier: name, SourceLocation: location}
}

type candidateSet struct {
	names     map[string]bool
	locations map[string]bool
}

func newCandidateSet() *candidateSet {
	return &candidateSet{names: map[string]bool{}, locations: map[string]bool{}}
}

// add reports whether the candidate is new by both normalized name and location.
func (s *candidateSet) add(candidate Candidate) bool {
	name := NormalizeIdentifier(candidate.Identifier)
	location := NormalizeLocation(candidate.SourceLocation)
	if name != "" && s.names[name] {
		return false
	}
	if location != "" && s.locations[location] {
		return false
	}
	if name != "" {
		s.names[name] = true
	}
	if location != "" {
		s.locations[location] = true
	}
	return true
}

func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.Join(strings.Fields(identifier), " "))
}

// NormalizeLocation lowercases a URL and strips its scheme, a leading "www.", the
// query, the fragment and any trailing slash.
func NormalizeLocation(location string) string {
	location = strings.ToLower(strings.TrimSpace(location))
	if location == "" {
		return ""
	}
	if idx := strings.Index(location, "://"); idx >= 0 {
		location = location[idx+3:]
	}
	location = strings.TrimPrefix(location, "//")
	if idx := strings.IndexAny(location, "?#"); idx >= 0 {
		location = location[:idx]
	}
	location = strings.TrimPrefix(location, "www.")
	return strings.TrimRight(location, "/")
}

func truncateRunes(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

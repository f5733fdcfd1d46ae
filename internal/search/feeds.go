package search

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/mmcdole/gofeed"
)

// Feeds searches a fixed list of RSS/Atom feeds by matching query keywords against
// item titles and descriptions. Feeds are not queryable, so every call pulls them.
type Feeds struct {
	Client *http.Client
	URLs   []string
}

var _ research.Searcher = (*Feeds)(nil)

func NewFeeds(urls []string) *Feeds {
	return &Feeds{
		Client: &http.Client{Timeout: 15 * time.Second},
		URLs:   urls,
	}
}

func (f *Feeds) Search(ctx context.Context, text string, limit int) ([]research.SearchHit, error) {
	keywords := keywordsOf(text)
	if len(keywords) == 0 || len(f.URLs) == 0 {
		return nil, nil
	}
	parser := gofeed.NewParser()
	if f.Client != nil {
		parser.Client = f.Client
	}
	hits := make([]research.SearchHit, 0, limit)
	var lastErr error
	fetched := 0
	for _, feedURL := range f.URLs {
		if limit > 0 && len(hits) >= limit {
			break
		}
		feed, err := parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			lastErr = err
			continue
		}
		fetched++
		for _, item := range feed.Items {
			if limit > 0 && len(hits) >= limit {
				break
			}
			haystack := strings.ToLower(item.Title + " " + item.Description)
			if !matchesAnyKeyword(haystack, keywords) {
				continue
			}
			link := strings.TrimSpace(item.Link)
			if link == "" {
				continue
			}
			hits = append(hits, research.SearchHit{
				Title:   strings.TrimSpace(item.Title),
				URL:     link,
				Snippet: strings.TrimSpace(feed.Title),
			})
		}
	}
	if fetched == 0 && lastErr != nil {
		return nil, lastErr
	}
	return hits, nil
}

var stopWords = map[string]bool{
	"for": true, "the": true, "and": true, "with": true, "tools": true, "tool": true,
	"developer": true, "developers": true, "best": true, "official": true, "site": true,
}

func keywordsOf(text string) []string {
	var out []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, `.,;:!?"'()`)
		if len(word) < 3 || stopWords[word] {
			continue
		}
		out = append(out, word)
	}
	return out
}

func matchesAnyKeyword(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// Package search provides the candidate search capability: DuckDuckGo's HTML
// endpoint, keyword matching over RSS/Atom feeds, and an ordered union of both.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"golang.org/x/net/html"
)

const (
	defaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"
	maxSearchBodyBytes   = 1 << 20
)

type DuckDuckGo struct {
	Client    *http.Client
	BaseURL   string
	UserAgent string
}

var _ research.Searcher = (*DuckDuckGo)(nil)

func NewDuckDuckGo(userAgent string) *DuckDuckGo {
	return &DuckDuckGo{
		Client:    &http.Client{Timeout: 15 * time.Second},
		BaseURL:   defaultDuckDuckGoURL,
		UserAgent: userAgent,
	}
}

func (d *DuckDuckGo) Search(ctx context.Context, text string, limit int) ([]research.SearchHit, error) {
	base := d.BaseURL
	if base == "" {
		base = defaultDuckDuckGoURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?q="+url.QueryEscape(text), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", defaultIfEmpty(d.UserAgent, "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"))
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := d.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}
	doc, err := html.Parse(io.LimitReader(resp.Body, maxSearchBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}
	return parseDuckDuckGoResults(doc, limit), nil
}

func (d *DuckDuckGo) client() *http.Client {
	if d.Client == nil {
		return http.DefaultClient
	}
	return d.Client
}

func parseDuckDuckGoResults(doc *html.Node, limit int) []research.SearchHit {
	var hits []research.SearchHit
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if limit > 0 && len(hits) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" {
			class := attr(n, "class")
			if strings.Contains(class, "result") && strings.Contains(class, "results_links") && !strings.Contains(class, "result--ad") {
				if hit := extractResult(n); hit.URL != "" && hit.Title != "" {
					hits = append(hits, hit)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return hits
}

func extractResult(n *html.Node) research.SearchHit {
	var hit research.SearchHit
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			class := attr(n, "class")
			switch {
			case strings.Contains(class, "result__a"):
				hit.URL = unwrapRedirect(attr(n, "href"))
				hit.Title = textContent(n)
			case strings.Contains(class, "result__snippet"):
				hit.Snippet = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return hit
}

// unwrapRedirect resolves DuckDuckGo's //duckduckgo.com/l/?uddg=<target> links.
func unwrapRedirect(href string) string {
	href = strings.TrimSpace(href)
	if !strings.Contains(href, "duckduckgo.com/l/") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

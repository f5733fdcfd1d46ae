// Package firecrawl talks to the Firecrawl search and scrape API.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
)

const DefaultBaseURL = "https://api.firecrawl.dev"

var errMissingAPIKey = errors.New("missing Firecrawl API key")

type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

var (
	_ research.Searcher = (*Client)(nil)
	_ research.Fetcher  = (*Client)(nil)
)

func NewClient(apiKey string, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"data"`
}

func (c *Client) Search(ctx context.Context, text string, limit int) ([]research.SearchHit, error) {
	var resp searchResponse
	if err := c.post(ctx, "/v1/search", searchRequest{Query: text, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("firecrawl search failed: %s", resp.Error)
	}
	hits := make([]research.SearchHit, 0, len(resp.Data))
	for _, item := range resp.Data {
		if item.URL == "" {
			continue
		}
		hits = append(hits, research.SearchHit{
			Title:   strings.TrimSpace(item.Title),
			URL:     item.URL,
			Snippet: strings.TrimSpace(item.Description),
		})
		if limit > 0 && len(hits) == limit {
			break
		}
	}
	return hits, nil
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			SourceURL  string `json:"sourceURL"`
			URL        string `json:"url"`
			StatusCode int    `json:"statusCode"`
		} `json:"metadata"`
	} `json:"data"`
}

// Fetch scrapes url as markdown. The upstream page status is reported through
// Status so the caller can reject blocked pages.
func (c *Client) Fetch(ctx context.Context, url string) (research.FetchResponse, error) {
	var resp scrapeResponse
	req := scrapeRequest{URL: url, Formats: []string{"markdown"}, OnlyMainContent: true}
	if err := c.post(ctx, "/v1/scrape", req, &resp); err != nil {
		return research.FetchResponse{}, err
	}
	if !resp.Success {
		return research.FetchResponse{}, fmt.Errorf("firecrawl scrape failed: %s", resp.Error)
	}
	status := resp.Data.Metadata.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	finalURL := resp.Data.Metadata.URL
	if finalURL == "" {
		finalURL = resp.Data.Metadata.SourceURL
	}
	if finalURL == "" {
		finalURL = url
	}
	return research.FetchResponse{
		Status:      status,
		Body:        strings.TrimSpace(resp.Data.Markdown),
		ContentType: "text/markdown",
		FinalURL:    finalURL,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	if c.apiKey == "" {
		return errMissingAPIKey
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("firecrawl request failed: %s %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Package fetch retrieves candidate pages and reduces them to plain text for extraction.
package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
)

const defaultSizeCap = 5 << 20

var ErrUnsupportedContent = errors.New("unsupported content type")

type HTTPFetcher struct {
	client    *http.Client
	sizeCap   int64
	userAgent string
}

var _ research.Fetcher = (*HTTPFetcher)(nil)

func NewHTTPFetcher(timeout time.Duration, sizeCap int64, userAgent string) *HTTPFetcher {
	if sizeCap <= 0 {
		sizeCap = defaultSizeCap
	}
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; DevToolsResearch/1.0)"
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		sizeCap:   sizeCap,
		userAgent: userAgent,
	}
}

// Fetch returns the page reduced to text. Non-2xx responses are reported through
// Status with an empty body rather than as errors.
func (h *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (research.FetchResponse, error) {
	target := strings.TrimSpace(rawURL)
	if target != "" && !strings.Contains(target, "://") {
		target = "https://" + target
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return research.FetchResponse{}, fmt.Errorf("invalid url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return research.FetchResponse{}, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return research.FetchResponse{}, err
	}
	defer resp.Body.Close()

	out := research.FetchResponse{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, nil
	}

	var body io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return out, err
		}
		defer gz.Close()
		body = gz
	}
	data, err := io.ReadAll(io.LimitReader(body, h.sizeCap))
	if err != nil {
		return out, err
	}
	text, err := Decode(data, out.ContentType)
	if err != nil {
		return out, err
	}
	out.Body = text
	return out, nil
}

// Decode turns a response payload into plain text based on its media type.
func Decode(data []byte, contentType string) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "" || strings.Contains(mediaType, "html"):
		return HTMLToText(data, contentType)
	case mediaType == "application/pdf":
		return PDFToText(data)
	case strings.HasPrefix(mediaType, "text/"), mediaType == "application/json":
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType)
	}
}

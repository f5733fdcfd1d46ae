package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserFetcher renders pages in headless Chrome for sites whose content is built
// by scripts. The browser is launched on first use and shared across fetches.
type BrowserFetcher struct {
	bin     string
	timeout time.Duration

	mu      sync.Mutex
	browser *rod.Browser
}

var _ research.Fetcher = (*BrowserFetcher)(nil)

func NewBrowserFetcher(bin string, timeout time.Duration) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &BrowserFetcher{bin: bin, timeout: timeout}
}

func (b *BrowserFetcher) Fetch(ctx context.Context, url string) (research.FetchResponse, error) {
	browser, err := b.ensureBrowser()
	if err != nil {
		return research.FetchResponse{}, err
	}
	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return research.FetchResponse{}, fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	page = page.Timeout(b.timeout)
	status := 0
	waitDocument := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		code, ok := documentStatus(e)
		if ok {
			status = code
		}
		return ok
	})
	if err := page.Navigate(url); err != nil {
		return research.FetchResponse{}, fmt.Errorf("navigate: %w", err)
	}
	waitDocument()
	if status == 0 {
		return research.FetchResponse{}, fmt.Errorf("no document response for %s", url)
	}
	if err := page.WaitLoad(); err != nil {
		return research.FetchResponse{}, fmt.Errorf("wait load: %w", err)
	}
	raw, err := page.HTML()
	if err != nil {
		return research.FetchResponse{}, fmt.Errorf("read page: %w", err)
	}
	text, err := HTMLToText([]byte(raw), "text/html; charset=utf-8")
	if err != nil {
		return research.FetchResponse{}, err
	}
	finalURL := url
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}
	return research.FetchResponse{
		Status:      status,
		Body:        text,
		ContentType: "text/html",
		FinalURL:    finalURL,
	}, nil
}

// documentStatus picks the HTTP status of the top-level document out of the page's
// network responses.
func documentStatus(e *proto.NetworkResponseReceived) (int, bool) {
	if e == nil || e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
		return 0, false
	}
	return e.Response.Status, true
}

func (b *BrowserFetcher) ensureBrowser() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}
	launch := launcher.New().Headless(true)
	if b.bin != "" {
		launch = launch.Bin(b.bin)
	}
	controlURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = browser
	return browser, nil
}

func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

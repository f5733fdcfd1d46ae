package fetch

import (
	"context"
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
)

// Fallback tries Primary and uses Secondary when the primary errors, returns a
// non-2xx status, or yields no text.
type Fallback struct {
	Primary   research.Fetcher
	Secondary research.Fetcher
}

var _ research.Fetcher = Fallback{}

func (f Fallback) Fetch(ctx context.Context, url string) (research.FetchResponse, error) {
	resp, err := f.Primary.Fetch(ctx, url)
	if err == nil && resp.Status >= 200 && resp.Status < 300 && strings.TrimSpace(resp.Body) != "" {
		return resp, nil
	}
	if f.Secondary == nil || ctx.Err() != nil {
		return resp, err
	}
	second, secondErr := f.Secondary.Fetch(ctx, url)
	if secondErr != nil {
		if err != nil {
			return resp, err
		}
		return resp, nil
	}
	return second, nil
}

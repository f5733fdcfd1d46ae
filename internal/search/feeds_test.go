package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/stretchr/testify/require"
)

const rssFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Dev Tools Weekly</title>
<item><title>Unleash 6 ships feature flag insights</title><link>https://www.getunleash.io/blog/v6</link></item>
<item><title>Kubernetes cost tips</title><link>https://example.com/k8s</link></item>
<item><title>Comparing flag platforms</title><description>We look at feature toggles</description><link>https://example.com/flags</link></item>
</channel></rss>`

func TestFeeds_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFeed))
	}))
	defer server.Close()

	feeds := NewFeeds([]string{server.URL + "/a.xml", server.URL + "/b.xml"})
	hits, err := feeds.Search(context.Background(), "developer tools for feature flags", 5)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	require.Equal(t, "https://www.getunleash.io/blog/v6", hits[0].URL)
	require.Equal(t, "Dev Tools Weekly", hits[0].Snippet)
}

func TestFeeds_AllFeedsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not a feed"))
	}))
	defer server.Close()

	_, err := NewFeeds([]string{server.URL}).Search(context.Background(), "feature flags", 5)
	require.Error(t, err)
}

func TestFeeds_NoKeywords(t *testing.T) {
	hits, err := NewFeeds([]string{"http://unused"}).Search(context.Background(), "the best tools", 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestMulti_Search(t *testing.T) {
	failing := research.SearcherFunc(func(ctx context.Context, text string, limit int) ([]research.SearchHit, error) {
		return nil, errors.New("down")
	})
	first := research.SearcherFunc(func(ctx context.Context, text string, limit int) ([]research.SearchHit, error) {
		return []research.SearchHit{{Title: "A", URL: "https://a.dev"}, {Title: "B", URL: "https://b.dev"}}, nil
	})
	second := research.SearcherFunc(func(ctx context.Context, text string, limit int) ([]research.SearchHit, error) {
		return []research.SearchHit{{Title: "C", URL: "https://c.dev"}}, nil
	})

	hits, err := Multi{failing, first, second}.Search(context.Background(), "q", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, []string{hits[0].Title, hits[1].Title, hits[2].Title})

	hits, err = Multi{first, second}.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	_, err = Multi{failing, failing}.Search(context.Background(), "q", 3)
	require.Error(t, err)
}

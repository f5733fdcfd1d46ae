package search

import (
	"context"
	"errors"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
)

// Multi queries each searcher in order and concatenates their hits. It only fails
// when every searcher fails.
type Multi []research.Searcher

var _ research.Searcher = Multi(nil)

func (m Multi) Search(ctx context.Context, text string, limit int) ([]research.SearchHit, error) {
	var hits []research.SearchHit
	var errs []error
	for _, searcher := range m {
		if limit > 0 && len(hits) >= limit {
			break
		}
		found, err := searcher.Search(ctx, text, limit)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		hits = append(hits, found...)
	}
	if len(errs) == len(m) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

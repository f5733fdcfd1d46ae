package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultFetchTimeout    = 20 * time.Second
	DefaultMaxContentChars = 12000
)

type Retrieval struct {
	Fetcher         Fetcher
	Timeout         time.Duration
	MaxContentChars int
	Logger          *zap.Logger
}

// Retrieve never fails. Errors, timeouts, missing locations and non-2xx statuses all
// come back as FetchSucceeded=false with an empty body.
func (r *Retrieval) Retrieve(ctx context.Context, candidate Candidate) RawContent {
	content := RawContent{Candidate: candidate}
	location := strings.TrimSpace(candidate.SourceLocation)
	if r == nil || r.Fetcher == nil || location == "" {
		return content
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := r.fetch(fetchCtx, location)
	content.Status = resp.Status
	content.ContentType = resp.ContentType
	if err != nil {
		r.logger().Debug("fetch failed", zap.String("candidate", candidate.Identifier), zap.String("url", location), zap.Error(err))
		return content
	}
	if resp.Status < 200 || resp.Status >= 300 {
		r.logger().Debug("fetch returned non-success status", zap.String("candidate", candidate.Identifier), zap.Int("status", resp.Status))
		return content
	}
	limit := r.MaxContentChars
	if limit <= 0 {
		limit = DefaultMaxContentChars
	}
	content.Body = truncateRunes(strings.TrimSpace(resp.Body), limit)
	content.FetchSucceeded = true
	return content
}

func (r *Retrieval) fetch(ctx context.Context, location string) (resp FetchResponse, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			resp, err = FetchResponse{}, fmt.Errorf("fetcher panicked: %v", rec)
		}
	}()
	return r.Fetcher.Fetch(ctx, location)
}

func (r *Retrieval) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/schema"
	"go.uber.org/zap"
)

const defaultGenerateAttempts = 3

var retryableStatusRE = regexp.MustCompile(`(?:^|\D)(429|500|502|503|504)(?:\D|$)`)

// retryDelay is a variable so tests can drop the backoff.
var retryDelay = func(attempt int) time.Duration {
	switch attempt {
	case 2:
		return 250 * time.Millisecond
	case 3:
		return 750 * time.Millisecond
	default:
		return 0
	}
}

type Candidate struct {
	Name     string
	Provider StructuredProvider
}

// Retrying retries transient failures on each candidate in turn and fails over to
// the next candidate when a provider looks unavailable.
type Retrying struct {
	Candidates     []Candidate
	Attempts       int
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

var _ StructuredProvider = (*Retrying)(nil)

func NewRetrying(candidates []Candidate, logger *zap.Logger) *Retrying {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{Candidates: candidates, Attempts: defaultGenerateAttempts, Logger: logger}
}

func (r *Retrying) Generate(ctx context.Context, messages []Message) (string, error) {
	var out string
	err := r.do(ctx, func(ctx context.Context, provider StructuredProvider) error {
		text, err := provider.Generate(ctx, messages)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("LLM response had no content")
		}
		out = text
		return err
	})
	return out, err
}

func (r *Retrying) GenerateStructured(ctx context.Context, messages []Message, shape *schema.Schema) (json.RawMessage, error) {
	var out json.RawMessage
	err := r.do(ctx, func(ctx context.Context, provider StructuredProvider) error {
		raw, err := provider.GenerateStructured(ctx, messages, shape)
		out = raw
		return err
	})
	return out, err
}

func (r *Retrying) do(ctx context.Context, call func(context.Context, StructuredProvider) error) error {
	if len(r.Candidates) == 0 {
		return errors.New("no llm providers configured")
	}
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var lastErr error
	for _, candidate := range r.Candidates {
		for attempt := 1; attempt <= attempts; attempt++ {
			if delay := retryDelay(attempt); delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			callCtx := ctx
			cancel := func() {}
			if r.RequestTimeout > 0 {
				callCtx, cancel = context.WithTimeout(ctx, r.RequestTimeout)
			}
			err := call(callCtx, candidate.Provider)
			cancel()
			if err == nil {
				return nil
			}
			lastErr = err
			logger.Debug("llm request failed",
				zap.String("provider", candidate.Name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !isRetryableLLMError(err) {
				return err
			}
			if shouldFailoverProvider(err) {
				break
			}
			// Timeouts are the slowest failure mode; cap these to two attempts.
			if isTimeoutLLMError(err) && attempt >= 2 {
				break
			}
		}
	}
	return lastErr
}

func isRetryableLLMError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	if message == "" {
		return false
	}
	if strings.Contains(message, "timeout") || strings.Contains(message, "timed out") {
		return true
	}
	if strings.Contains(message, "bad gateway") || strings.Contains(message, "temporarily unavailable") {
		return true
	}
	if strings.Contains(message, "connection reset") || strings.Contains(message, "connection refused") {
		return true
	}
	if strings.Contains(message, "no content") || strings.Contains(message, "response was empty") {
		return true
	}
	return retryableStatusRE.MatchString(message)
}

func isTimeoutLLMError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "timeout") || strings.Contains(message, "timed out")
}

func shouldFailoverProvider(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	if message == "" {
		return false
	}
	if strings.Contains(message, "bad gateway") || strings.Contains(message, "service unavailable") || strings.Contains(message, "gateway timeout") {
		return true
	}
	return strings.Contains(message, " 502") || strings.Contains(message, " 503") || strings.Contains(message, " 504")
}

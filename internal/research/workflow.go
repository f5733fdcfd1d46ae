package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency   = 4
	DefaultSearchTimeout = 15 * time.Second
)

type Stage string

const (
	StageDiscovering  Stage = "discovering"
	StageExtracting   Stage = "extracting"
	StageSynthesizing Stage = "synthesizing"
	StageDone         Stage = "done"
)

type Discoverer interface {
	Discover(ctx context.Context, query string, limit int) []Candidate
}

type Retriever interface {
	Retrieve(ctx context.Context, candidate Candidate) RawContent
}

type RecordExtractor interface {
	Extract(ctx context.Context, candidate Candidate, content RawContent) Record
}

type AnalysisSynthesizer interface {
	Synthesize(ctx context.Context, query string, records []Record) Analysis
}

// Observer is notified of stage transitions and finished candidates. CandidateCompleted
// is called from the fan-out goroutines, so implementations must be safe for concurrent use.
type Observer interface {
	StageChanged(ctx context.Context, stage Stage, detail map[string]any)
	CandidateCompleted(ctx context.Context, index int, candidate Candidate, record Record)
}

type Capabilities struct {
	Searcher  Searcher
	Fetcher   Fetcher
	Extractor StructuredExtractor
	Generator Generator
}

type Settings struct {
	Limit             int
	Concurrency       int
	Strategy          string
	SearchTimeout     time.Duration
	FetchTimeout      time.Duration
	ExtractTimeout    time.Duration
	SynthesizeTimeout time.Duration
	MaxContentChars   int
}

type Workflow struct {
	Discovery   Discoverer
	Retrieval   Retriever
	Extractor   RecordExtractor
	Synthesizer AnalysisSynthesizer
	Limit       int
	Concurrency int
	Observer    Observer
	Logger      *zap.Logger
}

// New wires the four stages over the given capabilities.
func New(caps Capabilities, settings Settings, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	searchTimeout := settings.SearchTimeout
	if searchTimeout <= 0 {
		searchTimeout = DefaultSearchTimeout
	}
	return &Workflow{
		Discovery: &Discovery{
			Searcher:        caps.Searcher,
			Fetcher:         caps.Fetcher,
			Generator:       caps.Generator,
			Strategy:        settings.Strategy,
			Timeout:         searchTimeout,
			FetchTimeout:    settings.FetchTimeout,
			GenerateTimeout: settings.SynthesizeTimeout,
			Logger:          logger.Named("discovery"),
		},
		Retrieval: &Retrieval{
			Fetcher:         caps.Fetcher,
			Timeout:         settings.FetchTimeout,
			MaxContentChars: settings.MaxContentChars,
			Logger:          logger.Named("retrieval"),
		},
		Extractor: &Extractor{
			Capability: caps.Extractor,
			Timeout:    settings.ExtractTimeout,
			Logger:     logger.Named("extractor"),
		},
		Synthesizer: &Synthesizer{
			Generator: caps.Generator,
			Timeout:   settings.SynthesizeTimeout,
			Logger:    logger.Named("synthesizer"),
		},
		Limit:       settings.Limit,
		Concurrency: settings.Concurrency,
		Logger:      logger,
	}
}

func (w *Workflow) Run(ctx context.Context, query string) (ResearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return ResearchResult{}, ErrEmptyQuery
	}
	started := time.Now()

	w.stage(ctx, StageDiscovering, map[string]any{"query": query})
	candidates := w.Discovery.Discover(ctx, query, ClampLimit(w.Limit))
	if err := ctx.Err(); err != nil {
		return ResearchResult{}, err
	}

	records := []Record{}
	if len(candidates) > 0 {
		w.stage(ctx, StageExtracting, map[string]any{"candidates": len(candidates)})
		records = w.extractAll(ctx, candidates)
		if err := ctx.Err(); err != nil {
			return ResearchResult{}, err
		}
	}

	w.stage(ctx, StageSynthesizing, map[string]any{"records": len(records)})
	analysis := w.Synthesizer.Synthesize(ctx, query, records)
	if err := ctx.Err(); err != nil {
		return ResearchResult{}, err
	}

	result := ResearchResult{
		Query:            query,
		Records:          records,
		Analysis:         analysis.Text,
		AnalysisDegraded: analysis.Degraded,
	}
	w.stage(ctx, StageDone, map[string]any{
		"records":           len(records),
		"degraded":          result.DegradedCount(),
		"analysis_degraded": analysis.Degraded,
	})
	w.logger().Info("research run finished",
		zap.String("query", query),
		zap.Int("candidates", len(candidates)),
		zap.Int("degraded", result.DegradedCount()),
		zap.Duration("duration", time.Since(started)),
	)
	return result, nil
}

// extractAll runs Retrieve then Extract for every candidate with bounded concurrency.
// Each unit writes only its own slot, so the output order is the discovery order.
func (w *Workflow) extractAll(ctx context.Context, candidates []Candidate) []Record {
	records := make([]Record, len(candidates))
	limit := w.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	var group errgroup.Group
	group.SetLimit(limit)
	for i, candidate := range candidates {
		if ctx.Err() != nil {
			records[i] = DegradedRecord(candidate, "cancelled before processing", false)
			continue
		}
		group.Go(func() error {
			records[i] = w.researchCandidate(ctx, i, candidate)
			w.observer().CandidateCompleted(ctx, i, candidate, records[i])
			return nil
		})
	}
	_ = group.Wait()
	return records
}

// ResearchCandidate is one isolated unit: retrieve, then extract. A panic anywhere in
// the unit is converted into a degraded record for this candidate only.
func (w *Workflow) ResearchCandidate(ctx context.Context, candidate Candidate) Record {
	return w.researchCandidate(ctx, -1, candidate)
}

func (w *Workflow) researchCandidate(ctx context.Context, index int, candidate Candidate) (record Record) {
	fetched := false
	defer func() {
		if rec := recover(); rec != nil {
			record = DegradedRecord(candidate, fmt.Sprintf("panic: %v", rec), fetched)
		}
		if record.Degraded() {
			w.logger().Warn("candidate degraded",
				zap.Int("index", index),
				zap.String("candidate", candidate.Identifier),
				zap.String("reason", record.Reason),
			)
		}
	}()
	content := w.Retrieval.Retrieve(ctx, candidate)
	fetched = content.FetchSucceeded
	return w.Extractor.Extract(ctx, candidate, content)
}

func (w *Workflow) stage(ctx context.Context, stage Stage, detail map[string]any) {
	w.logger().Debug("research stage", zap.String("stage", string(stage)), zap.String("run_id", RunIDFromContext(ctx)))
	w.observer().StageChanged(ctx, stage, detail)
}

func (w *Workflow) observer() Observer {
	if w.Observer == nil {
		return noopObserver{}
	}
	return w.Observer
}

func (w *Workflow) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

type noopObserver struct{}

func (noopObserver) StageChanged(context.Context, Stage, map[string]any) {}

func (noopObserver) CandidateCompleted(context.Context, int, Candidate, Record) {}

type runIDKey struct{}

func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

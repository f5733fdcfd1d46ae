// Package history records research runs and their stage events in a store.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/store"
	"go.uber.org/zap"
)

// Publisher receives every event the recorder assigns a sequence number to.
type Publisher interface {
	Publish(event store.RunEvent)
}

// Recorder appends run events to a store and hands them to an optional live
// publisher. Persistence failures are logged and never surface to the run.
type Recorder struct {
	Store     store.Store
	Publisher Publisher
	Logger    *zap.Logger
	Now       func() time.Time

	// runLocks holds one *sync.Mutex per active run so each event is sequenced, stored
	// and published before the next one for that run starts.
	runLocks sync.Map
}

var _ research.Observer = (*Recorder)(nil)

func NewRecorder(s store.Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{Store: s, Logger: logger, Now: time.Now}
}

func (r *Recorder) StageChanged(ctx context.Context, stage research.Stage, detail map[string]any) {
	payload := map[string]any{"stage": string(stage)}
	for key, value := range detail {
		payload[key] = value
	}
	r.Append(ctx, research.RunIDFromContext(ctx), store.EventStageChanged, payload)
}

func (r *Recorder) CandidateCompleted(ctx context.Context, index int, candidate research.Candidate, record research.Record) {
	payload := map[string]any{
		"index":           index,
		"identifier":      candidate.Identifier,
		"source_location": candidate.SourceLocation,
		"outcome":         string(record.Outcome),
		"content_fetched": record.ContentFetched,
	}
	if record.Reason != "" {
		payload["reason"] = record.Reason
	}
	r.Append(ctx, research.RunIDFromContext(ctx), store.EventCandidateCompleted, payload)
}

// Append stores one event under the next sequence number for runID. Calls without a
// run ID are dropped.
func (r *Recorder) Append(ctx context.Context, runID string, eventType string, payload map[string]any) {
	if r == nil || r.Store == nil || runID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	lock := r.lockRun(runID)
	defer lock.Unlock()
	if isFinal(eventType) {
		defer r.runLocks.Delete(runID)
	}

	seq, err := r.Store.NextSeq(ctx, runID)
	if err != nil {
		r.logger().Warn("failed to allocate event sequence", zap.String("run_id", runID), zap.Error(err))
		return
	}
	event := store.RunEvent{
		RunID:     runID,
		Seq:       seq,
		Type:      eventType,
		Timestamp: r.now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	}
	if err := r.Store.AppendEvent(ctx, event); err != nil {
		r.logger().Warn("failed to append run event", zap.String("run_id", runID), zap.String("type", eventType), zap.Error(err))
	}
	if r.Publisher != nil {
		r.Publisher.Publish(event)
	}
}

func (r *Recorder) lockRun(runID string) *sync.Mutex {
	value, _ := r.runLocks.LoadOrStore(runID, &sync.Mutex{})
	lock := value.(*sync.Mutex)
	lock.Lock()
	return lock
}

func isFinal(eventType string) bool {
	switch store.NormalizeEventType(eventType) {
	case store.EventRunCompleted, store.EventRunFailed:
		return true
	}
	return false
}

func (r *Recorder) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Recorder) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

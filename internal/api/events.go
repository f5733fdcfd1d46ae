package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/store"
	"github.com/go-chi/chi/v5"
)

const heartbeatInterval = 15 * time.Second

// EventSubscriber streams live events for one run until ctx ends or the run finishes.
type EventSubscriber interface {
	Subscribe(ctx context.Context, runID string) <-chan events.Event
}

// streamEvents replays stored events after the client's cursor and then follows the
// run live. The subscription opens before the replay so nothing falls in between;
// live events the replay already covered are skipped by sequence.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if s.store == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if _, err := s.store.GetRun(ctx, runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var live <-chan events.Event
	if s.events != nil {
		live = s.events.Subscribe(ctx, runID)
	}

	lastSeq := parseAfterSeq(runID, r)
	stored, err := s.store.ListEvents(ctx, runID, lastSeq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, event := range stored {
		sendSSE(w, events.FromStore(event))
		lastSeq = max(lastSeq, event.Seq)
		if events.IsTerminal(event.Type) {
			flusher.Flush()
			return
		}
	}
	flusher.Flush()
	if live == nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-live:
			if !ok {
				return
			}
			if event.Seq <= lastSeq {
				continue
			}
			lastSeq = event.Seq
			sendSSE(w, event)
			flusher.Flush()
			if events.IsTerminal(event.Type) {
				return
			}
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, event events.Event) {
	payload, _ := json.Marshal(event)
	fmt.Fprintf(w, "id: %s:%d\n", event.RunID, event.Seq)
	fmt.Fprint(w, "event: run_event\n")
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

// parseAfterSeq reads the resume cursor from ?after_seq or a Last-Event-ID of the form
// "<run id>:<seq>". Anything unparseable starts from the beginning.
func parseAfterSeq(runID string, r *http.Request) int64 {
	if raw := strings.TrimSpace(r.URL.Query().Get("after_seq")); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	lastEventID := strings.TrimSpace(r.Header.Get("Last-Event-ID"))
	if lastEventID == "" {
		return 0
	}
	id, rawSeq, found := strings.Cut(lastEventID, ":")
	if !found || id != runID {
		return 0
	}
	seq, err := strconv.ParseInt(rawSeq, 10, 64)
	if err != nil || seq < 0 {
		return 0
	}
	return seq
}

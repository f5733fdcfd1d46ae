// Package events fans recorded run events out to live subscribers, such as the SSE
// stream on /runs/{id}/events.
package events

import (
	"context"
	"sync"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/store"
)

const defaultBuffer = 64

type Event struct {
	RunID     string         `json:"run_id"`
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func FromStore(event store.RunEvent) Event {
	return Event{
		RunID:     event.RunID,
		Seq:       event.Seq,
		Type:      store.NormalizeEventType(event.Type),
		Timestamp: event.Timestamp,
		Payload:   event.Payload,
	}
}

// IsTerminal reports whether no further events follow this one for the run.
func IsTerminal(eventType string) bool {
	switch store.NormalizeEventType(eventType) {
	case store.EventRunCompleted, store.EventRunFailed:
		return true
	}
	return false
}

type subscription struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() {
		close(s.done)
		close(s.ch)
	})
}

// Broker delivers events per run. Slow subscribers lose events rather than block the
// publisher; a terminal event closes every subscription for its run.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscription]struct{}
	buffer      int
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: map[string]map[*subscription]struct{}{},
		buffer:      defaultBuffer,
	}
}

func (b *Broker) Subscribe(ctx context.Context, runID string) <-chan Event {
	sub := &subscription{
		ch:   make(chan Event, b.buffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.subscribers[runID] == nil {
		b.subscribers[runID] = map[*subscription]struct{}{}
	}
	b.subscribers[runID][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
			return
		}
		b.mu.Lock()
		b.remove(runID, sub)
		b.mu.Unlock()
		sub.close()
	}()

	return sub.ch
}

// Publish implements the history recorder's publisher hook.
func (b *Broker) Publish(event store.RunEvent) {
	out := FromStore(event)
	terminal := IsTerminal(out.Type)

	if !terminal {
		b.mu.RLock()
		defer b.mu.RUnlock()
		for sub := range b.subscribers[out.RunID] {
			deliver(sub, out)
		}
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers[out.RunID] {
		deliver(sub, out)
		b.remove(out.RunID, sub)
		sub.close()
	}
}

func deliver(sub *subscription, event Event) {
	select {
	case sub.ch <- event:
	default:
	}
}

// remove expects b.mu to be held for writing.
func (b *Broker) remove(runID string, sub *subscription) {
	subs := b.subscribers[runID]
	if subs == nil {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.subscribers, runID)
	}
}

func (b *Broker) subscriberCount(runID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[runID])
}

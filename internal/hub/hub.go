// Package hub fans history changes out to watchers. It is transport-agnostic:
// subscribers register, receive events through a non-blocking Send, and the
// store's change listener publishes into the hub.
package hub

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.klb.dev/clipsnap/internal/history"
)

// Event is a history change delivered to a subscriber.
type Event struct {
	At     time.Time
	Change history.Change
}

// Subscriber is anything that can receive events from the hub.
type Subscriber interface {
	ID() string
	// Accepts lists the operations the subscriber wants. Empty means all.
	Accepts() []history.Op
	// Send delivers an event to the subscriber. Must be non-blocking.
	Send(Event)
}

// Hub routes history changes to all registered subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]Subscriber
	latest *Event
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{subs: make(map[string]Subscriber)}
}

// Register adds a subscriber.
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	h.subs[s.ID()] = s
	total := len(h.subs)
	h.mu.Unlock()

	slog.Debug("watcher registered", "watcher", s.ID(), "total", total)
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	delete(h.subs, s.ID())
	total := len(h.subs)
	h.mu.Unlock()

	slog.Debug("watcher unregistered", "watcher", s.ID(), "total", total)
}

// Publish records c as the latest change and fans it out to every
// subscriber that accepts its operation.
func (h *Hub) Publish(c history.Change) {
	ev := Event{At: time.Now(), Change: c}

	h.mu.Lock()
	h.latest = &ev
	targets := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		if accepts(s.Accepts(), c.Op) {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.Send(ev)
	}
}

// Latest returns the most recent event, if any.
func (h *Hub) Latest() (Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return Event{}, false
	}
	return *h.latest, true
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func accepts(ops []history.Op, op history.Op) bool {
	return len(ops) == 0 || slices.Contains(ops, op)
}

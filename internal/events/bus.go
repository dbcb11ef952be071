// Package events provides the sync lifecycle notifications.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Kind names a lifecycle event.
type Kind string

const (
	KindSyncStarted        Kind = "sync_started"
	KindSyncProgress       Kind = "sync_progress"
	KindSyncCompleted      Kind = "sync_completed"
	KindMigrationCompleted Kind = "migration_completed"
)

// Event is one lifecycle notification. Current and Total are set on progress events;
// the counters are set on completion events.
type Event struct {
	Kind    Kind     `json:"kind"`
	At      int64    `json:"at"`
	Current int      `json:"current,omitempty"`
	Total   int      `json:"total,omitempty"`
	Synced  int      `json:"synced,omitempty"`
	Failed  int      `json:"failed,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// Handler receives published events.
type Handler func(Event)

// Bus delivers events to the current subscribers. Delivery is synchronous, at most once,
// and a subscriber that joins late does not see earlier events.
type Bus struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	nextID   uint64
	now      func() time.Time
	logger   *slog.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[uint64]Handler),
		now:      time.Now,
		logger:   logger,
	}
}

// Subscribe registers h and returns a function removing it. The function is safe to call twice.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
		})
	}
}

// Publish stamps the event and hands it to every subscriber. A panicking subscriber is logged and skipped.
func (b *Bus) Publish(e Event) {
	if e.At == 0 {
		e.At = b.now().UnixMilli()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked", "kind", e.Kind, "panic", r)
		}
	}()
	h(e)
}

// Subscribers returns the number of registered handlers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

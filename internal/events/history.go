package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultHistorySize is the number of entries a History keeps.
const DefaultHistorySize = 100

// Entry is one published event.
type Entry struct {
	Topic string    `json:"topic"`
	At    time.Time `json:"at"`
	Event any       `json:"event"`
}

// Handler observes entries as they are published.
type Handler func(Entry)

// History keeps the most recent published events in memory and notifies
// registered handlers. It satisfies domain.EventPublisher.
type History struct {
	mu       sync.RWMutex
	entries  []Entry
	max      int
	handlers []Handler
	logger   *slog.Logger
}

func NewHistory(size int, logger *slog.Logger) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &History{max: size, logger: logger}
}

// On registers a handler called synchronously for every published entry.
func (h *History) On(fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = append(h.handlers, fn)
}

func (h *History) Publish(ctx context.Context, topic string, event any) error {
	e := Entry{Topic: topic, At: time.Now(), Event: event}

	h.mu.Lock()
	if len(h.entries) >= h.max {
		h.entries = h.entries[1:]
	}
	h.entries = append(h.entries, e)
	handlers := append([]Handler(nil), h.handlers...)
	h.mu.Unlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.logger.Error("event handler panic", "topic", topic, "panic", r)
				}
			}()
			fn(e)
		}()
	}
	return nil
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (h *History) Recent(n int) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(h.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.entries[i])
	}
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func (h *History) Close() error { return nil }

package logger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LogEntry is one captured manager log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// LogBuffer is a thread-safe ring buffer of recent manager log lines,
// used by the diagnostics endpoint when streaming is unavailable.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	size    int
	index   int
	full    bool
}

// NewLogBuffer creates a ring buffer holding size entries.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = 500
	}
	return &LogBuffer{
		entries: make([]LogEntry, size),
		size:    size,
	}
}

// Add appends an entry, evicting the oldest once the buffer is full.
func (lb *LogBuffer) Add(entry LogEntry) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.entries[lb.index] = entry
	lb.index++
	if lb.index >= lb.size {
		lb.index = 0
		lb.full = true
	}
}

// GetAll returns all entries in chronological order.
func (lb *LogBuffer) GetAll() []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if !lb.full {
		result := make([]LogEntry, lb.index)
		copy(result, lb.entries[:lb.index])
		return result
	}

	result := make([]LogEntry, lb.size)
	copy(result, lb.entries[lb.index:])
	copy(result[lb.size-lb.index:], lb.entries[:lb.index])
	return result
}

// Size returns the current number of buffered entries.
func (lb *LogBuffer) Size() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	if lb.full {
		return lb.size
	}
	return lb.index
}

// TeeHandler is a slog.Handler that forwards records to an inner handler
// and mirrors them into a LogBuffer.
type TeeHandler struct {
	inner  slog.Handler
	buffer *LogBuffer
}

// NewTeeHandler wraps inner so every record also lands in buffer.
func NewTeeHandler(inner slog.Handler, buffer *LogBuffer) *TeeHandler {
	return &TeeHandler{inner: inner, buffer: buffer}
}

func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	h.buffer.Add(LogEntry{
		Timestamp: r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
	})
	return h.inner.Handle(ctx, r)
}

func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TeeHandler{inner: h.inner.WithAttrs(attrs), buffer: h.buffer}
}

func (h *TeeHandler) WithGroup(name string) slog.Handler {
	return &TeeHandler{inner: h.inner.WithGroup(name), buffer: h.buffer}
}

package events

import "sync"

// Hub is the registry of named streams. Console streams are keyed by
// instance name under the "console/" prefix; the single update stream
// uses the "update" key.
type Hub struct {
	mu      sync.Mutex
	streams map[string]*Stream
}

// NewHub creates an empty stream registry.
func NewHub() *Hub {
	return &Hub{streams: make(map[string]*Stream)}
}

// ConsoleKey returns the stream key for an instance's console.
func ConsoleKey(instance string) string {
	return "console/" + instance
}

// UpdateKey is the stream key shared by all update operations. The
// single-update-at-a-time guard means at most one is live at once.
const UpdateKey = "update"

// Get returns the stream for key, or nil if none exists yet.
func (h *Hub) Get(key string) *Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.streams[key]
}

// Open returns the live stream for key, creating one if the key is
// unknown or its previous stream already completed. Late subscribers to
// a completed stream should use Get to replay it instead.
func (h *Hub) Open(key string) *Stream {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.streams[key]; ok && !s.Done() {
		return s
	}
	s := NewStream()
	h.streams[key] = s
	return s
}

// Reset unconditionally replaces the stream for key, terminating any
// previous one that was still open. Used when a new process run begins
// and the old console should no longer accumulate.
func (h *Hub) Reset(key string) *Stream {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.streams[key]; ok && !old.Done() {
		old.Close(Result{Success: false, Message: "superseded"})
	}
	s := NewStream()
	h.streams[key] = s
	return s
}

// Package events bridges worker-goroutine callbacks (process output,
// download progress, lifecycle completion) into ordered, replayable
// event streams that asynchronous subscribers can consume.
package events

import (
	"sync"
	"time"
)

// Kind discriminates event payloads.
type Kind string

const (
	// KindLine is one line of process or operation output.
	KindLine Kind = "line"
	// KindProgress is a parsed download progress report.
	KindProgress Kind = "progress"
	// KindTerminal is the final event of a stream. Emitted exactly once.
	KindTerminal Kind = "terminal"
)

// Event is a single entry in a stream.
type Event struct {
	Kind    Kind      `json:"kind"`
	Time    time.Time `json:"time"`
	Line    string    `json:"line,omitempty"`
	Percent float64   `json:"percent,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Result  *Result   `json:"result,omitempty"`
}

// Result is the terminal payload of a stream.
type Result struct {
	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"`
	Message  string `json:"message,omitempty"`
}

// subChanCap bounds a subscriber's backlog beyond the replayed buffer.
// A subscriber that falls further behind loses intermediate events, but
// never the terminal one.
const subChanCap = 1024

// Stream is one subscribable event sequence: a per-instance console, or
// a single download/update operation. Producers publish from worker
// goroutines; subscribers receive a replay of everything emitted so far
// followed by live events, all in emission order.
type Stream struct {
	mu       sync.Mutex
	buffer   []Event
	subs     map[int]chan Event
	nextID   int
	closed   bool
	terminal Event
}

// NewStream creates an open stream.
func NewStream() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// PublishLine emits an output line.
func (s *Stream) PublishLine(line string) {
	s.publish(Event{Kind: KindLine, Time: time.Now(), Line: line})
}

// PublishProgress emits a parsed progress report.
func (s *Stream) PublishProgress(percent float64, detail string) {
	s.publish(Event{Kind: KindProgress, Time: time.Now(), Percent: percent, Detail: detail})
}

// Close emits the terminal event and closes all subscriber channels.
// Only the first call has any effect.
func (s *Stream) Close(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.terminal = Event{Kind: KindTerminal, Time: time.Now(), Result: &res}
	s.buffer = append(s.buffer, s.terminal)

	for id, ch := range s.subs {
		sendTerminal(ch, s.terminal)
		close(ch)
		delete(s.subs, id)
	}
}

// Done reports whether the stream has emitted its terminal event.
func (s *Stream) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Result returns the terminal payload, or nil while the stream is open.
func (s *Stream) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		return nil
	}
	return s.terminal.Result
}

// Buffer returns a copy of everything emitted so far, in order.
func (s *Stream) Buffer() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.buffer))
	copy(out, s.buffer)
	return out
}

// Subscription is one subscriber's view of a stream.
type Subscription struct {
	// C delivers buffered then live events in emission order. Closed
	// after the terminal event, or on Cancel.
	C <-chan Event

	cancel func()
}

// Cancel removes the subscriber. The underlying operation is unaffected.
func (sub *Subscription) Cancel() {
	sub.cancel()
}

// Subscribe registers a new subscriber. The returned channel first
// replays the buffered events, then delivers live ones. If the stream
// already completed, the channel holds the full history including the
// terminal event and is closed immediately.
func (s *Stream) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, len(s.buffer)+subChanCap)
	for _, e := range s.buffer {
		ch <- e
	}

	if s.closed {
		close(ch)
		return &Subscription{C: ch, cancel: func() {}}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	return &Subscription{
		C: ch,
		cancel: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if ch, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		},
	}
}

// publish appends to the buffer and fans out to subscribers. The send is
// non-blocking: a subscriber that cannot keep up drops intermediate
// events rather than stalling the producing worker.
func (s *Stream) publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.buffer = append(s.buffer, e)

	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// sendTerminal delivers the terminal event even to a full channel by
// evicting the oldest pending entry.
func sendTerminal(ch chan Event, e Event) {
	for {
		select {
		case ch <- e:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

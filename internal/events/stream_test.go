package events

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func collect(sub *Subscription, timeout time.Duration) []Event {
	var out []Event
	deadline := time.After(timeout)
	for {
		select {
		case e, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-deadline:
			return out
		}
	}
}

func TestSubscribeReplaysBufferInOrder(t *testing.T) {
	s := NewStream()
	s.PublishLine("one")
	s.PublishLine("two")
	s.PublishLine("three")

	sub := s.Subscribe()
	defer sub.Cancel()
	s.Close(Result{Success: true, ExitCode: 0})

	got := collect(sub, time.Second)
	want := []string{"one", "two", "three"}
	if len(got) != 4 {
		t.Fatalf("got %d events, want 4 (3 lines + terminal)", len(got))
	}
	for i, line := range want {
		if got[i].Kind != KindLine || got[i].Line != line {
			t.Errorf("event[%d] = %+v, want line %q", i, got[i], line)
		}
	}
	if got[3].Kind != KindTerminal || !got[3].Result.Success {
		t.Errorf("last event = %+v, want successful terminal", got[3])
	}
}

func TestLateSubscriberGetsHistoryAndTerminal(t *testing.T) {
	s := NewStream()
	s.PublishLine("output")
	s.Close(Result{Success: false, ExitCode: 1, Message: "crashed"})

	sub := s.Subscribe()
	got := collect(sub, time.Second)

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Line != "output" {
		t.Errorf("replayed line = %q", got[0].Line)
	}
	if got[1].Kind != KindTerminal || got[1].Result.ExitCode != 1 {
		t.Errorf("terminal = %+v", got[1])
	}
}

func TestTerminalEmittedExactlyOnce(t *testing.T) {
	s := NewStream()
	sub := s.Subscribe()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(code int) {
			defer wg.Done()
			s.Close(Result{Success: true, ExitCode: code})
		}(i)
	}
	wg.Wait()

	got := collect(sub, time.Second)
	terminals := 0
	for _, e := range got {
		if e.Kind == KindTerminal {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("terminal events = %d, want exactly 1", terminals)
	}
	if !s.Done() {
		t.Error("stream not done after Close")
	}
}

func TestAllSubscribersObserveSameOrder(t *testing.T) {
	s := NewStream()
	subA := s.Subscribe()
	subB := s.Subscribe()

	for i := 0; i < 100; i++ {
		s.PublishLine(fmt.Sprintf("line-%03d", i))
	}
	s.Close(Result{Success: true})

	gotA := collect(subA, time.Second)
	gotB := collect(subB, time.Second)

	if len(gotA) != len(gotB) {
		t.Fatalf("subscriber lengths differ: %d vs %d", len(gotA), len(gotB))
	}
	for i := range gotA {
		if gotA[i].Line != gotB[i].Line || gotA[i].Kind != gotB[i].Kind {
			t.Fatalf("order diverges at %d: %+v vs %+v", i, gotA[i], gotB[i])
		}
	}
}

func TestCancelRemovesSubscriberOnly(t *testing.T) {
	s := NewStream()
	sub := s.Subscribe()
	sub.Cancel()

	// Publishing after cancellation must not panic or block.
	s.PublishLine("after cancel")
	if s.Done() {
		t.Error("cancelling a subscriber terminated the stream")
	}

	if _, ok := <-sub.C; ok {
		// Channel may still hold buffered events, but must be closed.
		for range sub.C {
		}
	}
}

func TestPublishAfterCloseIsNoOp(t *testing.T) {
	s := NewStream()
	s.Close(Result{Success: true})
	s.PublishLine("ignored")

	buf := s.Buffer()
	if len(buf) != 1 || buf[0].Kind != KindTerminal {
		t.Errorf("buffer = %+v, want only the terminal event", buf)
	}
}

func TestSlowSubscriberStillGetsTerminal(t *testing.T) {
	s := NewStream()
	sub := s.Subscribe()

	// Overflow the subscriber channel without draining it.
	for i := 0; i < subChanCap+200; i++ {
		s.PublishLine("flood")
	}
	s.Close(Result{Success: true, Message: "done"})

	var last Event
	for e := range sub.C {
		last = e
	}
	if last.Kind != KindTerminal || last.Result.Message != "done" {
		t.Errorf("last event = %+v, want terminal", last)
	}
}

func TestHubOpenAndReset(t *testing.T) {
	h := NewHub()

	s1 := h.Open(ConsoleKey("Alpha"))
	if got := h.Open(ConsoleKey("Alpha")); got != s1 {
		t.Error("Open returned a new stream while the old one was live")
	}

	s1.Close(Result{Success: true})
	s2 := h.Open(ConsoleKey("Alpha"))
	if s2 == s1 {
		t.Error("Open reused a completed stream")
	}

	s3 := h.Reset(ConsoleKey("Alpha"))
	if s3 == s2 {
		t.Error("Reset did not replace the stream")
	}
	if !s2.Done() {
		t.Error("Reset left the superseded stream open")
	}
}

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	a, b := h.Subscribe(), h.Subscribe()

	if n := h.Broadcast(Event{Type: EventUpdate, TS: 1}); n != 2 {
		t.Errorf("delivered to %d, want 2", n)
	}
	for i, s := range []*Subscription{a, b} {
		select {
		case ev := <-s.C:
			if ev.Type != EventUpdate || ev.TS != 1 {
				t.Errorf("subscriber %d got %+v", i, ev)
			}
		default:
			t.Errorf("subscriber %d got nothing", i)
		}
	}
}

func TestHubDropsStalledSubscriber(t *testing.T) {
	h := NewHub()
	stalled := h.Subscribe()
	live := h.Subscribe()

	for i := 0; i < subscriberBuffer; i++ {
		h.Broadcast(Event{Type: EventUpdate, TS: int64(i)})
		<-live.C
	}
	if h.Len() != 2 {
		t.Fatalf("subscribers = %d before overflow, want 2", h.Len())
	}

	if n := h.Broadcast(Event{Type: EventUpdate, TS: 99}); n != 1 {
		t.Errorf("delivered to %d, want 1", n)
	}
	if h.Len() != 1 {
		t.Errorf("subscribers = %d after overflow, want 1", h.Len())
	}

	drained := 0
	for range stalled.C {
		drained++
	}
	if drained != subscriberBuffer {
		t.Errorf("stalled subscriber drained %d events, want %d", drained, subscriberBuffer)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	s := h.Subscribe()
	h.Unsubscribe(s)
	h.Unsubscribe(s)

	if _, ok := <-s.C; ok {
		t.Error("channel still open after unsubscribe")
	}
	if h.Len() != 0 {
		t.Errorf("subscribers = %d, want 0", h.Len())
	}
	if n := h.Broadcast(Event{Type: EventUpdate}); n != 0 {
		t.Errorf("delivered to %d after unsubscribe, want 0", n)
	}
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	s := h.Subscribe()
	h.Close()
	if _, ok := <-s.C; ok {
		t.Error("channel still open after Close")
	}
}

// touch moves the file's mtime forward by d from its current value so the
// change is visible regardless of filesystem timestamp granularity.
func touch(t *testing.T, path string, d time.Duration) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	mt := info.ModTime().Add(d)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatal(err)
	}
}

func expectEvent(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case ev := <-s.C:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
	}
	return Event{}
}

func expectNoEvent(t *testing.T, s *Subscription, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-s.C:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(wait):
	}
}

func startWatcher(t *testing.T, w *Watcher) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	}
}

func newLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWatcherBroadcastsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := newLog(t)
	hub := NewHub()
	w := &Watcher{
		Resolve:  func() (string, error) { return path, nil },
		Hub:      hub,
		Interval: 20 * time.Millisecond,
		now:      func() time.Time { return time.UnixMilli(1234) },
	}
	w.check()

	sub := hub.Subscribe()
	stop := startWatcher(t, w)
	defer stop()

	expectNoEvent(t, sub, 100*time.Millisecond)

	touch(t, path, time.Second)
	ev := expectEvent(t, sub)
	if ev.Type != EventUpdate || ev.TS != 1234 {
		t.Errorf("event = %+v", ev)
	}
	expectNoEvent(t, sub, 100*time.Millisecond)
}

func TestWatcherNoReplayForLateSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := newLog(t)
	hub := NewHub()
	w := &Watcher{
		Resolve:  func() (string, error) { return path, nil },
		Hub:      hub,
		Interval: 20 * time.Millisecond,
	}
	w.check()

	early := hub.Subscribe()
	stop := startWatcher(t, w)
	defer stop()

	touch(t, path, time.Second)
	expectEvent(t, early)

	late := hub.Subscribe()
	expectNoEvent(t, late, 150*time.Millisecond)

	touch(t, path, time.Second)
	expectEvent(t, late)
	expectEvent(t, early)
}

func TestWatcherFollowsSessionSwitch(t *testing.T) {
	first, second := newLog(t), newLog(t)
	// the new session's log is older than the last one seen
	touch(t, second, -time.Hour)

	current := first
	hub := NewHub()
	w := &Watcher{Resolve: func() (string, error) { return current, nil }, Hub: hub}
	w.check()

	sub := hub.Subscribe()
	w.check()
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %+v without a change", ev)
	default:
	}

	current = second
	w.check()
	select {
	case <-sub.C:
	default:
		t.Fatal("switching session logs should notify subscribers")
	}
}

func TestWatcherWithoutSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub()
	sub := hub.Subscribe()
	w := &Watcher{
		Resolve:  func() (string, error) { return "", errors.New("no session") },
		Hub:      hub,
		Interval: 10 * time.Millisecond,
	}
	stop := startWatcher(t, w)
	expectNoEvent(t, sub, 100*time.Millisecond)
	stop()
}

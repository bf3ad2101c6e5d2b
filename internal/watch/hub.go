// Package watch tells streaming clients when the active session log changes.
package watch

import "sync"

const subscriberBuffer = 16

// Event is a "something changed, re-fetch" signal.
type Event struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

const (
	EventConnected = "connected"
	EventUpdate    = "update"
)

// Subscription receives events on C until it is unsubscribed or dropped, at
// which point C is closed.
type Subscription struct {
	C  <-chan Event
	ch chan Event
}

// Hub is the set of live subscribers. Events are not buffered for
// subscribers that join later.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Event, subscriberBuffer)
	s := &Subscription{C: ch, ch: ch}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(s)
}

func (h *Hub) remove(s *Subscription) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.ch)
}

// Broadcast delivers ev to every current subscriber and returns how many
// received it. A subscriber that cannot take the event is dropped.
func (h *Hub) Broadcast(ev Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for s := range h.subs {
		select {
		case s.ch <- ev:
			n++
		default:
			h.remove(s)
		}
	}
	return n
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		h.remove(s)
	}
}

// Package events is a process-wide broadcast hub feeding the SSE endpoint.
// Delivery is fire-and-forget: at most once per connected subscriber, no
// replay, no persistence. A subscriber that cannot keep up misses events and
// is expected to reconcile by re-fetching after reconnect.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Named event kinds published by the core.
const (
	NewResult      = "new-result"
	ResultReviewed = "result-reviewed"
	TestsUpdated   = "tests-updated"
)

const (
	subscriberBuffer  = 16
	heartbeatInterval = 15 * time.Second
)

// Event is one named broadcast message with a JSON-encodable payload.
type Event struct {
	Name string
	Data any
}

// Hub fans events out to all live subscribers. Subscriber lifetime is owned
// by the HTTP connection it rides on, never by the publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Publish broadcasts an event to every current subscriber without blocking.
// A subscriber whose buffer is full simply does not see the event.
func (h *Hub) Publish(name string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- Event{Name: name, Data: data}:
		default:
		}
	}
}

func (h *Hub) subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP streams events to one client as Server-Sent Events until the
// client disconnects. Heartbeat comments keep idle connections open.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-ch:
			payload, err := json.Marshal(ev.Data)
			if err != nil {
				slog.Error("marshal event payload", "event", ev.Name, "error", err)
				continue
			}
			if _, err := w.Write([]byte("event: " + ev.Name + "\ndata: " + string(payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

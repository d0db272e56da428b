package events

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	a := h.subscribe()
	b := h.subscribe()
	defer h.unsubscribe(a)
	defer h.unsubscribe(b)

	h.Publish(NewResult, map[string]any{"resultId": 1})

	for name, ch := range map[string]chan Event{"a": a, "b": b} {
		select {
		case ev := <-ch:
			if ev.Name != NewResult {
				t.Errorf("subscriber %s: event = %q, want %q", name, ev.Name, NewResult)
			}
		default:
			t.Errorf("subscriber %s received nothing", name)
		}
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	h := NewHub()
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Overflow the buffer without anyone draining it.
		for i := 0; i < subscriberBuffer*2; i++ {
			h.Publish(TestsUpdated, nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d (overflow dropped)", len(ch), subscriberBuffer)
	}
}

// waitForSubscribers polls until the hub sees n live subscribers.
func waitForSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.SubscriberCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count never reached %d (now %d)", n, h.SubscriberCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServeHTTPStreamsNamedEvents(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}

	waitForSubscribers(t, h, 1)
	h.Publish(ResultReviewed, map[string]any{"resultId": 42})

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for eventLine == "" || dataLine == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = line
		case strings.HasPrefix(line, "data: "):
			dataLine = line
		}
	}
	if eventLine != "event: result-reviewed" {
		t.Errorf("event line = %q", eventLine)
	}
	if dataLine != `data: {"resultId":42}` {
		t.Errorf("data line = %q", dataLine)
	}
}

func TestSubscriberRemovedOnDisconnect(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitForSubscribers(t, h, 1)

	resp.Body.Close()
	waitForSubscribers(t, h, 0)
}

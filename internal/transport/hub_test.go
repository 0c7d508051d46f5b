package transport

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/hitoshi/livebid/internal/model"
)

type countingMetrics struct {
	mu      sync.Mutex
	opened  int
	closed  int
	dropped int
	limited int
	intents map[string]int
}

func (m *countingMetrics) ConnectionOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
}

func (m *countingMetrics) ConnectionClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}

func (m *countingMetrics) RecordRateLimited() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limited++
}

func (m *countingMetrics) RecordSlowClientDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

func (m *countingMetrics) RecordIntent(intentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.intents == nil {
		m.intents = map[string]int{}
	}
	m.intents[intentType]++
}

func newQuietHub(m Metrics) *Hub {
	return NewHub(slog.New(slog.NewJSONHandler(io.Discard, nil)), m)
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub := newQuietHub(nil)
	a := newClient(nil, "a")
	b := newClient(nil, "b")
	hub.register(a, nil)
	hub.register(b, nil)

	hub.Broadcast(model.Event{Type: model.EventState, Data: map[string]int{"n": 1}})

	for _, c := range []*Client{a, b} {
		select {
		case payload := <-c.send:
			var f frame
			if err := json.Unmarshal(payload, &f); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if f.Type != model.EventState {
				t.Errorf("type = %q", f.Type)
			}
		default:
			t.Errorf("client %s received nothing", c.Identity)
		}
	}
}

func TestHub_RegisterQueuesFirstFrameBeforeBroadcasts(t *testing.T) {
	hub := newQuietHub(nil)
	c := newClient(nil, "a")

	hub.register(c, []byte(`{"type":"hello"}`))
	hub.Broadcast(model.Event{Type: model.EventState})

	if got := string(<-c.send); got != `{"type":"hello"}` {
		t.Errorf("first frame = %s, want hello", got)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	m := &countingMetrics{}
	hub := newQuietHub(m)
	slow := newClient(nil, "slow")
	fast := newClient(nil, "fast")
	hub.register(slow, nil)
	hub.register(fast, nil)

	for i := 0; i < sendBufferSize; i++ {
		slow.send <- []byte("x")
	}

	hub.Broadcast(model.Event{Type: model.EventState})

	if hub.Len() != 1 {
		t.Errorf("Len() = %d, want 1", hub.Len())
	}
	if m.dropped != 1 || m.closed != 1 {
		t.Errorf("dropped = %d, closed = %d, want 1/1", m.dropped, m.closed)
	}
	if !slow.closed {
		t.Error("slow client send queue should be closed")
	}
	if len(fast.send) != 1 {
		t.Errorf("fast client queue = %d, want 1", len(fast.send))
	}
}

func TestHub_RemoveIsIdempotent(t *testing.T) {
	m := &countingMetrics{}
	hub := newQuietHub(m)
	c := newClient(nil, "a")
	hub.register(c, nil)

	if !hub.remove(c) {
		t.Error("first remove should report true")
	}
	if hub.remove(c) {
		t.Error("second remove should report false")
	}
	if m.opened != 1 || m.closed != 1 {
		t.Errorf("opened = %d, closed = %d", m.opened, m.closed)
	}
	if c.enqueue([]byte("late")) {
		t.Error("enqueue after removal must fail")
	}
}

func TestHub_CloseAll(t *testing.T) {
	hub := newQuietHub(nil)
	for _, id := range []string{"a", "b", "c"} {
		hub.register(newClient(nil, id), nil)
	}

	hub.CloseAll()

	if hub.Len() != 0 {
		t.Errorf("Len() = %d, want 0", hub.Len())
	}
}

func TestHub_UnencodableEventIsSkipped(t *testing.T) {
	hub := newQuietHub(nil)
	c := newClient(nil, "a")
	hub.register(c, nil)

	hub.Broadcast(model.Event{Type: model.EventState, Data: make(chan int)})

	if len(c.send) != 0 {
		t.Errorf("queue = %d, want 0", len(c.send))
	}
	if hub.Len() != 1 {
		t.Error("client must stay registered")
	}
}

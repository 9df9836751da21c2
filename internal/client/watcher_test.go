package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/misiones-arrienda/arrienda/internal/chat"
)

// fakeChat serves the conversation endpoints a Watcher uses.
type fakeChat struct {
	confirm  bool
	rejectWS bool

	mu       sync.Mutex
	messages []chat.Message
	dials    int
	polls    []int64
	conns    []*websocket.Conn
}

func (f *fakeChat) server(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/conversations/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
		if f.rejectWS {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		f.mu.Lock()
		f.dials++
		f.conns = append(f.conns, conn)
		if f.confirm {
			if err := conn.WriteJSON(frame{Type: "subscribed", ConversationID: r.PathValue("id")}); err != nil {
				t.Errorf("write subscribed: %v", err)
			}
		}
		f.mu.Unlock()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	mux.HandleFunc("GET /api/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		f.mu.Lock()
		f.polls = append(f.polls, after)
		var out []chat.Message
		for _, m := range f.messages {
			if m.ID > after {
				out = append(out, m)
			}
		}
		f.mu.Unlock()
		if out == nil {
			out = []chat.Message{}
		}
		writeJSON(t, w, http.StatusOK, out)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		f.closeSockets()
		srv.Close()
	})
	return srv
}

func (f *fakeChat) store(msgs ...chat.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msgs...)
}

// push sends a message frame on every open socket.
func (f *fakeChat) push(t *testing.T, m chat.Message) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		if err := c.WriteJSON(frame{Type: "message", Message: &m}); err != nil {
			t.Errorf("push: %v", err)
		}
	}
}

func (f *fakeChat) closeSockets() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		_ = c.Close()
	}
	f.conns = nil
}

func (f *fakeChat) counts() (dials, polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials, len(f.polls)
}

type collector struct {
	mu  sync.Mutex
	ids []int64
}

func (c *collector) add(m chat.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, m.ID)
}

func (c *collector) get() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.ids)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestWatcher(t *testing.T, srv *httptest.Server) *Watcher {
	t.Helper()
	w := NewWatcher(New(srv.URL, "testtoken"))
	w.SubscribeTimeout = 50 * time.Millisecond
	w.PollInterval = 20 * time.Millisecond
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestWatcherDeliversSubscribedMessages(t *testing.T) {
	fake := &fakeChat{confirm: true}
	fake.store(chat.Message{ID: 1, Body: "hola"}, chat.Message{ID: 2, Body: "¿sigue disponible?"})
	srv := fake.server(t)

	w := newTestWatcher(t, srv)
	w.SubscribeTimeout = time.Second
	var got collector
	if err := w.Watch(t.Context(), "c1", 0, got.add); err != nil {
		t.Fatalf("watch: %v", err)
	}

	// Messages sent before the subscription are caught up once confirmed.
	eventually(t, "catch-up", func() bool { return len(got.get()) == 2 })

	fake.push(t, chat.Message{ID: 3, Body: "sí"})
	fake.push(t, chat.Message{ID: 2, Body: "¿sigue disponible?"})
	fake.push(t, chat.Message{ID: 3, Body: "sí"})
	fake.push(t, chat.Message{ID: 4, Body: "genial"})
	eventually(t, "pushed messages", func() bool { return len(got.get()) == 4 })

	if ids := got.get(); !slices.Equal(ids, []int64{1, 2, 3, 4}) {
		t.Errorf("delivered %v, want [1 2 3 4]", ids)
	}
	if w.Polling() {
		t.Error("watcher polling although the subscription was confirmed")
	}
	if w.LastID() != 4 {
		t.Errorf("last id = %d, want 4", w.LastID())
	}
}

func TestWatcherFallsBackToPolling(t *testing.T) {
	fake := &fakeChat{confirm: false}
	fake.store(chat.Message{ID: 1}, chat.Message{ID: 2})
	srv := fake.server(t)

	w := newTestWatcher(t, srv)
	var got collector
	if err := w.Watch(t.Context(), "c1", 0, got.add); err != nil {
		t.Fatalf("watch: %v", err)
	}

	eventually(t, "polled messages", func() bool { return len(got.get()) == 2 })
	if !w.Polling() {
		t.Error("expected polling after an unconfirmed subscription")
	}

	fake.store(chat.Message{ID: 3})
	eventually(t, "third message", func() bool { return len(got.get()) == 3 })

	// Several more polls deliver nothing new.
	_, before := fake.counts()
	eventually(t, "more polls", func() bool {
		_, n := fake.counts()
		return n >= before+3
	})

	if ids := got.get(); !slices.Equal(ids, []int64{1, 2, 3}) {
		t.Errorf("delivered %v, want [1 2 3]", ids)
	}
	if dials, _ := fake.counts(); dials != 1 {
		t.Errorf("dials = %d, want 1", dials)
	}
}

func TestWatcherPollsWhenDialFails(t *testing.T) {
	fake := &fakeChat{rejectWS: true}
	fake.store(chat.Message{ID: 1}, chat.Message{ID: 2}, chat.Message{ID: 5})
	srv := fake.server(t)

	w := newTestWatcher(t, srv)
	var got collector
	if err := w.Watch(t.Context(), "c1", 1, got.add); err != nil {
		t.Fatalf("watch: %v", err)
	}

	eventually(t, "polled messages", func() bool { return len(got.get()) == 2 })
	if ids := got.get(); !slices.Equal(ids, []int64{2, 5}) {
		t.Errorf("delivered %v, want [2 5]", ids)
	}
}

func TestWatcherFallsBackWhenSocketDrops(t *testing.T) {
	fake := &fakeChat{confirm: true}
	srv := fake.server(t)

	w := newTestWatcher(t, srv)
	w.SubscribeTimeout = time.Second
	var got collector
	if err := w.Watch(t.Context(), "c1", 0, got.add); err != nil {
		t.Fatalf("watch: %v", err)
	}
	eventually(t, "subscription", func() bool {
		dials, _ := fake.counts()
		return dials == 1
	})

	fake.closeSockets()
	fake.store(chat.Message{ID: 9})

	eventually(t, "polled message", func() bool { return len(got.get()) == 1 })
	if !w.Polling() {
		t.Error("expected polling after the socket dropped")
	}
}

func TestWatcherWatchIsGuarded(t *testing.T) {
	fake := &fakeChat{confirm: false}
	srv := fake.server(t)

	w := newTestWatcher(t, srv)
	var got collector
	for i := 0; i < 3; i++ {
		if err := w.Watch(t.Context(), "c1", 0, got.add); err != nil {
			t.Fatalf("watch %d: %v", i, err)
		}
	}

	eventually(t, "polling", w.Polling)
	time.Sleep(100 * time.Millisecond)

	dials, polls := fake.counts()
	if dials != 1 {
		t.Errorf("dials = %d, want 1", dials)
	}
	// One poller at 20ms for ~100ms; duplicate pollers would double this.
	if polls > 10 {
		t.Errorf("polls = %d, more than a single poller would make", polls)
	}
}

func TestWatcherCloseStopsEverything(t *testing.T) {
	fake := &fakeChat{confirm: false}
	srv := fake.server(t)

	w := newTestWatcher(t, srv)
	if err := w.Watch(t.Context(), "c1", 0, func(chat.Message) {}); err != nil {
		t.Fatalf("watch: %v", err)
	}
	eventually(t, "first poll", func() bool {
		_, n := fake.counts()
		return n > 0
	})

	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	_, after := fake.counts()
	time.Sleep(100 * time.Millisecond)
	if _, n := fake.counts(); n != after {
		t.Errorf("polls continued after close: %d -> %d", after, n)
	}

	if err := w.Watch(t.Context(), "c1", 0, func(chat.Message) {}); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("watch after close = %v, want ErrWatcherClosed", err)
	}
}

func TestWatcherStopsWithContext(t *testing.T) {
	fake := &fakeChat{confirm: false}
	srv := fake.server(t)

	w := newTestWatcher(t, srv)
	ctx, cancel := context.WithCancel(t.Context())
	if err := w.Watch(ctx, "c1", 0, func(chat.Message) {}); err != nil {
		t.Fatalf("watch: %v", err)
	}
	eventually(t, "polling", w.Polling)

	cancel()
	done := make(chan struct{})
	go func() {
		_ = w.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("close did not return after the context was cancelled")
	}
}

func TestWatchValidatesArguments(t *testing.T) {
	w := NewWatcher(New("http://localhost", ""))
	if err := w.Watch(t.Context(), "", 0, func(chat.Message) {}); err == nil {
		t.Error("expected error for empty conversation id")
	}
	if err := w.Watch(t.Context(), "c1", 0, nil); err == nil {
		t.Error("expected error for nil callback")
	}
}

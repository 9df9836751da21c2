package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/misiones-arrienda/arrienda/internal/chat"
)

// Watcher defaults.
const (
	DefaultSubscribeTimeout = 3 * time.Second
	DefaultPollInterval     = 10 * time.Second
)

// ErrWatcherClosed is returned by Watch after Close.
var ErrWatcherClosed = errors.New("watcher closed")

// frame mirrors the server's websocket frames.
type frame struct {
	Type           string        `json:"type"`
	ConversationID string        `json:"conversation_id"`
	Message        *chat.Message `json:"message"`
}

// Watcher follows one conversation. It subscribes over a websocket and
// falls back to polling when the subscription is not confirmed within
// SubscribeTimeout, cannot be dialed, or drops. Messages are delivered in
// id order, each exactly once. A Watcher is single use.
type Watcher struct {
	SubscribeTimeout time.Duration
	PollInterval     time.Duration
	Dialer           *websocket.Dialer

	client *Client

	mu             sync.Mutex
	started        bool
	closed         bool
	polling        bool
	conversationID string
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	closeOnce      sync.Once

	deliverMu sync.Mutex
	lastID    int64
	onMessage func(chat.Message)
}

// NewWatcher creates a watcher using c for polling and dialing.
func NewWatcher(c *Client) *Watcher {
	return &Watcher{
		SubscribeTimeout: DefaultSubscribeTimeout,
		PollInterval:     DefaultPollInterval,
		Dialer:           websocket.DefaultDialer,
		client:           c,
	}
}

// Watch starts following conversationID, delivering messages with ids above
// afterID to onMessage. It returns immediately; delivery stops when ctx is
// cancelled or Close is called. Calling Watch again while started is a
// no-op.
func (w *Watcher) Watch(ctx context.Context, conversationID string, afterID int64, onMessage func(chat.Message)) error {
	if conversationID == "" {
		return errors.New("conversation id is required")
	}
	if onMessage == nil {
		return errors.New("message callback is required")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if w.started {
		slog.Debug("watcher already started", "conversation_id", w.conversationID)
		return nil
	}
	w.started = true
	w.conversationID = conversationID

	w.deliverMu.Lock()
	w.lastID = afterID
	w.onMessage = onMessage
	w.deliverMu.Unlock()

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.subscribe(ctx)
	}()

	return nil
}

// LastID returns the id of the last delivered message.
func (w *Watcher) LastID() int64 {
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()
	return w.lastID
}

// Polling reports whether the polling fallback is running.
func (w *Watcher) Polling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.polling
}

// Close stops the subscription, the poller and the timer, and waits for
// them to exit. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		cancel := w.cancel
		w.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		w.wg.Wait()
	})
	return nil
}

// subscribe runs the websocket side. It owns the subscription timer.
func (w *Watcher) subscribe(ctx context.Context) {
	conn, err := w.dial(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("chat subscription failed", "conversation_id", w.conversationID, "error", err)
		}
		w.startPolling(ctx, "dial failed")
		return
	}

	confirmed := make(chan struct{})
	readDone := make(chan struct{})
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(readDone)
		w.read(ctx, conn, confirmed)
	}()
	defer func() {
		_ = conn.Close()
		<-readDone
	}()

	timer := time.NewTimer(w.SubscribeTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-confirmed:
			confirmed = nil
			timer.Stop()
			// Messages sent before the subscription went live.
			w.fetch(ctx)
		case <-timer.C:
			w.startPolling(ctx, "subscription not confirmed")
		case <-readDone:
			w.startPolling(ctx, "subscription closed")
			return
		}
	}
}

func (w *Watcher) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(w.client.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/conversations/" + url.PathEscape(w.conversationID) + "/ws"

	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), w.client.authHeader())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %w (status %d)", u.Path, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", u.Path, err)
	}
	return conn, nil
}

// read consumes frames until the connection fails or is closed.
func (w *Watcher) read(ctx context.Context, conn *websocket.Conn, confirmed chan<- struct{}) {
	subscribed := false
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				slog.Debug("chat subscription ended", "conversation_id", w.conversationID, "error", err)
			}
			return
		}

		switch f.Type {
		case "subscribed":
			if !subscribed {
				subscribed = true
				close(confirmed)
			}
		case "message":
			if f.Message != nil {
				w.deliver([]chat.Message{*f.Message})
			}
		}
	}
}

// startPolling launches the poller unless one is running.
func (w *Watcher) startPolling(ctx context.Context, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.polling || ctx.Err() != nil {
		return
	}
	w.polling = true
	slog.Info("polling chat", "conversation_id", w.conversationID, "reason", reason, "interval", w.PollInterval)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.poll(ctx)
	}()
}

func (w *Watcher) poll(ctx context.Context) {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		w.fetch(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// fetch delivers messages newer than the last delivered one.
func (w *Watcher) fetch(ctx context.Context) {
	msgs, err := w.client.Messages(ctx, w.conversationID, w.LastID(), 0)
	if err != nil {
		if ctx.Err() == nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
				slog.Error("polling chat: not signed in", "conversation_id", w.conversationID)
				return
			}
			slog.Warn("polling chat", "conversation_id", w.conversationID, "error", err)
		}
		return
	}
	w.deliver(msgs)
}

// deliver hands messages to the callback in id order, dropping any at or
// below the last delivered id.
func (w *Watcher) deliver(msgs []chat.Message) {
	if len(msgs) == 0 {
		return
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })

	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()
	for _, m := range msgs {
		if m.ID <= w.lastID {
			continue
		}
		w.lastID = m.ID
		w.onMessage(m)
	}
}

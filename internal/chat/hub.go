package chat

import (
	"log/slog"
	"sync"
)

// subscriberBuffer is how many messages a subscriber may fall behind before
// it is dropped.
const subscriberBuffer = 16

type subscriber struct {
	ch chan Message
}

// Hub fans new messages out to the subscribers of each conversation.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers for messages of a conversation. The channel is closed
// when cancel is called, when the subscriber falls too far behind, or when
// the hub closes. cancel may be called any number of times.
func (h *Hub) Subscribe(conversationID string) (<-chan Message, func()) {
	s := &subscriber{ch: make(chan Message, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[*subscriber]struct{})
	}
	h.subs[conversationID][s] = struct{}{}
	h.mu.Unlock()

	return s.ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.remove(conversationID, s)
	}
}

// remove drops s and closes its channel. Callers hold h.mu.
func (h *Hub) remove(conversationID string, s *subscriber) {
	set, ok := h.subs[conversationID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.ch)
	if len(set) == 0 {
		delete(h.subs, conversationID)
	}
}

// Publish delivers m to every subscriber of its conversation without
// blocking.
func (h *Hub) Publish(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs[m.ConversationID] {
		select {
		case s.ch <- m:
		default:
			slog.Warn("dropping slow chat subscriber", "conversation_id", m.ConversationID)
			h.remove(m.ConversationID, s)
		}
	}
}

// Subscribers returns how many subscribers a conversation has.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[conversationID])
}

// Close closes every subscription. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, set := range h.subs {
		for s := range set {
			close(s.ch)
		}
		delete(h.subs, id)
	}
}

package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/chat"
	"github.com/misiones-arrienda/arrienda/internal/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Frame is one server-to-client websocket message.
type Frame struct {
	Type           string        `json:"type"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Message        *chat.Message `json:"message,omitempty"`
}

// Frame types.
const (
	FrameSubscribed = "subscribed"
	FrameMessage    = "message"
)

// handleChatSocket streams new messages of a conversation to a participant.
// The participant check runs before the upgrade so failures are plain HTTP
// errors.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request, u *auth.User) {
	id := r.PathValue("id")
	msgs, cancel, err := s.app.Chat.Subscribe(r.Context(), u, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.Warn("websocket upgrade failed", "conversation_id", id, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	metrics.SubscriberAdded()
	defer metrics.SubscriberRemoved()
	slog.Debug("chat subscriber connected", "conversation_id", id, "user_id", u.ID)

	// The reader only handles control frames and notices disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeFrame(conn, Frame{Type: FrameSubscribed, ConversationID: id}); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				// Dropped as a slow consumer, or the server is stopping.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := writeFrame(conn, Frame{Type: FrameMessage, ConversationID: id, Message: &m}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-done:
			slog.Debug("chat subscriber disconnected", "conversation_id", id, "user_id", u.ID)
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(f)
}

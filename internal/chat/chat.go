// Package chat implements conversations between two users, their messages
// and the realtime hub that fans new messages out to subscribers.
package chat

import (
	"fmt"
	"time"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
)

// MaxBodyLength is the longest message accepted, in characters.
const MaxBodyLength = 2000

var (
	ErrNotFound       = fmt.Errorf("conversation %w", apperr.ErrNotFound)
	ErrNotParticipant = fmt.Errorf("%w: not a participant of this conversation", apperr.ErrForbidden)
)

// Conversation is a chat between two users. UserA is always the smaller id.
type Conversation struct {
	ID            string     `db:"id" json:"id"`
	UserA         int64      `db:"user_a" json:"user_a"`
	UserB         int64      `db:"user_b" json:"user_b"`
	PropertyID    *int64     `db:"property_id" json:"property_id,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`

	// Seen from the viewer passed to the query.
	OtherUserID int64  `db:"other_user_id" json:"other_user_id"`
	OtherName   string `db:"other_name" json:"other_name"`
	Unread      int    `db:"unread" json:"unread"`
	LastMessage string `db:"last_message" json:"last_message"`
}

// Has reports whether userID takes part in the conversation.
func (c *Conversation) Has(userID int64) bool {
	return c.UserA == userID || c.UserB == userID
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID int64) int64 {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// Message is one chat message.
type Message struct {
	ID             int64      `db:"id" json:"id"`
	ConversationID string     `db:"conversation_id" json:"conversation_id"`
	SenderID       int64      `db:"sender_id" json:"sender_id"`
	Body           string     `db:"body" json:"body"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
}

func orderPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

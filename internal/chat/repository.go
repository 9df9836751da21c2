package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/misiones-arrienda/arrienda/internal/db"
)

// Repository stores conversations and messages.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a chat repository over an open database.
func NewRepository(conn *sql.DB) *Repository {
	return &Repository{db: sqlx.NewDb(conn, db.DriverName)}
}

// selectConversation takes the viewer id three times, then the filter args.
const selectConversation = `SELECT c.id, c.user_a, c.user_b, c.property_id, c.created_at, c.last_message_at,
	CASE WHEN c.user_a = ? THEN c.user_b ELSE c.user_a END AS other_user_id,
	COALESCE((SELECT u.name FROM users u WHERE u.id = CASE WHEN c.user_a = ? THEN c.user_b ELSE c.user_a END), '') AS other_name,
	(SELECT COUNT(*) FROM messages m
	  WHERE m.conversation_id = c.id AND m.sender_id <> ? AND m.read_at IS NULL) AS unread,
	COALESCE((SELECT m.body FROM messages m WHERE m.conversation_id = c.id ORDER BY m.id DESC LIMIT 1), '') AS last_message
	FROM conversations c`

// GetOrCreate returns the conversation between a and b, creating it when
// missing. The pair is stored ordered so (a, b) and (b, a) are the same
// conversation.
func (r *Repository) GetOrCreate(ctx context.Context, a, b int64, propertyID *int64) (*Conversation, error) {
	lo, hi := orderPair(a, b)
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, user_a, user_b, property_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), lo, hi, propertyID, time.Now().UTC(),
	); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	var c Conversation
	err := r.db.GetContext(ctx, &c, selectConversation+" WHERE c.user_a = ? AND c.user_b = ?", a, a, a, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	return &c, nil
}

// Get returns a conversation as seen by viewer.
func (r *Repository) Get(ctx context.Context, id string, viewer int64) (*Conversation, error) {
	var c Conversation
	err := r.db.GetContext(ctx, &c, selectConversation+" WHERE c.id = ?", viewer, viewer, viewer, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return &c, nil
}

// ListForUser returns the user's conversations, most recent activity first.
func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]Conversation, error) {
	list := []Conversation{}
	err := r.db.SelectContext(ctx, &list,
		selectConversation+` WHERE c.user_a = ? OR c.user_b = ?
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id`,
		userID, userID, userID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return list, nil
}

// AddMessage stores a message and bumps the conversation's activity time.
func (r *Repository) AddMessage(ctx context.Context, conversationID string, senderID int64, body string) (msg *Message, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, body, created_at) VALUES (?, ?, ?, ?)`,
		conversationID, senderID, body, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = ? WHERE id = ?`, now, conversationID,
	); err != nil {
		return nil, fmt.Errorf("touching conversation: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}

	return &Message{ID: id, ConversationID: conversationID, SenderID: senderID, Body: body, CreatedAt: now}, nil
}

// Page sizes for ListMessages.
const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
)

// ListMessages returns messages with id greater than afterID in ascending
// id order. A limit above MaxMessageLimit is capped.
func (r *Repository) ListMessages(ctx context.Context, conversationID string, afterID int64, limit int) ([]Message, error) {
	switch {
	case limit <= 0:
		limit = DefaultMessageLimit
	case limit > MaxMessageLimit:
		limit = MaxMessageLimit
	}

	list := []Message{}
	err := r.db.SelectContext(ctx, &list,
		`SELECT id, conversation_id, sender_id, body, created_at, read_at FROM messages
		 WHERE conversation_id = ? AND id > ? ORDER BY id LIMIT ?`,
		conversationID, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return list, nil
}

// MarkRead marks the messages the other participant sent as read by reader.
func (r *Repository) MarkRead(ctx context.Context, conversationID string, reader int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE messages SET read_at = ? WHERE conversation_id = ? AND sender_id <> ? AND read_at IS NULL`,
		time.Now().UTC(), conversationID, reader,
	)
	if err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}
	return result.RowsAffected()
}

// UnreadCount returns how many messages addressed to the user are unread.
func (r *Repository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM messages m JOIN conversations c ON c.id = m.conversation_id
		 WHERE (c.user_a = ? OR c.user_b = ?) AND m.sender_id <> ? AND m.read_at IS NULL`,
		userID, userID, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return n, nil
}

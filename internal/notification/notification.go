// Package notification stores the per-user notification inbox.
package notification

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/db"
)

// ErrNotFound is returned when a notification does not exist for the user.
var ErrNotFound = fmt.Errorf("notification %w", apperr.ErrNotFound)

// Type classifies a notification.
type Type string

const (
	TypeMatch          Type = "match"
	TypeMessage        Type = "message"
	TypeInquiry        Type = "inquiry"
	TypePayment        Type = "payment"
	TypeListingExpired Type = "listing_expired"
	TypeSystem         Type = "system"
)

// Notification is one inbox entry.
type Notification struct {
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	Type      Type       `db:"type" json:"type"`
	Title     string     `db:"title" json:"title"`
	Body      string     `db:"body" json:"body"`
	Link      string     `db:"link" json:"link"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Notifier delivers notifications to users.
type Notifier interface {
	Notify(ctx context.Context, userID int64, kind Type, title, body, link string) error
}

// Repository provides notification storage.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a notification repository over an open database.
func NewRepository(conn *sql.DB) *Repository {
	return &Repository{db: sqlx.NewDb(conn, db.DriverName)}
}

// Notify stores a notification; it makes Repository a Notifier.
func (r *Repository) Notify(ctx context.Context, userID int64, kind Type, title, body, link string) error {
	_, err := r.Create(ctx, &Notification{UserID: userID, Type: kind, Title: title, Body: body, Link: link})
	return err
}

// Create stores n and returns it with its id and timestamp.
func (r *Repository) Create(ctx context.Context, n *Notification) (*Notification, error) {
	if n.Title == "" {
		return nil, apperr.Invalid("notification title is required")
	}
	n.CreatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, title, body, link, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.UserID, n.Type, n.Title, n.Body, n.Link, n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting notification: %w", err)
	}
	if n.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}
	return n, nil
}

// Page sizes for ListForUser.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ListForUser returns the user's notifications, newest first. A limit above
// MaxListLimit is capped.
func (r *Repository) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]Notification, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	query := `SELECT id, user_id, type, title, body, link, read_at, created_at
		FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY id DESC LIMIT ?`

	list := []Notification{}
	if err := r.db.SelectContext(ctx, &list, query, userID, limit); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return list, nil
}

// MarkRead marks one of the user's notifications read. Notifications of
// other users are reported as not found.
func (r *Repository) MarkRead(ctx context.Context, id, userID int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, ?) WHERE id = ? AND user_id = ?`,
		time.Now().UTC(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	return expectOne(result)
}

// MarkAllRead marks every unread notification of the user read and returns
// how many changed.
func (r *Repository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	return result.RowsAffected()
}

// UnreadCount returns how many unread notifications the user has.
func (r *Repository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL`, userID,
	); err != nil {
		return 0, fmt.Errorf("counting notifications: %w", err)
	}
	return n, nil
}

// Delete removes one of the user's notifications.
func (r *Repository) Delete(ctx context.Context, id, userID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting notification: %w", err)
	}
	return expectOne(result)
}

// PurgeReadBefore deletes read notifications created before t.
func (r *Repository) PurgeReadBefore(ctx context.Context, t time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE read_at IS NOT NULL AND created_at < ?`, t.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purging notifications: %w", err)
	}
	return result.RowsAffected()
}

func expectOne(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

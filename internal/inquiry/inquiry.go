// Package inquiry stores questions sent by interested users to listing owners.
package inquiry

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
)

// MaxLength is the longest inquiry text accepted, in characters.
const MaxLength = 2000

// ErrNotFound is returned when an inquiry does not exist.
var ErrNotFound = fmt.Errorf("inquiry %w", apperr.ErrNotFound)

// Inquiry is a message about a listing from a prospective tenant or buyer.
type Inquiry struct {
	ID          int64     `json:"id"`
	PropertyID  int64     `json:"property_id"`
	SenderID    int64     `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	SenderEmail string    `json:"sender_email"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repository provides storage for inquiries.
type Repository struct {
	db *sql.DB
}

// NewRepository creates an inquiry repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CheckText trims text and enforces the length limits.
func CheckText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.Invalid("inquiry text is required")
	}
	if utf8.RuneCountInString(text) > MaxLength {
		return "", apperr.Invalid("inquiry text must be at most %d characters", MaxLength)
	}
	return text, nil
}

const selectInquiry = `SELECT i.id, i.property_id, i.sender_id, u.name, u.email, i.text, i.created_at
	FROM inquiries i JOIN users u ON u.id = i.sender_id`

// Add stores an inquiry on a listing.
func (r *Repository) Add(propertyID, senderID int64, text string) (*Inquiry, error) {
	text, err := CheckText(text)
	if err != nil {
		return nil, err
	}

	result, err := r.db.Exec(
		"INSERT INTO inquiries (property_id, sender_id, text, created_at) VALUES (?, ?, ?, ?)",
		propertyID, senderID, text, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting inquiry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	return r.Get(id)
}

// Get returns one inquiry.
func (r *Repository) Get(id int64) (*Inquiry, error) {
	var q Inquiry
	err := r.db.QueryRow(selectInquiry+" WHERE i.id = ?", id).Scan(
		&q.ID, &q.PropertyID, &q.SenderID, &q.SenderName, &q.SenderEmail, &q.Text, &q.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading inquiry: %w", err)
	}
	return &q, nil
}

// ListByPropertyID returns all inquiries for a listing, newest first.
func (r *Repository) ListByPropertyID(propertyID int64) (list []*Inquiry, err error) {
	rows, err := r.db.Query(selectInquiry+" WHERE i.property_id = ? ORDER BY i.id DESC", propertyID)
	if err != nil {
		return nil, fmt.Errorf("listing inquiries: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	list = []*Inquiry{}
	for rows.Next() {
		var q Inquiry
		if err := rows.Scan(&q.ID, &q.PropertyID, &q.SenderID, &q.SenderName, &q.SenderEmail, &q.Text, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning inquiry: %w", err)
		}
		list = append(list, &q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating inquiries: %w", err)
	}

	return list, nil
}

// Delete removes an inquiry by ID.
func (r *Repository) Delete(id int64) error {
	result, err := r.db.Exec("DELETE FROM inquiries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting inquiry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

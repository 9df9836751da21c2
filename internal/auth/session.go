package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	sessionExpiry = 30 * 24 * time.Hour // 30 days

	// SessionCookie is the name of the browser session cookie.
	SessionCookie = "arrienda_session"
)

// SessionStore manages browser sessions in SQLite.
type SessionStore struct {
	db     *sql.DB
	secure bool
	now    func() time.Time
}

// NewSessionStore creates a session store. secure marks cookies Secure,
// which should be set whenever the site is served over HTTPS.
func NewSessionStore(db *sql.DB, secure bool) *SessionStore {
	return &SessionStore{db: db, secure: secure, now: time.Now}
}

// Create starts a session for userID and sets the cookie.
func (s *SessionStore) Create(w http.ResponseWriter, userID int64) error {
	id, err := randomHex(32)
	if err != nil {
		return fmt.Errorf("generating session ID: %w", err)
	}

	expiresAt := s.now().UTC().Add(sessionExpiry)

	if _, err := s.db.Exec(
		"INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)",
		id, userID, expiresAt,
	); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// Validate checks the session cookie and returns the user id if valid.
func (s *SessionStore) Validate(r *http.Request) (int64, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return 0, fmt.Errorf("%w: no session cookie", ErrInvalidToken)
	}

	var userID int64
	var expiresAt time.Time

	err = s.db.QueryRow(
		"SELECT user_id, expires_at FROM sessions WHERE id = ?",
		cookie.Value,
	).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: unknown session", ErrInvalidToken)
	}
	if err != nil {
		return 0, fmt.Errorf("querying session: %w", err)
	}

	if s.now().After(expiresAt) {
		if _, delErr := s.db.Exec("DELETE FROM sessions WHERE id = ?", cookie.Value); delErr != nil {
			return 0, fmt.Errorf("deleting expired session: %w", delErr)
		}
		return 0, fmt.Errorf("%w: session expired", ErrInvalidToken)
	}

	return userID, nil
}

// Destroy removes the session and clears the cookie.
func (s *SessionStore) Destroy(w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil // no session to destroy
	}

	if _, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", cookie.Value); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// DeleteExpired removes sessions that expired before now.
func (s *SessionStore) DeleteExpired(now time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM sessions WHERE expires_at < ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleaning up sessions: %w", err)
	}
	return result.RowsAffected()
}

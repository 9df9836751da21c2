package auth

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// MagicLinkTTL is how long a login link stays valid.
const MagicLinkTTL = 15 * time.Minute

// TokenStore manages single-use magic link tokens in SQLite.
type TokenStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewTokenStore creates a token store.
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db, now: time.Now}
}

// Create generates a new magic link token for the given email.
// Returns the raw token string.
func (s *TokenStore) Create(email string) (string, error) {
	token, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}

	expiresAt := s.now().UTC().Add(MagicLinkTTL)

	if _, err := s.db.Exec(
		"INSERT INTO auth_tokens (token, email, expires_at) VALUES (?, ?, ?)",
		token, normalizeEmail(email), expiresAt,
	); err != nil {
		return "", fmt.Errorf("storing token: %w", err)
	}

	return token, nil
}

// Consume checks a token, marks it used and returns the associated email.
// A token can be consumed once.
func (s *TokenStore) Consume(token string) (string, error) {
	var email string
	var used int
	var expiresAt time.Time

	err := s.db.QueryRow(
		"SELECT email, used, expires_at FROM auth_tokens WHERE token = ?",
		token,
	).Scan(&email, &used, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("querying token: %w", err)
	}

	if used != 0 {
		return "", fmt.Errorf("%w: already used", ErrInvalidToken)
	}
	if s.now().After(expiresAt) {
		return "", fmt.Errorf("%w: expired", ErrInvalidToken)
	}

	// The used = 0 guard makes concurrent consumption of the same token fail
	// for all but one caller.
	result, err := s.db.Exec("UPDATE auth_tokens SET used = 1 WHERE token = ? AND used = 0", token)
	if err != nil {
		return "", fmt.Errorf("marking token used: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return "", fmt.Errorf("checking affected rows: %w", err)
	} else if n == 0 {
		return "", fmt.Errorf("%w: already used", ErrInvalidToken)
	}

	return email, nil
}

// DeleteExpired removes tokens that expired before now and returns how many
// were removed.
func (s *TokenStore) DeleteExpired(now time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM auth_tokens WHERE expires_at < ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleaning up tokens: %w", err)
	}
	return result.RowsAffected()
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Package auth provides user accounts, API bearer tokens, browser sessions,
// magic link login and passkeys.
package auth

import (
	"context"
	"fmt"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = fmt.Errorf("user %w", apperr.ErrNotFound)
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = fmt.Errorf("%w: email already registered", apperr.ErrConflict)
	// ErrInvalidCredentials is returned for a wrong email/password pair.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", apperr.ErrUnauthorized)
	// ErrInvalidToken covers bad, expired and reused tokens.
	ErrInvalidToken = fmt.Errorf("%w: invalid or expired token", apperr.ErrUnauthorized)
)

type contextKey struct{}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(contextKey{}).(*User)
	return u, ok && u != nil
}

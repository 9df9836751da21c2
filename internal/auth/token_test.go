package auth

import (
	"errors"
	"testing"
	"time"
)

func testTokenStore(t *testing.T) *TokenStore {
	t.Helper()
	return NewTokenStore(openTestDB(t))
}

func TestTokenCreateAndConsume(t *testing.T) {
	store := testTokenStore(t)

	token, err := store.Create("User@Example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64", len(token))
	}

	email, err := store.Consume(token)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if email != "user@example.com" {
		t.Errorf("email = %q, want %q", email, "user@example.com")
	}
}

func TestTokenSingleUse(t *testing.T) {
	store := testTokenStore(t)

	token, err := store.Create("user@example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Consume(token); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if _, err := store.Consume(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken on reuse, got %v", err)
	}
}

func TestTokenInvalid(t *testing.T) {
	store := testTokenStore(t)
	if _, err := store.Consume("nope"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenExpired(t *testing.T) {
	store := testTokenStore(t)
	store.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, err := store.Create("user@example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	store.now = time.Now
	if _, err := store.Consume(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenDeleteExpired(t *testing.T) {
	store := testTokenStore(t)

	store.now = func() time.Time { return time.Now().Add(-time.Hour) }
	if _, err := store.Create("old@example.com"); err != nil {
		t.Fatalf("create old: %v", err)
	}
	store.now = time.Now
	fresh, err := store.Create("new@example.com")
	if err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	n, err := store.DeleteExpired(time.Now())
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if _, err := store.Consume(fresh); err != nil {
		t.Errorf("fresh token should survive cleanup: %v", err)
	}
}

package auth

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
)

const passkeyHandlePrefix = "arrienda-user:"

// PasskeyUser adapts a User to webauthn.User.
type PasskeyUser struct {
	user        *User
	credentials []webauthn.Credential
}

// NewPasskeyUser creates a PasskeyUser for u.
func NewPasskeyUser(u *User, credentials []webauthn.Credential) *PasskeyUser {
	return &PasskeyUser{user: u, credentials: credentials}
}

// User returns the wrapped account.
func (u *PasskeyUser) User() *User { return u.user }

// WebAuthnID returns the user handle, which encodes the user id.
func (u *PasskeyUser) WebAuthnID() []byte {
	return []byte(passkeyHandlePrefix + strconv.FormatInt(u.user.ID, 10))
}

// WebAuthnName returns the email.
func (u *PasskeyUser) WebAuthnName() string { return u.user.Email }

// WebAuthnDisplayName returns the name, or the email if unset.
func (u *PasskeyUser) WebAuthnDisplayName() string { return u.user.DisplayName() }

// WebAuthnCredentials returns the stored credentials.
func (u *PasskeyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// UserIDFromHandle decodes a user handle produced by WebAuthnID.
func UserIDFromHandle(handle []byte) (int64, error) {
	s := string(handle)
	if !strings.HasPrefix(s, passkeyHandlePrefix) {
		return 0, fmt.Errorf("%w: unknown passkey handle", ErrInvalidToken)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(s, passkeyHandlePrefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed passkey handle", ErrInvalidToken)
	}
	return id, nil
}

// PasskeyStore manages passkey credentials in SQLite.
type PasskeyStore struct {
	db *sql.DB
}

// NewPasskeyStore creates a passkey store.
func NewPasskeyStore(db *sql.DB) *PasskeyStore {
	return &PasskeyStore{db: db}
}

// StoredCredential is a passkey credential with metadata.
type StoredCredential struct {
	ID         string
	Email      string
	Name       string
	Credential webauthn.Credential
}

// Save stores a new passkey credential.
func (s *PasskeyStore) Save(email, name string, cred *webauthn.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshaling credential: %w", err)
	}

	id := fmt.Sprintf("%x", cred.ID)
	if _, err := s.db.Exec(
		"INSERT INTO passkey_credentials (id, email, name, credential_json) VALUES (?, ?, ?, ?)",
		id, normalizeEmail(email), name, string(data),
	); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}

	return nil
}

// ListByEmail returns all credentials for the given email.
func (s *PasskeyStore) ListByEmail(email string) ([]StoredCredential, error) {
	rows, err := s.db.Query(
		"SELECT id, email, name, credential_json FROM passkey_credentials WHERE email = ? ORDER BY created_at",
		normalizeEmail(email),
	)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			fmt.Printf("closing rows: %v\n", err)
		}
	}()

	var result []StoredCredential
	for rows.Next() {
		var sc StoredCredential
		var data string
		if err := rows.Scan(&sc.ID, &sc.Email, &sc.Name, &data); err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &sc.Credential); err != nil {
			return nil, fmt.Errorf("unmarshaling credential: %w", err)
		}
		result = append(result, sc)
	}

	return result, rows.Err()
}

// WebAuthnCredentials returns just the webauthn.Credential slice for the given email.
func (s *PasskeyStore) WebAuthnCredentials(email string) ([]webauthn.Credential, error) {
	stored, err := s.ListByEmail(email)
	if err != nil {
		return nil, err
	}

	creds := make([]webauthn.Credential, len(stored))
	for i, sc := range stored {
		creds[i] = sc.Credential
	}

	return creds, nil
}

// UpdateCredential rewrites a credential after a login, keeping the sign
// counter current.
func (s *PasskeyStore) UpdateCredential(cred *webauthn.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshaling credential: %w", err)
	}
	if _, err := s.db.Exec(
		"UPDATE passkey_credentials SET credential_json = ? WHERE id = ?",
		string(data), fmt.Sprintf("%x", cred.ID),
	); err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}
	return nil
}

// Delete removes a credential by ID.
func (s *PasskeyStore) Delete(id, email string) error {
	result, err := s.db.Exec(
		"DELETE FROM passkey_credentials WHERE id = ? AND email = ?",
		id, normalizeEmail(email),
	)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("credential %w", apperr.ErrNotFound)
	}

	return nil
}

package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
)

// Roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	minPasswordLength = 8
	// bcrypt only accepts passwords up to 72 bytes.
	maxPasswordBytes = 72
)

// User is a marketplace account.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	AvatarURL string    `json:"avatar_url"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// DisplayName returns the name, or the email when no name is set.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// UserUpdate holds the profile fields a user may change. Nil fields are left
// untouched.
type UserUpdate struct {
	Name      *string `json:"name"`
	Phone     *string `json:"phone"`
	AvatarURL *string `json:"avatar_url"`
}

// UserStore manages accounts in SQLite.
type UserStore struct {
	db         *sql.DB
	adminEmail string
}

// NewUserStore creates a user store. Accounts registered with adminEmail get
// the admin role.
func NewUserStore(db *sql.DB, adminEmail string) *UserStore {
	return &UserStore{db: db, adminEmail: normalizeEmail(adminEmail)}
}

const userColumns = "id, email, name, phone, avatar_url, role, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.AvatarURL, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.Invalid("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Invalid("invalid email %q", email)
	}
	return nil
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", apperr.Invalid("password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return "", apperr.Invalid("password must be at most %d bytes", maxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Register creates an account with a password.
func (s *UserStore) Register(email, password, name, phone string) (*User, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	return s.insert(email, strings.TrimSpace(name), strings.TrimSpace(phone), hash)
}

// Add creates an account without a password. Such users log in with a magic
// link or passkey.
func (s *UserStore) Add(email, name string) (*User, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	return s.insert(email, strings.TrimSpace(name), "", "")
}

func (s *UserStore) insert(email, name, phone, hash string) (*User, error) {
	role := RoleUser
	if s.adminEmail != "" && email == s.adminEmail {
		role = RoleAdmin
	}

	now := time.Now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO users (email, name, phone, password_hash, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		email, name, phone, hash, role, now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("adding user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user ID: %w", err)
	}

	return s.GetByID(id)
}

// Authenticate checks an email/password pair.
func (s *UserStore) Authenticate(email, password string) (*User, error) {
	email = normalizeEmail(email)

	var hash string
	row := s.db.QueryRow("SELECT "+userColumns+", password_hash FROM users WHERE email = ?", email)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.AvatarURL, &u.Role, &u.CreatedAt, &u.UpdatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return &u, nil
}

// SetPassword replaces a user's password.
func (s *UserStore) SetPassword(id int64, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	return s.execOne("setting password",
		"UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
		hash, time.Now().UTC(), id,
	)
}

// GetByID returns a user by ID.
func (s *UserStore) GetByID(id int64) (*User, error) {
	u, err := scanUser(s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

// GetByEmail returns a user by email, case-insensitively.
func (s *UserStore) GetByEmail(email string) (*User, error) {
	u, err := scanUser(s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE email = ?", normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

// List returns all users ordered by email.
func (s *UserStore) List() ([]*User, error) {
	rows, err := s.db.Query("SELECT " + userColumns + " FROM users ORDER BY email")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("warning: closing rows: %v\n", cerr)
		}
	}()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// Update applies a partial profile update and returns the updated user.
func (s *UserStore) Update(id int64, upd UserUpdate) (*User, error) {
	u, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		u.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Phone != nil {
		u.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = strings.TrimSpace(*upd.AvatarURL)
	}
	if len(u.Name) > 120 {
		return nil, apperr.Invalid("name must be at most 120 characters")
	}

	if err := s.execOne("updating user",
		"UPDATE users SET name = ?, phone = ?, avatar_url = ?, updated_at = ? WHERE id = ?",
		u.Name, u.Phone, u.AvatarURL, time.Now().UTC(), id,
	); err != nil {
		return nil, err
	}

	return s.GetByID(id)
}

// SetRole changes a user's role.
func (s *UserStore) SetRole(id int64, role string) error {
	if role != RoleUser && role != RoleAdmin {
		return apperr.Invalid("role must be %q or %q", RoleUser, RoleAdmin)
	}
	return s.execOne("setting role",
		"UPDATE users SET role = ?, updated_at = ? WHERE id = ?",
		role, time.Now().UTC(), id,
	)
}

// ErrLastAdmin is returned when demoting the only admin.
var ErrLastAdmin = fmt.Errorf("%w: cannot demote the last admin", apperr.ErrConflict)

// ChangeRole sets a user's role and returns the updated user. The last
// admin cannot be demoted.
func (s *UserStore) ChangeRole(id int64, role string) (*User, error) {
	target, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if target.Role == RoleAdmin && role == RoleUser {
		n, err := s.CountAdmins()
		if err != nil {
			return nil, err
		}
		if n <= 1 {
			return nil, ErrLastAdmin
		}
	}
	if err := s.SetRole(id, role); err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

// Delete removes a user and, through foreign keys, everything they own.
func (s *UserStore) Delete(id int64) error {
	return s.execOne("deleting user", "DELETE FROM users WHERE id = ?", id)
}

// IsAdmin reports whether u is an admin, either by role or because it is the
// configured admin email.
func (s *UserStore) IsAdmin(u *User) bool {
	if u == nil {
		return false
	}
	return u.Role == RoleAdmin || (s.adminEmail != "" && normalizeEmail(u.Email) == s.adminEmail)
}

// CountAdmins returns how many users hold the admin role.
func (s *UserStore) CountAdmins() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE role = ?", RoleAdmin).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting admins: %w", err)
	}
	return n, nil
}

func (s *UserStore) execOne(action, query string, args ...any) error {
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

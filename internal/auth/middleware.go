package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Authenticator resolves the caller of a request from a bearer token or a
// session cookie.
type Authenticator struct {
	users    *UserStore
	tokens   *TokenIssuer
	sessions *SessionStore
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(users *UserStore, tokens *TokenIssuer, sessions *SessionStore) *Authenticator {
	return &Authenticator{users: users, tokens: tokens, sessions: sessions}
}

// Resolve returns the user behind r. A bearer token takes precedence over
// the session cookie.
func (a *Authenticator) Resolve(r *http.Request) (*User, error) {
	if token, ok := bearerToken(r); ok {
		claims, err := a.tokens.Parse(token)
		if err != nil {
			return nil, err
		}
		id, err := claims.UserID()
		if err != nil {
			return nil, err
		}
		return a.users.GetByID(id)
	}

	id, err := a.sessions.Validate(r)
	if err != nil {
		return nil, err
	}
	return a.users.GetByID(id)
}

// Middleware attaches the resolved user to the request context. Requests
// without valid credentials continue anonymously; RequireUser and
// RequireAdmin decide what needs a caller.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.Resolve(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if a.users.IsAdmin(u) {
			u.Role = RoleAdmin
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// RequireUser rejects anonymous API requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			writeError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects anonymous requests with 401 and non-admins with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			writeError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		if !u.IsAdmin() {
			writeError(w, "admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSession redirects anonymous page requests to the login page.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}

func writeError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		slog.Error("encoding error response", "error", err)
	}
}

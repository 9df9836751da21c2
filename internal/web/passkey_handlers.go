package web

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/misiones-arrienda/arrienda/internal/auth"
)

const (
	ceremonyCookie = "arrienda_passkey"
	ceremonyTTL    = 5 * time.Minute
)

type ceremony struct {
	data    *webauthn.SessionData
	expires time.Time
}

// passkeyHandlers holds WebAuthn-related HTTP handlers.
type passkeyHandlers struct {
	wan      *webauthn.WebAuthn
	passkeys *auth.PasskeyStore
	sessions *auth.SessionStore
	users    *auth.UserStore

	// In-flight ceremonies. Registrations are keyed by user id, logins by a
	// random id carried in a short-lived cookie.
	mu     sync.Mutex
	regs   map[int64]ceremony
	logins map[string]ceremony
	now    func() time.Time
}

func newPasskeyHandlers(baseURL string, passkeys *auth.PasskeyStore, sessions *auth.SessionStore, users *auth.UserStore) (*passkeyHandlers, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	wan, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Misiones Arrienda",
		RPID:          parsed.Hostname(),
		RPOrigins:     []string{baseURL},
	})
	if err != nil {
		return nil, err
	}

	return &passkeyHandlers{
		wan:      wan,
		passkeys: passkeys,
		sessions: sessions,
		users:    users,
		regs:     make(map[int64]ceremony),
		logins:   make(map[string]ceremony),
		now:      time.Now,
	}, nil
}

// pruneLocked drops ceremonies that were never finished.
func (h *passkeyHandlers) pruneLocked(now time.Time) {
	for k, c := range h.regs {
		if now.After(c.expires) {
			delete(h.regs, k)
		}
	}
	for k, c := range h.logins {
		if now.After(c.expires) {
			delete(h.logins, k)
		}
	}
}

// beginRegistration starts adding a passkey to the signed-in account.
func (h *passkeyHandlers) beginRegistration(w http.ResponseWriter, r *http.Request, u *auth.User) {
	creds, err := h.passkeys.WebAuthnCredentials(u.Email)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	excludeList := make([]protocol.CredentialDescriptor, len(creds))
	for i, c := range creds {
		excludeList[i] = c.Descriptor()
	}

	creation, session, err := h.wan.BeginRegistration(auth.NewPasskeyUser(u, creds),
		webauthn.WithExclusions(excludeList),
	)
	if err != nil {
		slog.Error("beginning passkey registration", "error", err)
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	now := h.now()
	h.pruneLocked(now)
	h.regs[u.ID] = ceremony{data: session, expires: now.Add(ceremonyTTL)}
	h.mu.Unlock()

	apiJSON(w, creation, http.StatusOK)
}

// finishRegistration stores the new credential.
func (h *passkeyHandlers) finishRegistration(w http.ResponseWriter, r *http.Request, u *auth.User) {
	h.mu.Lock()
	c, ok := h.regs[u.ID]
	delete(h.regs, u.ID)
	h.mu.Unlock()

	if !ok || h.now().After(c.expires) {
		apiError(w, "no registration in progress", http.StatusBadRequest)
		return
	}

	creds, err := h.passkeys.WebAuthnCredentials(u.Email)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	credential, err := h.wan.FinishRegistration(auth.NewPasskeyUser(u, creds), *c.data, r)
	if err != nil {
		slog.Warn("finishing passkey registration", "user_id", u.ID, "error", err)
		apiError(w, "registration failed", http.StatusBadRequest)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "Passkey"
	}
	if err := h.passkeys.Save(u.Email, name, credential); err != nil {
		writeDomainError(w, r, err)
		return
	}

	slog.Info("passkey registered", "user_id", u.ID)
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusCreated)
}

// beginLogin starts a discoverable passkey login.
func (h *passkeyHandlers) beginLogin(w http.ResponseWriter, r *http.Request) {
	assertion, session, err := h.wan.BeginDiscoverableLogin()
	if err != nil {
		slog.Error("beginning passkey login", "error", err)
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		apiError(w, "internal error", http.StatusInternalServerError)
		return
	}
	id := hex.EncodeToString(b)

	h.mu.Lock()
	now := h.now()
	h.pruneLocked(now)
	h.logins[id] = ceremony{data: session, expires: now.Add(ceremonyTTL)}
	h.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     ceremonyCookie,
		Value:    id,
		Path:     "/passkey/",
		MaxAge:   int(ceremonyTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	apiJSON(w, assertion, http.StatusOK)
}

// finishLogin verifies the assertion and starts a session.
func (h *passkeyHandlers) finishLogin(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(ceremonyCookie)
	if err != nil {
		apiError(w, "no login in progress", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	c, ok := h.logins[cookie.Value]
	delete(h.logins, cookie.Value)
	h.mu.Unlock()

	if !ok || h.now().After(c.expires) {
		apiError(w, "no login in progress", http.StatusBadRequest)
		return
	}

	var loggedIn *auth.User
	handler := func(rawID, userHandle []byte) (webauthn.User, error) {
		id, err := auth.UserIDFromHandle(userHandle)
		if err != nil {
			return nil, err
		}
		u, err := h.users.GetByID(id)
		if err != nil {
			return nil, err
		}
		creds, err := h.passkeys.WebAuthnCredentials(u.Email)
		if err != nil {
			return nil, err
		}
		loggedIn = u
		return auth.NewPasskeyUser(u, creds), nil
	}

	_, credential, err := h.wan.FinishPasskeyLogin(handler, *c.data, r)
	if err != nil || loggedIn == nil {
		slog.Warn("finishing passkey login", "error", err)
		apiError(w, "login failed", http.StatusUnauthorized)
		return
	}

	if err := h.passkeys.UpdateCredential(credential); err != nil {
		slog.Error("updating passkey counter", "error", err)
	}

	if err := h.sessions.Create(w, loggedIn.ID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	slog.Info("login success", "user_id", loggedIn.ID, "method", "passkey")
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

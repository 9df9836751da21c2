package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/misiones-arrienda/arrienda/internal/auth"
)

type loginData struct {
	Message string
	Error   string
	User    *auth.User
}

// Shown for every magic link request so the form does not reveal which
// emails are registered.
const magicLinkSent = "Si el email está registrado, te enviamos un enlace para ingresar."

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "login.html", loginData{})
}

// handleMagicLinkRequest mails a login link to a registered email.
func (s *Server) handleMagicLinkRequest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(strings.ToLower(r.FormValue("email")))
	if email == "" {
		s.render(w, "login.html", loginData{Error: "Ingresá tu email"})
		return
	}

	if _, err := s.app.Users.GetByEmail(email); err != nil {
		if !errors.Is(err, auth.ErrUserNotFound) {
			slog.Error("looking up user for magic link", "error", err)
		}
		s.render(w, "login.html", loginData{Message: magicLinkSent})
		return
	}

	token, err := s.app.Tokens.Create(email)
	if err != nil {
		slog.Error("creating magic link token", "error", err)
		s.render(w, "login.html", loginData{Message: magicLinkSent})
		return
	}
	if _, err := s.app.MagicLinks.SendMagicLink(email, token); err != nil {
		slog.Error("sending magic link", "error", err)
	}

	s.render(w, "login.html", loginData{Message: magicLinkSent})
}

// handleVerify consumes a magic link token and starts a session.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		s.render(w, "login.html", loginData{Error: "Enlace inválido"})
		return
	}

	email, err := s.app.Tokens.Consume(token)
	if err != nil {
		s.render(w, "login.html", loginData{Error: "El enlace es inválido o venció. Pedí uno nuevo."})
		return
	}

	u, err := s.app.Users.GetByEmail(email)
	if err != nil {
		slog.Error("magic link for unknown user", "email", email, "error", err)
		s.render(w, "login.html", loginData{Error: "El enlace es inválido o venció. Pedí uno nuevo."})
		return
	}

	if err := s.app.Sessions.Create(w, u.ID); err != nil {
		slog.Error("creating session", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	slog.Info("login success", "user_id", u.ID, "method", "magic_link")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Sessions.Destroy(w, r); err != nil {
		slog.Error("destroying session", "error", err)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type tokenResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *auth.User `json:"user"`
}

// issue returns a bearer token for u and starts a browser session.
func (s *Server) issue(w http.ResponseWriter, r *http.Request, u *auth.User, code int) {
	token, expires, err := s.app.Issuer.Issue(u)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.app.Sessions.Create(w, u.ID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, tokenResponse{Token: token, ExpiresAt: expires, User: u}, code)
}

func (s *Server) apiRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Phone    string `json:"phone"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	u, err := s.app.Users.Register(req.Email, req.Password, req.Name, req.Phone)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	slog.Info("user registered", "user_id", u.ID)
	s.issue(w, r, u, http.StatusCreated)
}

func (s *Server) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	u, err := s.app.Users.Authenticate(req.Email, req.Password)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	slog.Info("login success", "user_id", u.ID, "method", "password")
	s.issue(w, r, u, http.StatusOK)
}

func (s *Server) apiLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Sessions.Destroy(w, r); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiMe(w http.ResponseWriter, r *http.Request, u *auth.User) {
	apiJSON(w, u, http.StatusOK)
}

func (s *Server) apiUpdateMe(w http.ResponseWriter, r *http.Request, u *auth.User) {
	var upd auth.UserUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeDomainError(w, r, err)
		return
	}
	updated, err := s.app.Users.Update(u.ID, upd)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, updated, http.StatusOK)
}

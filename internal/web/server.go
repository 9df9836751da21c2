// Package web provides the HTTP server: the JSON API, the public pages and
// the chat websocket.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/misiones-arrienda/arrienda/internal/app"
	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/logging"
	"github.com/misiones-arrienda/arrienda/internal/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Login attempts allowed per client per minute.
const loginPerMinute = 5

// Server is the marketplace HTTP server.
type Server struct {
	app       *app.App
	auth      *auth.Authenticator
	limiter   *auth.RateLimiter
	logins    *auth.RateLimiter
	passkeys  *passkeyHandlers
	templates *template.Template
	mux       *http.ServeMux
	handler   http.Handler
	now       func() time.Time
}

// NewServer creates a server on top of a wired application.
func NewServer(a *app.App) (*Server, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	pk, err := newPasskeyHandlers(a.Config.BaseURL, a.Passkeys, a.Sessions, a.Users)
	if err != nil {
		return nil, fmt.Errorf("configuring passkeys: %w", err)
	}

	s := &Server{
		app:       a,
		auth:      auth.NewAuthenticator(a.Users, a.Issuer, a.Sessions),
		limiter:   auth.NewRateLimiter(a.Config.RateLimit, a.Config.RateBurst),
		logins:    auth.NewRateLimiter(loginPerMinute/60.0, loginPerMinute),
		passkeys:  pk,
		templates: tmpl,
		mux:       http.NewServeMux(),
		now:       time.Now,
	}

	if err := s.routes(); err != nil {
		return nil, err
	}

	s.handler = logging.RequestLogger(
		s.auth.Middleware(
			s.limitAPI(
				metrics.Middleware(s.mux))))

	return s, nil
}

// limitAPI applies the per-client limiter to /api/ requests. Pages, assets
// and the payment webhook, which arrives from a few shared gateway IPs, are
// not limited.
func (s *Server) limitAPI(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api/payments/webhook" {
			next.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})
}

func (s *Server) routes() error {
	staticContent, err := fs.Sub(staticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static sub-fs: %w", err)
	}
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticContent))))
	if dir := s.app.UploadsDir; dir != "" {
		s.mux.Handle("GET "+app.UploadsPrefix, http.StripPrefix(app.UploadsPrefix, http.FileServer(http.Dir(dir))))
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())

	// Pages.
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /properties/{id}", s.handleDetail)
	s.mux.HandleFunc("GET /login", s.handleLoginPage)
	s.mux.Handle("POST /auth/login", s.logins.Middleware(http.HandlerFunc(s.handleMagicLinkRequest)))
	s.mux.HandleFunc("GET /auth/verify", s.handleVerify)
	s.mux.HandleFunc("POST /auth/logout", s.handleLogout)

	s.mux.Handle("POST /passkey/register/begin", s.user(s.passkeys.beginRegistration))
	s.mux.Handle("POST /passkey/register/finish", s.user(s.passkeys.finishRegistration))
	s.mux.HandleFunc("POST /passkey/login/begin", s.passkeys.beginLogin)
	s.mux.HandleFunc("POST /passkey/login/finish", s.passkeys.finishLogin)

	// Accounts.
	s.mux.Handle("POST /api/auth/register", s.logins.Middleware(http.HandlerFunc(s.apiRegister)))
	s.mux.Handle("POST /api/auth/login", s.logins.Middleware(http.HandlerFunc(s.apiLogin)))
	s.mux.HandleFunc("POST /api/auth/logout", s.apiLogout)
	s.mux.Handle("GET /api/auth/me", s.user(s.apiMe))
	s.mux.Handle("PATCH /api/auth/me", s.user(s.apiUpdateMe))

	// Listings.
	s.mux.HandleFunc("GET /api/properties", s.apiListProperties)
	s.mux.Handle("POST /api/properties", s.user(s.apiCreateProperty))
	s.mux.HandleFunc("GET /api/properties/{id}", s.apiGetProperty)
	s.mux.Handle("PATCH /api/properties/{id}", s.user(s.apiUpdateProperty))
	s.mux.Handle("DELETE /api/properties/{id}", s.user(s.apiDeleteProperty))
	s.mux.Handle("POST /api/properties/{id}/status", s.user(s.apiChangeStatus))
	s.mux.Handle("POST /api/properties/{id}/renew", s.user(s.apiRenewProperty))
	s.mux.Handle("POST /api/properties/{id}/images", s.user(s.apiAddImage))
	s.mux.Handle("DELETE /api/properties/{id}/images/{imageID}", s.user(s.apiRemoveImage))
	s.mux.Handle("POST /api/properties/{id}/favorite", s.user(s.apiAddFavorite))
	s.mux.Handle("DELETE /api/properties/{id}/favorite", s.user(s.apiRemoveFavorite))
	s.mux.Handle("GET /api/favorites", s.user(s.apiFavorites))
	s.mux.Handle("GET /api/properties/{id}/inquiries", s.user(s.apiListInquiries))
	s.mux.Handle("POST /api/properties/{id}/inquiries", s.user(s.apiInquire))

	// Community.
	s.mux.Handle("GET /api/community/profile", s.user(s.apiGetOwnProfile))
	s.mux.Handle("PUT /api/community/profile", s.user(s.apiSaveProfile))
	s.mux.Handle("DELETE /api/community/profile", s.user(s.apiDeleteProfile))
	s.mux.Handle("GET /api/community/profiles", s.user(s.apiBrowseProfiles))
	s.mux.Handle("GET /api/community/profiles/{id}", s.user(s.apiGetProfile))
	s.mux.Handle("POST /api/community/likes", s.user(s.apiLike))
	s.mux.Handle("DELETE /api/community/likes/{userID}", s.user(s.apiUnlike))
	s.mux.Handle("GET /api/community/matches", s.user(s.apiMatches))

	// Chat.
	s.mux.Handle("GET /api/conversations", s.user(s.apiListConversations))
	s.mux.Handle("POST /api/conversations", s.user(s.apiOpenConversation))
	s.mux.Handle("GET /api/conversations/unread", s.user(s.apiUnreadMessages))
	s.mux.Handle("GET /api/conversations/{id}/messages", s.user(s.apiListMessages))
	s.mux.Handle("POST /api/conversations/{id}/messages", s.user(s.apiSendMessage))
	s.mux.Handle("POST /api/conversations/{id}/read", s.user(s.apiMarkConversationRead))
	s.mux.Handle("GET /api/conversations/{id}/ws", s.user(s.handleChatSocket))

	// Notifications.
	s.mux.Handle("GET /api/notifications", s.user(s.apiListNotifications))
	s.mux.Handle("GET /api/notifications/count", s.user(s.apiNotificationCount))
	s.mux.Handle("POST /api/notifications/{id}/read", s.user(s.apiMarkNotificationRead))
	s.mux.Handle("POST /api/notifications/read-all", s.user(s.apiMarkAllNotificationsRead))
	s.mux.Handle("DELETE /api/notifications/{id}", s.user(s.apiDeleteNotification))

	// Payments.
	s.mux.HandleFunc("GET /api/payments/plans", s.apiPlans)
	s.mux.Handle("POST /api/payments/checkout", s.user(s.apiCheckout))
	s.mux.Handle("GET /api/payments", s.user(s.apiListPayments))
	s.mux.HandleFunc("POST /api/payments/webhook", s.apiPaymentWebhook)

	// Administration.
	s.mux.Handle("GET /api/admin/users", s.admin(s.apiListUsers))
	s.mux.Handle("POST /api/admin/users/{id}/role", s.admin(s.apiSetRole))
	s.mux.Handle("GET /api/admin/diagnose", s.admin(s.apiDiagnose))
	s.mux.HandleFunc("POST /api/cron/cleanup", s.apiCronCleanup)

	return nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "base_url", s.app.Config.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("server shutting down")
	// Websocket writers exit when their hub channels close.
	s.app.Hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// user wraps an API handler that needs a signed-in caller.
func (s *Server) user(h func(http.ResponseWriter, *http.Request, *auth.User)) http.Handler {
	return auth.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := auth.UserFromContext(r.Context())
		h(w, r, u)
	}))
}

// admin wraps an API handler restricted to administrators.
func (s *Server) admin(h func(http.ResponseWriter, *http.Request, *auth.User)) http.Handler {
	return auth.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := auth.UserFromContext(r.Context())
		h(w, r, u)
	}))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DB.PingContext(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		apiJSON(w, map[string]string{"status": "unavailable"}, http.StatusServiceUnavailable)
		return
	}
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

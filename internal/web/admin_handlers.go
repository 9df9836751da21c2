package web

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/diagnose"
)

func (s *Server) apiListUsers(w http.ResponseWriter, r *http.Request, _ *auth.User) {
	users, err := s.app.Users.List()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if users == nil {
		users = []*auth.User{}
	}
	apiJSON(w, users, http.StatusOK)
}

// apiSetRole changes a user's role. The last admin cannot be demoted.
func (s *Server) apiSetRole(w http.ResponseWriter, r *http.Request, caller *auth.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	updated, err := s.app.Users.ChangeRole(id, req.Role)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	slog.Info("role changed", "user_id", id, "role", updated.Role, "by", caller.ID)
	apiJSON(w, updated, http.StatusOK)
}

func (s *Server) apiDiagnose(w http.ResponseWriter, r *http.Request, _ *auth.User) {
	report, err := diagnose.Run(r.Context(), s.app.DB, diagnose.Options{
		AdminEmail: s.app.Config.AdminEmail,
		Now:        s.now(),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, report, http.StatusOK)
}

// apiCronCleanup runs the cleanup job for an external scheduler. It needs
// the cron secret as a bearer token and is disabled when no secret is set.
func (s *Server) apiCronCleanup(w http.ResponseWriter, r *http.Request) {
	secret := s.app.Config.CronSecret
	if secret == "" {
		apiError(w, "cron endpoint disabled", http.StatusServiceUnavailable)
		return
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) != 1 {
		apiError(w, "invalid cron secret", http.StatusUnauthorized)
		return
	}

	report, err := s.app.Cleanup.Run(r.Context(), s.now())
	if err != nil {
		slog.Error("cleanup run failed", "error", err)
		apiJSON(w, map[string]any{"error": "cleanup failed", "report": report}, http.StatusInternalServerError)
		return
	}
	apiJSON(w, report, http.StatusOK)
}

package web

import (
	"net/http"
	"strconv"

	"github.com/misiones-arrienda/arrienda/internal/auth"
)

func (s *Server) apiListNotifications(w http.ResponseWriter, r *http.Request, u *auth.User) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	limit, _, err := queryLimit(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	list, err := s.app.Notifications.ListForUser(r.Context(), u.ID, unread, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, list, http.StatusOK)
}

func (s *Server) apiNotificationCount(w http.ResponseWriter, r *http.Request, u *auth.User) {
	n, err := s.app.Notifications.UnreadCount(r.Context(), u.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, map[string]int{"unread": n}, http.StatusOK)
}

func (s *Server) apiMarkNotificationRead(w http.ResponseWriter, r *http.Request, u *auth.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.app.Notifications.MarkRead(r.Context(), id, u.ID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request, u *auth.User) {
	n, err := s.app.Notifications.MarkAllRead(r.Context(), u.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, map[string]int64{"marked": n}, http.StatusOK)
}

func (s *Server) apiDeleteNotification(w http.ResponseWriter, r *http.Request, u *auth.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.app.Notifications.Delete(r.Context(), id, u.ID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package web

import (
	"net/http"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/chat"
)

func (s *Server) apiListConversations(w http.ResponseWriter, r *http.Request, u *auth.User) {
	list, err := s.app.Chat.List(r.Context(), u)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []chat.Conversation{}
	}
	apiJSON(w, list, http.StatusOK)
}

func (s *Server) apiOpenConversation(w http.ResponseWriter, r *http.Request, u *auth.User) {
	var req struct {
		UserID     int64  `json:"user_id"`
		PropertyID *int64 `json:"property_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.UserID <= 0 {
		writeDomainError(w, r, apperr.Invalid("user_id is required"))
		return
	}
	c, err := s.app.Chat.Open(r.Context(), u, req.UserID, req.PropertyID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, c, http.StatusOK)
}

func (s *Server) apiUnreadMessages(w http.ResponseWriter, r *http.Request, u *auth.User) {
	n, err := s.app.Chat.Unread(r.Context(), u)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, map[string]int{"unread": n}, http.StatusOK)
}

func (s *Server) apiListMessages(w http.ResponseWriter, r *http.Request, u *auth.User) {
	after, err := queryInt(r, "after")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	limit, _, err := queryLimit(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var afterID int64
	if after != nil {
		afterID = *after
	}

	msgs, err := s.app.Chat.Messages(r.Context(), u, r.PathValue("id"), afterID, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	apiJSON(w, msgs, http.StatusOK)
}

func (s *Server) apiSendMessage(w http.ResponseWriter, r *http.Request, u *auth.User) {
	var req struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	msg, err := s.app.Chat.Send(r.Context(), u, r.PathValue("id"), req.Body)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, msg, http.StatusCreated)
}

func (s *Server) apiMarkConversationRead(w http.ResponseWriter, r *http.Request, u *auth.User) {
	n, err := s.app.Chat.MarkRead(r.Context(), u, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, map[string]int64{"marked": n}, http.StatusOK)
}

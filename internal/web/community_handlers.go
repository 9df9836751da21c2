package web

import (
	"net/http"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/community"
)

func (s *Server) apiGetOwnProfile(w http.ResponseWriter, r *http.Request, u *auth.User) {
	p, err := s.app.Community.Profile(r.Context(), u.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, p, http.StatusOK)
}

func (s *Server) apiSaveProfile(w http.ResponseWriter, r *http.Request, u *auth.User) {
	raw, err := readBody(w, r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	in, err := community.DecodeProfile(raw)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := s.app.Community.SaveProfile(r.Context(), u, in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, p, http.StatusOK)
}

func (s *Server) apiDeleteProfile(w http.ResponseWriter, r *http.Request, u *auth.User) {
	if err := s.app.Community.DeleteProfile(r.Context(), u); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiBrowseProfiles(w http.ResponseWriter, r *http.Request, u *auth.User) {
	q := r.URL.Query()
	opts := community.ListOptions{
		Role: community.Role(q.Get("role")),
		City: q.Get("city"),
	}
	if opts.Role != "" && opts.Role != community.RoleSeeking && opts.Role != community.RoleOffering {
		writeDomainError(w, r, apperr.Invalid("role must be %q or %q", community.RoleSeeking, community.RoleOffering))
		return
	}
	budget, err := queryInt(r, "max_budget")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if budget != nil {
		opts.MaxBudget = *budget
	}
	if opts.Limit, opts.Offset, err = queryLimit(r); err != nil {
		writeDomainError(w, r, err)
		return
	}

	profiles, err := s.app.Community.Browse(r.Context(), u, opts)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []community.Profile{}
	}
	apiJSON(w, profiles, http.StatusOK)
}

func (s *Server) apiGetProfile(w http.ResponseWriter, r *http.Request, u *auth.User) {
	p, err := s.app.Community.ProfileByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, p, http.StatusOK)
}

func (s *Server) apiLike(w http.ResponseWriter, r *http.Request, u *auth.User) {
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.UserID <= 0 {
		writeDomainError(w, r, apperr.Invalid("user_id is required"))
		return
	}
	res, err := s.app.Community.Like(r.Context(), u, req.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, res, http.StatusOK)
}

func (s *Server) apiUnlike(w http.ResponseWriter, r *http.Request, u *auth.User) {
	to, err := pathID(r, "userID")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.app.Community.Unlike(r.Context(), u, to); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiMatches(w http.ResponseWriter, r *http.Request, u *auth.User) {
	matches, err := s.app.Community.Matches(r.Context(), u)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, matches, http.StatusOK)
}

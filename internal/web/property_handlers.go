package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/property"
	"github.com/misiones-arrienda/arrienda/internal/storage"
)

// listOptionsFromQuery reads search filters from the query string.
// owner=me and status are honored only for a signed-in caller.
func listOptionsFromQuery(r *http.Request, caller *auth.User) (property.ListOptions, error) {
	q := r.URL.Query()
	opts := property.ListOptions{
		Query:     q.Get("q"),
		City:      q.Get("city"),
		Operation: property.Operation(q.Get("operation")),
		Type:      property.Type(q.Get("type")),
		Sort:      q.Get("sort"),
	}

	var err error
	if opts.MinPrice, err = queryInt(r, "min_price"); err != nil {
		return opts, err
	}
	if opts.MaxPrice, err = queryInt(r, "max_price"); err != nil {
		return opts, err
	}
	if opts.MinBedrooms, err = queryInt(r, "min_bedrooms"); err != nil {
		return opts, err
	}
	if opts.Limit, opts.Offset, err = queryLimit(r); err != nil {
		return opts, err
	}
	if v := q.Get("featured"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, apperr.Invalid("featured must be true or false")
		}
		opts.Featured = &b
	}

	if caller != nil && q.Get("owner") == "me" {
		opts.OwnerID = caller.ID
		opts.Status = property.StatusAny
		if st := q.Get("status"); st != "" {
			opts.Status = property.Status(st)
		}
	}

	return opts, nil
}

func (s *Server) apiListProperties(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())
	opts, err := listOptionsFromQuery(r, u)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	page, err := s.app.Properties.List(opts)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if page.Items == nil {
		page.Items = []*property.Property{}
	}
	apiJSON(w, page, http.StatusOK)
}

func (s *Server) apiCreateProperty(w http.ResponseWriter, r *http.Request, u *auth.User) {
	raw, err := readBody(w, r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	in, err := property.DecodeCreate(raw)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := s.app.Properties.Create(u, in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, p, http.StatusCreated)
}

func (s *Server) apiGetProperty(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := s.app.Properties.Get(id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, p, http.StatusOK)
}

func (s *Server) apiUpdateProperty(w http.ResponseWriter, r *http.Request, u *auth.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	raw, err := readBody(w, r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	in, err := property.DecodeUpdate(raw)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := s.app.Properties.Update(u, id, in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, p, http.StatusOK)
}

func (s *Server) apiDeleteProperty(w http.ResponseWriter, r *http.Request, u *auth.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.app.Properties.Delete(r.Context(), u, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiChangeStatus(w http.ResponseWriter, r *http.Request, u *auth.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := s.app.Properties.ChangeStatus(u, id, req.Status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, p, http.StatusOK)
}

func (s *Server) apiRenewProperty(w http.ResponseWriter, r *http.Request, u *auth.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := s.app.Properties.Renew(u, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, p, http.StatusOK)
}

// apiAddImage accepts a multipart upload in the "image" field.
func (s *Server) apiAddImage(w http.ResponseWriter, r *http.Request, u *auth.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxObjectSize+(1<<20))
	file, header, err := r.FormFile("image")
	if err != nil {
		writeDomainError(w, r, apperr.Invalid("multipart field \"image\" is required"))
		return
	}
	defer func() { _ = file.Close() }()

	contentType := header.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	img, err := s.app.Properties.AddImage(r.Context(), u, id, header.Filename, contentType, file)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, img, http.StatusCreated)
}

func (s *Server) apiRemoveImage(w http.ResponseWriter, r *http.Request, u *auth.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	imageID, err := pathID(r, "imageID")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.app.Properties.RemoveImage(r.Context(), u, id, imageID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiAddFavorite(w http.ResponseWriter, r *http.Request, u *auth.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.app.Properties.AddFavorite(u, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, map[string]any{"property_id": id, "favorite": true}, http.StatusOK)
}

func (s *Server) apiRemoveFavorite(w http.ResponseWriter, r *http.Request, u *auth.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := s.app.Properties.RemoveFavorite(u, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, map[string]any{"property_id": id, "favorite": false}, http.StatusOK)
}

func (s *Server) apiFavorites(w http.ResponseWriter, r *http.Request, u *auth.User) {
	props, err := s.app.Properties.Favorites(u)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if props == nil {
		props = []*property.Property{}
	}
	apiJSON(w, props, http.StatusOK)
}

func (s *Server) apiListInquiries(w http.ResponseWriter, r *http.Request, u *auth.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	list, err := s.app.Properties.Inquiries(u, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, list, http.StatusOK)
}

func (s *Server) apiInquire(w http.ResponseWriter, r *http.Request, u *auth.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	q, err := s.app.Properties.Inquire(r.Context(), u, id, req.Text)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, q, http.StatusCreated)
}

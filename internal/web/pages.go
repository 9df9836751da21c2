package web

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/email"
	"github.com/misiones-arrienda/arrienda/internal/property"
)

var templateFuncs = template.FuncMap{
	"formatPrice": tmplFormatPrice,
	"operation":   tmplOperation,
	"propType":    tmplPropertyType,
	"deref":       tmplDeref,
	"add":         func(a, b int) int { return a + b },
	"sub":         func(a, b int) int { return a - b },
}

type indexData struct {
	User    *auth.User
	Page    *property.Page
	Query   string
	City    string
	Op      string
	Type    string
	HasNext bool
	HasPrev bool
}

type detailData struct {
	User     *auth.User
	Property *property.Property
	IsOwner  bool
	Payment  string
}

// handleIndex renders the listing search page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptionsFromQuery(r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page, err := s.app.Properties.List(opts)
	if err != nil {
		slog.Error("loading listings", "error", err)
		http.Error(w, "Error loading listings", http.StatusInternalServerError)
		return
	}

	u, _ := auth.UserFromContext(r.Context())
	s.render(w, "index.html", indexData{
		User:    u,
		Page:    page,
		Query:   opts.Query,
		City:    opts.City,
		Op:      string(opts.Operation),
		Type:    string(opts.Type),
		HasNext: page.Offset+len(page.Items) < page.Total,
		HasPrev: page.Offset > 0,
	})
}

// handleDetail renders one listing.
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	p, err := s.app.Properties.Get(id)
	if errors.Is(err, apperr.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("loading listing", "id", id, "error", err)
		http.Error(w, "Error loading listing", http.StatusInternalServerError)
		return
	}

	u, _ := auth.UserFromContext(r.Context())
	s.render(w, "detail.html", detailData{
		User:     u,
		Property: p,
		IsOwner:  u != nil && u.ID == p.OwnerID,
		Payment:  r.URL.Query().Get("payment"),
	})
}

// render executes a full page template.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("rendering template", "template", name, "error", err)
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
	}
}

// Template helper functions

func tmplFormatPrice(amount int64, currency string) string {
	if amount == 0 {
		return "Consultar"
	}
	return email.FormatPrice(amount, currency)
}

func tmplOperation(op property.Operation) string {
	switch op {
	case property.OperationRent:
		return "Alquiler"
	case property.OperationSale:
		return "Venta"
	}
	return string(op)
}

func tmplPropertyType(t property.Type) string {
	switch t {
	case property.TypeHouse:
		return "Casa"
	case property.TypeApartment:
		return "Departamento"
	case property.TypeRoom:
		return "Habitación"
	case property.TypeLand:
		return "Terreno"
	case property.TypeCommercial:
		return "Local"
	case property.TypeOffice:
		return "Oficina"
	}
	return string(t)
}

func tmplDeref(v any) string {
	switch n := v.(type) {
	case *int64:
		if n != nil {
			return strconv.FormatInt(*n, 10)
		}
	case *float64:
		if n != nil {
			return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", *n), "0"), ".")
		}
	}
	return "—"
}

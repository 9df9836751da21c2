package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
)

// Largest JSON body the API reads.
const maxJSONBody = 1 << 20

// apiError writes a JSON error response.
func apiError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := map[string]string{"error": msg}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("encoding error response", "error", err)
	}
}

// apiJSON writes a JSON response with the given status code.
func apiJSON(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// writeDomainError maps a service error to its HTTP status. Internal
// errors are logged and hidden from the client.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.Status(err)
	if code >= http.StatusInternalServerError && !errors.Is(err, apperr.ErrUnavailable) {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		apiError(w, "internal error", code)
		return
	}
	apiError(w, err.Error(), code)
}

// readBody reads a bounded request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Invalid("request body too large")
		}
		return nil, apperr.Invalid("reading request body: %v", err)
	}
	return raw, nil
}

// decodeJSON decodes a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return apperr.Invalid("invalid JSON body")
	}
	return nil
}

// pathID parses an integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("invalid %s", name)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (*int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apperr.Invalid("%s must be an integer", name)
	}
	return &n, nil
}

// queryLimit reads limit and offset.
func queryLimit(r *http.Request) (limit, offset int, err error) {
	l, err := queryInt(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	o, err := queryInt(r, "offset")
	if err != nil {
		return 0, 0, err
	}
	if l != nil {
		limit = int(*l)
	}
	if o != nil {
		offset = int(*o)
	}
	return limit, offset, nil
}

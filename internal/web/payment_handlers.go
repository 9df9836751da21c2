package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/misiones-arrienda/arrienda/internal/apperr"
	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/payment"
)

func (s *Server) apiPlans(w http.ResponseWriter, r *http.Request) {
	apiJSON(w, map[string]any{
		"enabled": s.app.Payments.Enabled(),
		"plans":   payment.Plans(),
	}, http.StatusOK)
}

func (s *Server) apiCheckout(w http.ResponseWriter, r *http.Request, u *auth.User) {
	var req struct {
		PropertyID int64  `json:"property_id"`
		Plan       string `json:"plan"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.PropertyID <= 0 {
		writeDomainError(w, r, apperr.Invalid("property_id is required"))
		return
	}
	res, err := s.app.Payments.Checkout(r.Context(), u, req.PropertyID, req.Plan)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, res, http.StatusCreated)
}

func (s *Server) apiListPayments(w http.ResponseWriter, r *http.Request, u *auth.User) {
	list, err := s.app.Payments.List(r.Context(), u)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, list, http.StatusOK)
}

// webhookTarget extracts the notification topic and resource id. The
// provider sends them in the query string and, for newer notifications,
// in a JSON body as well.
func webhookTarget(r *http.Request, body []byte) (topic, id string) {
	q := r.URL.Query()
	topic = q.Get("type")
	if topic == "" {
		topic = q.Get("topic")
	}
	id = q.Get("data.id")
	if id == "" {
		id = q.Get("id")
	}
	if topic != "" && id != "" {
		return topic, id
	}

	var payload struct {
		Type string `json:"type"`
		Data struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		if topic == "" {
			topic = payload.Type
		}
		if id == "" {
			id = strings.Trim(string(payload.Data.ID), `"`)
		}
	}
	return topic, id
}

// apiPaymentWebhook receives provider notifications. It is public; when a
// webhook secret is configured the signature must verify. A non-2xx answer
// makes the provider retry.
func (s *Server) apiPaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	topic, id := webhookTarget(r, body)
	if topic == "" || id == "" {
		writeDomainError(w, r, apperr.Invalid("notification type and id are required"))
		return
	}

	if secret := s.app.Config.MercadoPago.WebhookSecret; secret != "" {
		if err := payment.VerifySignature(secret, r.Header.Get("x-signature"), r.Header.Get("x-request-id"), id); err != nil {
			slog.Warn("rejected payment notification", "topic", topic, "id", id, "error", err)
			writeDomainError(w, r, err)
			return
		}
	}

	if err := s.app.Payments.HandleNotification(r.Context(), topic, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

package web

import (
	"net/http"
	"testing"

	"github.com/misiones-arrienda/arrienda/internal/notification"
)

func TestNotificationEndpoints(t *testing.T) {
	srv, a := testServer(t)
	owner, ownerToken := signIn(t, a, "owner@example.com", "Owner")
	_, token := signIn(t, a, "tenant@example.com", "Tenant")
	p := createListing(t, a, owner, "Casa", "Posadas", 100)
	inquiries := "/api/properties/" + jsonInt(p.ID) + "/inquiries"

	for _, text := range []string{"Hola", "¿Acepta mascotas?", "¿Expensas?"} {
		expectStatus(t, apiRequest(t, srv, "POST", inquiries, token, map[string]string{"text": text}), http.StatusCreated)
	}

	w := apiRequest(t, srv, "GET", "/api/notifications", ownerToken, nil)
	expectStatus(t, w, http.StatusOK)
	list := decode[[]notification.Notification](t, w)
	if len(list) != 3 {
		t.Fatalf("notifications = %d, want 3", len(list))
	}

	// Another user cannot touch the owner's notifications.
	expectStatus(t, apiRequest(t, srv, "POST", "/api/notifications/"+jsonInt(list[0].ID)+"/read", token, nil), http.StatusNotFound)

	expectStatus(t, apiRequest(t, srv, "POST", "/api/notifications/"+jsonInt(list[0].ID)+"/read", ownerToken, nil), http.StatusNoContent)
	w = apiRequest(t, srv, "GET", "/api/notifications?unread=true", ownerToken, nil)
	if got := decode[[]notification.Notification](t, w); len(got) != 2 {
		t.Errorf("unread = %d, want 2", len(got))
	}

	expectStatus(t, apiRequest(t, srv, "DELETE", "/api/notifications/"+jsonInt(list[1].ID), ownerToken, nil), http.StatusNoContent)

	w = apiRequest(t, srv, "POST", "/api/notifications/read-all", ownerToken, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string]int64](t, w)["marked"]; got != 1 {
		t.Errorf("marked = %d, want 1", got)
	}

	w = apiRequest(t, srv, "GET", "/api/notifications/count", ownerToken, nil)
	if got := decode[map[string]int](t, w)["unread"]; got != 0 {
		t.Errorf("unread count = %d, want 0", got)
	}
	w = apiRequest(t, srv, "GET", "/api/notifications", ownerToken, nil)
	if got := decode[[]notification.Notification](t, w); len(got) != 2 {
		t.Errorf("remaining = %d, want 2", len(got))
	}
}

package auth

import (
	"testing"

	"github.com/misiones-arrienda/arrienda/internal/email"
)

func TestSendMagicLinkDevMode(t *testing.T) {
	m := NewMailer(email.NewMailer(email.SMTPConfig{}, true), "http://localhost:8080")

	link, err := m.SendMagicLink("ana@example.com", "abc123")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if link != "http://localhost:8080/auth/verify?token=abc123" {
		t.Errorf("link = %q", link)
	}
}

func TestSendMagicLinkNotConfigured(t *testing.T) {
	m := NewMailer(email.NewMailer(email.SMTPConfig{}, false), "http://localhost:8080")

	if _, err := m.SendMagicLink("ana@example.com", "abc123"); err == nil {
		t.Error("expected error without SMTP settings")
	}
}

package email

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestFormatInquiry(t *testing.T) {
	subject, body := FormatInquiry(Inquiry{
		ListingTitle: "Departamento en Posadas",
		ListingURL:   "http://localhost:8080/properties/7",
		SenderName:   "Lucía",
		SenderEmail:  "lucia@example.com",
		SenderPhone:  "+54 376 400-0000",
		Text:         "¿Sigue disponible?\nPuedo visitarlo el sábado.",
	})

	if subject != "Nueva consulta: Departamento en Posadas" {
		t.Errorf("subject = %q", subject)
	}

	for _, want := range []string{
		"Lucía consultó por tu publicación \"Departamento en Posadas\"",
		"   > ¿Sigue disponible?",
		"   > Puedo visitarlo el sábado.",
		"Contacto: lucia@example.com | +54 376 400-0000",
		"Publicación: http://localhost:8080/properties/7",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q\n%s", want, body)
		}
	}
}

func TestFormatInquiryFallsBackToEmail(t *testing.T) {
	_, body := FormatInquiry(Inquiry{
		ListingTitle: "Casa",
		SenderEmail:  "anon@example.com",
		Text:         "Hola",
	})

	if !strings.Contains(body, "anon@example.com consultó") {
		t.Error("expected sender email when name is empty")
	}
	if strings.Contains(body, "Publicación:") {
		t.Error("expected no listing link when URL is empty")
	}
	if strings.Contains(body, " | ") {
		t.Error("expected no phone separator when phone is empty")
	}
}

func TestFormatMagicLink(t *testing.T) {
	_, body := FormatMagicLink("http://localhost:8080/auth/verify?token=abc")
	if !strings.Contains(body, "http://localhost:8080/auth/verify?token=abc") {
		t.Error("expected link in body")
	}
	if !strings.Contains(body, "15 minutos") {
		t.Error("expected expiry notice")
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		amount   int64
		currency string
		want     string
	}{
		{0, "ARS", "ARS 0"},
		{999, "ARS", "ARS 999"},
		{1000, "ARS", "ARS 1.000"},
		{250000, "ARS", "ARS 250.000"},
		{1234567, "USD", "USD 1.234.567"},
		{-4500, "ARS", "ARS -4.500"},
	}

	for _, tt := range tests {
		if got := FormatPrice(tt.amount, tt.currency); got != tt.want {
			t.Errorf("FormatPrice(%d, %s) = %q, want %q", tt.amount, tt.currency, got, tt.want)
		}
	}
}

func TestSMTPConfigIsConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  SMTPConfig
		want bool
	}{
		{"empty", SMTPConfig{}, false},
		{"host only", SMTPConfig{Host: "smtp.example.com"}, false},
		{"from only", SMTPConfig{From: "a@b.com"}, false},
		{"host and from", SMTPConfig{Host: "smtp.example.com", From: "a@b.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.IsConfigured(); got != tt.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSendNotConfigured(t *testing.T) {
	err := Send(SMTPConfig{}, []string{"a@b.com"}, "subj", "body")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestMailerDevModePrints(t *testing.T) {
	var out bytes.Buffer
	m := NewMailer(SMTPConfig{}, true)
	m.out = &out
	m.send = func(SMTPConfig, []string, string, string) error {
		t.Fatal("send should not be called in dev mode")
		return nil
	}

	if !m.Enabled() {
		t.Error("dev mode mailer should be enabled")
	}
	if err := m.Send("owner@example.com", "Hola", "Cuerpo"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(out.String(), "[DEV] Email to owner@example.com") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestMailerDelegatesToSMTP(t *testing.T) {
	var gotTo []string
	m := NewMailer(SMTPConfig{Host: "smtp.example.com", From: "no-reply@example.com"}, false)
	m.send = func(_ SMTPConfig, to []string, subject, _ string) error {
		gotTo = to
		return nil
	}

	if err := m.Send("owner@example.com", "Hola", "Cuerpo"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(gotTo) != 1 || gotTo[0] != "owner@example.com" {
		t.Errorf("recipients = %v", gotTo)
	}
}

func TestMailerDisabled(t *testing.T) {
	m := NewMailer(SMTPConfig{}, false)
	if m.Enabled() {
		t.Error("expected mailer without SMTP settings to be disabled")
	}
	if err := m.Send("x@example.com", "s", "b"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

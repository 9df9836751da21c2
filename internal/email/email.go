// Package email formats marketplace emails and sends them over SMTP.
package email

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/smtp"
	"os"
	"strings"
)

// ErrNotConfigured is returned when no SMTP host or sender is set.
var ErrNotConfigured = errors.New("SMTP not configured")

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host string
	Port string
	User string
	Pass string
	From string
}

// IsConfigured returns true if SMTP settings are present.
func (c SMTPConfig) IsConfigured() bool {
	return c.Host != "" && c.From != ""
}

// Mailer delivers plain-text messages. In dev mode messages are written to
// Out instead of being sent.
type Mailer struct {
	cfg     SMTPConfig
	devMode bool
	out     io.Writer
	send    func(cfg SMTPConfig, to []string, subject, body string) error
}

// NewMailer creates a mailer.
func NewMailer(cfg SMTPConfig, devMode bool) *Mailer {
	return &Mailer{cfg: cfg, devMode: devMode, out: os.Stdout, send: Send}
}

// Enabled reports whether Send will deliver or print anything.
func (m *Mailer) Enabled() bool {
	return m.devMode || m.cfg.IsConfigured()
}

// Send delivers one message to a single recipient.
func (m *Mailer) Send(to, subject, body string) error {
	if m.devMode {
		_, err := fmt.Fprintf(m.out, "[DEV] Email to %s\nSubject: %s\n\n%s\n", to, subject, body)
		return err
	}
	return m.send(m.cfg, []string{to}, subject, body)
}

// Inquiry is the data for an inquiry notification sent to a listing owner.
type Inquiry struct {
	ListingTitle string
	ListingURL   string
	SenderName   string
	SenderEmail  string
	SenderPhone  string
	Text         string
}

// FormatInquiry builds the subject and body of an inquiry email.
func FormatInquiry(in Inquiry) (string, string) {
	var buf bytes.Buffer

	name := in.SenderName
	if name == "" {
		name = in.SenderEmail
	}

	fmt.Fprintf(&buf, "Hola,\n\n%s consultó por tu publicación \"%s\":\n\n", name, in.ListingTitle)
	for _, line := range strings.Split(strings.TrimSpace(in.Text), "\n") {
		fmt.Fprintf(&buf, "   > %s\n", line)
	}
	fmt.Fprintln(&buf)

	fmt.Fprintf(&buf, "Contacto: %s", in.SenderEmail)
	if in.SenderPhone != "" {
		fmt.Fprintf(&buf, " | %s", in.SenderPhone)
	}
	fmt.Fprintln(&buf)

	if in.ListingURL != "" {
		fmt.Fprintf(&buf, "Publicación: %s\n", in.ListingURL)
	}

	fmt.Fprintf(&buf, "\nMisiones Arrienda\n")

	return fmt.Sprintf("Nueva consulta: %s", in.ListingTitle), buf.String()
}

// FormatMagicLink builds the subject and body of a login link email.
func FormatMagicLink(link string) (string, string) {
	body := fmt.Sprintf(
		"Hacé clic en el siguiente enlace para ingresar a Misiones Arrienda:\n\n%s\n\nEl enlace vence en 15 minutos y sólo puede usarse una vez.",
		link,
	)
	return "Misiones Arrienda: enlace de ingreso", body
}

// FormatPrice renders an amount with Argentine thousands separators,
// e.g. "ARS 250.000".
func FormatPrice(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s %s%s", currency, sign, formatWithDots(amount))
}

// Send sends an email via SMTP.
// Supports both port 465 (implicit TLS) and port 587 (STARTTLS).
func Send(cfg SMTPConfig, to []string, subject, body string) error {
	if !cfg.IsConfigured() {
		return ErrNotConfigured
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		cfg.From,
		strings.Join(to, ", "),
		subject,
		body,
	)

	addr := cfg.Host + ":" + cfg.Port

	if cfg.Port == "465" {
		return sendImplicitTLS(cfg, addr, to, msg)
	}
	return sendSTARTTLS(cfg, addr, to, msg)
}

// sendImplicitTLS connects over TLS directly (port 465/SMTPS).
func sendImplicitTLS(cfg SMTPConfig, addr string, to []string, msg string) (err error) {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: cfg.Host})
	if err != nil {
		return fmt.Errorf("TLS dial: %w", err)
	}

	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer func() {
		if quitErr := c.Quit(); quitErr != nil && err == nil {
			err = fmt.Errorf("quit: %w", quitErr)
		}
	}()

	if cfg.User != "" {
		if err := c.Auth(smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Mail(cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return nil
}

// sendSTARTTLS connects plain then upgrades to TLS (port 587).
func sendSTARTTLS(cfg SMTPConfig, addr string, to []string, msg string) error {
	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, cfg.From, to, []byte(msg)); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

func formatWithDots(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ".")
}

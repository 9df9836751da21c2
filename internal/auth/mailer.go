package auth

import (
	"fmt"

	"github.com/misiones-arrienda/arrienda/internal/email"
)

// Mailer sends magic link emails.
type Mailer struct {
	mail    *email.Mailer
	baseURL string
}

// NewMailer creates a magic link mailer on top of m.
func NewMailer(m *email.Mailer, baseURL string) *Mailer {
	return &Mailer{mail: m, baseURL: baseURL}
}

// SendMagicLink mails the login link (printed instead in dev mode) and
// returns it.
func (m *Mailer) SendMagicLink(to, token string) (string, error) {
	link := fmt.Sprintf("%s/auth/verify?token=%s", m.baseURL, token)

	subject, body := email.FormatMagicLink(link)
	if err := m.mail.Send(to, subject, body); err != nil {
		return "", fmt.Errorf("sending magic link: %w", err)
	}

	return link, nil
}

package mailer

import (
	"fmt"

	"github.com/keighl/postmark"
)

// Service sends transactional email through Postmark. It backs the
// best-effort external notification channel; callers are expected to swallow
// its errors.
type Service struct {
	client *postmark.Client
	from   string
}

// NewService creates a mail service from a Postmark server token and a sender
// address.
func NewService(serverToken, from string) *Service {
	return &Service{
		client: postmark.NewClient(serverToken, ""),
		from:   from,
	}
}

// Send delivers one plain-text email.
func (s *Service) Send(to, subject, body string) error {
	_, err := s.client.SendEmail(postmark.Email{
		From:     s.from,
		To:       to,
		Subject:  subject,
		TextBody: body,
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

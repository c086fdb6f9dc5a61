package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"
)

var (
	ErrMailerNotConfigured     = errors.New("email provider is not configured")
	ErrAdminEmailNotConfigured = errors.New("admin email is not configured")
	ErrNoRecipient             = errors.New("order has no customer email")
)

type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Mailer sends one HTML email and returns the provider message id.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type resendMailer struct {
	client *resend.Client
}

// NewResendMailer без ключа возвращает заглушку, которая всегда отвечает
// ErrMailerNotConfigured: заказ при этом не падает, падает только письмо.
func NewResendMailer(apiKey string) Mailer {
	if apiKey == "" {
		return disabledMailer{}
	}
	return &resendMailer{client: resend.NewClient(apiKey)}
}

func (m *resendMailer) Send(ctx context.Context, msg Message) (string, error) {
	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("notify: resend send failed: %w", err)
	}
	return sent.Id, nil
}

type disabledMailer struct{}

func (disabledMailer) Send(context.Context, Message) (string, error) {
	return "", ErrMailerNotConfigured
}

// IsNotConfigured reports whether err means the notification was never attempted.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrMailerNotConfigured) || errors.Is(err, ErrAdminEmailNotConfigured)
}

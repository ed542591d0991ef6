package email

import (
	"context"
	"fmt"
	"time"

	"stockroom/internal/config"
	"stockroom/internal/logger"
	"stockroom/internal/models"

	"github.com/mailgun/mailgun-go/v5"
)

type Service struct {
	client      mailgun.Mailgun
	domain      string
	senderEmail string
	senderName  string
	enabled     bool
}

func NewService(cfg *config.Config) *Service {
	enabled := cfg.MailgunEnabled()

	var client mailgun.Mailgun
	if enabled {
		client = mailgun.NewMailgun(cfg.MailgunAPIKey)
	}

	return &Service{
		client:      client,
		domain:      cfg.MailgunDomain,
		senderEmail: cfg.MailgunSenderEmail,
		senderName:  cfg.MailgunSenderName,
		enabled:     enabled,
	}
}

func (s *Service) IsEnabled() bool {
	return s != nil && s.enabled
}

func (s *Service) SendWelcomeEmail(ctx context.Context, user *models.User) error {
	if !s.IsEnabled() {
		return fmt.Errorf("email service is not configured")
	}

	message := mailgun.NewMessage(
		s.domain,
		fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail),
		"Welcome to Stockroom",
		generateWelcomeText(user),
		user.Email,
	)
	message.SetHTML(generateWelcomeHTML(user))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := s.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send welcome email: %w", err)
	}

	logger.Info("Welcome email sent", "email", user.Email, "response", resp)
	return nil
}

// SendWelcomeEmailAsync sends in the background; failures are only logged
// so sign-up never depends on mail delivery.
func (s *Service) SendWelcomeEmailAsync(user *models.User) {
	if !s.IsEnabled() {
		return
	}
	go func() {
		if err := s.SendWelcomeEmail(context.Background(), user); err != nil {
			logger.Warn("Failed to send welcome email", "email", user.Email, "error", err)
		}
	}()
}

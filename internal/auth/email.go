package auth

import (
	"context"
	"fmt"

	"invertrack-go/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EmailSender delivers verification codes through a JSON mail API. In demo
// mode nothing leaves the process: the message is logged instead, which is
// how local development and tests run.
type EmailSender struct {
	client  *resty.Client
	limiter *rate.Limiter
	cfg     config.Email
	logger  *zap.Logger
}

// NewEmailSender creates an email sender from configuration.
func NewEmailSender(cfg config.Email, logger *zap.Logger) *EmailSender {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// Outbound sends are rate limited so a stuck retry loop can never
	// hammer the mail provider.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &EmailSender{
		client:  client,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.Named("email"),
	}
}

type mailMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// SendCode delivers one verification message to the recipient.
func (s *EmailSender) SendCode(ctx context.Context, to, subject, body string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	if s.cfg.DemoMode {
		s.logger.Info("Demo mode: email not sent",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.String("body", body))
		return nil
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+s.cfg.ApiKey).
		SetBody(mailMessage{From: s.cfg.Sender, To: to, Subject: subject, Text: body}).
		Post("/messages")
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	if resp.IsError() {
		return fmt.Errorf("mail API rejected message: status %d", resp.StatusCode())
	}

	s.logger.Info("Verification email sent", zap.String("to", to))
	return nil
}

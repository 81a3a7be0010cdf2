// Package mail dispatches one-time codes to users. Delivery is an external
// collaborator; the Sender interface keeps the transport swappable.
package mail

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/traintrack/traintrack/pkg/observability"
)

// Sender dispatches a password-reset OTP to an email address.
type Sender interface {
	SendOTP(ctx context.Context, to, otp string) error
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPSender delivers OTP mail through an SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates an SMTP-backed sender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// SendOTP sends the OTP mail. The body mirrors what users already expect
// from the reset flow.
func (s *SMTPSender) SendOTP(_ context.Context, to, otp string) error {
	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Password Reset OTP\r\n\r\nYour OTP is %s. It will expire in 5 minutes.\r\n",
		s.cfg.From, to, otp))

	addr := s.cfg.Host + ":" + s.cfg.Port
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send OTP mail: %w", err)
	}
	return nil
}

// LogSender logs instead of delivering. Used in development when no SMTP
// relay is configured. The OTP itself is never logged.
type LogSender struct {
	logger *observability.Logger
}

// NewLogSender creates a logging sender.
func NewLogSender(logger *observability.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendOTP records that a code would have been sent.
func (s *LogSender) SendOTP(_ context.Context, to, _ string) error {
	s.logger.WithField("to", to).Info("OTP mail suppressed (no SMTP relay configured)")
	return nil
}

// Package auth implements the authentication and session subsystem: the
// token codec, the Redis-backed session registry, password hashing, and the
// service orchestrating login, logout and the OTP password-reset flow.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/traintrack/traintrack/pkg/mail"
	"github.com/traintrack/traintrack/pkg/observability"
	"github.com/traintrack/traintrack/pkg/storage"
)

// otpTTL is how long a password-reset ticket stays redeemable.
const otpTTL = 5 * time.Minute

// Service orchestrates authentication over the credential store, the
// session registry and the token codec. Each call is independent; a logout
// racing a login is last-write-wins at the session-cache level.
type Service struct {
	users    storage.UserStore
	resets   storage.PasswordResetStore
	sessions SessionRegistry
	codec    *TokenCodec
	mailer   mail.Sender
	logger   *observability.Logger
}

// NewService wires an auth service.
func NewService(
	users storage.UserStore,
	resets storage.PasswordResetStore,
	sessions SessionRegistry,
	codec *TokenCodec,
	mailer mail.Sender,
	logger *observability.Logger,
) *Service {
	return &Service{
		users:    users,
		resets:   resets,
		sessions: sessions,
		codec:    codec,
		mailer:   mailer,
		logger:   logger,
	}
}

// UserSummary is the minimal user projection returned on login.
type UserSummary struct {
	RollNumber string       `json:"roll_number"`
	Name       string       `json:"name"`
	Role       storage.Role `json:"role"`
}

// LoginResult carries the issued token and the user projection.
type LoginResult struct {
	Token string
	User  UserSummary
}

// Login verifies the password, issues a session token and registers it in
// the session cache under the same TTL.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("login lookup failed: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredential
	}

	token, err := s.codec.IssueSession(user)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Register(ctx, user.ID, token, s.codec.SessionTTL()); err != nil {
		return nil, err
	}

	s.logger.WithField("roll_number", user.RollNumber).Info("user logged in")

	return &LoginResult{
		Token: token,
		User: UserSummary{
			RollNumber: user.RollNumber,
			Name:       user.Name,
			Role:       user.Role,
		},
	}, nil
}

// Logout revokes the token's session record. The token is decoded without
// signature verification: revocation is best-effort and idempotent, and
// deleting a non-existent session key is a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.codec.DecodeSession(token)
	if err != nil {
		return err
	}
	return s.sessions.Revoke(ctx, claims.UserID, token)
}

// ForgotPassword generates a 6-digit OTP and a correlation id, upserts the
// reset ticket (replacing any live ticket for the email) and dispatches the
// code by mail. Only the correlation id is returned to the caller.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("forgot-password lookup failed: %w", err)
	}

	otp, err := generateOTP()
	if err != nil {
		return "", err
	}
	correlationID := uuid.NewString()

	ticket := &storage.PasswordReset{
		Email:         email,
		OTP:           otp,
		CorrelationID: correlationID,
		ExpiresAt:     time.Now().Add(otpTTL),
	}
	if err := s.resets.Upsert(ctx, ticket); err != nil {
		return "", err
	}

	if err := s.mailer.SendOTP(ctx, email, otp); err != nil {
		return "", err
	}

	s.logger.WithField("correlation_id", correlationID).Info("password reset requested")
	return correlationID, nil
}

// VerifyOTP redeems an OTP exactly once. On success every ticket under the
// correlation id is deleted and a reset-scoped token is returned.
func (s *Service) VerifyOTP(ctx context.Context, correlationID, otp string) (string, error) {
	ticket, err := s.resets.GetByCorrelationAndOTP(ctx, correlationID, otp)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrInvalidOrExpired
		}
		return "", fmt.Errorf("otp lookup failed: %w", err)
	}
	if ticket.Expired(time.Now()) {
		return "", ErrInvalidOrExpired
	}

	resetToken, err := s.codec.IssueReset(ticket.Email)
	if err != nil {
		return "", err
	}

	// One-shot consumption: the same code must not verify twice.
	if err := s.resets.DeleteByCorrelation(ctx, correlationID); err != nil {
		return "", err
	}

	return resetToken, nil
}

// ResetPassword verifies the reset token, enforces the match and strength
// rules, then persists a fresh hash for the embedded email.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword, confirmPassword string) error {
	claims, err := s.codec.VerifyReset(resetToken)
	if err != nil {
		return err
	}

	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if err := ValidateStrength(newPassword); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordByEmail(ctx, claims.Email, hash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	s.logger.Info("password reset completed")
	return nil
}

// generateOTP returns a 6-digit numeric one-time code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

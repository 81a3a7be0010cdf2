package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/traintrack/traintrack/pkg/storage"
)

// PasswordResetStore implements storage.PasswordResetStore on PostgreSQL.
type PasswordResetStore struct {
	db *sql.DB
}

// NewPasswordResetStore creates a reset-ticket store backed by db.
func NewPasswordResetStore(db *sql.DB) *PasswordResetStore {
	return &PasswordResetStore{db: db}
}

// Upsert stores a ticket, replacing any live ticket for the same email.
func (s *PasswordResetStore) Upsert(ctx context.Context, ticket *storage.PasswordReset) error {
	query := `
		INSERT INTO password_resets (email, otp, correlation_id, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE
		SET otp = EXCLUDED.otp, correlation_id = EXCLUDED.correlation_id, expires_at = EXCLUDED.expires_at
	`

	if _, err := s.db.ExecContext(ctx, query,
		ticket.Email, ticket.OTP, ticket.CorrelationID, ticket.ExpiresAt); err != nil {
		return fmt.Errorf("failed to upsert reset ticket: %w", err)
	}
	return nil
}

// GetByCorrelationAndOTP looks up a ticket by (correlation id, code).
func (s *PasswordResetStore) GetByCorrelationAndOTP(ctx context.Context, correlationID, otp string) (*storage.PasswordReset, error) {
	query := `SELECT email, otp, correlation_id, expires_at FROM password_resets WHERE correlation_id = $1 AND otp = $2`

	var ticket storage.PasswordReset
	err := s.db.QueryRowContext(ctx, query, correlationID, otp).Scan(
		&ticket.Email, &ticket.OTP, &ticket.CorrelationID, &ticket.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get reset ticket: %w", err)
	}
	return &ticket, nil
}

// DeleteByCorrelation consumes every ticket under the correlation id.
// Deleting nothing is not an error.
func (s *PasswordResetStore) DeleteByCorrelation(ctx context.Context, correlationID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM password_resets WHERE correlation_id = $1`, correlationID); err != nil {
		return fmt.Errorf("failed to delete reset tickets: %w", err)
	}
	return nil
}

// DeleteExpired reaps tickets past their expiry.
func (s *PasswordResetStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM password_resets WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reap reset tickets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

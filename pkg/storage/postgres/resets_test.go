package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traintrack/traintrack/pkg/storage"
)

func newMockResetStore(t *testing.T) (sqlmock.Sqlmock, *PasswordResetStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewPasswordResetStore(db)
}

func TestResetStoreUpsert(t *testing.T) {
	mock, store := newMockResetStore(t)

	expires := time.Now().Add(5 * time.Minute)
	ticket := &storage.PasswordReset{
		Email:         "23pw09@psgtech.ac.in",
		OTP:           "123456",
		CorrelationID: "corr-1",
		ExpiresAt:     expires,
	}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (email) DO UPDATE")).
		WithArgs(ticket.Email, ticket.OTP, ticket.CorrelationID, ticket.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Upsert(context.Background(), ticket))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetStoreGetByCorrelationAndOTP(t *testing.T) {
	mock, store := newMockResetStore(t)

	expires := time.Now().Add(5 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE correlation_id = $1 AND otp = $2")).
		WithArgs("corr-1", "123456").
		WillReturnRows(sqlmock.NewRows([]string{"email", "otp", "correlation_id", "expires_at"}).
			AddRow("23pw09@psgtech.ac.in", "123456", "corr-1", expires))

	ticket, err := store.GetByCorrelationAndOTP(context.Background(), "corr-1", "123456")
	require.NoError(t, err)
	assert.Equal(t, "23pw09@psgtech.ac.in", ticket.Email)
	assert.False(t, ticket.Expired(time.Now()))
}

func TestResetStoreGetByCorrelationAndOTPMiss(t *testing.T) {
	mock, store := newMockResetStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE correlation_id = $1 AND otp = $2")).
		WithArgs("corr-1", "999999").
		WillReturnRows(sqlmock.NewRows([]string{"email", "otp", "correlation_id", "expires_at"}))

	_, err := store.GetByCorrelationAndOTP(context.Background(), "corr-1", "999999")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestResetStoreDeleteByCorrelation(t *testing.T) {
	mock, store := newMockResetStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM password_resets WHERE correlation_id = $1")).
		WithArgs("corr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, store.DeleteByCorrelation(context.Background(), "corr-1"))

	// Deleting nothing is still fine.
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM password_resets WHERE correlation_id = $1")).
		WithArgs("corr-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.DeleteByCorrelation(context.Background(), "corr-2"))
}

func TestResetStoreDeleteExpired(t *testing.T) {
	mock, store := newMockResetStore(t)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM password_resets WHERE expires_at < $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	reaped, err := store.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), reaped)
}

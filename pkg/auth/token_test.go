package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traintrack/traintrack/pkg/storage"
)

func newTestCodec() *TokenCodec {
	return NewTokenCodec(
		[]byte("session-secret"),
		[]byte("reset-secret"),
		time.Hour,
		15*time.Minute,
	)
}

func testUser() *storage.User {
	return &storage.User{
		ID:         7,
		RollNumber: "23pw09",
		Role:       storage.RoleStudent,
	}
}

func TestIssueAndVerifySession(t *testing.T) {
	codec := newTestCodec()

	token, err := codec.IssueSession(testUser())
	require.NoError(t, err)

	claims, err := codec.VerifySession(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, storage.RoleStudent, claims.Role)
	assert.Equal(t, "23pw09", claims.RollNumber)
}

func TestVerifySessionExpired(t *testing.T) {
	codec := NewTokenCodec(
		[]byte("session-secret"),
		[]byte("reset-secret"),
		-time.Minute,
		15*time.Minute,
	)

	token, err := codec.IssueSession(testUser())
	require.NoError(t, err)

	_, err = codec.VerifySession(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifySessionWrongSecret(t *testing.T) {
	codec := newTestCodec()
	other := NewTokenCodec(
		[]byte("another-secret"),
		[]byte("reset-secret"),
		time.Hour,
		15*time.Minute,
	)

	token, err := codec.IssueSession(testUser())
	require.NoError(t, err)

	_, err = other.VerifySession(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySessionMalformed(t *testing.T) {
	codec := newTestCodec()

	_, err := codec.VerifySession("not.a.token")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestDecodeSessionSkipsVerification(t *testing.T) {
	codec := NewTokenCodec(
		[]byte("session-secret"),
		[]byte("reset-secret"),
		-time.Minute,
		15*time.Minute,
	)

	token, err := codec.IssueSession(testUser())
	require.NoError(t, err)

	claims, err := codec.DecodeSession(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
}

func TestIssueAndVerifyReset(t *testing.T) {
	codec := newTestCodec()

	token, err := codec.IssueReset("23pw09@psgtech.ac.in")
	require.NoError(t, err)

	claims, err := codec.VerifyReset(token)
	require.NoError(t, err)
	assert.Equal(t, "23pw09@psgtech.ac.in", claims.Email)
}

func TestTokenScopesAreDistinct(t *testing.T) {
	codec := newTestCodec()

	sessionToken, err := codec.IssueSession(testUser())
	require.NoError(t, err)
	resetToken, err := codec.IssueReset("23pw09@psgtech.ac.in")
	require.NoError(t, err)

	// A session token must never pass as a reset token, nor the reverse.
	_, err = codec.VerifyReset(sessionToken)
	assert.ErrorIs(t, err, ErrInvalidOrExpired)

	_, err = codec.VerifySession(resetToken)
	assert.Error(t, err)
}

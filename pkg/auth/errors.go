package auth

import "errors"

// Sentinel errors for the authentication flows. Handlers map these onto
// HTTP statuses; nothing below the handler boundary writes a response.
var (
	// ErrUserNotFound is returned when no user matches the given email.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredential is returned when the password hash does not match.
	ErrInvalidCredential = errors.New("invalid password")

	// ErrTokenMalformed is returned when a token cannot be parsed.
	ErrTokenMalformed = errors.New("malformed token")
	// ErrTokenExpired is returned when a token is past its embedded expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidSignature is returned when a token's signature does not verify.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrInvalidOrExpired is returned for OTP and reset-token failures. The
	// caller cannot distinguish a wrong code from a stale one.
	ErrInvalidOrExpired = errors.New("invalid or expired")

	// ErrPasswordMismatch is returned when the two reset password fields differ.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrWeakPassword is returned when a candidate password fails the
	// strength rule.
	ErrWeakPassword = errors.New("password must be 8+ chars, include uppercase, number & special char")
)

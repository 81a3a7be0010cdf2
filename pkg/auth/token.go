package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/traintrack/traintrack/pkg/storage"
)

// SessionClaims is the claims bundle embedded in session tokens.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID     int64        `json:"id"`
	Role       storage.Role `json:"role"`
	RollNumber string       `json:"roll_number"`
}

// ResetClaims is the claims bundle embedded in password-reset tokens. It is
// deliberately minimal: the email identifies whose password may change.
type ResetClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// TokenCodec signs and verifies the two token scopes. Session and reset
// tokens use distinct secrets so one can never stand in for the other.
type TokenCodec struct {
	sessionSecret []byte
	resetSecret   []byte
	sessionTTL    time.Duration
	resetTTL      time.Duration
}

// NewTokenCodec creates a codec. Both secrets must be non-empty; config
// validation enforces that before this is reached.
func NewTokenCodec(sessionSecret, resetSecret []byte, sessionTTL, resetTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		sessionSecret: sessionSecret,
		resetSecret:   resetSecret,
		sessionTTL:    sessionTTL,
		resetTTL:      resetTTL,
	}
}

// SessionTTL returns the lifetime of issued session tokens. The session
// cache registers markers under the same TTL.
func (c *TokenCodec) SessionTTL() time.Duration { return c.sessionTTL }

// IssueSession signs a session token for the user.
func (c *TokenCodec) IssueSession(user *storage.User) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(c.sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID:     user.ID,
		Role:       user.Role,
		RollNumber: user.RollNumber,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.sessionSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// VerifySession parses and verifies a session token.
func (c *TokenCodec) VerifySession(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.sessionSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, mapJWTError(err)
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

// DecodeSession parses a session token WITHOUT verifying the signature or
// expiry. Logout uses this for best-effort revocation: the route guard has
// already vetted the token, and an expired token's session key is harmless
// to delete.
func (c *TokenCodec) DecodeSession(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// IssueReset signs a short-lived password-reset token bound to an email.
func (c *TokenCodec) IssueReset(email string) (string, error) {
	claims := ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(c.resetTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email: email,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.resetSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}
	return token, nil
}

// VerifyReset parses and verifies a password-reset token. All failures
// collapse to ErrInvalidOrExpired; the reset flow never distinguishes them.
func (c *TokenCodec) VerifyReset(tokenString string) (*ResetClaims, error) {
	claims := &ResetClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.resetSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidOrExpired
	}
	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	default:
		return ErrTokenMalformed
	}
}

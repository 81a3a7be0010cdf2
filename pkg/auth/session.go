package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/traintrack/traintrack/pkg/storage"
)

// sessionValue is the marker stored for an honored token.
const sessionValue = "valid"

// SessionRegistry records which issued tokens are currently honored. A
// session record exists iff its token is valid; absence revokes an
// otherwise well-signed token.
type SessionRegistry interface {
	Register(ctx context.Context, userID int64, token string, ttl time.Duration) error
	IsActive(ctx context.Context, userID int64, token string) (bool, error)
	Revoke(ctx context.Context, userID int64, token string) error
}

// SessionStore implements SessionRegistry on Redis.
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore connects to Redis and verifies connectivity.
func NewSessionStore(cfg storage.Config) (*SessionStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB >= 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &SessionStore{client: client}, nil
}

func sessionKey(userID int64, token string) string {
	return fmt.Sprintf("session:%d:%s", userID, token)
}

// Register stores a validity marker under the token's TTL. Overwriting an
// identical key is idempotent.
func (s *SessionStore) Register(ctx context.Context, userID int64, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionKey(userID, token), sessionValue, ttl).Err(); err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	return nil
}

// IsActive reports whether the session marker exists. A missing key is not
// an error: it means the session was revoked or expired.
func (s *SessionStore) IsActive(ctx context.Context, userID int64, token string) (bool, error) {
	_, err := s.client.Get(ctx, sessionKey(userID, token)).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return true, nil
}

// Revoke deletes the session marker. Revoking a non-existent session is a
// no-op.
func (s *SessionStore) Revoke(ctx context.Context, userID int64, token string) error {
	if err := s.client.Del(ctx, sessionKey(userID, token)).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for health checks.
func (s *SessionStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *SessionStore) Close() error {
	return s.client.Close()
}

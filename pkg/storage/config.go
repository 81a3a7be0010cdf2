package storage

import "time"

// Config holds connection settings for the persistent store and the session
// cache.
type Config struct {
	// PostgreSQL
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	// Redis
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
}

// DefaultConfig returns sensible development defaults. Secrets and URLs are
// still expected from the environment.
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 25,
		PostgresMinConns: 5,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          -1,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
	}
}

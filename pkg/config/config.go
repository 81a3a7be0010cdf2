// Package config loads and validates process configuration from the
// environment. The Config struct is built once at startup and passed by
// reference into constructors; there are no implicit secret fallbacks.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/traintrack/traintrack/pkg/observability"
	"github.com/traintrack/traintrack/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Storage storage.Config
	Auth    AuthConfig
	Mail    MailConfig

	LogLevel observability.LogLevel
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for probes)
	HealthPort string
}

// AuthConfig holds token secrets and lifetimes. Secrets have no defaults:
// an unset secret fails validation rather than falling back to a known
// value.
type AuthConfig struct {
	JWTSecret   string
	ResetSecret string
	SessionTTL  time.Duration
	ResetTTL    time.Duration
}

// MailConfig holds SMTP relay settings. When Host is empty the service
// logs OTP dispatches instead of sending them.
type MailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:   loadServerConfig(),
		Storage:  loadStorageConfig(),
		Auth:     loadAuthConfig(),
		Mail:     loadMailConfig(),
		LogLevel: parseLogLevel(getEnv("TRAINTRACK_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TRAINTRACK_HOST", "0.0.0.0"),
		Port:            getEnv("TRAINTRACK_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TRAINTRACK_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TRAINTRACK_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TRAINTRACK_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TRAINTRACK_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("TRAINTRACK_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.PostgresURL = getEnv("TRAINTRACK_POSTGRES_URL", "")
	if maxConns := getEnvInt("TRAINTRACK_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("TRAINTRACK_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("TRAINTRACK_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	cfg.RedisURL = getEnv("TRAINTRACK_REDIS_URL", "")
	cfg.RedisPassword = getEnv("TRAINTRACK_REDIS_PASSWORD", "")
	if redisDB := getEnvInt("TRAINTRACK_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if retries := getEnvInt("TRAINTRACK_REDIS_MAX_RETRIES", 0); retries > 0 {
		cfg.RedisMaxRetries = retries
	}
	if poolSize := getEnvInt("TRAINTRACK_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.RedisPoolSize = poolSize
	}

	return cfg
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:   getEnv("TRAINTRACK_JWT_SECRET", ""),
		ResetSecret: getEnv("TRAINTRACK_RESET_SECRET", ""),
		SessionTTL:  getEnvDuration("TRAINTRACK_SESSION_TTL", 1*time.Hour),
		ResetTTL:    getEnvDuration("TRAINTRACK_RESET_TTL", 15*time.Minute),
	}
}

func loadMailConfig() MailConfig {
	return MailConfig{
		Host:     getEnv("TRAINTRACK_SMTP_HOST", ""),
		Port:     getEnv("TRAINTRACK_SMTP_PORT", "587"),
		Username: getEnv("TRAINTRACK_SMTP_USERNAME", ""),
		Password: getEnv("TRAINTRACK_SMTP_PASSWORD", ""),
		From:     getEnv("TRAINTRACK_SMTP_FROM", ""),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.Auth.ResetSecret == "" {
		return fmt.Errorf("reset secret is required")
	}
	if c.Auth.JWTSecret == c.Auth.ResetSecret {
		return fmt.Errorf("JWT secret and reset secret must be different")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Auth.ResetTTL <= 0 {
		return fmt.Errorf("reset TTL must be positive")
	}

	if c.Mail.Host != "" && c.Mail.From == "" {
		return fmt.Errorf("SMTP from address is required when SMTP host is set")
	}

	return nil
}

func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

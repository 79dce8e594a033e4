// Package config provides configuration management for the lock service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultLockTTL is the lock lifetime applied when an acquire
	// request carries no TTL.
	DefaultLockTTL = 5 * time.Minute

	// DefaultMinLockTTL and DefaultMaxLockTTL bound requested TTLs.
	// Too short forces a renewal stampede; too long leaves abandoned
	// records blocking editors.
	DefaultMinLockTTL = 30 * time.Second
	DefaultMaxLockTTL = 30 * time.Minute

	// DefaultHeartbeatFraction is the renewal cadence denominator:
	// clients renew every TTL/fraction, so at least fraction-1
	// renewals land inside each TTL window.
	DefaultHeartbeatFraction = 5

	// DefaultPurgeInterval is how often long-expired records are
	// removed for storage hygiene.
	DefaultPurgeInterval = 10 * time.Minute

	// DefaultMaxPayloadSize caps lock request bodies (16KB; the
	// acquire body is a single optional integer).
	DefaultMaxPayloadSize int64 = 16 * 1024
)

// DefaultResourceTypes is the closed set of lockable record classes.
var DefaultResourceTypes = []string{"FORM_SUBMISSION", "CLIENT", "FORM", "CALL"}

// Config holds the application configuration.
type Config struct {
	// Port is the HTTP server port.
	Port string

	// LogLevel is the zerolog level name.
	LogLevel string

	// DatabaseURL selects the Postgres lock store when set.
	DatabaseURL string

	// RedisURL selects the Redis lock store when set and no
	// DatabaseURL is configured. With neither, the in-memory store
	// is used.
	RedisURL string

	// LockTTL is the default lock lifetime.
	LockTTL time.Duration

	// MinLockTTL and MaxLockTTL bound client-requested TTLs.
	MinLockTTL time.Duration
	MaxLockTTL time.Duration

	// HeartbeatFraction is the renewal cadence denominator advertised
	// to clients.
	HeartbeatFraction int

	// ResourceTypes is the closed set of valid resource type tags.
	ResourceTypes []string

	// PurgeInterval is the hygiene purge cadence. Zero disables the
	// purge job; lock semantics do not depend on it.
	PurgeInterval time.Duration

	// MaxPayloadSize is the maximum request body size in bytes.
	MaxPayloadSize int64
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:              getEnvOrDefault("PORT", "8080"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		LockTTL:           getEnvDurationOrDefault("LOCK_TTL", DefaultLockTTL),
		MinLockTTL:        getEnvDurationOrDefault("LOCK_MIN_TTL", DefaultMinLockTTL),
		MaxLockTTL:        getEnvDurationOrDefault("LOCK_MAX_TTL", DefaultMaxLockTTL),
		HeartbeatFraction: getEnvIntOrDefault("LOCK_HEARTBEAT_FRACTION", DefaultHeartbeatFraction),
		ResourceTypes:     getEnvListOrDefault("LOCK_RESOURCE_TYPES", DefaultResourceTypes),
		PurgeInterval:     getEnvDurationOrDefault("LOCK_PURGE_INTERVAL", DefaultPurgeInterval),
		MaxPayloadSize:    getEnvInt64OrDefault("MAX_PAYLOAD_SIZE", DefaultMaxPayloadSize),
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the environment variable value as int or the default if not set or invalid.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt64OrDefault returns the environment variable value as int64 or the default if not set or invalid.
func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns the environment variable value as a
// duration ("90s", "5m") or the default if not set or invalid.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvListOrDefault returns the environment variable value as a
// comma-separated list or the default if not set.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	if len(list) == 0 {
		return defaultValue
	}
	return list
}

// Package config provides JWT configuration functionality.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// JWTConfig holds configuration for JWT token generation and validation.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
	RefreshDays     int
}

// NewJWTConfig creates a new JWT configuration from environment variables.
// It reads JWT_SECRET (required), JWT_EXPIRATION_HOURS (default: 24) and JWT_REFRESH_DAYS (default: 30).
func NewJWTConfig() (*JWTConfig, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but not set")
	}

	expirationHours, err := intFromEnv("JWT_EXPIRATION_HOURS", 24)
	if err != nil {
		return nil, err
	}
	refreshDays, err := intFromEnv("JWT_REFRESH_DAYS", 30)
	if err != nil {
		return nil, err
	}

	config := &JWTConfig{
		Secret:          secret,
		ExpirationHours: expirationHours,
		RefreshDays:     refreshDays,
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}

	return config, nil
}

// AccessTTL is the lifetime of an access token.
func (c *JWTConfig) AccessTTL() time.Duration {
	return time.Duration(c.ExpirationHours) * time.Hour
}

// RefreshTTL is the lifetime of a refresh token.
func (c *JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshDays) * 24 * time.Hour
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	if c.RefreshDays < 1 {
		return fmt.Errorf("JWT_REFRESH_DAYS must be at least 1 day, got: %d", c.RefreshDays)
	}
	return nil
}

func intFromEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return v, nil
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTConfig_DefaultValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-key")
	t.Setenv("JWT_EXPIRATION_HOURS", "")
	t.Setenv("JWT_REFRESH_DAYS", "")

	cfg, err := NewJWTConfig()
	require.NoError(t, err)
	assert.Equal(t, "test-secret-key", cfg.Secret)
	assert.Equal(t, 24, cfg.ExpirationHours, "should use default expiration of 24 hours")
	assert.Equal(t, 30, cfg.RefreshDays)
	assert.Equal(t, 24*time.Hour, cfg.AccessTTL())
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTTL())
}

func TestNewJWTConfig_CustomExpiration(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-key")

	tests := []struct {
		name          string
		expiration    string
		expectedHours int
		wantErr       bool
	}{
		{name: "12 hours", expiration: "12", expectedHours: 12},
		{name: "minimum 1 hour", expiration: "1", expectedHours: 1},
		{name: "zero rejected", expiration: "0", wantErr: true},
		{name: "negative rejected", expiration: "-5", wantErr: true},
		{name: "not a number", expiration: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_EXPIRATION_HOURS", tt.expiration)
			cfg, err := NewJWTConfig()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedHours, cfg.ExpirationHours)
		})
	}
}

func TestNewJWTConfig_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	cfg, err := NewJWTConfig()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
}

func TestNewJWTConfig_InvalidRefreshDays(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-key")
	t.Setenv("JWT_REFRESH_DAYS", "0")

	_, err := NewJWTConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_REFRESH_DAYS")
}

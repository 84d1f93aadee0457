package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("BLITZ_API_URL", "")
	t.Setenv("BLITZ_HOME", "/tmp/blitz-home")
	t.Setenv("APP_NAME", "")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5232, cfg.Port)
	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, "Blitz", cfg.AppName)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, filepath.Join("/tmp/blitz-home", "session.json"), cfg.SessionPath())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("BLITZ_API_URL", "https://blitz.example.com/")
	t.Setenv("BLITZ_HOME", t.TempDir())
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "https://blitz.example.com", cfg.APIURL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("PORT", "70000")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT out of range")
}

func TestValidate_LogFormat(t *testing.T) {
	cfg := &Config{Port: 1, APITimeout: 1, LogFormat: "xml"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_FORMAT")
}

func TestRequireDatabase(t *testing.T) {
	assert.Error(t, (&Config{}).RequireDatabase())
	assert.NoError(t, (&Config{DatabaseURL: "postgres://x"}).RequireDatabase())
}

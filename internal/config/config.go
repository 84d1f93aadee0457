// Package config loads runtime configuration for the Blitz server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v9"
)

// DefaultAPIURL is the backend the CLI talks to when BLITZ_API_URL is unset.
const DefaultAPIURL = "http://localhost:5232"

// Config holds process-wide settings read from the environment.
// The .env file, when present, is loaded by the command entry point before Load is called.
type Config struct {
	Port        int      `env:"PORT" envDefault:"5232"`
	DatabaseURL string   `env:"DATABASE_URL"`
	RedisURL    string   `env:"REDIS_URL"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string   `env:"LOG_FORMAT" envDefault:"json"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	AppName     string   `env:"APP_NAME" envDefault:"Blitz"`
	AppVersion  string   `env:"APP_VERSION" envDefault:"1.0.0"`

	// Client side.
	APIURL     string `env:"BLITZ_API_URL" envDefault:"http://localhost:5232"`
	Home       string `env:"BLITZ_HOME"`
	APITimeout int    `env:"BLITZ_API_TIMEOUT_SECONDS" envDefault:"30"`
}

// Load parses the environment into a Config and fills derived defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.Home = filepath.Join(home, ".blitz")
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. DATABASE_URL is only required by the server and is checked there.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config error: PORT out of range: %d", c.Port)
	}
	if c.APITimeout < 1 {
		return fmt.Errorf("config error: BLITZ_API_TIMEOUT_SECONDS must be positive")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("config error: LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// RequireDatabase returns an error when DATABASE_URL is not configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// SessionPath is the file holding the CLI's persisted session.
func (c *Config) SessionPath() string {
	return filepath.Join(c.Home, "session.json")
}

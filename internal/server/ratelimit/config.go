package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

// Tier is a rate limit applied to every route it matches. Requests in the
// same tier share one bucket per client.
type Tier struct {
	Name   string
	Method string        // empty matches any method
	Path   string        // exact path, or a prefix when it ends in "/"
	Limit  int           // requests per window
	Window time.Duration
	Burst  int           // bucket capacity, Limit when 0
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	DefaultLimit    int           `env:"RATE_LIMIT_DEFAULT_LIMIT" envDefault:"600"`
	DefaultWindow   time.Duration `env:"RATE_LIMIT_DEFAULT_WINDOW" envDefault:"1m"`
	CleanupInterval time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL" envDefault:"5m"`
	Whitelist       []string      `env:"RATE_LIMIT_WHITELIST" envSeparator:","`
	Blacklist       []string      `env:"RATE_LIMIT_BLACKLIST" envSeparator:","`
	Tiers           []Tier        `env:"-"`
}

// LoadConfig reads RATE_LIMIT_* variables and attaches the default tiers.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse rate limit config: %w", err)
	}
	cfg.Tiers = DefaultTiers()
	return cfg, nil
}

// String summarizes the default limit, e.g. "600 requests per 1m0s".
func (c *Config) String() string {
	if c == nil || !c.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("%d requests per %s", c.DefaultLimit, c.DefaultWindow)
}

// DefaultTiers returns the built-in per-route limits. Routes that match no tier
// use the default limit.
func DefaultTiers() []Tier {
	return []Tier{
		// Credential endpoints
		{Name: "login", Method: "POST", Path: "/api/auth/login", Limit: 10, Window: time.Minute, Burst: 5},
		{Name: "register", Method: "POST", Path: "/api/auth/register", Limit: 5, Window: time.Minute, Burst: 3},
		{Name: "password", Method: "POST", Path: "/api/auth/change-password", Limit: 5, Window: time.Minute, Burst: 3},
		{Name: "refresh", Method: "POST", Path: "/api/auth/refresh", Limit: 30, Window: time.Minute, Burst: 10},

		// Expensive operations
		{Name: "scrape", Method: "POST", Path: "/api/scraping/run", Limit: 30, Window: time.Hour, Burst: 5},
		{Name: "export", Method: "POST", Path: "/api/reports/export", Limit: 30, Window: time.Hour, Burst: 5},
		{Name: "sql", Method: "POST", Path: "/api/admin/sql/execute", Limit: 120, Window: time.Minute, Burst: 20},

		// Writes
		{Name: "write", Method: "POST", Path: "/api/", Limit: 300, Window: time.Minute, Burst: 50},
		{Name: "write", Method: "PUT", Path: "/api/", Limit: 300, Window: time.Minute, Burst: 50},
		{Name: "write", Method: "DELETE", Path: "/api/", Limit: 300, Window: time.Minute, Burst: 50},
	}
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = true
		}
	}
	return set
}

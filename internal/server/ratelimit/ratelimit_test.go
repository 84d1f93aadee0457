package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(cfg *Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter(cfg)
	l.now = clock.Now
	return l, clock
}

func TestTokenBucket_AllowAndRefill(t *testing.T) {
	now := time.Now()
	bucket := newTokenBucket(10, 1.0, now)

	for i := 0; i < 10; i++ {
		if ok, _, _, _ := bucket.take(now); !ok {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}
	ok, remaining, reset, retry := bucket.take(now)
	if ok {
		t.Error("Expected 11th request to be denied")
	}
	if remaining != 0 {
		t.Errorf("Expected 0 remaining, got %d", remaining)
	}
	if retry != time.Second {
		t.Errorf("Expected retry after 1s, got %v", retry)
	}
	if !reset.After(now) {
		t.Error("Reset time should be in the future")
	}

	later := now.Add(1100 * time.Millisecond)
	if ok, _, _, _ := bucket.take(later); !ok {
		t.Error("Expected request to be allowed after refill")
	}
	if ok, _, _, _ := bucket.take(later); ok {
		t.Error("Expected request to be denied after consuming refilled token")
	}
}

func TestLimiter_Allow(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})
	defer limiter.Stop()

	for i := 0; i < 10; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/api/projects", "GET")
		if !allowed {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
		if info.Limit != 10 || info.Tier != "default" {
			t.Errorf("Expected default limit 10, got %d (%s)", info.Limit, info.Tier)
		}
		if info.Remaining != 9-i {
			t.Errorf("Expected remaining %d, got %d", 9-i, info.Remaining)
		}
	}

	allowed, info := limiter.Allow("127.0.0.1", "/api/projects", "GET")
	if allowed {
		t.Error("Expected 11th request to be denied")
	}
	if info.RetryAfter <= 0 {
		t.Error("Expected retry after to be positive")
	}

	// other clients have their own buckets
	if allowed, _ := limiter.Allow("10.0.0.2", "/api/projects", "GET"); !allowed {
		t.Error("Expected a different client to be allowed")
	}
}

func TestLimiter_DefaultTierSharedAcrossPaths(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{Enabled: true, DefaultLimit: 2, DefaultWindow: time.Minute})
	defer limiter.Stop()

	limiter.Allow("c", "/api/projects/1", "GET")
	limiter.Allow("c", "/api/projects/2", "GET")
	if allowed, _ := limiter.Allow("c", "/api/projects/3", "GET"); allowed {
		t.Error("Expected per-id paths to share the default bucket")
	}
}

func TestLimiter_WhitelistAndBlacklist(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		Whitelist:     []string{"127.0.0.1"},
		Blacklist:     []string{"6.6.6.6"},
	})
	defer limiter.Stop()

	for i := 0; i < 100; i++ {
		if allowed, _ := limiter.Allow("127.0.0.1", "/api/projects", "GET"); !allowed {
			t.Fatal("Expected whitelisted client to be allowed")
		}
	}
	if allowed, _ := limiter.Allow("6.6.6.6", "/health", "GET"); allowed {
		t.Error("Expected blacklisted client to be denied")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{Enabled: false})
	defer limiter.Stop()

	for i := 0; i < 100; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/api/auth/login", "POST")
		if !allowed || info.Limit != 0 {
			t.Fatalf("Expected unlimited access when disabled, got %+v", info)
		}
	}
}

func TestLimiter_TierSpecific(t *testing.T) {
	limiter, clock := newTestLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		Tiers:         DefaultTiers(),
	})
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/api/auth/login", "POST")
		if !allowed {
			t.Errorf("Expected login %d to be allowed", i+1)
		}
		if info.Tier != "login" {
			t.Errorf("Expected login tier, got %s", info.Tier)
		}
	}
	if allowed, _ := limiter.Allow("127.0.0.1", "/api/auth/login", "POST"); allowed {
		t.Error("Expected login burst to be exhausted")
	}

	// 10 per minute refills a token every 6 seconds
	clock.Advance(7 * time.Second)
	if allowed, _ := limiter.Allow("127.0.0.1", "/api/auth/login", "POST"); !allowed {
		t.Error("Expected a login after refill")
	}

	allowed, info := limiter.Allow("127.0.0.1", "/api/projects", "GET")
	if !allowed || info.Limit != 1000 {
		t.Errorf("Expected default tier for reads, got %+v", info)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter, _ := newTestLimiter(&Config{Enabled: true, DefaultLimit: 100, DefaultWindow: time.Minute})
	defer limiter.Stop()

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		allowedCount int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := limiter.Allow("127.0.0.1", "/api/projects", "GET"); allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowedCount != 100 {
		t.Errorf("Expected 100 allowed requests, got %d", allowedCount)
	}
}

func TestLimiter_EvictIdle(t *testing.T) {
	limiter, clock := newTestLimiter(&Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})
	defer limiter.Stop()

	limiter.Allow("a", "/api/projects", "GET")
	clock.Advance(30 * time.Minute)
	limiter.Allow("b", "/api/projects", "GET")
	clock.Advance(31 * time.Minute)

	if n := limiter.evictIdle(); n != 1 {
		t.Errorf("Expected 1 evicted bucket, got %d", n)
	}
	if _, ok := limiter.buckets["b:default"]; !ok {
		t.Error("Expected recently used bucket to survive")
	}
}

func TestMatchTier(t *testing.T) {
	tiers := DefaultTiers()
	cases := []struct {
		path, method, want string
	}{
		{"/api/auth/login", "POST", "login"},
		{"/api/scraping/run", "POST", "scrape"},
		{"/api/projects", "POST", "write"},
		{"/api/websites/abc", "DELETE", "write"},
		{"/health", "GET", "unlimited"},
		{"/metrics", "GET", "unlimited"},
		{"/api/projects", "OPTIONS", "unlimited"},
	}
	for _, tc := range cases {
		got := MatchTier(tc.path, tc.method, tiers)
		if got == nil || got.Name != tc.want {
			t.Errorf("MatchTier(%s %s) = %v, want %s", tc.method, tc.path, got, tc.want)
		}
	}
	if got := MatchTier("/api/projects", "GET", tiers); got != nil {
		t.Errorf("Expected reads to use the default limit, got %s", got.Name)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_DEFAULT_LIMIT", "42")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1, 10.0.0.2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Enabled || cfg.DefaultLimit != 42 || cfg.DefaultWindow != time.Minute {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.Tiers) == 0 {
		t.Error("Expected default tiers")
	}
	if cfg.String() != "42 requests per 1m0s" {
		t.Errorf("unexpected summary %q", cfg.String())
	}
}

func TestNewLimiter_NilConfig(t *testing.T) {
	limiter := NewLimiter(nil)
	defer limiter.Stop()
	limiter.Stop()

	allowed, info := limiter.Allow("127.0.0.1", "/test", "GET")
	if !allowed {
		t.Error("Expected request to be allowed with default config")
	}
	if info.Limit != 1000 {
		t.Errorf("Expected default limit 1000, got %d", info.Limit)
	}
}

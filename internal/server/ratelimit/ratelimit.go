// Package ratelimit limits requests per client with token buckets grouped
// into route tiers.
package ratelimit

import (
	"sync"
	"time"
)

// idleTTL is how long an unused bucket is kept.
const idleTTL = time.Hour

// tokenBucket allows capacity requests at once and refills at refillRate
// tokens per second.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

func newTokenBucket(capacity int, refillRate float64, now time.Time) *tokenBucket {
	return &tokenBucket{
		capacity:   float64(capacity),
		refillRate: refillRate,
		tokens:     float64(capacity),
		lastRefill: now,
		lastSeen:   now,
	}
}

func (tb *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
		tb.lastRefill = now
	}
}

// take consumes a token if one is available and reports the bucket state afterwards.
func (tb *tokenBucket) take(now time.Time) (allowed bool, remaining int, reset time.Time, retryAfter time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	tb.lastSeen = now
	if tb.tokens >= 1 {
		tb.tokens--
		allowed = true
	} else {
		retryAfter = time.Duration((1 - tb.tokens) / tb.refillRate * float64(time.Second))
	}
	remaining = int(tb.tokens)
	reset = now.Add(time.Duration((tb.capacity - tb.tokens) / tb.refillRate * float64(time.Second)))
	return allowed, remaining, reset, retryAfter
}

func (tb *tokenBucket) idleSince(cutoff time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastSeen.Before(cutoff)
}

// Info describes the limit applied to one request.
type Info struct {
	Allowed    bool
	Tier       string
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter tracks one bucket per client and tier.
type Limiter struct {
	config    *Config
	whitelist map[string]bool
	blacklist map[string]bool
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket

	stopOnce sync.Once
	stop     chan struct{}
}

// NewLimiter creates a limiter. A nil config enables a 1000 per minute default.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
		}
	}
	l := &Limiter{
		config:    config,
		whitelist: toSet(config.Whitelist),
		blacklist: toSet(config.Blacklist),
		now:       time.Now,
		buckets:   make(map[string]*tokenBucket),
		stop:      make(chan struct{}),
	}
	if config.Enabled && config.CleanupInterval > 0 {
		go l.cleanup(config.CleanupInterval)
	}
	return l
}

// Config returns the limiter's configuration.
func (l *Limiter) Config() *Config {
	return l.config
}

// Allow consumes one request for clientID against the tier matching path and method.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || l.whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.blacklist[clientID] {
		return false, Info{Tier: "blacklist"}
	}

	tier := MatchTier(path, method, l.config.Tiers)
	if tier == nil {
		tier = &Tier{Name: "default", Limit: l.config.DefaultLimit, Window: l.config.DefaultWindow}
	}
	if tier.Limit <= 0 || tier.Window <= 0 {
		return true, Info{Allowed: true, Tier: tier.Name}
	}

	now := l.now()
	bucket := l.bucket(clientID+":"+tier.Name, tier, now)
	allowed, remaining, reset, retryAfter := bucket.take(now)
	return allowed, Info{
		Allowed:    allowed,
		Tier:       tier.Name,
		Limit:      tier.Limit,
		Remaining:  remaining,
		ResetTime:  reset,
		RetryAfter: retryAfter,
	}
}

func (l *Limiter) bucket(key string, tier *Tier, now time.Time) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	capacity := tier.Burst
	if capacity <= 0 {
		capacity = tier.Limit
	}
	b := newTokenBucket(capacity, float64(tier.Limit)/tier.Window.Seconds(), now)
	l.buckets[key] = b
	return b
}

func (l *Limiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stop:
			return
		}
	}
}

// evictIdle drops buckets unused for idleTTL.
func (l *Limiter) evictIdle() int {
	cutoff := l.now().Add(-idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for key, b := range l.buckets {
		if b.idleSince(cutoff) {
			delete(l.buckets, key)
			evicted++
		}
	}
	return evicted
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

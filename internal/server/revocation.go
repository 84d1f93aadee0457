package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker remembers logged-out token IDs until the tokens would have expired anyway.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevoker keeps revocations in process memory. Entries are lost on restart.
type MemoryRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevoker creates an empty MemoryRevoker.
func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{revoked: make(map[string]time.Time), now: time.Now}
}

// Revoke implements Revoker.
func (m *MemoryRevoker) Revoke(_ context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[tokenID] = until
	return nil
}

// IsRevoked implements Revoker.
func (m *MemoryRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !m.now().Before(until) {
		delete(m.revoked, tokenID)
		return false, nil
	}
	return true, nil
}

// Prune drops entries whose tokens have expired and returns how many were removed.
func (m *MemoryRevoker) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for id, until := range m.revoked {
		if !now.Before(until) {
			delete(m.revoked, id)
			removed++
		}
	}
	return removed
}

// revokedKeyPrefix namespaces revocation keys in a shared Redis.
const revokedKeyPrefix = "blitz:revoked:"

// RedisRevoker stores revocations in Redis with a TTL matching the token's remaining lifetime.
type RedisRevoker struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRevoker connects to redisURL and verifies the connection.
func NewRedisRevoker(ctx context.Context, redisURL string) (*RedisRevoker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisRevoker{client: client, now: time.Now}, nil
}

// Revoke implements Revoker. Tokens that have already expired are not stored.
func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked implements Revoker.
func (r *RedisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Close releases the Redis connection pool.
func (r *RedisRevoker) Close() error {
	return r.client.Close()
}

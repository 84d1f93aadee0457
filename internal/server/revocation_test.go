package server

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRevoker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewMemoryRevoker()
	r.now = func() time.Time { return now }

	require.NoError(t, r.Revoke(ctx, "a", now.Add(time.Hour)))
	require.NoError(t, r.Revoke(ctx, "b", now.Add(2*time.Hour)))

	revoked, err := r.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = r.IsRevoked(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, revoked)

	t.Run("entries lapse when the token would have expired", func(t *testing.T) {
		now = now.Add(90 * time.Minute)
		revoked, err := r.IsRevoked(ctx, "a")
		require.NoError(t, err)
		assert.False(t, revoked)

		revoked, err = r.IsRevoked(ctx, "b")
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("prune", func(t *testing.T) {
		require.NoError(t, r.Revoke(ctx, "c", now.Add(-time.Minute)))
		assert.Equal(t, 1, r.Prune())
		now = now.Add(time.Hour)
		assert.Equal(t, 1, r.Prune())
		assert.Equal(t, 0, r.Prune())
	})
}

func TestRedisRevoker(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	r, err := NewRedisRevoker(ctx, redisURL)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	id := uuid.NewString()
	revoked, err := r.IsRevoked(ctx, id)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, r.Revoke(ctx, id, time.Now().Add(time.Minute)))
	revoked, err = r.IsRevoked(ctx, id)
	require.NoError(t, err)
	assert.True(t, revoked)

	expired := uuid.NewString()
	require.NoError(t, r.Revoke(ctx, expired, time.Now().Add(-time.Minute)))
	revoked, err = r.IsRevoked(ctx, expired)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestNewRedisRevoker_InvalidURL(t *testing.T) {
	_, err := NewRedisRevoker(context.Background(), "not a url")
	assert.Error(t, err)
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T, limit int, window time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, limit, window), mr
}

func TestRedis_AdmitsUpToLimit(t *testing.T) {
	l, _ := newRedisLimiter(t, 2, time.Minute)

	for i := range 2 {
		d, err := l.Allow(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be admitted", i+1)
	}

	d, err := l.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestRedis_WindowExpiry(t *testing.T) {
	l, mr := newRedisLimiter(t, 1, time.Minute)

	d, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = l.Allow(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	mr.FastForward(time.Minute + time.Second)

	d, err = l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedis_KeysAreIndependent(t *testing.T) {
	l, _ := newRedisLimiter(t, 1, time.Minute)

	d, err := l.Allow(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Allow(context.Background(), "b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedis_FallsBackWhenUnreachable(t *testing.T) {
	l, mr := newRedisLimiter(t, 1, time.Minute)
	mr.Close()

	// The local fallback window still enforces the limit.
	d, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

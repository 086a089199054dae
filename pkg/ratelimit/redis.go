package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the per-key counter and starts the window TTL
// on the first hit, atomically with respect to concurrent callers.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// Redis is a fixed-window limiter backed by a shared Redis instance, so the
// window is enforced across gateway replicas. When Redis is unreachable it
// falls back to a local in-memory window rather than rejecting traffic.
type Redis struct {
	client   *redis.Client
	limit    int
	window   time.Duration
	prefix   string
	fallback *FixedWindow
}

// NewRedis creates a Redis-backed limiter admitting limit requests per key per
// windowSize.
func NewRedis(client *redis.Client, limit int, windowSize time.Duration) *Redis {
	if limit <= 0 {
		limit = 1
	}
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	return &Redis{
		client:   client,
		limit:    limit,
		window:   windowSize,
		prefix:   "ratelimit:",
		fallback: NewFixedWindow(limit, windowSize),
	}
}

// StartCleanup starts background eviction on the local fallback window. Redis
// keys expire on their own via PEXPIRE.
func (l *Redis) StartCleanup(ctx context.Context, interval time.Duration) {
	l.fallback.StartCleanup(ctx, interval)
}

// Allow admits or rejects one request for key.
func (l *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := fixedWindowScript.Run(ctx, l.client,
		[]string{l.prefix + key}, l.window.Milliseconds(),
	).Int64Slice()
	if err != nil || len(res) < 2 {
		return l.fallback.Allow(ctx, key)
	}

	count := int(res[0])
	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl < 0 {
		ttl = l.window
	}

	d := Decision{
		Allowed:    count <= l.limit,
		Limit:      l.limit,
		Remaining:  max(l.limit-count, 0),
		ResetAt:    time.Now().Add(ttl),
		ResetAfter: ttl,
	}
	return d, nil
}

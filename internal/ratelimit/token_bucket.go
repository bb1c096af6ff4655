package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCostExceedsCapacity is returned for a request that could never fit in
// a full bucket.
var ErrCostExceedsCapacity = errors.New("request cost exceeds bucket capacity")

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// RedisTokenBucket keeps one bucket per subject in a Redis hash. Refill is
// computed from the Redis server clock so every API replica agrees on it.
type RedisTokenBucket struct {
	client      redis.UniversalClient
	capacity    int64
	refillPerMS float64
	ttl         time.Duration
	keyPrefix   string
	script      *redis.Script
}

// takeScript refills the bucket for the time elapsed since its last use and
// takes ARGV[3] tokens when enough are available. It returns
// {allowed, remaining, retry_after_ms}.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local last = tonumber(state[2]) or now

tokens = math.min(capacity, tokens + math.max(0, now - last) * rate)

local allowed = 0
local wait = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  wait = math.ceil((cost - tokens) / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, math.floor(tokens), wait}
`)

func NewRedisTokenBucket(client redis.UniversalClient, capacity int, window time.Duration, keyPrefix string) (*RedisTokenBucket, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "pixelforge:ratelimit"
	}

	return &RedisTokenBucket{
		client:      client,
		capacity:    int64(capacity),
		refillPerMS: float64(capacity) / float64(max(1, window.Milliseconds())),
		ttl:         2 * window,
		keyPrefix:   keyPrefix,
		script:      takeScript,
	}, nil
}

func (l *RedisTokenBucket) Allow(ctx context.Context, subject string) (Decision, error) {
	return l.AllowN(ctx, subject, 1)
}

// AllowN takes cost tokens from subject's bucket when that many are
// available. Pipelines with expensive steps pass a higher cost.
func (l *RedisTokenBucket) AllowN(ctx context.Context, subject string, cost int) (Decision, error) {
	if cost <= 0 {
		return Decision{}, fmt.Errorf("cost must be positive, got %d", cost)
	}
	if int64(cost) > l.capacity {
		return Decision{}, fmt.Errorf("%w: cost=%d capacity=%d", ErrCostExceedsCapacity, cost, l.capacity)
	}

	raw, err := l.script.Run(ctx, l.client, []string{l.key(subject)},
		l.capacity,
		l.refillPerMS,
		cost,
		max(1, l.ttl.Milliseconds()),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run token bucket script: %w", err)
	}
	if len(raw) != 3 {
		return Decision{}, fmt.Errorf("invalid token bucket response: %v", raw)
	}

	return Decision{
		Allowed:    raw[0] == 1,
		Remaining:  raw[1],
		RetryAfter: time.Duration(raw[2]) * time.Millisecond,
	}, nil
}

func (l *RedisTokenBucket) key(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return l.keyPrefix + ":" + subject
}

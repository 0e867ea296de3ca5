package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	dErrors "memberd/pkg/domain-errors"
)

const redisKeyPrefix = "ratelimit:"

// allowScript atomically prunes, counts and conditionally records one attempt
// in a sorted-set bucket. Member scores are unix microseconds; the set expires
// one window after its newest entry so idle buckets clean themselves up.
//
// KEYS[1] bucket key
// ARGV[1] now (unix micros), ARGV[2] window (micros), ARGV[3] quota
//
// Returns {allowed, count, oldest_score}.
var allowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local quota = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])

local allowed = 0
if count < quota then
	redis.call('ZADD', KEYS[1], now, tostring(now) .. '-' .. tostring(math.random(1000000)))
	redis.call('PEXPIRE', KEYS[1], math.ceil(window / 1000))
	allowed = 1
	count = count + 1
end

local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then
	oldestScore = tonumber(oldest[2])
end

return {allowed, count, oldestScore}
`)

// RedisLimiter implements Limiter on Redis sorted sets, sharing windows
// across all server instances pointed at the same Redis.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// RedisOption configures a RedisLimiter.
type RedisOption func(*RedisLimiter)

// WithRedisClock overrides the time source, used by tests.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(l *RedisLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// NewRedisLimiter creates a limiter backed by client.
func NewRedisLimiter(client *redis.Client, opts ...RedisOption) *RedisLimiter {
	l := &RedisLimiter{client: client, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, action, key string, quota int, window time.Duration) (*Result, error) {
	now := l.now()
	redisKey := redisKeyPrefix + bucketKey(action, key, window)

	raw, err := allowScript.Run(ctx, l.client, []string{redisKey},
		now.UnixMicro(), window.Microseconds(), quota).Slice()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "rate limit check failed")
	}
	return parseAllowReply(raw, quota, window, now)
}

// parseAllowReply converts the {allowed, count, oldest_score} script reply
// into a Result, rejecting malformed replies instead of trusting the shape.
func parseAllowReply(raw []any, quota int, window time.Duration, now time.Time) (*Result, error) {
	if len(raw) != 3 {
		return nil, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unexpected rate limit script reply of length %d", len(raw)))
	}
	allowedFlag, okAllowed := raw[0].(int64)
	countValue, okCount := raw[1].(int64)
	oldestScore, okOldest := raw[2].(int64)
	if !okAllowed || !okCount || !okOldest {
		return nil, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unexpected rate limit script reply %v", raw))
	}

	allowed := allowedFlag == 1
	remaining := quota - int(countValue)
	if remaining < 0 {
		remaining = 0
	}
	resetAt := time.UnixMicro(oldestScore).Add(window)

	return &Result{
		Allowed:    allowed,
		Limit:      quota,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfterSeconds(allowed, resetAt, now),
	}, nil
}

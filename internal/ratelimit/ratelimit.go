// Package ratelimit provides sliding-window rate limiting keyed by
// (action, key, window).
//
// State lives in the store implementation: the in-memory store is
// process-local and resets on restart, so limits are not shared across
// instances — multi-instance deployments should use the Redis store instead.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Result describes the outcome of a limiter check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds until a retry may succeed; 0 when allowed
}

// Limiter checks and consumes rate limit quota.
type Limiter interface {
	// Allow prunes entries older than window from the (action, key, window)
	// bucket, then either records the current attempt and allows it, or —
	// when the bucket already holds quota entries — denies without
	// recording.
	Allow(ctx context.Context, action, key string, quota int, window time.Duration) (*Result, error)
}

// Sweeper is implemented by stores whose stale buckets need periodic purging.
type Sweeper interface {
	// Sweep removes buckets whose most recent entry is older than their
	// window and returns the number removed.
	Sweep(ctx context.Context) (int, error)
}

// DeniedError carries the limiter result across layers so the transport can
// set Retry-After on the response.
type DeniedError struct {
	Action string
	Result *Result
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %ds", e.Action, e.Result.RetryAfter)
}

// bucketKey builds the storage key for an (action, key, window) bucket.
// Segments are sanitized so user-controlled keys containing the delimiter
// cannot collide with adjacent buckets.
func bucketKey(action, key string, window time.Duration) string {
	return fmt.Sprintf("%s:%s:%d", sanitizeKeySegment(action), sanitizeKeySegment(key), int64(window/time.Second))
}

// sanitizeKeySegment escapes delimiter characters in key segments.
// Order matters: escape the escape character first so no two distinct inputs
// produce the same sanitized output.
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}

func retryAfterSeconds(allowed bool, resetAt, now time.Time) int {
	if allowed {
		return 0
	}
	seconds := int(resetAt.Sub(now).Seconds())
	if seconds < 0 {
		return 0
	}
	return seconds
}

package ratelimit

import (
	"context"
	"sync"
	"time"
)

const shardCount = 32

// MemoryLimiter implements Limiter with in-process sliding windows. Buckets
// are spread over sharded maps, each behind its own mutex, so concurrent hits
// on different keys rarely contend.
type MemoryLimiter struct {
	shards [shardCount]shard
	now    func() time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*slidingWindow
}

// slidingWindow holds the recorded attempt timestamps for one bucket.
type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

// tryConsume prunes expired entries, then either records now and allows, or
// denies without recording when the window is full.
func (sw *slidingWindow) tryConsume(quota int, now time.Time) (allowed bool, remaining int, resetAt time.Time) {
	sw.prune(now)

	if len(sw.timestamps) >= quota {
		return false, 0, sw.timestamps[0].Add(sw.window)
	}

	sw.timestamps = append(sw.timestamps, now)
	return true, quota - len(sw.timestamps), sw.timestamps[0].Add(sw.window)
}

func (sw *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter(opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{now: time.Now}
	for i := range l.shards {
		l.shards[i].buckets = make(map[string]*slidingWindow)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, action, key string, quota int, window time.Duration) (*Result, error) {
	bk := bucketKey(action, key, window)
	sh := &l.shards[shardFor(bk)]
	now := l.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	bucket, ok := sh.buckets[bk]
	if !ok {
		bucket = &slidingWindow{window: window}
		sh.buckets[bk] = bucket
	}
	allowed, remaining, resetAt := bucket.tryConsume(quota, now)

	return &Result{
		Allowed:    allowed,
		Limit:      quota,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfterSeconds(allowed, resetAt, now),
	}, nil
}

// Sweep drops buckets whose newest entry has aged out of its window,
// bounding memory growth between bursts. Implements Sweeper.
func (l *MemoryLimiter) Sweep(_ context.Context) (int, error) {
	now := l.now()
	removed := 0

	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		for key, bucket := range sh.buckets {
			n := len(bucket.timestamps)
			if n == 0 || !bucket.timestamps[n-1].After(now.Add(-bucket.window)) {
				delete(sh.buckets, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// shardFor maps a bucket key onto a shard index using djb2-style hashing.
func shardFor(key string) int {
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*31 + uint32(key[i])
	}
	return int(h % shardCount)
}

package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// redisIncrementer matches redisclient.Client.Incr's signature; declared
// here so this package has no import-time dependency on redisclient, and
// a nil interface value cleanly means "no Redis configured".
type redisIncrementer interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimiter implements a per-user rate limiter. When a Redis client is
// configured, counts are kept in Redis (a fixed-window INCR+EXPIRE) so
// multiple gateway instances share one limit; otherwise it falls back to
// an in-memory sliding window, keyed by the authenticated user id rather
// than a raw API key since this gateway authenticates via signed bearer
// tokens.
type RateLimiter struct {
	logger  zerolog.Logger
	enabled bool
	rpm     int
	burst   int
	mu      sync.Mutex
	windows map[string]*slidingWindow
	redis   redisIncrementer
}

type slidingWindow struct {
	tokens    []time.Time
	lastClean time.Time
}

// NewRateLimiter creates a new rate limiter. redis may be nil, in which
// case all limiting is done with the in-memory sliding window.
func NewRateLimiter(logger zerolog.Logger, enabled bool, rpm, burst int, redis redisIncrementer) *RateLimiter {
	return &RateLimiter{
		logger:  logger,
		enabled: enabled,
		rpm:     rpm,
		burst:   burst,
		windows: make(map[string]*slidingWindow),
		redis:   redis,
	}
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.enabled {
			next.ServeHTTP(w, r)
			return
		}

		key := GetUserID(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}

		allowed, remaining, resetAt := rl.allow(r.Context(), key)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.rpm))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retryAfter := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"type":"RATE_LIMITED","detail":"rate limit of %d requests per minute exceeded","retry_after":%d}`,
				rl.rpm, retryAfter)
			rl.logger.Warn().Str("user_id", key).Int("limit", rl.rpm).Msg("rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ctx context.Context, key string) (bool, int, time.Time) {
	if rl.redis != nil {
		if allowed, remaining, resetAt, ok := rl.allowRedis(ctx, key); ok {
			return allowed, remaining, resetAt
		}
		rl.logger.Warn().Str("user_id", key).Msg("redis rate limit check failed — falling back to in-memory window")
	}
	return rl.allowLocal(key)
}

// allowRedis implements a fixed-window counter: INCR the per-minute
// bucket key and compare against rpm. ok is false if the Redis call
// itself failed, signalling the caller to fall back to the in-memory
// window rather than fail open or closed.
func (rl *RateLimiter) allowRedis(ctx context.Context, key string) (allowed bool, remaining int, resetAt time.Time, ok bool) {
	window := time.Minute
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/int64(window.Seconds()))
	resetAt = time.Now().Truncate(window).Add(window)

	count, err := rl.redis.Incr(ctx, bucket, window)
	if err != nil {
		return false, 0, time.Time{}, false
	}
	if count > int64(rl.rpm) {
		return false, 0, resetAt, true
	}
	return true, rl.rpm - int(count), resetAt, true
}

func (rl *RateLimiter) allowLocal(key string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-1 * time.Minute)
	resetAt := now.Add(1 * time.Minute)

	sw, exists := rl.windows[key]
	if !exists {
		sw = &slidingWindow{
			tokens:    make([]time.Time, 0, rl.rpm),
			lastClean: now,
		}
		rl.windows[key] = sw
	}

	if now.Sub(sw.lastClean) > 10*time.Second {
		validTokens := make([]time.Time, 0, len(sw.tokens))
		for _, t := range sw.tokens {
			if t.After(windowStart) {
				validTokens = append(validTokens, t)
			}
		}
		sw.tokens = validTokens
		sw.lastClean = now
	}

	count := 0
	for _, t := range sw.tokens {
		if t.After(windowStart) {
			count++
		}
	}

	remaining := rl.rpm - count
	if remaining <= 0 {
		if len(sw.tokens) > 0 {
			resetAt = sw.tokens[0].Add(1 * time.Minute)
		}
		return false, 0, resetAt
	}

	sw.tokens = append(sw.tokens, now)
	return true, remaining - 1, resetAt
}

// Cleanup removes stale entries. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-2 * time.Minute)
	for key, sw := range rl.windows {
		if len(sw.tokens) == 0 || sw.tokens[len(sw.tokens)-1].Before(cutoff) {
			delete(rl.windows, key)
		}
	}
}

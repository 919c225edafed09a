package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sdrc-devforce/devforce/internal/metrics"
)

// RateLimiter provides per-IP sliding-window rate limiting backed by Redis
// sorted sets.
type RateLimiter struct {
	client    redis.Cmdable
	scope     string
	prefix    string
	maxReqs   int
	windowSec int
}

// NewRateLimiter creates a rate limiter that allows maxReqs per windowSec
// seconds for each client IP. Keys are stored under "ratelimit:<scope>:".
func NewRateLimiter(client redis.Cmdable, scope string, maxReqs, windowSec int) *RateLimiter {
	return &RateLimiter{
		client:    client,
		scope:     scope,
		prefix:    "ratelimit:" + scope + ":",
		maxReqs:   maxReqs,
		windowSec: windowSec,
	}
}

// Middleware returns an HTTP middleware that enforces the rate limit.
// On Redis errors it fails open.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		count, err := rl.hit(r.Context(), rl.prefix+ip)
		if err != nil {
			slog.Warn("rate limiter: redis error, failing open", "error", err, "ip", ip)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.maxReqs-int(count)-1, 0)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.maxReqs))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count >= int64(rl.maxReqs) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.windowSec))
			metrics.RateLimitedTotal.WithLabelValues(rl.scope).Inc()
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// hit records a request and returns how many requests preceded it inside
// the window.
func (rl *RateLimiter) hit(ctx context.Context, key string) (int64, error) {
	now := time.Now()
	window := time.Duration(rl.windowSec) * time.Second
	windowStart := float64(now.Add(-window).UnixMilli())

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%f", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: strconv.FormatInt(now.UnixNano(), 10)})
	pipe.Expire(ctx, key, window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return countCmd.Val(), nil
}

func clientIP(r *http.Request) string {
	// First hop of X-Forwarded-For, set by the trusted reverse proxy.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

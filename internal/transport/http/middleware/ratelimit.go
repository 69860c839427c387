// Package middleware provides HTTP middleware functions.
package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	RequestsPerMinute int           // Sustained requests per minute per client
	Burst             int           // Requests allowed at once
	IdleTTL           time.Duration // A client's bucket is forgotten after this long without requests
}

// DefaultRateLimitConfig returns the default rate limit configuration.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 5,
		Burst:             2,
		IdleTTL:           10 * time.Minute,
	}
}

// RateLimiter keeps one token bucket per client IP. Buckets live in a
// go-cache instance so idle clients age out without a sweeper of our own.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *gocache.Cache
	mu      sync.Mutex
}

// NewRateLimiter creates a RateLimiter. A nil config uses DefaultRateLimitConfig.
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	idle := config.IdleTTL
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{
		limit:   rate.Limit(float64(config.RequestsPerMinute) / 60.0),
		burst:   burst,
		buckets: gocache.New(idle, idle),
	}
}

// bucket returns the client's limiter, creating it on first use. Every call
// pushes the client's idle expiry forward.
func (rl *RateLimiter) bucket(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := rl.buckets.Get(ip); ok {
		l := v.(*rate.Limiter)
		rl.buckets.SetDefault(ip, l)
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.buckets.SetDefault(ip, l)
	return l
}

// Allow reports whether a request from ip may proceed now.
func (rl *RateLimiter) Allow(ip string) bool {
	ok, _ := rl.take(ip)
	return ok
}

// take consumes a token for ip. When none is available it returns the wait
// until the next one, leaving the bucket untouched.
func (rl *RateLimiter) take(ip string) (bool, time.Duration) {
	r := rl.bucket(ip).Reserve()
	if !r.OK() {
		return false, time.Minute
	}
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return false, d
	}
	return true, 0
}

// VisitorCount returns the number of clients with a live bucket.
func (rl *RateLimiter) VisitorCount() int {
	return rl.buckets.ItemCount()
}

// RateLimitMiddleware rejects clients that exceed their bucket with 429 and
// a Retry-After header in whole seconds.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)

			ok, wait := rl.take(ip)
			if !ok {
				retry := int(math.Ceil(wait.Seconds()))
				slog.Warn("Rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"retry_after", retry,
				)

				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("X-RateLimit-Remaining", "0")
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please wait a moment and try again.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes the {error, message} JSON body used by every endpoint.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

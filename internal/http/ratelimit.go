package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/pkg/logger"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller key.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	key      func(*http.Request) string
	log      *logger.Logger
	now      func() time.Time
}

// NewRateLimiter keys by user id when the request is authenticated and by
// client IP otherwise.
func NewRateLimiter(rps float64, burst int, log *logger.Logger) *RateLimiter {
	return newRateLimiter(rps, burst, clientKey, log)
}

// NewIPRateLimiter keys by client IP only. It runs before the authenticator
// so that requests with bad tokens are throttled before any user lookup.
func NewIPRateLimiter(rps float64, burst int, log *logger.Logger) *RateLimiter {
	return newRateLimiter(rps, burst, ipKey, log)
}

func newRateLimiter(rps float64, burst int, key func(*http.Request) string, log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(rps),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		key:      key,
		log:      log,
		now:      time.Now,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.key(r)
		if !rl.getLimiter(key).Allow() {
			rl.log.Ctx(r.Context()).WithField("key", key).Warn("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			respondError(w, r, rl.log, apperr.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Cleanup forgets callers idle for longer than the idle TTL.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := rl.now().Add(-rl.idleTTL)
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

func clientKey(r *http.Request) string {
	if p, ok := PrincipalFrom(r.Context()); ok {
		return "user:" + p.UserID.Hex()
	}
	return ipKey(r)
}

func ipKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

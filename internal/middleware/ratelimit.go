package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimitConfig configures token bucket limiting. With PerClient set each
// remote address gets its own bucket; otherwise one bucket is shared.
type RateLimitConfig struct {
	Enabled   bool
	RPS       float64
	Burst     int
	PerClient bool
}

// maxClientBuckets bounds the per-client table; it is reset when full.
const maxClientBuckets = 10000

// RateLimitMiddleware rejects requests over the configured rate with 429.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.RPS <= 0 || cfg.Burst <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := newLimiter(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientKey(r), time.Now()) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type limiter struct {
	rps       float64
	burst     float64
	perClient bool

	mu      sync.Mutex
	global  *tokenBucket
	clients map[string]*tokenBucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	l := &limiter{rps: cfg.RPS, burst: float64(cfg.Burst), perClient: cfg.PerClient}
	if cfg.PerClient {
		l.clients = make(map[string]*tokenBucket)
	} else {
		l.global = &tokenBucket{tokens: l.burst, last: time.Now()}
	}
	return l
}

func (l *limiter) allow(client string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.global
	if l.perClient {
		bucket = l.clients[client]
		if bucket == nil {
			if len(l.clients) >= maxClientBuckets {
				l.clients = make(map[string]*tokenBucket)
			}
			bucket = &tokenBucket{tokens: l.burst, last: now}
			l.clients[client] = bucket
		}
	}
	return bucket.take(now, l.rps, l.burst)
}

type tokenBucket struct {
	tokens float64
	last   time.Time
}

func (b *tokenBucket) take(now time.Time, rps, burst float64) bool {
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(burst, b.tokens+elapsed*rps)
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

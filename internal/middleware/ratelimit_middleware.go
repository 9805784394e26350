package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"diary-sync-server/internal/config"
	"diary-sync-server/pkg/response"

	"github.com/juju/ratelimit"
)

type limiterEntry struct {
	bucket   *ratelimit.Bucket
	lastSeen time.Time
}

// Limiter hands out one token bucket per client IP. Buckets idle for
// longer than idleTTL are dropped; a dropped bucket would have refilled
// anyway, since idleTTL is never shorter than one full refill.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*limiterEntry
	rate      float64
	capacity  int64
	enabled   bool
	trusted   bool
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}

	idleTTL := cfg.IdleTTL
	if idleTTL < time.Minute {
		idleTTL = time.Minute
	}

	return &Limiter{
		buckets:   make(map[string]*limiterEntry),
		rate:      float64(perMinute) / time.Minute.Seconds(),
		capacity:  int64(perMinute),
		enabled:   cfg.Enabled,
		trusted:   cfg.TrustProxy,
		idleTTL:   idleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (l *Limiter) getBucket(key string) *ratelimit.Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}

	entry, ok := l.buckets[key]
	if !ok {
		entry = &limiterEntry{bucket: ratelimit.NewBucketWithRate(l.rate, l.capacity)}
		l.buckets[key] = entry
	}
	entry.lastSeen = now
	return entry.bucket
}

// sweep must be called with l.mu held.
func (l *Limiter) sweep(now time.Time) {
	for key, entry := range l.buckets {
		if now.Sub(entry.lastSeen) >= l.idleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimiter rejects requests with 429 once the caller's bucket is empty.
func RateLimiter(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.enabled || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if l.getBucket(ClientIP(r, l.trusted)).TakeAvailable(1) == 0 {
				response.TooManyRequests(w, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the socket address of the caller. Proxy headers are
// only consulted when trustProxy is set, because any client can send them.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

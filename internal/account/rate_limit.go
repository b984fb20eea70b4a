package account

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SignInRateLimiter throttles sign-in attempts per client IP with token
// buckets. Entries for idle IPs are evicted once the map grows past
// maxEntries.
type SignInRateLimiter struct {
	mu         sync.Mutex
	limit      rate.Limit
	burst      int
	byIP       map[string]*ipLimiter
	maxEntries int
}

type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func NewSignInRateLimiter(maxHits int, window time.Duration) *SignInRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &SignInRateLimiter{
		limit:      rate.Limit(float64(maxHits) / window.Seconds()),
		burst:      maxHits,
		byIP:       make(map[string]*ipLimiter),
		maxEntries: 5000,
	}
}

func (l *SignInRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r), time.Now().UTC()) {
			retryAfter := int(time.Duration(float64(time.Second) / float64(l.limit)).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "too many sign-in attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *SignInRateLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.byIP[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byIP[ip] = entry
	}
	entry.lastAccess = now

	if len(l.byIP) > l.maxEntries {
		stale := now.Add(-10 * time.Minute)
		for key, value := range l.byIP {
			if value.lastAccess.Before(stale) {
				delete(l.byIP, key)
			}
		}
	}

	return entry.limiter.Allow()
}

func clientIP(r *http.Request) string {
	xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xForwardedFor != "" {
		parts := strings.Split(xForwardedFor, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}

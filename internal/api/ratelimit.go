package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// ipLimiter hands out one token-bucket limiter per client IP. Entries idle
// past the ttl are evicted on the next sweep.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiterEntry
	rate     rate.Limit
	burst    int
	ttl      time.Duration
	lastGC   time.Time
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(perMinute, burst int) *ipLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 10
	}
	return &ipLimiter{
		limiters: make(map[string]*ipLimiterEntry),
		rate:     rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		ttl:      10 * time.Minute,
		lastGC:   time.Now(),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastGC) > l.ttl {
		for ip, entry := range l.limiters {
			if now.Sub(entry.lastSeen) > l.ttl {
				delete(l.limiters, ip)
			}
		}
		l.lastGC = now
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}

// viewRateLimiter bounds unauthenticated view-count bumps per client IP so
// a scripted client cannot inflate view counters unboundedly.
func (s *Server) viewRateLimiter() echo.MiddlewareFunc {
	limiter := newIPLimiter(s.cfg.Views.RatePerMinute, s.cfg.Views.Burst)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiter.allow(c.RealIP()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/lumiverse/lumiverse/config"
	"github.com/lumiverse/lumiverse/errors"
	"github.com/lumiverse/lumiverse/server/metrics"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client IP with a token bucket: Requests
// tokens refilled evenly over Window.
type RateLimiter struct {
	requests int
	window   time.Duration
	metrics  *metrics.Metrics

	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

// NewRateLimiter builds a limiter from configuration. m may be nil.
func NewRateLimiter(cfg config.RateLimitConfig, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{
		requests: cfg.Requests,
		window:   cfg.Window,
		metrics:  m,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (l *RateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, exists := l.visitors[ip]
	if !exists {
		v = &visitor{
			limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(l.requests)), l.requests),
		}
		l.visitors[ip] = v
	}
	v.lastSeen = l.now()
	return v.limiter
}

// Handler wraps next with the limit.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		limiter := l.get(ip)

		if !limiter.Allow() {
			if l.metrics != nil {
				l.metrics.RateLimitHits.WithLabelValues(ip).Inc()
			}

			perToken := l.window / time.Duration(l.requests)
			retryAfter := int(math.Max(1, math.Ceil(perToken.Seconds())))
			errResp := errors.NewRateLimitError(GetRequestID(r.Context()), retryAfter)
			errResp.Details["limit"] = int64(l.requests)
			errResp.Details["window"] = l.window.String()

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			errors.WriteError(w, errResp)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Cleanup forgets clients not seen for idle, so the map does not grow
// without bound.
func (l *RateLimiter) Cleanup(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
			removed++
		}
	}
	return removed
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

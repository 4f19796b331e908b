package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nkiryanov/weddingplanner/internal/handlers/render"
)

const (
	defaultRequestsPerMinute = 10

	// Forget clients idle for this long once the map grows past limiterGCThreshold
	limiterIdleTTL     = 10 * time.Minute
	limiterGCThreshold = 1000
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Per client IP token bucket for requests under path prefix
// Other paths are passed through untouched
type RateLimiter struct {
	prefix    string
	perMinute int
	disabled  bool
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	now       func() time.Time
}

// Zero perMinute means default; negative disables limiting
func NewRateLimiter(prefix string, perMinute int) *RateLimiter {
	rl := &RateLimiter{
		prefix:    prefix,
		perMinute: perMinute,
		clients:   map[string]*clientLimiter{},
		now:       time.Now,
	}

	switch {
	case perMinute == 0:
		rl.perMinute = defaultRequestsPerMinute
	case perMinute < 0:
		rl.disabled = true
	}
	return rl
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.disabled || !strings.HasPrefix(r.URL.Path, rl.prefix) {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			render.ServiceError(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[ip]
	if !ok {
		every := time.Minute / time.Duration(rl.perMinute)
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Every(every), rl.perMinute)}
		rl.clients[ip] = c
	}
	c.lastSeen = now
	rl.gcLocked(now)

	return c.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) gcLocked(now time.Time) {
	if len(rl.clients) < limiterGCThreshold {
		return
	}

	cutoff := now.Add(-limiterIdleTTL)
	for ip, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// Proxy headers are not trusted: anyone can set them
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return r.RemoteAddr
	}
	return host
}

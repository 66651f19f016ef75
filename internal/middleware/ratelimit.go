package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedOrigins bounds the limiter map; beyond it, idle entries
	// are evicted before new ones are admitted.
	maxTrackedOrigins = 10000
	// originIdleTTL is how long an origin may sit quiet before its
	// limiter state is discarded.
	originIdleTTL = 3 * time.Minute
)

// IPRateLimiter applies a per-origin token bucket. Each client IP gets
// its own limiter so one abusive origin cannot exhaust the budget of
// well-behaved ones. State is per-process; the limiter protects against
// enumeration, it is not a correctness mechanism.
type IPRateLimiter struct {
	mu      sync.Mutex
	origins map[string]*origin

	limit  rate.Limit
	burst  int
	logger *slog.Logger
	now    func() time.Time
}

type origin struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates a limiter allowing perMinute requests per
// origin, with a burst of the same size.
func NewIPRateLimiter(perMinute int, logger *slog.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		origins: make(map[string]*origin),
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		logger:  logger.With(slog.String("component", "rate_limiter")),
		now:     time.Now,
	}
}

// Handler rejects requests exceeding the origin's budget with 429.
func (rl *IPRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			rl.logger.WarnContext(r.Context(), "rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"origin", ip,
			)
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *IPRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	o, ok := rl.origins[ip]
	if !ok {
		if len(rl.origins) >= maxTrackedOrigins {
			rl.evictIdle(now)
		}
		o = &origin{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.origins[ip] = o
	}
	o.lastSeen = now
	return o.limiter.Allow()
}

// evictIdle drops origins not seen within originIdleTTL. Called with the
// lock held.
func (rl *IPRateLimiter) evictIdle(now time.Time) {
	for ip, o := range rl.origins {
		if now.Sub(o.lastSeen) > originIdleTTL {
			delete(rl.origins, ip)
		}
	}
}

// clientIP returns the request origin. RealIP has already folded any
// trusted proxy headers into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

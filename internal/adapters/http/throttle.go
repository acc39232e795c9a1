package http

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// loginThrottle keeps one token bucket per client IP in front of the login
// endpoint. The per-email failure window lives in the application layer;
// this guard only caps raw request volume from a single origin.
type loginThrottle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newLoginThrottle(perMinute, burst int) *loginThrottle {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 10
	}
	return &loginThrottle{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

func (t *loginThrottle) limiterFor(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Buckets are tiny; resetting the map caps memory without a sweeper.
	if len(t.limiters) > 10000 {
		t.limiters = make(map[string]*rate.Limiter)
	}

	limiter, ok := t.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(t.rps, t.burst)
		t.limiters[key] = limiter
	}
	return limiter
}

func (t *loginThrottle) allow(key string) bool {
	return t.limiterFor(key).Allow()
}

func (t *loginThrottle) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := readIP(r)
		if !t.allow(origin) {
			httpLogger().WarnContext(r.Context(), "login throttled",
				"operation", "login_throttle",
				"outcome", "failure",
				"origin", origin,
				"request_id", requestIDFromContext(r.Context()),
			)
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

package recall

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// requestsPerSecond and burst set the token bucket applied to each distinct
// remote address hitting /api/recall, protecting the shared Embedder
// mutex from a misbehaving editor-hook loop (§4.5). Adapted from the
// teacher's internal/integration.TokenBucketRateLimiter, generalized
// from one limiter per named "service" to one limiter per client
// address.
const (
	requestsPerSecond = 5
	burst             = 10
)

// addressLimiter hands out a *rate.Limiter per remote address, creating
// one lazily on first use.
type addressLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newAddressLimiter() *addressLimiter {
	return &addressLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (a *addressLimiter) allow(addr string) bool {
	a.mu.Lock()
	l, ok := a.limiters[addr]
	if !ok {
		l = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
		a.limiters[addr] = l
	}
	a.mu.Unlock()
	return l.Allow()
}

// wrap wraps next, rejecting requests over the per-address rate
// with 429 before they can reach the Embedder.
func (a *addressLimiter) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.allow(r.RemoteAddr) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/carenest/internal/cachex"
	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/server/auth"
	"golang.org/x/time/rate"
)

const (
	limiterIdle       = 10 * time.Minute
	limiterMaxEntries = 100_000
)

// limiterPool hands out one token bucket per key (user id or client IP).
// Buckets idle for longer than limiterIdle are dropped, and at most
// limiterMaxEntries are kept.
type limiterPool struct {
	mu    sync.Mutex
	cache *cachex.TTL[string, *rate.Limiter]
	rps   float64
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if burst <= 0 {
		burst = 1
	}
	return &limiterPool{
		cache: cachex.NewTTL[string, *rate.Limiter](limiterIdle, limiterMaxEntries),
		rps:   rps,
		burst: burst,
	}
}

func (p *limiterPool) allow(key string) bool {
	if p == nil || p.rps <= 0 {
		return true
	}
	p.mu.Lock()
	l, ok := p.cache.Get(key)
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.rps), p.burst)
	}
	// every hit restarts the idle window
	p.cache.Set(key, l)
	p.mu.Unlock()
	return l.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authenticate resolves the bearer token and attaches the Session.
func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err == nil {
			var s *auth.Session
			if s, err = h.resolver.Resolve(r.Context(), token); err == nil {
				next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), s)))
				return
			}
		}
		if !common.IsAuthentication(err) {
			h.writeError(w, r, err)
			return
		}
		h.metrics.AuthFailed("http")
		h.logger.Debug(r.Context(), "authentication failed", "path", r.URL.Path, "error", err)
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	})
}

// rateLimit keys by session user when present, by client IP otherwise.
func (h *handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + clientIP(r)
		if s, ok := auth.FromContext(r.Context()); ok {
			key = "user:" + s.UserID
		}
		if !h.limiter.allow(key) {
			w.Header().Set("Retry-After", "1")
			writeErrorCode(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

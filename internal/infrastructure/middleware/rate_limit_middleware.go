package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"huddle/pkg/config"
	apperrors "huddle/pkg/errors"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterStore stores per-key (for example, per IP) rate limiters.
type rateLimiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rate      rate.Limit
	burstSize int
}

func newRateLimiterStore(r rate.Limit, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		limiters:  make(map[string]*limiterEntry),
		rate:      r,
		burstSize: burst,
	}
}

func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(s.rate, s.burstSize)}
		s.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// evictIdle forgets limiters not used since cutoff.
func (s *rateLimiterStore) evictIdle(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(s.limiters, key)
			removed++
		}
	}
	return removed
}

// clientIP extracts the caller's address, preferring the first
// X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewHTTPRateLimitMiddleware returns Gin middleware that applies simple IP-based rate limiting.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	rps := cfg.RateLimiting.HTTP.RequestsPerSecond
	burst := cfg.RateLimiting.HTTP.Burst

	store := newRateLimiterStore(rate.Limit(rps), burst)

	var globalSem chan struct{}
	if cfg.RateLimiting.HTTP.MaxConcurrent > 0 {
		globalSem = make(chan struct{}, cfg.RateLimiting.HTTP.MaxConcurrent)
	}

	return func(c *gin.Context) {
		if globalSem != nil {
			select {
			case globalSem <- struct{}{}:
				defer func() { <-globalSem }()
			default:
				AbortWithAppError(c, apperrors.NewServiceUnavailableError("too many concurrent requests"))
				return
			}
		}

		limiter := store.getLimiter(clientIP(c.Request))
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			AbortWithAppError(c, apperrors.NewRateLimitError())
			return
		}
		c.Next()
	}
}

// WebSocketLimiter gates push connections per client IP and caps the number
// of concurrent connections.
type WebSocketLimiter struct {
	enabled bool
	store   *rateLimiterStore
	sem     chan struct{}
}

func NewWebSocketLimiter(cfg *config.Config) *WebSocketLimiter {
	ws := cfg.RateLimiting.WebSocket
	l := &WebSocketLimiter{enabled: cfg.RateLimiting.Enabled}
	if !l.enabled {
		return l
	}
	if ws.ConnectionsPerMinute > 0 {
		burst := ws.Burst
		if burst <= 0 {
			burst = ws.ConnectionsPerMinute
		}
		l.store = newRateLimiterStore(rate.Every(time.Minute/time.Duration(ws.ConnectionsPerMinute)), burst)
	}
	if ws.MaxConcurrent > 0 {
		l.sem = make(chan struct{}, ws.MaxConcurrent)
	}
	return l
}

// Acquire reports whether r may open a connection. release must be called
// when the connection ends.
func (l *WebSocketLimiter) Acquire(r *http.Request) (release func(), ok bool) {
	noop := func() {}
	if !l.enabled {
		return noop, true
	}
	if l.store != nil && !l.store.getLimiter(clientIP(r)).Allow() {
		return noop, false
	}
	if l.sem == nil {
		return noop, true
	}
	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-l.sem }) }, true
	default:
		return noop, false
	}
}

// EvictIdle drops per-IP state older than maxIdle.
func (l *WebSocketLimiter) EvictIdle(maxIdle time.Duration) int {
	if l.store == nil {
		return 0
	}
	return l.store.evictIdle(time.Now().Add(-maxIdle))
}

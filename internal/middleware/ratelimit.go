package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/radiusdt/partner-portal/internal/config"
	"github.com/radiusdt/partner-portal/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet hands out one token bucket per client IP.
type limiterSet struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	limiters map[string]*ipLimiter
}

func newLimiterSet(rps float64, burst int) *limiterSet {
	if burst < 1 {
		burst = 1
	}
	return &limiterSet{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*ipLimiter),
	}
}

func (s *limiterSet) get(ip string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.limiters[ip] = l
	}
	l.lastSeen = now
	return l.limiter
}

func (s *limiterSet) prune(olderThan time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for ip, l := range s.limiters {
		if l.lastSeen.Before(olderThan) {
			delete(s.limiters, ip)
			n++
		}
	}
	return n
}

// RateLimitMiddleware applies per-IP token bucket limits: a general one to
// every API request and a stricter one to login attempts.
type RateLimitMiddleware struct {
	cfg     config.RateLimitConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	general *limiterSet
	login   *limiterSet
	trusted []netip.Prefix
	now     func() time.Time
}

// NewRateLimitMiddleware creates a new rate limiting middleware. Clients are
// identified by the socket peer unless it is one of cfg.TrustedProxies.
func NewRateLimitMiddleware(cfg config.RateLimitConfig, m *metrics.Metrics, logger *zap.Logger) *RateLimitMiddleware {
	trusted, err := cfg.TrustedPrefixes()
	if err != nil {
		logger.Error("ignoring trusted proxies", zap.Error(err))
		trusted = nil
	}
	return &RateLimitMiddleware{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		general: newLimiterSet(cfg.RPS, cfg.Burst),
		login:   newLimiterSet(cfg.LoginRPS, cfg.LoginBurst),
		trusted: trusted,
		now:     time.Now,
	}
}

// Handler applies the general per-IP limit.
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return rl.wrap(rl.general, "api", next)
}

// LoginHandler applies the login limit.
func (rl *RateLimitMiddleware) LoginHandler(next http.Handler) http.Handler {
	return rl.wrap(rl.login, "login", next)
}

func (rl *RateLimitMiddleware) wrap(set *limiterSet, endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		ip := rl.ClientIP(r)
		if !set.get(ip, rl.now()).Allow() {
			rl.logger.Warn("rate limit exceeded",
				zap.String("endpoint", endpoint),
				zap.String("ip", ip),
				zap.String("path", r.URL.Path),
			)
			rl.metrics.RecordRateLimitHit(endpoint)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CleanupIPLimiters drops limiters not used within idle and returns how
// many were removed.
func (rl *RateLimitMiddleware) CleanupIPLimiters(idle time.Duration) int {
	cutoff := rl.now().Add(-idle)
	n := rl.general.prune(cutoff) + rl.login.prune(cutoff)
	if n > 0 {
		rl.logger.Debug("cleaned up IP rate limiters", zap.Int("removed", n))
	}
	return n
}

// ClientIP returns the address the limiter keys on. Forwarding headers are
// only read when the socket peer is a trusted proxy; X-Forwarded-For is then
// walked right to left and the first hop that is not itself a trusted proxy
// wins.
func (rl *RateLimitMiddleware) ClientIP(r *http.Request) string {
	peer := RemoteIP(r)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !rl.isTrusted(addr) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				// a garbled hop was written by someone we do not trust
				return peer
			}
			if !rl.isTrusted(hop.Unmap()) {
				return hop.Unmap().String()
			}
		}
		return peer
	}
	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}
	return peer
}

func (rl *RateLimitMiddleware) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range rl.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// RemoteIP returns the host part of the socket peer address.
func RemoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

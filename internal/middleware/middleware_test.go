package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/radiusdt/partner-portal/internal/auth"
	"github.com/radiusdt/partner-portal/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

type stubAuthenticator map[string]*auth.Session

func (s stubAuthenticator) Authenticate(ctx context.Context, token string) (*auth.Session, error) {
	if sess, ok := s[token]; ok {
		return sess, nil
	}
	return nil, errors.New("bad token")
}

func TestAuthMiddleware(t *testing.T) {
	authn := stubAuthenticator{"good": {ID: "s1", TenantID: "tenant_a"}}
	var seen string
	h := NewAuthMiddleware(authn, "portal_session", zap.NewNop()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TenantIDFromContext(r.Context())
		require.NotNil(t, SessionFromContext(r.Context()))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "good"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tenant_a", seen)
}

func TestRateLimitPerIP(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, RPS: 100, Burst: 100, LoginRPS: 0.001, LoginBurst: 2}
	rl := NewRateLimitMiddleware(cfg, nil, zap.NewNop())
	h := rl.LoginHandler(okHandler)

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2"), "other clients have their own bucket")

	rl.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 2, rl.CleanupIPLimiters(time.Hour))
}

func TestRateLimitDisabled(t *testing.T) {
	rl := NewRateLimitMiddleware(config.RateLimitConfig{LoginBurst: 1}, nil, zap.NewNop())
	h := rl.LoginHandler(okHandler)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/login", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	direct := NewRateLimitMiddleware(config.RateLimitConfig{}, nil, zap.NewNop())
	behindProxy := NewRateLimitMiddleware(config.RateLimitConfig{TrustedProxies: []string{"10.0.0.0/8"}}, nil, zap.NewNop())

	tests := []struct {
		name   string
		rl     *RateLimitMiddleware
		remote string
		xff    string
		xri    string
		want   string
	}{
		{name: "peer only", rl: direct, remote: "192.0.2.1:1234", want: "192.0.2.1"},
		{name: "headers ignored without trusted proxies", rl: direct, remote: "192.0.2.1:1234", xff: "203.0.113.7", xri: "203.0.113.8", want: "192.0.2.1"},
		{name: "untrusted peer cannot forward", rl: behindProxy, remote: "192.0.2.1:1234", xff: "203.0.113.7", want: "192.0.2.1"},
		{name: "trusted proxy forwards", rl: behindProxy, remote: "10.0.0.5:1234", xff: "203.0.113.7", want: "203.0.113.7"},
		{name: "client-supplied prefix skipped", rl: behindProxy, remote: "10.0.0.5:1234", xff: "1.2.3.4, 203.0.113.7, 10.0.0.9", want: "203.0.113.7"},
		{name: "garbled hop falls back to peer", rl: behindProxy, remote: "10.0.0.5:1234", xff: "203.0.113.7, nonsense", want: "10.0.0.5"},
		{name: "all hops trusted", rl: behindProxy, remote: "10.0.0.5:1234", xff: "10.0.0.7", want: "10.0.0.5"},
		{name: "x-real-ip from trusted proxy", rl: behindProxy, remote: "10.0.0.5:1234", xri: "203.0.113.8", want: "203.0.113.8"},
		{name: "ipv6 peer", rl: direct, remote: "[2001:db8::1]:443", want: "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, tt.rl.ClientIP(req))
		})
	}
}

func TestLoginLimitIgnoresRotatingForwardedFor(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, RPS: 100, Burst: 100, LoginRPS: 0.001, LoginBurst: 2}
	rl := NewRateLimitMiddleware(cfg, nil, zap.NewNop())
	h := rl.LoginHandler(okHandler)

	limited := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
		req.RemoteAddr = "198.51.100.20:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.1.0.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 48, limited)
	assert.Len(t, rl.login.limiters, 1, "spoofed headers must not create limiter entries")
}

func TestRecovery(t *testing.T) {
	h := NewRecoveryMiddleware(zap.NewNop()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	h := NewCORSMiddleware([]string{"http://localhost:5173/"}).Handler(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/login", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	Chain(okHandler, mw("a"), mw("b")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b"}, order)
}

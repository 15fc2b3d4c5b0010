package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/radiusdt/partner-portal/internal/auth"
	"github.com/radiusdt/partner-portal/internal/config"
	"github.com/radiusdt/partner-portal/internal/metrics"
	"github.com/radiusdt/partner-portal/internal/middleware"
	"github.com/radiusdt/partner-portal/internal/portal"
	"github.com/radiusdt/partner-portal/internal/storage"
	"go.uber.org/zap"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Auth        *auth.Service
	Tenants     storage.TenantRepo
	Reporting   *portal.ReportingService
	Campaigns   *portal.CampaignService
	SubAccounts *portal.SubAccountService
	Reports     *portal.ReportService
	Settings    *portal.SettingsService
	RateLimit   *middleware.RateLimitMiddleware
	Checks      map[string]HealthCheck
}

// Server wraps HTTP handlers and portal services.
type Server struct {
	deps    *Dependencies
	auth    *auth.Service
	logger  *zap.Logger
	config  *config.Config
	metrics *metrics.Metrics
	rl      *middleware.RateLimitMiddleware
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	s := &Server{
		deps:    deps,
		auth:    deps.Auth,
		logger:  deps.Logger,
		config:  deps.Config,
		metrics: deps.Metrics,
	}

	rl := deps.RateLimit
	if rl == nil {
		rl = middleware.NewRateLimitMiddleware(deps.Config.RateLimit, deps.Metrics, deps.Logger)
	}
	s.rl = rl
	authn := middleware.NewAuthMiddleware(deps.Auth, deps.Config.Auth.CookieName, deps.Logger)

	mux := http.NewServeMux()
	public := func(pattern string, h http.HandlerFunc, mws ...func(http.Handler) http.Handler) {
		mux.Handle(pattern, s.instrument(pattern, middleware.Chain(h, mws...)))
	}
	private := func(pattern string, h http.HandlerFunc) {
		public(pattern, h, rl.Handler, authn.Handler)
	}

	// Health check
	public("GET /health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		if deps.Gatherer != nil {
			mux.Handle("GET "+deps.Config.Metrics.Path, metrics.HandlerFor(deps.Gatherer))
		} else {
			mux.Handle("GET "+deps.Config.Metrics.Path, metrics.Handler())
		}
	}

	// Session
	public("POST /api/login", s.handleLogin, rl.LoginHandler)
	public("POST /api/auth/login", s.handleLogin, rl.LoginHandler)
	public("POST /api/logout", s.handleLogout)
	private("GET /api/me", s.handleMe)

	// Dashboard and analytics
	private("GET /api/dashboard", s.handleDashboard)
	private("GET /api/analytics/daily", s.handleDailySeries)
	private("GET /api/analytics/campaigns", s.handleLeaderboard)

	// Campaigns
	private("GET /api/campaigns", s.handleListCampaigns)
	private("POST /api/campaigns/{id}/toggle", s.handleToggleCampaign)

	// Sub-accounts
	private("GET /api/sub-accounts", s.handleListSubAccounts)
	private("POST /api/sub-accounts", s.handleCreateSubAccount)
	private("GET /api/sub-accounts/{id}", s.handleSubAccountDetail)
	private("PUT /api/sub-accounts/{id}/api-key", s.handleSetProviderKey)

	// Reports
	private("GET /api/reports", s.handleListReports)
	private("POST /api/reports/generate", s.handleGenerateReport)
	private("POST /api/reports/schedule", s.handleScheduleReport)
	private("GET /api/reports/scheduled", s.handleListSchedules)
	private("GET /api/reports/{id}", s.handleGetReport)
	private("GET /api/reports/{id}/download", s.handleDownloadReport)

	// Settings
	private("GET /api/settings", s.handleGetSettings)
	private("PUT /api/settings", s.handlePutSettings)
	private("PATCH /api/settings", s.handlePatchSettings)
	private("POST /api/settings/team/invite", s.handleInviteMember)
	private("DELETE /api/settings/team/{userId}", s.handleRemoveMember)
	private("POST /api/settings/api/regenerate", s.handleRegenerateAPIKey)
	private("PATCH /api/settings/api/webhook", s.handleSetWebhook)

	return middleware.Chain(mux,
		middleware.NewRecoveryMiddleware(deps.Logger).Handler,
		middleware.NewLoggingMiddleware(deps.Logger).Handler,
		middleware.NewCORSMiddleware(deps.Config.Server.AllowedOrigins).Handler,
	)
}

// instrument records request metrics under the route pattern so path
// parameters do not inflate label cardinality.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := middleware.NewStatusRecorder(w)
		next.ServeHTTP(rw, r)
		s.metrics.RecordHTTPRequest(r.Method, route, rw.Status, time.Since(start))
	})
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	checks := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "down"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	s.jsonStatus(w, code, map[string]any{"status": status, "checks": checks})
}

// ---- Helpers ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	s.jsonStatus(w, http.StatusOK, data)
}

func (s *Server) jsonStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	s.jsonStatus(w, code, map[string]string{"error": message})
}

// serviceError maps service sentinels to HTTP statuses. Anything unknown is
// logged and reported as a generic 500.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, portal.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		s.errorResponse(w, "not found", http.StatusNotFound)
	case errors.Is(err, portal.ErrValidation):
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, portal.ErrConflict):
		s.errorResponse(w, "already exists", http.StatusConflict)
	case errors.Is(err, portal.ErrReportNotReady):
		s.errorResponse(w, "report not ready", http.StatusConflict)
	case errors.Is(err, portal.ErrProviderUnavailable):
		s.logger.Warn("provider unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		s.errorResponse(w, "provider unavailable", http.StatusBadGateway)
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.errorResponse(w, "invalid email or password", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrUnauthorized):
		s.errorResponse(w, "unauthorized", http.StatusUnauthorized)
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("tenant_id", middleware.TenantIDFromContext(r.Context())),
			zap.Error(err),
		)
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}

// decode reads a JSON body, limited to 1 MiB.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

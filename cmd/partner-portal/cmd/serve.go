package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/radiusdt/partner-portal/internal/auth"
	"github.com/radiusdt/partner-portal/internal/httpserver"
	"github.com/radiusdt/partner-portal/internal/middleware"
	"github.com/radiusdt/partner-portal/internal/portal"
	"github.com/radiusdt/partner-portal/internal/queue"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Start the partner portal API. Runs pending migrations and seeds demo data when configured.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides PORTAL_HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	cfg, logger := a.cfg, a.logger
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	logger.Info("starting partner portal",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.Bool("postgres", a.db != nil),
	)

	if err := a.connectRedis(ctx); err != nil {
		return err
	}
	var sessions auth.SessionStore = auth.NewMemorySessionStore()
	if a.redis != nil {
		sessions = auth.NewRedisSessionStore(a.redis.Client, a.redis.Namespace("session"))
	} else {
		logger.Warn("Redis disabled, sessions are kept in memory")
	}

	if cfg.Seed.Demo {
		if err := a.seed(ctx); err != nil {
			return err
		}
	}

	var publisher portal.JobPublisher
	if cfg.Queue.URL != "" {
		p, err := queue.NewPublisher(cfg.Queue.URL, cfg.Queue.Exchange, logger)
		if err != nil {
			logger.Warn("report queue unavailable, reports are generated inline", zap.Error(err))
		} else {
			defer p.Close()
			publisher = p
		}
	}

	authSvc := auth.NewService(a.store.Tenants, sessions, auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL), logger)
	rateLimit := middleware.NewRateLimitMiddleware(cfg.RateLimit, a.metrics, logger)

	checks := map[string]httpserver.HealthCheck{}
	if a.db != nil {
		checks["postgres"] = a.db.Health
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Health
	}

	handler := httpserver.NewServer(&httpserver.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     a.metrics,
		Gatherer:    a.registry,
		Auth:        authSvc,
		Tenants:     a.store.Tenants,
		Reporting:   a.reporting,
		Campaigns:   portal.NewCampaignService(a.store.SubAccounts, a.store.Campaigns, a.resolver, a.live, a.metrics, logger),
		SubAccounts: portal.NewSubAccountService(a.store.SubAccounts, logger),
		Reports:     a.reportService(publisher),
		Settings:    portal.NewSettingsService(a.store.Tenants, a.store.Team, a.store.APIKeys, logger),
		RateLimit:   rateLimit,
		Checks:      checks,
	})

	go a.housekeeping(ctx, rateLimit)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}

// housekeeping prunes idle rate limiters and publishes pool stats until ctx
// is done.
func (a *app) housekeeping(ctx context.Context, rl *middleware.RateLimitMiddleware) {
	cleanup := time.NewTicker(10 * time.Minute)
	defer cleanup.Stop()
	stats := time.NewTicker(15 * time.Second)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanup.C:
			rl.CleanupIPLimiters(30 * time.Minute)
		case <-stats.C:
			if a.db != nil {
				s := a.db.Stats()
				a.metrics.UpdateDBStats(int(s.IdleConns()), int(s.AcquiredConns()), int(s.TotalConns()))
			}
		}
	}
}

package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/radiusdt/partner-portal/internal/config"
	"github.com/radiusdt/partner-portal/internal/database"
	"github.com/radiusdt/partner-portal/internal/metrics"
	"github.com/radiusdt/partner-portal/internal/middleware"
	"github.com/radiusdt/partner-portal/internal/portal"
	"github.com/radiusdt/partner-portal/internal/provider"
	"github.com/radiusdt/partner-portal/internal/storage"
	"github.com/radiusdt/partner-portal/internal/webhook"
	"go.uber.org/zap"
)

// app holds the process-wide dependencies shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	db       *database.PostgresDB
	redis    *database.RedisDB
	store    *storage.Store

	reporting *portal.ReportingService
	resolver  *portal.SourceResolver
	live      *portal.LiveSource
	notifier  *webhook.Notifier
}

// newApp loads configuration, builds the logger and opens the store.
// PostgreSQL is used when enabled; otherwise everything lives in memory.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics.NewMetrics("portal", reg),
	}

	if cfg.Database.Enabled {
		a.db, err = database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.store = storage.NewPostgresStore(a.db.Pool)
	} else {
		logger.Warn("PostgreSQL disabled, using in-memory storage")
		a.store = storage.NewMemoryStore()
	}

	a.live = portal.NewLiveSource(provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.Timeout, logger), a.metrics, logger)
	a.resolver = portal.NewSourceResolver(portal.NewStoredSource(a.store.Metrics, a.store.Campaigns), a.live)
	a.reporting = portal.NewReportingService(a.store.SubAccounts, a.resolver, a.metrics, logger)
	return a, nil
}

// connectRedis opens Redis when enabled.
func (a *app) connectRedis(ctx context.Context) error {
	if !a.cfg.Redis.Enabled {
		return nil
	}
	r, err := database.NewRedisDB(ctx, a.cfg.Redis, a.logger)
	if err != nil {
		return err
	}
	a.redis = r
	return nil
}

func (a *app) migrate(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	applied, err := database.Migrate(ctx, a.db.Pool, a.logger)
	if err != nil {
		return err
	}
	a.logger.Info("database schema up to date", zap.Int("version", applied))
	return nil
}

func (a *app) seed(ctx context.Context) error {
	seeded, err := portal.NewSeeder(a.store, a.logger, 42).SeedDemo(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed demo data: %w", err)
	}
	if !seeded {
		a.logger.Info("store already has tenants, demo seed skipped")
	}
	return nil
}

// reportService builds the report service shared by serve and worker. A nil
// publisher means reports are generated inline.
func (a *app) reportService(publisher portal.JobPublisher) *portal.ReportService {
	svc := portal.NewReportService(a.store.Reports, a.store.Schedules, a.store.SubAccounts, a.reporting, publisher, a.metrics, a.logger)
	if a.cfg.Webhook.Enabled {
		a.notifier = webhook.NewNotifier(a.store.APIKeys, a.cfg.Webhook.Timeout, a.metrics, a.logger)
		svc.SetNotifier(a.notifier)
	}
	return svc
}

// close drains pending webhook deliveries before releasing the stores they read.
func (a *app) close() {
	if a.notifier != nil {
		a.notifier.Wait()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/partner-portal/internal/config"
	"go.uber.org/zap"
)

const applicationName = "partner-portal"

// PostgresDB is the portal's connection pool. The schema is brought up to
// date on connect when auto-migrate is enabled.
type PostgresDB struct {
	Pool   *pgxpool.Pool
	logger *zap.Logger
}

// Querier is the subset of a pool used for schema checks.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// poolConfig maps portal settings onto pgx. Sessions run in UTC because
// metric days are UTC calendar dates.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pc.MaxConns = int32(cfg.MaxConns)
	pc.MinConns = int32(cfg.MinConns)
	pc.MaxConnLifetime = time.Hour
	pc.MaxConnIdleTime = 30 * time.Minute
	pc.HealthCheckPeriod = time.Minute
	pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	pc.ConnConfig.RuntimeParams["timezone"] = "UTC"
	return pc, nil
}

// NewPostgresDB opens the pool and, with AutoMigrate set, applies pending
// migrations before returning.
func NewPostgresDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresDB, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName),
		zap.Int("max_conns", cfg.MaxConns),
	)

	if cfg.AutoMigrate {
		version, err := Migrate(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("database schema up to date", zap.Int("version", version))
	}

	return &PostgresDB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection pool.
func (db *PostgresDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("PostgreSQL connection pool closed")
	}
}

// Health reports the database unhealthy when it is unreachable or its schema
// is behind the migrations compiled into this binary.
func (db *PostgresDB) Health(ctx context.Context) error {
	return CheckSchema(ctx, db.Pool)
}

// SchemaVersion returns the highest applied migration, 0 for a fresh
// database.
func SchemaVersion(ctx context.Context, q Querier) (int, error) {
	var v int
	if err := q.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// CheckSchema fails unless every known migration has been applied.
func CheckSchema(ctx context.Context, q Querier) error {
	v, err := SchemaVersion(ctx, q)
	if err != nil {
		return err
	}
	if want := len(Migrations); v < want {
		return fmt.Errorf("schema at version %d, want %d: run partner-portal migrate", v, want)
	}
	return nil
}

// Stats returns connection pool statistics.
func (db *PostgresDB) Stats() *pgxpool.Stat {
	return db.Pool.Stat()
}

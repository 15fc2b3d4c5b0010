package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Migration is one forward-only schema step.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations is the ordered schema history. Append only; never edit a
// released step.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "tenants",
		SQL: `
CREATE TABLE tenants (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	name          TEXT NOT NULL,
	logo_url      TEXT,
	contact_email TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	notifications JSONB NOT NULL DEFAULT '{}',
	white_label   JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_login_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX tenants_email_key ON tenants (lower(email));

CREATE TABLE team_members (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL REFERENCES tenants(id),
	name       TEXT NOT NULL,
	email      TEXT NOT NULL,
	role       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, email)
);

CREATE TABLE tenant_api_keys (
	tenant_id   TEXT PRIMARY KEY REFERENCES tenants(id),
	api_key     TEXT NOT NULL UNIQUE,
	webhook_url TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Version: 2,
		Name:    "sub_accounts_campaigns",
		SQL: `
CREATE TABLE sub_accounts (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL REFERENCES tenants(id),
	company_name     TEXT NOT NULL,
	status           TEXT NOT NULL CHECK (status IN ('active', 'onboarding')),
	provider_api_key TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX sub_accounts_tenant_idx ON sub_accounts (tenant_id);

CREATE TABLE campaigns (
	id             TEXT PRIMARY KEY,
	sub_account_id TEXT NOT NULL REFERENCES sub_accounts(id),
	name           TEXT NOT NULL,
	status         TEXT NOT NULL CHECK (status IN ('active', 'paused')),
	inbox_count    INTEGER NOT NULL DEFAULT 0,
	daily_limit    INTEGER NOT NULL DEFAULT 0,
	sent           BIGINT NOT NULL DEFAULT 0,
	opens          BIGINT NOT NULL DEFAULT 0,
	replies        BIGINT NOT NULL DEFAULT 0,
	start_date     DATE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX campaigns_sub_account_idx ON campaigns (sub_account_id);`,
	},
	{
		Version: 3,
		Name:    "daily_metrics",
		SQL: `
CREATE TABLE daily_metrics (
	sub_account_id TEXT NOT NULL REFERENCES sub_accounts(id),
	metric_date    DATE NOT NULL,
	sent           BIGINT NOT NULL DEFAULT 0,
	opens          BIGINT NOT NULL DEFAULT 0,
	replies        BIGINT NOT NULL DEFAULT 0,
	bounces        BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (sub_account_id, metric_date)
);`,
	},
	{
		Version: 4,
		Name:    "reports",
		SQL: `
CREATE TABLE reports (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL REFERENCES tenants(id),
	name            TEXT NOT NULL,
	report_type     TEXT NOT NULL,
	start_date      DATE NOT NULL,
	end_date        DATE NOT NULL,
	sub_account_ids TEXT[] NOT NULL DEFAULT '{}',
	format          TEXT NOT NULL,
	status          TEXT NOT NULL,
	totals          JSONB,
	error           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	ready_at        TIMESTAMPTZ
);
CREATE INDEX reports_tenant_idx ON reports (tenant_id, created_at DESC);

CREATE TABLE scheduled_reports (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL REFERENCES tenants(id),
	report_type  TEXT NOT NULL,
	frequency    TEXT NOT NULL,
	day_of_month INTEGER NOT NULL DEFAULT 0,
	recipients   TEXT[] NOT NULL,
	format       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
}

// Migrator is the subset of *pgxpool.Pool needed to run migrations.
type Migrator interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migrate applies every migration newer than the recorded schema version,
// each in its own transaction. It returns the resulting version.
func Migrate(ctx context.Context, db Migrator, logger *zap.Logger) (int, error) {
	if _, err := db.Exec(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return 0, err
	}

	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return current, err
		}
		current = m.Version
		logger.Info("applied migration",
			zap.Int("version", m.Version),
			zap.String("name", m.Name),
		)
	}

	return current, nil
}

func apply(ctx context.Context, db Migrator, m Migration) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("migration %d: failed to begin transaction: %w", m.Version, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return fmt.Errorf("migration %d: failed to record version: %w", m.Version, err)
	}
	return tx.Commit(ctx)
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/radiusdt/partner-portal/internal/models"
)

// DB is the subset of *pgxpool.Pool used by the Postgres repositories.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewPostgresStore returns a Store backed by PostgreSQL. The schema is
// created by database.Migrate.
func NewPostgresStore(db DB) *Store {
	return &Store{
		Tenants:     NewPostgresTenantRepo(db),
		Team:        NewPostgresTeamRepo(db),
		APIKeys:     NewPostgresAPIKeyRepo(db),
		SubAccounts: NewPostgresSubAccountRepo(db),
		Campaigns:   NewPostgresCampaignRepo(db),
		Metrics:     NewPostgresMetricRepo(db),
		Reports:     NewPostgresReportRepo(db),
		Schedules:   NewPostgresScheduleRepo(db),
	}
}

const uniqueViolation = "23505"

// mapError translates driver errors into storage sentinels.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// requireRow turns a zero-row command tag into ErrNotFound.
func requireRow(tag pgconn.CommandTag, err error, op string) error {
	if err != nil {
		return mapError(err, op)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================
// TENANTS
// =============================================

// PostgresTenantRepo implements TenantRepo using PostgreSQL.
type PostgresTenantRepo struct {
	db DB
}

func NewPostgresTenantRepo(db DB) *PostgresTenantRepo {
	return &PostgresTenantRepo{db: db}
}

const tenantColumns = `id, email, password_hash, name, logo_url, contact_email, phone,
	notifications, white_label, created_at, last_login_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	var notifJSON, wlJSON []byte
	if err := row.Scan(
		&t.ID, &t.Email, &t.PasswordHash, &t.Name, &t.LogoURL, &t.ContactEmail, &t.Phone,
		&notifJSON, &wlJSON, &t.CreatedAt, &t.LastLoginAt,
	); err != nil {
		return nil, err
	}
	if len(notifJSON) > 0 {
		if err := json.Unmarshal(notifJSON, &t.Notifications); err != nil {
			return nil, fmt.Errorf("failed to parse notifications: %w", err)
		}
	}
	if len(wlJSON) > 0 {
		if err := json.Unmarshal(wlJSON, &t.WhiteLabel); err != nil {
			return nil, fmt.Errorf("failed to parse white label: %w", err)
		}
	}
	return &t, nil
}

func (r *PostgresTenantRepo) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	t, err := scanTenant(r.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "get tenant")
	}
	return t, nil
}

func (r *PostgresTenantRepo) GetByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	t, err := scanTenant(r.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, mapError(err, "get tenant by email")
	}
	return t, nil
}

func tenantPrefs(t *models.Tenant) (string, string, error) {
	notif, err := json.Marshal(t.Notifications)
	if err != nil {
		return "", "", err
	}
	wl, err := json.Marshal(t.WhiteLabel)
	if err != nil {
		return "", "", err
	}
	return string(notif), string(wl), nil
}

func (r *PostgresTenantRepo) Create(ctx context.Context, t *models.Tenant) error {
	notif, wl, err := tenantPrefs(t)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO tenants (id, email, password_hash, name, logo_url, contact_email, phone,
			notifications, white_label, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10)
	`, t.ID, t.Email, t.PasswordHash, t.Name, t.LogoURL, t.ContactEmail, t.Phone, notif, wl, t.CreatedAt)
	return mapError(err, "create tenant")
}

func (r *PostgresTenantRepo) Update(ctx context.Context, t *models.Tenant) error {
	notif, wl, err := tenantPrefs(t)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE tenants SET name = $2, logo_url = $3, contact_email = $4, phone = $5,
			notifications = $6::jsonb, white_label = $7::jsonb
		WHERE id = $1
	`, t.ID, t.Name, t.LogoURL, t.ContactEmail, t.Phone, notif, wl)
	return requireRow(tag, err, "update tenant")
}

func (r *PostgresTenantRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE tenants SET last_login_at = $2 WHERE id = $1`, id, at.UTC())
	return requireRow(tag, err, "update last login")
}

func (r *PostgresTenantRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM tenants`).Scan(&n); err != nil {
		return 0, mapError(err, "count tenants")
	}
	return n, nil
}

// =============================================
// TEAM MEMBERS & API KEYS
// =============================================

// PostgresTeamRepo implements TeamRepo using PostgreSQL.
type PostgresTeamRepo struct {
	db DB
}

func NewPostgresTeamRepo(db DB) *PostgresTeamRepo {
	return &PostgresTeamRepo{db: db}
}

func (r *PostgresTeamRepo) ListByTenant(ctx context.Context, tenantID string) ([]*models.TeamMember, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, name, email, role, created_at
		FROM team_members WHERE tenant_id = $1 ORDER BY created_at, id
	`, tenantID)
	if err != nil {
		return nil, mapError(err, "list team members")
	}
	defer rows.Close()

	res := make([]*models.TeamMember, 0)
	for rows.Next() {
		var m models.TeamMember
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &m.Email, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, &m)
	}
	return res, rows.Err()
}

func (r *PostgresTeamRepo) Create(ctx context.Context, m *models.TeamMember) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO team_members (id, tenant_id, name, email, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.TenantID, m.Name, m.Email, m.Role, m.CreatedAt)
	return mapError(err, "create team member")
}

func (r *PostgresTeamRepo) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM team_members WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return requireRow(tag, err, "delete team member")
}

// PostgresAPIKeyRepo implements APIKeyRepo using PostgreSQL.
type PostgresAPIKeyRepo struct {
	db DB
}

func NewPostgresAPIKeyRepo(db DB) *PostgresAPIKeyRepo {
	return &PostgresAPIKeyRepo{db: db}
}

func (r *PostgresAPIKeyRepo) Get(ctx context.Context, tenantID string) (*models.TenantAPIKey, error) {
	var k models.TenantAPIKey
	err := r.db.QueryRow(ctx, `
		SELECT tenant_id, api_key, webhook_url, created_at FROM tenant_api_keys WHERE tenant_id = $1
	`, tenantID).Scan(&k.TenantID, &k.APIKey, &k.WebhookURL, &k.CreatedAt)
	if err != nil {
		return nil, mapError(err, "get api key")
	}
	return &k, nil
}

func (r *PostgresAPIKeyRepo) Upsert(ctx context.Context, k *models.TenantAPIKey) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tenant_api_keys (tenant_id, api_key, webhook_url, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id) DO UPDATE SET
			api_key = EXCLUDED.api_key,
			webhook_url = EXCLUDED.webhook_url
	`, k.TenantID, k.APIKey, k.WebhookURL, k.CreatedAt)
	return mapError(err, "upsert api key")
}

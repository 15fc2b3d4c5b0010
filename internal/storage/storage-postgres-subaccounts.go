package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/radiusdt/partner-portal/internal/models"
)

// PostgresSubAccountRepo implements SubAccountRepo using PostgreSQL.
type PostgresSubAccountRepo struct {
	db DB
}

func NewPostgresSubAccountRepo(db DB) *PostgresSubAccountRepo {
	return &PostgresSubAccountRepo{db: db}
}

const subAccountColumns = `id, tenant_id, company_name, status, COALESCE(provider_api_key, ''), created_at`

func scanSubAccount(row pgx.Row) (*models.SubAccount, error) {
	var s models.SubAccount
	if err := row.Scan(&s.ID, &s.TenantID, &s.CompanyName, &s.Status, &s.ProviderAPIKey, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresSubAccountRepo) ListByTenant(ctx context.Context, tenantID string) ([]*models.SubAccount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+subAccountColumns+`
		FROM sub_accounts WHERE tenant_id = $1 ORDER BY created_at, id
	`, tenantID)
	if err != nil {
		return nil, mapError(err, "list sub-accounts")
	}
	defer rows.Close()

	res := make([]*models.SubAccount, 0)
	for rows.Next() {
		s, err := scanSubAccount(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *PostgresSubAccountRepo) GetForTenant(ctx context.Context, tenantID, id string) (*models.SubAccount, error) {
	s, err := scanSubAccount(r.db.QueryRow(ctx, `
		SELECT `+subAccountColumns+`
		FROM sub_accounts WHERE id = $1 AND tenant_id = $2
	`, id, tenantID))
	if err != nil {
		return nil, mapError(err, "get sub-account")
	}
	return s, nil
}

func (r *PostgresSubAccountRepo) Create(ctx context.Context, s *models.SubAccount) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sub_accounts (id, tenant_id, company_name, status, provider_api_key, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`, s.ID, s.TenantID, s.CompanyName, s.Status, s.ProviderAPIKey, s.CreatedAt)
	return mapError(err, "create sub-account")
}

func (r *PostgresSubAccountRepo) UpdateProviderKey(ctx context.Context, tenantID, id, apiKey string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sub_accounts SET provider_api_key = NULLIF($3, '')
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, apiKey)
	return requireRow(tag, err, "update provider key")
}

// PostgresCampaignRepo implements CampaignRepo using PostgreSQL.
type PostgresCampaignRepo struct {
	db DB
}

func NewPostgresCampaignRepo(db DB) *PostgresCampaignRepo {
	return &PostgresCampaignRepo{db: db}
}

const campaignColumns = `c.id, c.sub_account_id, c.name, c.status, c.inbox_count, c.daily_limit,
	c.sent, c.opens, c.replies, COALESCE(c.start_date::text, ''), c.created_at, c.updated_at`

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	if err := row.Scan(
		&c.ID, &c.SubAccountID, &c.Name, &c.Status, &c.InboxCount, &c.DailyLimit,
		&c.Sent, &c.Opens, &c.Replies, &c.StartDate, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresCampaignRepo) ListBySubAccount(ctx context.Context, subAccountID string) ([]*models.Campaign, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns c WHERE c.sub_account_id = $1 ORDER BY c.id
	`, subAccountID)
	if err != nil {
		return nil, mapError(err, "list campaigns")
	}
	defer rows.Close()

	res := make([]*models.Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *PostgresCampaignRepo) GetForTenant(ctx context.Context, tenantID, id string) (*models.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRow(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns c
		JOIN sub_accounts s ON s.id = c.sub_account_id
		WHERE c.id = $1 AND s.tenant_id = $2
	`, id, tenantID))
	if err != nil {
		return nil, mapError(err, "get campaign")
	}
	return c, nil
}

func (r *PostgresCampaignRepo) Upsert(ctx context.Context, c *models.Campaign) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO campaigns (id, sub_account_id, name, status, inbox_count, daily_limit,
			sent, opens, replies, start_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, '')::date, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			inbox_count = EXCLUDED.inbox_count,
			daily_limit = EXCLUDED.daily_limit,
			sent = EXCLUDED.sent,
			opens = EXCLUDED.opens,
			replies = EXCLUDED.replies,
			start_date = EXCLUDED.start_date,
			updated_at = EXCLUDED.updated_at
	`, c.ID, c.SubAccountID, c.Name, c.Status, c.InboxCount, c.DailyLimit,
		c.Sent, c.Opens, c.Replies, c.StartDate, c.CreatedAt, c.UpdatedAt)
	return mapError(err, "upsert campaign")
}

func (r *PostgresCampaignRepo) UpdateStatus(ctx context.Context, id, status string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE campaigns SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	return requireRow(tag, err, "update campaign status")
}

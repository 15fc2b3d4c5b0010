package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil, "op"))
	assert.ErrorIs(t, mapError(pgx.ErrNoRows, "op"), ErrNotFound)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: uniqueViolation}, "op"), ErrConflict)

	err := mapError(errors.New("boom"), "load thing")
	assert.EqualError(t, err, "failed to load thing: boom")
}

func TestPostgresTenantRepo_GetByEmail(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresTenantRepo(mock)

	logo := "https://cdn.test/logo.png"
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lastLogin := created.Add(24 * time.Hour)

	mock.ExpectQuery("FROM tenants WHERE lower\\(email\\)").
		WithArgs("demo@agency.com").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "email", "password_hash", "name", "logo_url", "contact_email", "phone",
			"notifications", "white_label", "created_at", "last_login_at",
		}).AddRow(
			"partner_001", "demo@agency.com", "hash", "Demo Agency", &logo, "team@demo.test", "+1",
			[]byte(`{"emailAlerts":true}`), []byte(`{"primaryColor":"#7C50F9"}`), created, &lastLogin,
		))

	tenant, err := repo.GetByEmail(context.Background(), "demo@agency.com")
	require.NoError(t, err)
	assert.Equal(t, "partner_001", tenant.ID)
	require.NotNil(t, tenant.LogoURL)
	assert.Equal(t, logo, *tenant.LogoURL)
	assert.True(t, tenant.Notifications.EmailAlerts)
	assert.Equal(t, "#7C50F9", tenant.WhiteLabel.PrimaryColor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTenantRepo_NotFoundAndConflict(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresTenantRepo(mock)
	ctx := context.Background()

	mock.ExpectQuery("FROM tenants WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err := repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO tenants").
		WithArgs("t1", "a@b.test", "hash", "Agency", (*string)(nil), "", "",
			pgxmock.AnyArg(), pgxmock.AnyArg(), created).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})
	err = repo.Create(ctx, &models.Tenant{ID: "t1", Email: "a@b.test", PasswordHash: "hash", Name: "Agency", CreatedAt: created})
	assert.ErrorIs(t, err, ErrConflict)

	at := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE tenants SET last_login_at").
		WithArgs("missing", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.TouchLastLogin(ctx, "missing", at), ErrNotFound)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tenants").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTeamRepo_DeleteScopedByTenant(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresTeamRepo(mock)

	mock.ExpectExec("DELETE FROM team_members").
		WithArgs("u1", "t2").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "t2", "u1"), ErrNotFound)

	mock.ExpectExec("DELETE FROM team_members").
		WithArgs("u1", "t1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	assert.NoError(t, repo.Delete(context.Background(), "t1", "u1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSubAccountRepo_ListByTenant(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresSubAccountRepo(mock)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM sub_accounts WHERE tenant_id").
		WithArgs("t1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "company_name", "status", "provider_api_key", "created_at"}).
			AddRow("s1", "t1", "Acme", models.SubAccountActive, "", created).
			AddRow("s2", "t1", "Live Co", models.SubAccountActive, "key", created.Add(time.Minute)))

	subs, err := repo.ListByTenant(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.False(t, subs[0].IsLive())
	assert.True(t, subs[1].IsLive())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSubAccountRepo_CreateConflict(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresSubAccountRepo(mock)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO sub_accounts").
		WithArgs("s1", "t1", "Acme", models.SubAccountOnboarding, "", created).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	err := repo.Create(context.Background(), &models.SubAccount{
		ID: "s1", TenantID: "t1", CompanyName: "Acme", Status: models.SubAccountOnboarding, CreatedAt: created,
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSubAccountRepo_UpdateProviderKeyNotOwned(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresSubAccountRepo(mock)

	mock.ExpectExec("UPDATE sub_accounts SET provider_api_key").
		WithArgs("s1", "t2", "key").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateProviderKey(context.Background(), "t2", "s1", "key")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCampaignRepo_GetForTenant(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresCampaignRepo(mock)
	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("JOIN sub_accounts s ON s.id = c.sub_account_id").
		WithArgs("c1", "t1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "sub_account_id", "name", "status", "inbox_count", "daily_limit",
			"sent", "opens", "replies", "start_date", "created_at", "updated_at",
		}).AddRow("c1", "s1", "Q1 Outreach", models.CampaignActive, 3, 120,
			int64(1000), int64(520), int64(90), "2026-01-01", now, now))

	c, err := repo.GetForTenant(context.Background(), "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Q1 Outreach", c.Name)
	assert.Equal(t, 3, c.InboxCount)
	assert.Equal(t, int64(520), c.Opens)

	mock.ExpectQuery("JOIN sub_accounts s ON s.id = c.sub_account_id").
		WithArgs("c1", "t2").
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetForTenant(context.Background(), "t2", "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetricRepo_Range(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresMetricRepo(mock)

	dr, err := models.NewDateRange("2026-01-30", "2026-02-02")
	require.NoError(t, err)

	mock.ExpectQuery("FROM daily_metrics").
		WithArgs("s1", "2026-01-30", "2026-02-02").
		WillReturnRows(pgxmock.NewRows([]string{"sub_account_id", "metric_date", "sent", "opens", "replies", "bounces"}).
			AddRow("s1", "2026-01-31", int64(100), int64(50), int64(9), int64(2)).
			AddRow("s1", "2026-02-01", int64(200), int64(110), int64(20), int64(3)))

	rows, err := repo.Range(context.Background(), "s1", dr)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-02-01", rows[1].Date)
	assert.Equal(t, int64(110), rows[1].Opens)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetricRepo_UpsertInTransaction(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresMetricRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO daily_metrics").
		WithArgs("s1", "2026-02-01", int64(100), int64(50), int64(9), int64(2)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO daily_metrics").
		WithArgs("s1", "2026-02-02", int64(10), int64(5), int64(1), int64(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repo.Upsert(context.Background(), []models.DailyMetric{
		{SubAccountID: "s1", Date: "2026-02-01", Sent: 100, Opens: 50, Replies: 9, Bounces: 2},
		{SubAccountID: "s1", Date: "2026-02-02", Sent: 10, Opens: 5, Replies: 1},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetricRepo_UpsertRollsBackOnFailure(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresMetricRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO daily_metrics").
		WithArgs("s1", "2026-02-01", int64(1), int64(0), int64(0), int64(0)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Upsert(context.Background(), []models.DailyMetric{{SubAccountID: "s1", Date: "2026-02-01", Sent: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetricRepo_UpsertValidatesBeforeWriting(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresMetricRepo(mock)

	err := repo.Upsert(context.Background(), []models.DailyMetric{{SubAccountID: "s1", Date: "yesterday"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.NoError(t, repo.Upsert(context.Background(), nil))
}

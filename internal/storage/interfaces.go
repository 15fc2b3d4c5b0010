package storage

import (
	"context"
	"errors"
	"time"

	"github.com/radiusdt/partner-portal/internal/models"
)

// ErrNotFound is returned when a row does not exist or is not owned by the
// requesting tenant. Callers must not distinguish the two cases.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint would be violated.
var ErrConflict = errors.New("conflict")

// =============================================
// TENANT REPOSITORY
// =============================================

// TenantRepo defines operations for tenant storage.
type TenantRepo interface {
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
	GetByEmail(ctx context.Context, email string) (*models.Tenant, error)
	Create(ctx context.Context, t *models.Tenant) error
	Update(ctx context.Context, t *models.Tenant) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	Count(ctx context.Context) (int, error)
}

// TeamRepo defines operations for tenant team members.
type TeamRepo interface {
	ListByTenant(ctx context.Context, tenantID string) ([]*models.TeamMember, error)
	Create(ctx context.Context, m *models.TeamMember) error
	Delete(ctx context.Context, tenantID, id string) error
}

// APIKeyRepo stores the single partner API key row per tenant.
type APIKeyRepo interface {
	Get(ctx context.Context, tenantID string) (*models.TenantAPIKey, error)
	Upsert(ctx context.Context, k *models.TenantAPIKey) error
}

// =============================================
// SUB-ACCOUNT REPOSITORY
// =============================================

// SubAccountRepo defines operations for sub-account storage. Every read is
// scoped by tenant.
type SubAccountRepo interface {
	ListByTenant(ctx context.Context, tenantID string) ([]*models.SubAccount, error)
	GetForTenant(ctx context.Context, tenantID, id string) (*models.SubAccount, error)
	Create(ctx context.Context, s *models.SubAccount) error
	UpdateProviderKey(ctx context.Context, tenantID, id, apiKey string) error
}

// =============================================
// CAMPAIGN REPOSITORY
// =============================================

// CampaignRepo defines operations for campaign storage.
type CampaignRepo interface {
	ListBySubAccount(ctx context.Context, subAccountID string) ([]*models.Campaign, error)
	// GetForTenant resolves a campaign through its sub-account's owner.
	GetForTenant(ctx context.Context, tenantID, id string) (*models.Campaign, error)
	Upsert(ctx context.Context, c *models.Campaign) error
	UpdateStatus(ctx context.Context, id, status string) error
}

// =============================================
// METRIC REPOSITORY
// =============================================

// MetricRepo stores daily metrics keyed by (sub-account, date).
type MetricRepo interface {
	// Range returns the sub-account's rows inside r, ascending by date.
	Range(ctx context.Context, subAccountID string, r models.DateRange) ([]models.DailyMetric, error)
	// Upsert inserts rows, replacing counters on (sub-account, date) conflict.
	Upsert(ctx context.Context, rows []models.DailyMetric) error
}

// =============================================
// REPORT REPOSITORIES
// =============================================

// ReportRepo stores generated report records.
type ReportRepo interface {
	Create(ctx context.Context, r *models.Report) error
	GetForTenant(ctx context.Context, tenantID, id string) (*models.Report, error)
	// GetByID is unscoped and reserved for background workers.
	GetByID(ctx context.Context, id string) (*models.Report, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.Report, error)
	Update(ctx context.Context, r *models.Report) error
}

// ScheduleRepo stores scheduled report definitions.
type ScheduleRepo interface {
	Create(ctx context.Context, s *models.ScheduledReport) error
	ListByTenant(ctx context.Context, tenantID string) ([]*models.ScheduledReport, error)
}

// Store bundles every repository behind one value so callers can swap the
// backing implementation in one place.
type Store struct {
	Tenants     TenantRepo
	Team        TeamRepo
	APIKeys     APIKeyRepo
	SubAccounts SubAccountRepo
	Campaigns   CampaignRepo
	Metrics     MetricRepo
	Reports     ReportRepo
	Schedules   ScheduleRepo
}

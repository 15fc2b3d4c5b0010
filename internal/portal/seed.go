package portal

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/radiusdt/partner-portal/internal/auth"
	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/radiusdt/partner-portal/internal/storage"
	"go.uber.org/zap"
)

// Demo login.
const (
	DemoTenantID = "partner_001"
	DemoEmail    = "demo@agency.com"
	DemoPassword = "demo2026"
	demoHistory  = 90
)

type demoSubAccount struct {
	id        string
	name      string
	status    string
	campaigns []string
}

var demoSubAccounts = []demoSubAccount{
	{"sub_001", "Acme Corp", models.SubAccountActive, []string{"Q1 SaaS Outreach", "Product Launch Beta", "Enterprise ABM"}},
	{"sub_002", "TechStart Inc", models.SubAccountActive, []string{"Cold Email - Tech", "Follow-up Sequence", "Re-engagement"}},
	{"sub_003", "GrowthLabs", models.SubAccountOnboarding, []string{"Onboarding Campaign"}},
}

// Seeder loads demo data into an empty store.
type Seeder struct {
	store  *storage.Store
	logger *zap.Logger
	rng    *rand.Rand
	now    func() time.Time
}

// NewSeeder creates a Seeder. The same seed yields the same demo metrics.
func NewSeeder(store *storage.Store, logger *zap.Logger, seed int64) *Seeder {
	return &Seeder{
		store:  store,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
		now:    time.Now,
	}
}

// SeedDemo creates the demo tenant, its sub-accounts, campaigns and 90 days
// of metrics. It does nothing and returns false when any tenant exists.
func (s *Seeder) SeedDemo(ctx context.Context) (bool, error) {
	n, err := s.store.Tenants.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	now := s.now().UTC()
	hash, err := auth.HashPassword(DemoPassword)
	if err != nil {
		return false, err
	}

	tenant := &models.Tenant{
		ID:           DemoTenantID,
		Email:        DemoEmail,
		PasswordHash: hash,
		Name:         "Demo Agency",
		ContactEmail: "team@demo-agency.com",
		Phone:        "+1-555-0123",
		Notifications: models.NotificationPrefs{
			EmailAlerts:   true,
			WeeklySummary: true,
		},
		WhiteLabel: models.WhiteLabel{PrimaryColor: "#7C50F9"},
		CreatedAt:  now,
	}
	if err := s.store.Tenants.Create(ctx, tenant); err != nil {
		return false, fmt.Errorf("seed tenant: %w", err)
	}

	if err := s.store.Team.Create(ctx, &models.TeamMember{
		ID:        "user_001",
		TenantID:  DemoTenantID,
		Name:      "John Demo",
		Email:     "john@demo-agency.com",
		Role:      models.RoleAdmin,
		CreatedAt: now,
	}); err != nil {
		return false, fmt.Errorf("seed team: %w", err)
	}

	key, err := NewAPIKey()
	if err != nil {
		return false, err
	}
	if err := s.store.APIKeys.Upsert(ctx, &models.TenantAPIKey{TenantID: DemoTenantID, APIKey: key, CreatedAt: now}); err != nil {
		return false, fmt.Errorf("seed api key: %w", err)
	}

	for i, d := range demoSubAccounts {
		sub := &models.SubAccount{
			ID:          d.id,
			TenantID:    DemoTenantID,
			CompanyName: d.name,
			Status:      d.status,
			CreatedAt:   now.Add(time.Duration(i) * time.Second),
		}
		if err := s.store.SubAccounts.Create(ctx, sub); err != nil {
			return false, fmt.Errorf("seed sub-account %s: %w", d.id, err)
		}
		if err := s.store.Metrics.Upsert(ctx, s.demoMetrics(sub, now)); err != nil {
			return false, fmt.Errorf("seed metrics %s: %w", d.id, err)
		}
		for _, c := range s.demoCampaigns(sub, d.campaigns, now) {
			if err := s.store.Campaigns.Upsert(ctx, c); err != nil {
				return false, fmt.Errorf("seed campaign %s: %w", c.ID, err)
			}
		}
	}

	s.logger.Info("demo data seeded",
		zap.String("tenant_id", DemoTenantID),
		zap.String("email", DemoEmail),
		zap.Int("sub_accounts", len(demoSubAccounts)),
	)
	return true, nil
}

// demoMetrics generates one row per day for active sub-accounts: 100-399
// sent, 45-60% opens, 6-12% replies, 1-3% bounces. Onboarding sub-accounts
// get no rows.
func (s *Seeder) demoMetrics(sub *models.SubAccount, now time.Time) []models.DailyMetric {
	if sub.Status != models.SubAccountActive {
		return nil
	}
	rows := make([]models.DailyMetric, 0, demoHistory+1)
	for i := demoHistory; i >= 0; i-- {
		sent := int64(s.rng.Intn(300) + 100)
		rows = append(rows, models.DailyMetric{
			SubAccountID: sub.ID,
			Date:         now.AddDate(0, 0, -i).Format(models.DateLayout),
			Sent:         sent,
			Opens:        int64(float64(sent) * (0.45 + s.rng.Float64()*0.15)),
			Replies:      int64(float64(sent) * (0.06 + s.rng.Float64()*0.06)),
			Bounces:      int64(float64(sent) * (0.01 + s.rng.Float64()*0.02)),
		})
	}
	return rows
}

// demoCampaigns makes the first two campaigns of an active sub-account
// active with 500-2499 sent; the rest are paused and empty.
func (s *Seeder) demoCampaigns(sub *models.SubAccount, names []string, now time.Time) []*models.Campaign {
	out := make([]*models.Campaign, 0, len(names))
	for idx, name := range names {
		active := sub.Status == models.SubAccountActive && idx < 2
		var sent int64
		status := models.CampaignPaused
		if active {
			sent = int64(s.rng.Intn(2000) + 500)
			status = models.CampaignActive
		}
		inboxes := 2 + idx
		out = append(out, &models.Campaign{
			ID:           fmt.Sprintf("camp_%s_%d", sub.ID, idx),
			SubAccountID: sub.ID,
			Name:         name,
			Status:       status,
			InboxCount:   inboxes,
			DailyLimit:   inboxes * 40,
			Sent:         sent,
			Opens:        sent * 52 / 100,
			Replies:      sent * 9 / 100,
			StartDate:    now.AddDate(0, 0, -(30 + idx*15)).Format(models.DateLayout),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return out
}

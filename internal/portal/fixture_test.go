package portal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/radiusdt/partner-portal/internal/provider"
	"github.com/radiusdt/partner-portal/internal/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC)

// fakeProvider serves canned data per API key.
type fakeProvider struct {
	mu        sync.Mutex
	daily     map[string][]provider.DailyAnalytics
	campaigns map[string][]provider.Campaign
	analytics map[string]*provider.CampaignAnalytics
	failKeys  map[string]bool
	calls     []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		daily:     make(map[string][]provider.DailyAnalytics),
		campaigns: make(map[string][]provider.Campaign),
		analytics: make(map[string]*provider.CampaignAnalytics),
		failKeys:  make(map[string]bool),
	}
}

var errProviderDown = errors.New("provider down")

func (f *fakeProvider) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeProvider) DailyAnalytics(ctx context.Context, apiKey string, r models.DateRange) ([]provider.DailyAnalytics, error) {
	f.record("daily:" + apiKey)
	if f.failKeys[apiKey] {
		return nil, errProviderDown
	}
	return f.daily[apiKey], nil
}

func (f *fakeProvider) ListCampaigns(ctx context.Context, apiKey string, limit int) ([]provider.Campaign, error) {
	f.record("list:" + apiKey)
	if f.failKeys[apiKey] {
		return nil, errProviderDown
	}
	return f.campaigns[apiKey], nil
}

func (f *fakeProvider) GetCampaign(ctx context.Context, apiKey, id string) (*provider.Campaign, error) {
	f.record("get:" + apiKey + ":" + id)
	for _, c := range f.campaigns[apiKey] {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, provider.ErrNotFound
}

func (f *fakeProvider) CampaignAnalytics(ctx context.Context, apiKey, id string) (*provider.CampaignAnalytics, error) {
	f.record("analytics:" + id)
	if a, ok := f.analytics[id]; ok {
		return a, nil
	}
	return &provider.CampaignAnalytics{CampaignID: id}, nil
}

func (f *fakeProvider) setStatus(apiKey, id string, status provider.CampaignStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.campaigns[apiKey] {
		if f.campaigns[apiKey][i].ID == id {
			f.campaigns[apiKey][i].Status = status
		}
	}
}

func (f *fakeProvider) PauseCampaign(ctx context.Context, apiKey, id string) error {
	f.record("pause:" + id)
	if f.failKeys[apiKey] {
		return errProviderDown
	}
	f.setStatus(apiKey, id, models.CampaignPaused)
	return nil
}

func (f *fakeProvider) ActivateCampaign(ctx context.Context, apiKey, id string) error {
	f.record("activate:" + id)
	if f.failKeys[apiKey] {
		return errProviderDown
	}
	f.setStatus(apiKey, id, models.CampaignActive)
	return nil
}

type fixture struct {
	store     *storage.Store
	provider  *fakeProvider
	reporting *ReportingService
	campaigns *CampaignService
	subs      *SubAccountService
	reports   *ReportService
	settings  *SettingsService
}

// newFixture builds services over an in-memory store holding two tenants:
// tenant_a with sub_a1 (stored, metrics on 2026-02-01/02) and sub_a2 (empty),
// tenant_b with sub_b1.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	fp := newFakeProvider()
	logger := zap.NewNop()

	for _, id := range []string{"tenant_a", "tenant_b"} {
		require.NoError(t, store.Tenants.Create(ctx, &models.Tenant{
			ID:           id,
			Email:        id + "@example.com",
			PasswordHash: "hash",
			Name:         id,
			CreatedAt:    fixedNow,
		}))
	}
	subs := []*models.SubAccount{
		{ID: "sub_a1", TenantID: "tenant_a", CompanyName: "Acme Corp", Status: models.SubAccountActive, CreatedAt: fixedNow},
		{ID: "sub_a2", TenantID: "tenant_a", CompanyName: "GrowthLabs", Status: models.SubAccountOnboarding, CreatedAt: fixedNow.Add(time.Second)},
		{ID: "sub_b1", TenantID: "tenant_b", CompanyName: "Other Co", Status: models.SubAccountActive, CreatedAt: fixedNow},
	}
	for _, s := range subs {
		require.NoError(t, store.SubAccounts.Create(ctx, s))
	}
	require.NoError(t, store.Metrics.Upsert(ctx, []models.DailyMetric{
		{SubAccountID: "sub_a1", Date: "2026-02-01", Sent: 500, Opens: 260, Replies: 45, Bounces: 5},
		{SubAccountID: "sub_a1", Date: "2026-02-02", Sent: 520, Opens: 275, Replies: 48, Bounces: 6},
		{SubAccountID: "sub_a1", Date: "2026-01-20", Sent: 100, Opens: 10, Replies: 1, Bounces: 0},
		{SubAccountID: "sub_b1", Date: "2026-02-02", Sent: 999, Opens: 999, Replies: 999, Bounces: 0},
	}))
	for _, c := range []*models.Campaign{
		{ID: "camp_a1_0", SubAccountID: "sub_a1", Name: "Q1 Outreach", Status: models.CampaignActive, InboxCount: 3, Sent: 1000, Opens: 520, Replies: 90},
		{ID: "camp_a1_1", SubAccountID: "sub_a1", Name: "Beta", Status: models.CampaignActive, InboxCount: 2, Sent: 2000, Opens: 1200, Replies: 100},
		{ID: "camp_a1_2", SubAccountID: "sub_a1", Name: "ABM", Status: models.CampaignPaused, InboxCount: 4, Sent: 10, Opens: 10},
		{ID: "camp_b1_0", SubAccountID: "sub_b1", Name: "Secret", Status: models.CampaignActive, InboxCount: 1, Sent: 10, Opens: 9},
	} {
		require.NoError(t, store.Campaigns.Upsert(ctx, c))
	}

	live := NewLiveSource(fp, nil, logger)
	resolver := NewSourceResolver(NewStoredSource(store.Metrics, store.Campaigns), live)
	reporting := NewReportingService(store.SubAccounts, resolver, nil, logger)
	reporting.now = func() time.Time { return fixedNow }

	reports := NewReportService(store.Reports, store.Schedules, store.SubAccounts, reporting, nil, nil, logger)
	reports.now = reporting.now

	return &fixture{
		store:     store,
		provider:  fp,
		reporting: reporting,
		campaigns: NewCampaignService(store.SubAccounts, store.Campaigns, resolver, live, nil, logger),
		subs:      NewSubAccountService(store.SubAccounts, logger),
		reports:   reports,
		settings:  NewSettingsService(store.Tenants, store.Team, store.APIKeys, logger),
	}
}

// makeLive attaches a provider key to sub-account id.
func (f *fixture) makeLive(t *testing.T, tenantID, id, key string) {
	t.Helper()
	require.NoError(t, f.store.SubAccounts.UpdateProviderKey(context.Background(), tenantID, id, key))
}

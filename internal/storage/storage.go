package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/radiusdt/partner-portal/internal/models"
)

// In-memory implementations. They are used in development when PostgreSQL
// is not configured and throughout the tests. Values are copied on the way
// in and out so callers cannot mutate stored rows.

// NewMemoryStore returns a Store whose repositories keep everything in
// process memory.
func NewMemoryStore() *Store {
	subs := NewInMemorySubAccountRepo()
	return &Store{
		Tenants:     NewInMemoryTenantRepo(),
		Team:        NewInMemoryTeamRepo(),
		APIKeys:     NewInMemoryAPIKeyRepo(),
		SubAccounts: subs,
		Campaigns:   NewInMemoryCampaignRepo(subs),
		Metrics:     NewInMemoryMetricRepo(),
		Reports:     NewInMemoryReportRepo(),
		Schedules:   NewInMemoryScheduleRepo(),
	}
}

// InMemoryTenantRepo stores tenants in memory.
type InMemoryTenantRepo struct {
	mu      sync.RWMutex
	tenants map[string]*models.Tenant
}

func NewInMemoryTenantRepo() *InMemoryTenantRepo {
	return &InMemoryTenantRepo{tenants: make(map[string]*models.Tenant)}
}

func (r *InMemoryTenantRepo) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tenants[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (r *InMemoryTenantRepo) GetByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		if strings.EqualFold(t.Email, email) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryTenantRepo) Create(ctx context.Context, t *models.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[t.ID]; ok {
		return ErrConflict
	}
	for _, existing := range r.tenants {
		if strings.EqualFold(existing.Email, t.Email) {
			return ErrConflict
		}
	}
	cp := *t
	r.tenants[t.ID] = &cp
	return nil
}

func (r *InMemoryTenantRepo) Update(ctx context.Context, t *models.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[t.ID]; !ok {
		return ErrNotFound
	}
	cp := *t
	r.tenants[t.ID] = &cp
	return nil
}

func (r *InMemoryTenantRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	t.LastLoginAt = &at
	return nil
}

func (r *InMemoryTenantRepo) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tenants), nil
}

// InMemoryTeamRepo stores team members in memory.
type InMemoryTeamRepo struct {
	mu      sync.RWMutex
	members map[string]*models.TeamMember
}

func NewInMemoryTeamRepo() *InMemoryTeamRepo {
	return &InMemoryTeamRepo{members: make(map[string]*models.TeamMember)}
}

func (r *InMemoryTeamRepo) ListByTenant(ctx context.Context, tenantID string) ([]*models.TeamMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.TeamMember, 0)
	for _, m := range r.members {
		if m.TenantID == tenantID {
			cp := *m
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (r *InMemoryTeamRepo) Create(ctx context.Context, m *models.TeamMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.members {
		if existing.TenantID == m.TenantID && strings.EqualFold(existing.Email, m.Email) {
			return ErrConflict
		}
	}
	cp := *m
	r.members[m.ID] = &cp
	return nil
}

func (r *InMemoryTeamRepo) Delete(ctx context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok || m.TenantID != tenantID {
		return ErrNotFound
	}
	delete(r.members, id)
	return nil
}

// InMemoryAPIKeyRepo stores partner API keys in memory.
type InMemoryAPIKeyRepo struct {
	mu   sync.RWMutex
	keys map[string]*models.TenantAPIKey
}

func NewInMemoryAPIKeyRepo() *InMemoryAPIKeyRepo {
	return &InMemoryAPIKeyRepo{keys: make(map[string]*models.TenantAPIKey)}
}

func (r *InMemoryAPIKeyRepo) Get(ctx context.Context, tenantID string) (*models.TenantAPIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if k, ok := r.keys[tenantID]; ok {
		cp := *k
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (r *InMemoryAPIKeyRepo) Upsert(ctx context.Context, k *models.TenantAPIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *k
	if existing, ok := r.keys[k.TenantID]; ok && cp.CreatedAt.IsZero() {
		cp.CreatedAt = existing.CreatedAt
	}
	r.keys[k.TenantID] = &cp
	return nil
}

// InMemorySubAccountRepo stores sub-accounts in memory.
type InMemorySubAccountRepo struct {
	mu   sync.RWMutex
	subs map[string]*models.SubAccount
}

func NewInMemorySubAccountRepo() *InMemorySubAccountRepo {
	return &InMemorySubAccountRepo{subs: make(map[string]*models.SubAccount)}
}

func (r *InMemorySubAccountRepo) ListByTenant(ctx context.Context, tenantID string) ([]*models.SubAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.SubAccount, 0)
	for _, s := range r.subs {
		if s.TenantID == tenantID {
			cp := *s
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (r *InMemorySubAccountRepo) GetForTenant(ctx context.Context, tenantID, id string) (*models.SubAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	if !ok || s.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *InMemorySubAccountRepo) Create(ctx context.Context, s *models.SubAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[s.ID]; ok {
		return ErrConflict
	}
	cp := *s
	r.subs[s.ID] = &cp
	return nil
}

func (r *InMemorySubAccountRepo) UpdateProviderKey(ctx context.Context, tenantID, id, apiKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok || s.TenantID != tenantID {
		return ErrNotFound
	}
	s.ProviderAPIKey = apiKey
	return nil
}

// ownerOf returns the tenant owning the sub-account, or "".
func (r *InMemorySubAccountRepo) ownerOf(subAccountID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.subs[subAccountID]; ok {
		return s.TenantID
	}
	return ""
}

// InMemoryCampaignRepo stores campaigns in memory. It consults the
// sub-account repo to resolve ownership.
type InMemoryCampaignRepo struct {
	mu        sync.RWMutex
	campaigns map[string]*models.Campaign
	subs      *InMemorySubAccountRepo
}

func NewInMemoryCampaignRepo(subs *InMemorySubAccountRepo) *InMemoryCampaignRepo {
	return &InMemoryCampaignRepo{
		campaigns: make(map[string]*models.Campaign),
		subs:      subs,
	}
}

func (r *InMemoryCampaignRepo) ListBySubAccount(ctx context.Context, subAccountID string) ([]*models.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.Campaign, 0)
	for _, c := range r.campaigns {
		if c.SubAccountID == subAccountID {
			cp := *c
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r *InMemoryCampaignRepo) GetForTenant(ctx context.Context, tenantID, id string) (*models.Campaign, error) {
	r.mu.RLock()
	c, ok := r.campaigns[id]
	var cp models.Campaign
	if ok {
		cp = *c
	}
	r.mu.RUnlock()
	if !ok || r.subs.ownerOf(cp.SubAccountID) != tenantID {
		return nil, ErrNotFound
	}
	return &cp, nil
}

func (r *InMemoryCampaignRepo) Upsert(ctx context.Context, c *models.Campaign) error {
	if c == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *InMemoryCampaignRepo) UpdateStatus(ctx context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// InMemoryMetricRepo stores daily metrics keyed by sub-account then date.
type InMemoryMetricRepo struct {
	mu   sync.RWMutex
	rows map[string]map[string]models.DailyMetric
}

func NewInMemoryMetricRepo() *InMemoryMetricRepo {
	return &InMemoryMetricRepo{rows: make(map[string]map[string]models.DailyMetric)}
}

func (r *InMemoryMetricRepo) Range(ctx context.Context, subAccountID string, dr models.DateRange) ([]models.DailyMetric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]models.DailyMetric, 0)
	for date, m := range r.rows[subAccountID] {
		if dr.Contains(date) {
			res = append(res, m)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date < res[j].Date })
	return res, nil
}

func (r *InMemoryMetricRepo) Upsert(ctx context.Context, rows []models.DailyMetric) error {
	for i := range rows {
		if err := rows[i].Validate(); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range rows {
		byDate, ok := r.rows[m.SubAccountID]
		if !ok {
			byDate = make(map[string]models.DailyMetric)
			r.rows[m.SubAccountID] = byDate
		}
		byDate[m.Date] = m
	}
	return nil
}

// InMemoryReportRepo stores reports in memory.
type InMemoryReportRepo struct {
	mu      sync.RWMutex
	reports map[string]*models.Report
}

func NewInMemoryReportRepo() *InMemoryReportRepo {
	return &InMemoryReportRepo{reports: make(map[string]*models.Report)}
}

func copyReport(r *models.Report) *models.Report {
	cp := *r
	cp.SubAccountIDs = append([]string(nil), r.SubAccountIDs...)
	if r.Totals != nil {
		t := *r.Totals
		cp.Totals = &t
	}
	return &cp
}

func (r *InMemoryReportRepo) Create(ctx context.Context, rep *models.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reports[rep.ID]; ok {
		return ErrConflict
	}
	r.reports[rep.ID] = copyReport(rep)
	return nil
}

func (r *InMemoryReportRepo) GetForTenant(ctx context.Context, tenantID, id string) (*models.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[id]
	if !ok || rep.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return copyReport(rep), nil
}

func (r *InMemoryReportRepo) GetByID(ctx context.Context, id string) (*models.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyReport(rep), nil
}

func (r *InMemoryReportRepo) ListByTenant(ctx context.Context, tenantID string) ([]*models.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.Report, 0)
	for _, rep := range r.reports {
		if rep.TenantID == tenantID {
			res = append(res, copyReport(rep))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (r *InMemoryReportRepo) Update(ctx context.Context, rep *models.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reports[rep.ID]; !ok {
		return ErrNotFound
	}
	r.reports[rep.ID] = copyReport(rep)
	return nil
}

// InMemoryScheduleRepo stores scheduled reports in memory.
type InMemoryScheduleRepo struct {
	mu        sync.RWMutex
	schedules map[string]*models.ScheduledReport
}

func NewInMemoryScheduleRepo() *InMemoryScheduleRepo {
	return &InMemoryScheduleRepo{schedules: make(map[string]*models.ScheduledReport)}
}

func (r *InMemoryScheduleRepo) Create(ctx context.Context, s *models.ScheduledReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schedules[s.ID]; ok {
		return ErrConflict
	}
	cp := *s
	cp.Recipients = append([]string(nil), s.Recipients...)
	r.schedules[s.ID] = &cp
	return nil
}

func (r *InMemoryScheduleRepo) ListByTenant(ctx context.Context, tenantID string) ([]*models.ScheduledReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.ScheduledReport, 0)
	for _, s := range r.schedules {
		if s.TenantID == tenantID {
			cp := *s
			cp.Recipients = append([]string(nil), s.Recipients...)
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

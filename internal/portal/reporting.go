package portal

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/radiusdt/partner-portal/internal/metrics"
	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/radiusdt/partner-portal/internal/storage"
	"go.uber.org/zap"
)

const (
	DefaultWindowDays      = 30
	MaxWindowDays          = 365
	DefaultLeaderboardSize = 5
	SubAccountDetailDays   = 90
	recentActivitySize     = 3
)

// ClampDays applies the default window to 0 and bounds n to [1, MaxWindowDays].
func ClampDays(n int) int {
	switch {
	case n == 0:
		return DefaultWindowDays
	case n < 1:
		return 1
	case n > MaxWindowDays:
		return MaxWindowDays
	}
	return n
}

// DashboardStats is the headline block of the dashboard.
type DashboardStats struct {
	TotalEmailsSent   int64   `json:"totalEmailsSent"`
	OpenRate          float64 `json:"openRate"`
	ReplyRate         float64 `json:"replyRate"`
	BounceRate        float64 `json:"bounceRate"`
	ActiveCampaigns   int     `json:"activeCampaigns"`
	TotalInboxes      int     `json:"totalInboxes"`
	ActiveSubAccounts int     `json:"activeSubAccounts"`
}

// Activity is one entry in the dashboard's recent activity feed.
type Activity struct {
	Type         string `json:"type"`
	SubAccountID string `json:"subAccountId"`
	SubAccount   string `json:"subAccount"`
	Details      string `json:"details"`
	Date         string `json:"date"`
}

// Dashboard is the full dashboard payload.
type Dashboard struct {
	DashboardStats
	StartDate      string               `json:"startDate"`
	EndDate        string               `json:"endDate"`
	ChartData      []models.DailyMetric `json:"chartData"`
	RecentActivity []Activity           `json:"recentActivity"`
}

// LeaderboardEntry is a ranked campaign.
type LeaderboardEntry struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	SubAccountID   string  `json:"subAccountId"`
	SubAccountName string  `json:"subAccountName"`
	Status         string  `json:"status"`
	InboxCount     int     `json:"inboxCount"`
	Sent           int64   `json:"sent"`
	Opens          int64   `json:"opens"`
	Replies        int64   `json:"replies"`
	OpenRate       float64 `json:"openRate"`
	ReplyRate      float64 `json:"replyRate"`
}

// SubAccountSummary is a row of the sub-account list. Rates are null when
// nothing was sent this month.
type SubAccountSummary struct {
	ID                  string   `json:"id"`
	CompanyName         string   `json:"companyName"`
	Status              string   `json:"status"`
	Live                bool     `json:"live"`
	EmailsSentThisMonth int64    `json:"emailsSentThisMonth"`
	OpenRate            *float64 `json:"openRate"`
	ReplyRate           *float64 `json:"replyRate"`
}

// SubAccountStats are the headline numbers of a sub-account detail page.
type SubAccountStats struct {
	EmailsSent int64   `json:"emailsSent"`
	OpenRate   float64 `json:"openRate"`
	ReplyRate  float64 `json:"replyRate"`
	BounceRate float64 `json:"bounceRate"`
}

// SubAccountDetail is a sub-account with its stats, chart and campaigns.
type SubAccountDetail struct {
	ID          string               `json:"id"`
	CompanyName string               `json:"companyName"`
	Status      string               `json:"status"`
	Live        bool                 `json:"live"`
	Stats       SubAccountStats      `json:"stats"`
	ChartData   []models.DailyMetric `json:"chartData"`
	Campaigns   []*models.Campaign   `json:"campaigns"`
}

// ReportingService aggregates metrics across a tenant's sub-accounts.
type ReportingService struct {
	subs     storage.SubAccountRepo
	resolver *SourceResolver
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewReportingService(subs storage.SubAccountRepo, resolver *SourceResolver, m *metrics.Metrics, logger *zap.Logger) *ReportingService {
	return &ReportingService{
		subs:     subs,
		resolver: resolver,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// scope returns the tenant's sub-accounts, narrowed to subAccountID when set.
func (s *ReportingService) scope(ctx context.Context, tenantID, subAccountID string) ([]*models.SubAccount, error) {
	return resolveScope(ctx, s.subs, tenantID, subAccountID)
}

func resolveScope(ctx context.Context, subs storage.SubAccountRepo, tenantID, subAccountID string) ([]*models.SubAccount, error) {
	if subAccountID != "" {
		sub, err := subs.GetForTenant(ctx, tenantID, subAccountID)
		if err != nil {
			return nil, storageError(err, "get sub-account")
		}
		return []*models.SubAccount{sub}, nil
	}
	list, err := subs.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, storageError(err, "list sub-accounts")
	}
	return list, nil
}

// dailyBySub fetches each sub-account's rows in order. A failing source is
// logged and contributes nothing.
func (s *ReportingService) dailyBySub(ctx context.Context, subs []*models.SubAccount, r models.DateRange) map[string][]models.DailyMetric {
	out := make(map[string][]models.DailyMetric, len(subs))
	for _, sub := range subs {
		src := s.resolver.For(sub)
		rows, err := src.DailyMetrics(ctx, sub, r)
		if err != nil {
			s.logger.Warn("metrics source failed, contributing zero",
				zap.String("source", src.Name()),
				zap.String("sub_account_id", sub.ID),
				zap.Error(err),
			)
			continue
		}
		out[sub.ID] = rows
	}
	return out
}

func (s *ReportingService) campaignsOf(ctx context.Context, subs []*models.SubAccount) []*models.Campaign {
	var out []*models.Campaign
	for _, sub := range subs {
		src := s.resolver.For(sub)
		list, err := src.Campaigns(ctx, sub)
		if err != nil {
			s.logger.Warn("campaign source failed, contributing zero",
				zap.String("source", src.Name()),
				zap.String("sub_account_id", sub.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, list...)
	}
	return out
}

// MergeDaily sums rows by date and returns them ascending by date. The
// result does not depend on the order of the input slices.
func MergeDaily(sets ...[]models.DailyMetric) []models.DailyMetric {
	byDate := make(map[string]*models.DailyMetric)
	for _, rows := range sets {
		for _, row := range rows {
			agg, ok := byDate[row.Date]
			if !ok {
				agg = &models.DailyMetric{Date: row.Date}
				byDate[row.Date] = agg
			}
			agg.Add(row)
		}
	}

	out := make([]models.DailyMetric, 0, len(byDate))
	for _, m := range byDate {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Totals sums a series.
func Totals(rows []models.DailyMetric) models.DailyMetric {
	var t models.DailyMetric
	for _, r := range rows {
		t.Add(r)
	}
	return t
}

func mergeAll(bySub map[string][]models.DailyMetric) []models.DailyMetric {
	sets := make([][]models.DailyMetric, 0, len(bySub))
	for _, rows := range bySub {
		sets = append(sets, rows)
	}
	return MergeDaily(sets...)
}

// Series returns the merged daily series for the given sub-accounts.
func (s *ReportingService) Series(ctx context.Context, subs []*models.SubAccount, r models.DateRange) []models.DailyMetric {
	return mergeAll(s.dailyBySub(ctx, subs, r))
}

// DailySeries returns one row per date with data in the last days days.
func (s *ReportingService) DailySeries(ctx context.Context, tenantID, subAccountID string, days int) ([]models.DailyMetric, error) {
	start := time.Now()
	defer func() { s.metrics.RecordAggregation("daily", time.Since(start)) }()

	subs, err := s.scope(ctx, tenantID, subAccountID)
	if err != nil {
		return nil, err
	}
	r := models.LastNDays(s.now(), ClampDays(days))
	return s.Series(ctx, subs, r), nil
}

// Dashboard builds the dashboard summary, chart and activity feed.
func (s *ReportingService) Dashboard(ctx context.Context, tenantID, subAccountID string, days int) (*Dashboard, error) {
	start := time.Now()
	defer func() { s.metrics.RecordAggregation("dashboard", time.Since(start)) }()

	subs, err := s.scope(ctx, tenantID, subAccountID)
	if err != nil {
		return nil, err
	}
	r := models.LastNDays(s.now(), ClampDays(days))

	bySub := s.dailyBySub(ctx, subs, r)
	series := mergeAll(bySub)
	totals := Totals(series)

	d := &Dashboard{
		DashboardStats: DashboardStats{
			TotalEmailsSent: totals.Sent,
			OpenRate:        totals.OpenRate(),
			ReplyRate:       totals.ReplyRate(),
			BounceRate:      totals.BounceRate(),
		},
		StartDate:      r.StartDate(),
		EndDate:        r.EndDate(),
		ChartData:      series,
		RecentActivity: recentActivity(subs, bySub, recentActivitySize),
	}

	for _, sub := range subs {
		if sub.Status == models.SubAccountActive {
			d.ActiveSubAccounts++
		}
	}
	for _, c := range s.campaignsOf(ctx, subs) {
		if c.IsActive() {
			d.ActiveCampaigns++
			d.TotalInboxes += c.InboxCount
		}
	}

	return d, nil
}

// recentActivity reports the latest days with sends, newest first.
func recentActivity(subs []*models.SubAccount, bySub map[string][]models.DailyMetric, n int) []Activity {
	out := make([]Activity, 0, n)
	for _, sub := range subs {
		for _, row := range bySub[sub.ID] {
			if row.Sent == 0 {
				continue
			}
			details := formatCount(row.Sent, "email")
			if row.Replies > 0 {
				details += ", " + formatCount(row.Replies, "reply")
			}
			out = append(out, Activity{
				Type:         "emails_sent",
				SubAccountID: sub.ID,
				SubAccount:   sub.CompanyName,
				Details:      details,
				Date:         row.Date,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].SubAccount < out[j].SubAccount
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func formatCount(n int64, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	if strings.HasSuffix(noun, "y") {
		noun = strings.TrimSuffix(noun, "y") + "ie"
	}
	return strconv.FormatInt(n, 10) + " " + noun + "s"
}

// Leaderboard returns up to limit active campaigns ranked by open rate, then
// sent, then id.
func (s *ReportingService) Leaderboard(ctx context.Context, tenantID, subAccountID string, limit int) ([]LeaderboardEntry, error) {
	start := time.Now()
	defer func() { s.metrics.RecordAggregation("leaderboard", time.Since(start)) }()

	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	subs, err := s.scope(ctx, tenantID, subAccountID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(subs))
	for _, sub := range subs {
		names[sub.ID] = sub.CompanyName
	}
	return RankCampaigns(s.campaignsOf(ctx, subs), names, limit), nil
}

// RankCampaigns orders active campaigns by open rate descending.
func RankCampaigns(campaigns []*models.Campaign, subNames map[string]string, limit int) []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(campaigns))
	for _, c := range campaigns {
		if !c.IsActive() {
			continue
		}
		out = append(out, LeaderboardEntry{
			ID:             c.ID,
			Name:           c.Name,
			SubAccountID:   c.SubAccountID,
			SubAccountName: subNames[c.SubAccountID],
			Status:         c.Status,
			InboxCount:     c.InboxCount,
			Sent:           c.Sent,
			Opens:          c.Opens,
			Replies:        c.Replies,
			OpenRate:       models.Rate(c.Opens, c.Sent),
			ReplyRate:      models.Rate(c.Replies, c.Sent),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.OpenRate != b.OpenRate {
			return a.OpenRate > b.OpenRate
		}
		if a.Sent != b.Sent {
			return a.Sent > b.Sent
		}
		return a.ID < b.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ListSubAccounts returns the tenant's sub-accounts with month-to-date
// numbers. status "" or "all" disables the status filter; search matches
// company names case-insensitively.
func (s *ReportingService) ListSubAccounts(ctx context.Context, tenantID, status, search string) ([]SubAccountSummary, error) {
	subs, err := s.subs.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, storageError(err, "list sub-accounts")
	}

	search = strings.ToLower(strings.TrimSpace(search))
	filtered := subs[:0:0]
	for _, sub := range subs {
		if status != "" && status != "all" && sub.Status != status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(sub.CompanyName), search) {
			continue
		}
		filtered = append(filtered, sub)
	}

	r := models.MonthToDate(s.now())
	bySub := s.dailyBySub(ctx, filtered, r)

	out := make([]SubAccountSummary, 0, len(filtered))
	for _, sub := range filtered {
		t := Totals(bySub[sub.ID])
		row := SubAccountSummary{
			ID:                  sub.ID,
			CompanyName:         sub.CompanyName,
			Status:              sub.Status,
			Live:                sub.IsLive(),
			EmailsSentThisMonth: t.Sent,
		}
		if t.Sent > 0 {
			open, reply := t.OpenRate(), t.ReplyRate()
			row.OpenRate, row.ReplyRate = &open, &reply
		}
		out = append(out, row)
	}
	return out, nil
}

// SubAccountDetail returns 90-day stats, chart data and campaigns for one
// sub-account.
func (s *ReportingService) SubAccountDetail(ctx context.Context, tenantID, id string) (*SubAccountDetail, error) {
	start := time.Now()
	defer func() { s.metrics.RecordAggregation("sub_account", time.Since(start)) }()

	sub, err := s.subs.GetForTenant(ctx, tenantID, id)
	if err != nil {
		return nil, storageError(err, "get sub-account")
	}
	subs := []*models.SubAccount{sub}

	series := s.Series(ctx, subs, models.LastNDays(s.now(), SubAccountDetailDays))
	t := Totals(series)

	campaigns := s.campaignsOf(ctx, subs)
	if campaigns == nil {
		campaigns = []*models.Campaign{}
	}

	return &SubAccountDetail{
		ID:          sub.ID,
		CompanyName: sub.CompanyName,
		Status:      sub.Status,
		Live:        sub.IsLive(),
		Stats: SubAccountStats{
			EmailsSent: t.Sent,
			OpenRate:   t.OpenRate(),
			ReplyRate:  t.ReplyRate(),
			BounceRate: t.BounceRate(),
		},
		ChartData: series,
		Campaigns: campaigns,
	}, nil
}

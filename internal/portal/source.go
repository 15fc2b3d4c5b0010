package portal

import (
	"context"
	"fmt"
	"time"

	"github.com/radiusdt/partner-portal/internal/metrics"
	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/radiusdt/partner-portal/internal/provider"
	"github.com/radiusdt/partner-portal/internal/storage"
	"go.uber.org/zap"
)

// MetricsSource supplies daily metrics and campaigns for one sub-account.
type MetricsSource interface {
	Name() string
	DailyMetrics(ctx context.Context, sub *models.SubAccount, r models.DateRange) ([]models.DailyMetric, error)
	Campaigns(ctx context.Context, sub *models.SubAccount) ([]*models.Campaign, error)
}

// Provider is the subset of the provider API client used by the portal.
type Provider interface {
	DailyAnalytics(ctx context.Context, apiKey string, r models.DateRange) ([]provider.DailyAnalytics, error)
	ListCampaigns(ctx context.Context, apiKey string, limit int) ([]provider.Campaign, error)
	GetCampaign(ctx context.Context, apiKey, id string) (*provider.Campaign, error)
	CampaignAnalytics(ctx context.Context, apiKey, id string) (*provider.CampaignAnalytics, error)
	PauseCampaign(ctx context.Context, apiKey, id string) error
	ActivateCampaign(ctx context.Context, apiKey, id string) error
}

// SourceResolver picks the metrics source for a sub-account: live when it
// carries a provider API key, stored otherwise.
type SourceResolver struct {
	stored MetricsSource
	live   MetricsSource
}

func NewSourceResolver(stored, live MetricsSource) *SourceResolver {
	return &SourceResolver{stored: stored, live: live}
}

// For returns the source for sub.
func (r *SourceResolver) For(sub *models.SubAccount) MetricsSource {
	if sub.IsLive() && r.live != nil {
		return r.live
	}
	return r.stored
}

// =============================================
// STORED
// =============================================

// StoredSource reads metrics and campaigns from the repositories.
type StoredSource struct {
	metrics   storage.MetricRepo
	campaigns storage.CampaignRepo
}

func NewStoredSource(metrics storage.MetricRepo, campaigns storage.CampaignRepo) *StoredSource {
	return &StoredSource{metrics: metrics, campaigns: campaigns}
}

func (s *StoredSource) Name() string { return "stored" }

func (s *StoredSource) DailyMetrics(ctx context.Context, sub *models.SubAccount, r models.DateRange) ([]models.DailyMetric, error) {
	return s.metrics.Range(ctx, sub.ID, r)
}

func (s *StoredSource) Campaigns(ctx context.Context, sub *models.SubAccount) ([]*models.Campaign, error) {
	return s.campaigns.ListBySubAccount(ctx, sub.ID)
}

// =============================================
// LIVE
// =============================================

const (
	liveCampaignListLimit      = 50
	liveCampaignAnalyticsLimit = 10
)

// LiveSource proxies the email provider API. Calls are sequential.
type LiveSource struct {
	client  Provider
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewLiveSource(client Provider, m *metrics.Metrics, logger *zap.Logger) *LiveSource {
	return &LiveSource{client: client, metrics: m, logger: logger}
}

func (s *LiveSource) Name() string { return "live" }

func (s *LiveSource) DailyMetrics(ctx context.Context, sub *models.SubAccount, r models.DateRange) ([]models.DailyMetric, error) {
	start := time.Now()
	days, err := s.client.DailyAnalytics(ctx, sub.ProviderAPIKey, r)
	s.metrics.RecordProviderCall("daily_analytics", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	out := make([]models.DailyMetric, 0, len(days))
	for _, d := range days {
		if !r.Contains(d.Date) {
			continue
		}
		out = append(out, models.DailyMetric{
			SubAccountID: sub.ID,
			Date:         d.Date,
			Sent:         d.Sent,
			Opens:        d.Opened,
			Replies:      d.Replies,
			Bounces:      d.Bounced,
		})
	}
	return out, nil
}

// Campaigns lists provider campaigns and attaches lifetime analytics to the
// first few. A failed analytics call leaves that campaign's totals at zero.
func (s *LiveSource) Campaigns(ctx context.Context, sub *models.SubAccount) ([]*models.Campaign, error) {
	start := time.Now()
	items, err := s.client.ListCampaigns(ctx, sub.ProviderAPIKey, liveCampaignListLimit)
	s.metrics.RecordProviderCall("list_campaigns", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	out := make([]*models.Campaign, 0, len(items))
	for i, item := range items {
		c := fromProviderCampaign(sub.ID, item)
		if i < liveCampaignAnalyticsLimit {
			start := time.Now()
			a, err := s.client.CampaignAnalytics(ctx, sub.ProviderAPIKey, item.ID)
			s.metrics.RecordProviderCall("campaign_analytics", err, time.Since(start))
			if err != nil {
				s.logger.Warn("campaign analytics unavailable",
					zap.String("sub_account_id", sub.ID),
					zap.String("campaign_id", item.ID),
					zap.Error(err),
				)
			} else {
				c.Sent, c.Opens, c.Replies = a.Sent, a.Opened, a.Replied
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func fromProviderCampaign(subID string, p provider.Campaign) *models.Campaign {
	return &models.Campaign{
		ID:           p.ID,
		SubAccountID: subID,
		Name:         p.Name,
		Status:       p.Status.Normalized(),
		InboxCount:   len(p.EmailList),
		DailyLimit:   p.DailyLimit,
		StartDate:    p.StartDate(),
	}
}

// setStatus pauses or activates a provider campaign.
func (s *LiveSource) setStatus(ctx context.Context, sub *models.SubAccount, id, status string) error {
	start := time.Now()
	var err error
	op := "activate_campaign"
	if status == models.CampaignPaused {
		op = "pause_campaign"
		err = s.client.PauseCampaign(ctx, sub.ProviderAPIKey, id)
	} else {
		err = s.client.ActivateCampaign(ctx, sub.ProviderAPIKey, id)
	}
	s.metrics.RecordProviderCall(op, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return nil
}

// findCampaign looks a campaign up through sub's provider key.
func (s *LiveSource) findCampaign(ctx context.Context, sub *models.SubAccount, id string) (*models.Campaign, error) {
	start := time.Now()
	p, err := s.client.GetCampaign(ctx, sub.ProviderAPIKey, id)
	s.metrics.RecordProviderCall("get_campaign", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return fromProviderCampaign(sub.ID, *p), nil
}

package portal

import (
	"context"
	"errors"

	"github.com/radiusdt/partner-portal/internal/metrics"
	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/radiusdt/partner-portal/internal/provider"
	"github.com/radiusdt/partner-portal/internal/storage"
	"go.uber.org/zap"
)

// ToggleResult is returned by a campaign toggle.
type ToggleResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CampaignService lists and toggles campaigns within a tenant's scope.
type CampaignService struct {
	subs      storage.SubAccountRepo
	campaigns storage.CampaignRepo
	resolver  *SourceResolver
	live      *LiveSource
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewCampaignService creates a CampaignService. live may be nil, in which
// case campaigns of live sub-accounts cannot be toggled.
func NewCampaignService(subs storage.SubAccountRepo, campaigns storage.CampaignRepo, resolver *SourceResolver, live *LiveSource, m *metrics.Metrics, logger *zap.Logger) *CampaignService {
	return &CampaignService{
		subs:      subs,
		campaigns: campaigns,
		resolver:  resolver,
		live:      live,
		metrics:   m,
		logger:    logger,
	}
}

// List returns every campaign visible to the tenant, optionally narrowed to
// one sub-account.
func (s *CampaignService) List(ctx context.Context, tenantID, subAccountID string) ([]*models.Campaign, error) {
	subs, err := resolveScope(ctx, s.subs, tenantID, subAccountID)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Campaign, 0)
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
	return out, nil
}

// Toggle flips a campaign between active and paused. Stored campaigns are
// updated in place; campaigns of live sub-accounts are changed through the
// provider.
func (s *CampaignService) Toggle(ctx context.Context, tenantID, campaignID string) (*ToggleResult, error) {
	c, err := s.campaigns.GetForTenant(ctx, tenantID, campaignID)
	switch {
	case err == nil:
		return s.toggleStored(ctx, tenantID, c)
	case errors.Is(err, storage.ErrNotFound):
		return s.toggleLive(ctx, tenantID, campaignID)
	default:
		return nil, storageError(err, "get campaign")
	}
}

func (s *CampaignService) toggleStored(ctx context.Context, tenantID string, c *models.Campaign) (*ToggleResult, error) {
	next := c.ToggledStatus()

	sub, err := s.subs.GetForTenant(ctx, tenantID, c.SubAccountID)
	if err != nil {
		return nil, storageError(err, "get sub-account")
	}
	source := "stored"
	if sub.IsLive() && s.live != nil {
		if err := s.live.setStatus(ctx, sub, c.ID, next); err != nil {
			return nil, err
		}
		source = "live"
	}

	if err := s.campaigns.UpdateStatus(ctx, c.ID, next); err != nil {
		return nil, storageError(err, "update campaign status")
	}

	s.metrics.RecordCampaignToggle(next, source)
	s.logger.Info("campaign toggled",
		zap.String("tenant_id", tenantID),
		zap.String("campaign_id", c.ID),
		zap.String("status", next),
		zap.String("source", source),
	)
	return &ToggleResult{ID: c.ID, Status: next}, nil
}

// toggleLive searches the tenant's live sub-accounts for the campaign.
// Visibility through the sub-account's own key is the ownership check.
func (s *CampaignService) toggleLive(ctx context.Context, tenantID, campaignID string) (*ToggleResult, error) {
	if s.live == nil {
		return nil, ErrNotFound
	}
	subs, err := s.subs.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, storageError(err, "list sub-accounts")
	}

	for _, sub := range subs {
		if !sub.IsLive() {
			continue
		}
		c, err := s.live.findCampaign(ctx, sub, campaignID)
		if errors.Is(err, provider.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("provider campaign lookup failed",
				zap.String("sub_account_id", sub.ID),
				zap.String("campaign_id", campaignID),
				zap.Error(err),
			)
			continue
		}

		next := c.ToggledStatus()
		if err := s.live.setStatus(ctx, sub, campaignID, next); err != nil {
			return nil, err
		}
		s.metrics.RecordCampaignToggle(next, "live")
		s.logger.Info("campaign toggled",
			zap.String("tenant_id", tenantID),
			zap.String("campaign_id", campaignID),
			zap.String("status", next),
			zap.String("source", "live"),
		)
		return &ToggleResult{ID: campaignID, Status: next}, nil
	}

	return nil, ErrNotFound
}

package portal

import (
	"context"
	"testing"

	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/radiusdt/partner-portal/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignToggleTwiceRestoresStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.campaigns.Toggle(ctx, "tenant_a", "camp_a1_0")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignPaused, res.Status)

	c, err := f.store.Campaigns.GetForTenant(ctx, "tenant_a", "camp_a1_0")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignPaused, c.Status)

	res, err = f.campaigns.Toggle(ctx, "tenant_a", "camp_a1_0")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignActive, res.Status)
	assert.Empty(t, f.provider.calls)
}

func TestCampaignToggleOtherTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.campaigns.Toggle(ctx, "tenant_a", "camp_b1_0")
	assert.ErrorIs(t, err, ErrNotFound)

	c, err := f.store.Campaigns.GetForTenant(ctx, "tenant_b", "camp_b1_0")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignActive, c.Status)

	_, err = f.campaigns.Toggle(ctx, "tenant_a", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCampaignListScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.campaigns.List(ctx, "tenant_a", "")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, c := range list {
		assert.Equal(t, "sub_a1", c.SubAccountID)
	}

	list, err = f.campaigns.List(ctx, "tenant_a", "sub_a2")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = f.campaigns.List(ctx, "tenant_a", "sub_b1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCampaignToggleLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeLive(t, "tenant_a", "sub_a2", "key-a2")
	f.provider.campaigns["key-a2"] = []provider.Campaign{
		{ID: "live_1", Name: "Live", Status: models.CampaignActive},
	}

	res, err := f.campaigns.Toggle(ctx, "tenant_a", "live_1")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignPaused, res.Status)
	assert.Contains(t, f.provider.calls, "pause:live_1")
	assert.Equal(t, provider.CampaignStatus(models.CampaignPaused), f.provider.campaigns["key-a2"][0].Status)

	res, err = f.campaigns.Toggle(ctx, "tenant_a", "live_1")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignActive, res.Status)
	assert.Contains(t, f.provider.calls, "activate:live_1")

	// tenant_b has no sub-account that can see live_1.
	_, err = f.campaigns.Toggle(ctx, "tenant_b", "live_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCampaignToggleProviderFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.makeLive(t, "tenant_a", "sub_a1", "key-down")
	f.provider.failKeys["key-down"] = true

	_, err := f.campaigns.Toggle(ctx, "tenant_a", "camp_a1_0")
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	c, err := f.store.Campaigns.GetForTenant(ctx, "tenant_a", "camp_a1_0")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignActive, c.Status, "stored status is unchanged when the provider refuses")
}

func TestSubAccountCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.subs.Create(ctx, "tenant_a", "  New Client ")
	require.NoError(t, err)
	assert.Equal(t, "New Client", sub.CompanyName)
	assert.Equal(t, models.SubAccountOnboarding, sub.Status)
	assert.Contains(t, sub.ID, "sub_")

	_, err = f.subs.Create(ctx, "tenant_a", "   ")
	assert.ErrorIs(t, err, ErrValidation)

	list, err := f.store.SubAccounts.ListByTenant(ctx, "tenant_a")
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestSubAccountSetProviderKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.subs.SetProviderKey(ctx, "tenant_a", "sub_a2", " abc123 ")
	require.NoError(t, err)
	assert.True(t, sub.IsLive())
	assert.Equal(t, "abc123", sub.ProviderAPIKey)

	_, err = f.subs.SetProviderKey(ctx, "tenant_a", "sub_a2", "abc 123")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.subs.SetProviderKey(ctx, "tenant_b", "sub_a2", "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

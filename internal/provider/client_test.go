package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, zap.NewNop())
}

func TestDailyAnalytics(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/analytics/daily", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.Equal(t, "2026-02-01", r.URL.Query().Get("start_date"))
		assert.Equal(t, "2026-02-02", r.URL.Query().Get("end_date"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"date":"2026-02-01","sent":500,"opened":250,"replies":40,"bounced":5},{"date":"2026-02-02","sent":20}]`))
	})

	rng, err := models.NewDateRange("2026-02-01", "2026-02-02")
	require.NoError(t, err)

	days, err := c.DailyAnalytics(context.Background(), "key-1", rng)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, DailyAnalytics{Date: "2026-02-01", Sent: 500, Opened: 250, Replies: 40, Bounced: 5}, days[0])
	assert.Equal(t, int64(20), days[1].Sent)
}

func TestListCampaignsDecodesStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/campaigns", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"id":"c1","name":"Q1 Outreach","status":1,"timestamp_created":"2026-01-05T10:00:00.000Z"},
			{"id":"c2","name":"Follow-up","status":2},
			{"id":"c3","name":"Legacy","status":"PAUSED"}
		]}`))
	})

	items, err := c.ListCampaigns(context.Background(), "k", 50)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, models.CampaignActive, items[0].Status.Normalized())
	assert.Equal(t, "2026-01-05", items[0].StartDate())
	assert.Equal(t, models.CampaignPaused, items[1].Status.Normalized())
	assert.Equal(t, "", items[1].StartDate())
	assert.Equal(t, models.CampaignPaused, items[2].Status.Normalized())
}

func TestCampaignAnalytics(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/campaigns/analytics", r.URL.Path)
		assert.Equal(t, "c1", r.URL.Query().Get("id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"campaign_id":"c1","emails_sent_count":900,"open_count":450,"reply_count":70,"bounced_count":9}]`))
	})

	a, err := c.CampaignAnalytics(context.Background(), "k", "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(900), a.Sent)
	assert.Equal(t, int64(450), a.Opened)
	assert.Equal(t, int64(70), a.Replied)
}

func TestCampaignAnalyticsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})

	a, err := c.CampaignAnalytics(context.Background(), "k", "c9")
	require.NoError(t, err)
	assert.Equal(t, "c9", a.CampaignID)
	assert.Zero(t, a.Sent)
}

func TestPauseAndActivate(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.PauseCampaign(context.Background(), "k", "c1"))
	require.NoError(t, c.ActivateCampaign(context.Background(), "k", "c1"))
	assert.Equal(t, []string{"/campaigns/c1/pause", "/campaigns/c1/activate"}, paths)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
		{"not found", http.StatusNotFound, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := c.GetCampaign(context.Background(), "k", "c1")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})
	_, err := c.ListCampaigns(context.Background(), "k", 10)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream down", apiErr.Body)
}

func TestContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.DailyAnalytics(ctx, "k", models.LastNDays(time.Now(), 7))
	require.Error(t, err)
}

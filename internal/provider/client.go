package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/radiusdt/partner-portal/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized is returned when the provider rejects the API key.
	ErrUnauthorized = errors.New("provider rejected api key")
	// ErrNotFound is returned for unknown provider resources.
	ErrNotFound = errors.New("provider resource not found")
)

// APIError is a non-2xx provider response that is not covered by a sentinel.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider api error: status %d: %s", e.StatusCode, e.Body)
}

// DailyAnalytics is one day of account-level sending activity.
type DailyAnalytics struct {
	Date    string `json:"date"`
	Sent    int64  `json:"sent"`
	Opened  int64  `json:"opened"`
	Replies int64  `json:"replies"`
	Bounced int64  `json:"bounced"`
}

// CampaignStatus decodes the provider's campaign status, which is numeric
// (1 active, 2 paused) on current API versions and a string on older ones.
type CampaignStatus string

func (s *CampaignStatus) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = CampaignStatus(strings.ToLower(str))
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("invalid campaign status %s", b)
	}
	switch n {
	case 1:
		*s = models.CampaignActive
	case 2:
		*s = models.CampaignPaused
	default:
		*s = CampaignStatus(strconv.Itoa(n))
	}
	return nil
}

// Normalized maps the provider status onto active/paused.
func (s CampaignStatus) Normalized() string {
	if s == models.CampaignPaused {
		return models.CampaignPaused
	}
	return models.CampaignActive
}

// Campaign is a provider campaign listing entry.
type Campaign struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Status           CampaignStatus `json:"status"`
	TimestampCreated string         `json:"timestamp_created"`
	DailyLimit       int            `json:"daily_limit"`
	EmailList        []string       `json:"email_list"`
}

// StartDate returns the creation date as YYYY-MM-DD, or "" when unknown.
func (c Campaign) StartDate() string {
	if len(c.TimestampCreated) >= len(models.DateLayout) {
		return c.TimestampCreated[:len(models.DateLayout)]
	}
	return ""
}

// CampaignAnalytics holds lifetime totals for one campaign.
type CampaignAnalytics struct {
	CampaignID string `json:"campaign_id"`
	Sent       int64  `json:"emails_sent_count"`
	Opened     int64  `json:"open_count"`
	Replied    int64  `json:"reply_count"`
	Bounced    int64  `json:"bounced_count"`
}

type campaignList struct {
	Items []Campaign `json:"items"`
}

// Client talks to the email-sending provider's REST API. Every call takes the
// sub-account's API key as a bearer token.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a provider client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		logger: logger,
	}
}

func (c *Client) request(ctx context.Context, apiKey string) *resty.Request {
	return c.http.R().SetContext(ctx).SetAuthToken(apiKey)
}

// check converts transport failures and error statuses into errors.
func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		c.logger.Warn("provider call failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("provider %s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}

	c.logger.Warn("provider returned error",
		zap.String("op", op),
		zap.Int("status_code", resp.StatusCode()),
	)

	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("provider %s: %w", op, ErrUnauthorized)
	case http.StatusNotFound:
		return fmt.Errorf("provider %s: %w", op, ErrNotFound)
	}
	body := resp.String()
	if len(body) > 256 {
		body = body[:256]
	}
	return &APIError{StatusCode: resp.StatusCode(), Body: body}
}

// DailyAnalytics returns account-level sending activity for each day in r.
func (c *Client) DailyAnalytics(ctx context.Context, apiKey string, r models.DateRange) ([]DailyAnalytics, error) {
	var out []DailyAnalytics
	resp, err := c.request(ctx, apiKey).
		SetQueryParams(map[string]string{
			"start_date": r.StartDate(),
			"end_date":   r.EndDate(),
		}).
		SetResult(&out).
		Get("/accounts/analytics/daily")
	if err := c.check("daily analytics", resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCampaigns returns up to limit campaigns.
func (c *Client) ListCampaigns(ctx context.Context, apiKey string, limit int) ([]Campaign, error) {
	var out campaignList
	resp, err := c.request(ctx, apiKey).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out).
		Get("/campaigns")
	if err := c.check("list campaigns", resp, err); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetCampaign returns one campaign.
func (c *Client) GetCampaign(ctx context.Context, apiKey, id string) (*Campaign, error) {
	var out Campaign
	resp, err := c.request(ctx, apiKey).
		SetPathParam("id", id).
		SetResult(&out).
		Get("/campaigns/{id}")
	if err := c.check("get campaign", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// CampaignAnalytics returns lifetime totals for one campaign. A campaign the
// provider has no analytics for yields zero totals.
func (c *Client) CampaignAnalytics(ctx context.Context, apiKey, id string) (*CampaignAnalytics, error) {
	var out []CampaignAnalytics
	resp, err := c.request(ctx, apiKey).
		SetQueryParam("id", id).
		SetResult(&out).
		Get("/campaigns/analytics")
	if err := c.check("campaign analytics", resp, err); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].CampaignID == id || out[i].CampaignID == "" {
			return &out[i], nil
		}
	}
	return &CampaignAnalytics{CampaignID: id}, nil
}

// PauseCampaign stops a campaign from sending.
func (c *Client) PauseCampaign(ctx context.Context, apiKey, id string) error {
	resp, err := c.request(ctx, apiKey).
		SetPathParam("id", id).
		Post("/campaigns/{id}/pause")
	return c.check("pause campaign", resp, err)
}

// ActivateCampaign starts or resumes a campaign.
func (c *Client) ActivateCampaign(ctx context.Context, apiKey, id string) error {
	resp, err := c.request(ctx, apiKey).
		SetPathParam("id", id).
		Post("/campaigns/{id}/activate")
	return c.check("activate campaign", resp, err)
}

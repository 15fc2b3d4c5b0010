package models

import (
	"errors"
	"time"
)

// Campaign statuses.
const (
	CampaignActive = "active"
	CampaignPaused = "paused"
)

// Campaign is an email sequence running under one sub-account. Sent, Opens
// and Replies are lifetime totals used by the leaderboard.
type Campaign struct {
	ID           string    `json:"id"`
	SubAccountID string    `json:"subAccountId"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	InboxCount   int       `json:"inboxCount"`
	DailyLimit   int       `json:"dailyLimit"`
	Sent         int64     `json:"sent"`
	Opens        int64     `json:"opens"`
	Replies      int64     `json:"replies"`
	StartDate    string    `json:"startDate"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// IsActive reports whether the campaign is currently sending.
func (c *Campaign) IsActive() bool {
	return c.Status == CampaignActive
}

// ToggledStatus returns the status the campaign would have after a toggle.
func (c *Campaign) ToggledStatus() string {
	if c.Status == CampaignActive {
		return CampaignPaused
	}
	return CampaignActive
}

// Validate checks that required fields are present.
func (c *Campaign) Validate() error {
	if c == nil {
		return errors.New("campaign is nil")
	}
	if c.ID == "" {
		return errors.New("id is required")
	}
	if c.SubAccountID == "" {
		return errors.New("sub-account id is required")
	}
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.Status != CampaignActive && c.Status != CampaignPaused {
		return errors.New("status must be active or paused")
	}
	if c.InboxCount < 0 || c.DailyLimit < 0 {
		return errors.New("inbox count and daily limit must be non-negative")
	}
	return nil
}

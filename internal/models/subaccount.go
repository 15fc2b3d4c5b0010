package models

import (
	"errors"
	"time"
)

// Sub-account statuses.
const (
	SubAccountActive     = "active"
	SubAccountOnboarding = "onboarding"
)

// SubAccount is a tenant-owned client. ProviderAPIKey, when set, switches
// its metrics from stored data to the external provider.
type SubAccount struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"-"`
	CompanyName    string    `json:"companyName"`
	Status         string    `json:"status"`
	ProviderAPIKey string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

// IsLive reports whether metrics come from the external provider.
func (s *SubAccount) IsLive() bool {
	return s != nil && s.ProviderAPIKey != ""
}

// Validate checks required fields and status.
func (s *SubAccount) Validate() error {
	if s == nil {
		return errors.New("sub-account is nil")
	}
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.TenantID == "" {
		return errors.New("tenant id is required")
	}
	if s.CompanyName == "" {
		return errors.New("company name is required")
	}
	if s.Status != SubAccountActive && s.Status != SubAccountOnboarding {
		return errors.New("status must be active or onboarding")
	}
	return nil
}

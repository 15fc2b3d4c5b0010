package models

import (
	"errors"
	"strings"
	"time"
)

// NotificationPrefs controls which emails a tenant receives from the portal.
type NotificationPrefs struct {
	EmailAlerts    bool `json:"emailAlerts"`
	WeeklySummary  bool `json:"weeklySummary"`
	CampaignAlerts bool `json:"campaignAlerts"`
}

// WhiteLabel holds branding overrides shown to the tenant's own clients.
type WhiteLabel struct {
	CustomLogoURL *string `json:"customLogoUrl"`
	PrimaryColor  string  `json:"primaryColor"`
}

// Tenant is the authenticated login entity (partner/agency). A tenant owns
// sub-accounts, and through them campaigns and daily metrics.
type Tenant struct {
	ID            string            `json:"id"`
	Email         string            `json:"email"`
	PasswordHash  string            `json:"-"`
	Name          string            `json:"name"`
	LogoURL       *string           `json:"logoUrl"`
	ContactEmail  string            `json:"contactEmail"`
	Phone         string            `json:"phone"`
	Notifications NotificationPrefs `json:"notifications"`
	WhiteLabel    WhiteLabel        `json:"whiteLabel"`
	CreatedAt     time.Time         `json:"createdAt"`
	LastLoginAt   *time.Time        `json:"lastLoginAt,omitempty"`
}

// Validate checks that required fields are present.
func (t *Tenant) Validate() error {
	if t == nil {
		return errors.New("tenant is nil")
	}
	if t.ID == "" {
		return errors.New("id is required")
	}
	if !strings.Contains(t.Email, "@") {
		return errors.New("valid email is required")
	}
	if t.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if t.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// Team member roles.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// TeamMember is a person invited to a tenant's portal.
type TeamMember struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"-"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks email and role.
func (m *TeamMember) Validate() error {
	if m == nil {
		return errors.New("team member is nil")
	}
	if !strings.Contains(m.Email, "@") {
		return errors.New("valid email is required")
	}
	switch m.Role {
	case RoleAdmin, RoleEditor, RoleViewer:
	default:
		return errors.New("role must be admin, editor or viewer")
	}
	return nil
}

// TenantAPIKey is the partner-facing API credential and webhook target.
type TenantAPIKey struct {
	TenantID   string    `json:"-"`
	APIKey     string    `json:"apiKey"`
	WebhookURL *string   `json:"webhookUrl"`
	CreatedAt  time.Time `json:"createdAt"`
}

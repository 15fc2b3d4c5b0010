package portal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/radiusdt/partner-portal/internal/storage"
	"go.uber.org/zap"
)

// APIKeyPrefix marks partner API keys.
const APIKeyPrefix = "pk_live_"

// Profile is the editable identity block of a tenant.
type Profile struct {
	CompanyName  string  `json:"companyName"`
	LogoURL      *string `json:"logoUrl"`
	ContactEmail string  `json:"contactEmail"`
	Phone        string  `json:"phone"`
}

// APISettings exposes the tenant's partner API credential.
type APISettings struct {
	APIKey     *string `json:"apiKey"`
	WebhookURL *string `json:"webhookUrl"`
}

// Settings is the full settings page.
type Settings struct {
	Profile       Profile                  `json:"profile"`
	Notifications models.NotificationPrefs `json:"notifications"`
	TeamMembers   []*models.TeamMember     `json:"teamMembers"`
	API           APISettings              `json:"api"`
	WhiteLabel    models.WhiteLabel        `json:"whiteLabel"`
}

// SettingsUpdate replaces each section that is present.
type SettingsUpdate struct {
	Profile       *Profile                  `json:"profile"`
	Notifications *models.NotificationPrefs `json:"notifications"`
	WhiteLabel    *models.WhiteLabel        `json:"whiteLabel"`
}

// ProfilePatch changes only the fields that are set and non-empty. An empty
// LogoURL clears the logo.
type ProfilePatch struct {
	CompanyName  *string `json:"companyName"`
	LogoURL      *string `json:"logoUrl"`
	ContactEmail *string `json:"contactEmail"`
	Phone        *string `json:"phone"`
}

type NotificationsPatch struct {
	EmailAlerts    *bool `json:"emailAlerts"`
	WeeklySummary  *bool `json:"weeklySummary"`
	CampaignAlerts *bool `json:"campaignAlerts"`
}

type WhiteLabelPatch struct {
	CustomLogoURL *string `json:"customLogoUrl"`
	PrimaryColor  *string `json:"primaryColor"`
}

// SettingsPatch merges the given fields into the stored settings.
type SettingsPatch struct {
	Profile       *ProfilePatch       `json:"profile"`
	Notifications *NotificationsPatch `json:"notifications"`
	WhiteLabel    *WhiteLabelPatch    `json:"whiteLabel"`
}

// InviteInput adds a team member.
type InviteInput struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// SettingsService reads and updates tenant settings.
type SettingsService struct {
	tenants storage.TenantRepo
	team    storage.TeamRepo
	apiKeys storage.APIKeyRepo
	logger  *zap.Logger
	now     func() time.Time
}

func NewSettingsService(tenants storage.TenantRepo, team storage.TeamRepo, apiKeys storage.APIKeyRepo, logger *zap.Logger) *SettingsService {
	return &SettingsService{
		tenants: tenants,
		team:    team,
		apiKeys: apiKeys,
		logger:  logger,
		now:     time.Now,
	}
}

// Get assembles the settings page for the tenant.
func (s *SettingsService) Get(ctx context.Context, tenantID string) (*Settings, error) {
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, storageError(err, "get tenant")
	}
	members, err := s.team.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, storageError(err, "list team members")
	}

	var api APISettings
	key, err := s.apiKeys.Get(ctx, tenantID)
	switch {
	case err == nil:
		api.APIKey = &key.APIKey
		api.WebhookURL = key.WebhookURL
	case !errors.Is(err, storage.ErrNotFound):
		return nil, storageError(err, "get api key")
	}

	return &Settings{
		Profile: Profile{
			CompanyName:  t.Name,
			LogoURL:      t.LogoURL,
			ContactEmail: t.ContactEmail,
			Phone:        t.Phone,
		},
		Notifications: t.Notifications,
		TeamMembers:   members,
		API:           api,
		WhiteLabel:    t.WhiteLabel,
	}, nil
}

// Put replaces each section present in u.
func (s *SettingsService) Put(ctx context.Context, tenantID string, u SettingsUpdate) (*Settings, error) {
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, storageError(err, "get tenant")
	}

	if u.Profile != nil {
		name := strings.TrimSpace(u.Profile.CompanyName)
		if name == "" {
			return nil, validationError("company name required")
		}
		t.Name = name
		t.LogoURL = emptyToNil(u.Profile.LogoURL)
		t.ContactEmail = strings.TrimSpace(u.Profile.ContactEmail)
		t.Phone = strings.TrimSpace(u.Profile.Phone)
	}
	if u.Notifications != nil {
		t.Notifications = *u.Notifications
	}
	if u.WhiteLabel != nil {
		t.WhiteLabel = *u.WhiteLabel
		t.WhiteLabel.CustomLogoURL = emptyToNil(t.WhiteLabel.CustomLogoURL)
	}

	if err := s.save(ctx, t); err != nil {
		return nil, err
	}
	return s.Get(ctx, tenantID)
}

// Patch merges p into the stored settings. Empty strings leave profile and
// color fields unchanged.
func (s *SettingsService) Patch(ctx context.Context, tenantID string, p SettingsPatch) (*Settings, error) {
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, storageError(err, "get tenant")
	}

	if pp := p.Profile; pp != nil {
		setIfNonEmpty(&t.Name, pp.CompanyName)
		setIfNonEmpty(&t.ContactEmail, pp.ContactEmail)
		setIfNonEmpty(&t.Phone, pp.Phone)
		if pp.LogoURL != nil {
			t.LogoURL = emptyToNil(pp.LogoURL)
		}
	}
	if np := p.Notifications; np != nil {
		setIfPresent(&t.Notifications.EmailAlerts, np.EmailAlerts)
		setIfPresent(&t.Notifications.WeeklySummary, np.WeeklySummary)
		setIfPresent(&t.Notifications.CampaignAlerts, np.CampaignAlerts)
	}
	if wp := p.WhiteLabel; wp != nil {
		setIfNonEmpty(&t.WhiteLabel.PrimaryColor, wp.PrimaryColor)
		if wp.CustomLogoURL != nil {
			t.WhiteLabel.CustomLogoURL = emptyToNil(wp.CustomLogoURL)
		}
	}

	if err := s.save(ctx, t); err != nil {
		return nil, err
	}
	return s.Get(ctx, tenantID)
}

func (s *SettingsService) save(ctx context.Context, t *models.Tenant) error {
	if t.ContactEmail != "" && !strings.Contains(t.ContactEmail, "@") {
		return validationError("invalid contact email")
	}
	if err := t.Validate(); err != nil {
		return validationError("%v", err)
	}
	if err := s.tenants.Update(ctx, t); err != nil {
		return storageError(err, "update tenant")
	}
	s.logger.Info("settings updated", zap.String("tenant_id", t.ID))
	return nil
}

// InviteMember adds a team member. Role defaults to viewer and name to the
// local part of the email.
func (s *SettingsService) InviteMember(ctx context.Context, tenantID string, in InviteInput) (*models.TeamMember, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, validationError("email required")
	}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = models.RoleViewer
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	m := &models.TeamMember{
		ID:        "user_" + uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	if err := m.Validate(); err != nil {
		return nil, validationError("%v", err)
	}
	if err := s.team.Create(ctx, m); err != nil {
		return nil, storageError(err, "create team member")
	}
	s.logger.Info("team member invited", zap.String("tenant_id", tenantID), zap.String("member_id", m.ID))
	return m, nil
}

// RemoveMember deletes one of the tenant's team members.
func (s *SettingsService) RemoveMember(ctx context.Context, tenantID, memberID string) error {
	if err := s.team.Delete(ctx, tenantID, memberID); err != nil {
		return storageError(err, "delete team member")
	}
	s.logger.Info("team member removed", zap.String("tenant_id", tenantID), zap.String("member_id", memberID))
	return nil
}

// NewAPIKey returns a random partner API key.
func NewAPIKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return APIKeyPrefix + hex.EncodeToString(b), nil
}

func (s *SettingsService) currentKey(ctx context.Context, tenantID string) (*models.TenantAPIKey, error) {
	key, err := s.apiKeys.Get(ctx, tenantID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, storageError(err, "get api key")
	}
	return &models.TenantAPIKey{TenantID: tenantID, CreatedAt: s.now().UTC()}, nil
}

// RegenerateAPIKey replaces the tenant's partner API key, keeping the webhook.
func (s *SettingsService) RegenerateAPIKey(ctx context.Context, tenantID string) (string, error) {
	key, err := s.currentKey(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if key.APIKey, err = NewAPIKey(); err != nil {
		return "", err
	}
	if err := s.apiKeys.Upsert(ctx, key); err != nil {
		return "", storageError(err, "save api key")
	}
	s.logger.Info("api key regenerated", zap.String("tenant_id", tenantID))
	return key.APIKey, nil
}

// SetWebhook sets or clears the webhook URL, creating an API key if the
// tenant has none.
func (s *SettingsService) SetWebhook(ctx context.Context, tenantID string, webhookURL *string) error {
	webhookURL = emptyToNil(webhookURL)
	if webhookURL != nil {
		u, err := url.Parse(*webhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return validationError("webhook url must be an absolute http(s) url")
		}
	}

	key, err := s.currentKey(ctx, tenantID)
	if err != nil {
		return err
	}
	if key.APIKey == "" {
		if key.APIKey, err = NewAPIKey(); err != nil {
			return err
		}
	}
	key.WebhookURL = webhookURL
	if err := s.apiKeys.Upsert(ctx, key); err != nil {
		return storageError(err, "save api key")
	}
	return nil
}

func setIfNonEmpty(dst *string, v *string) {
	if v != nil && strings.TrimSpace(*v) != "" {
		*dst = strings.TrimSpace(*v)
	}
}

func setIfPresent(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func emptyToNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/radiusdt/partner-portal/internal/storage"
	"go.uber.org/zap"
)

// legacyDocument is the single JSON file the portal used before it had a
// database.
type legacyDocument struct {
	Partners []struct {
		ID            string                   `json:"id"`
		Email         string                   `json:"email"`
		Password      string                   `json:"password"`
		Name          string                   `json:"name"`
		LogoURL       *string                  `json:"logoUrl"`
		ContactEmail  string                   `json:"contactEmail"`
		Phone         string                   `json:"phone"`
		CreatedAt     string                   `json:"createdAt"`
		LastLogin     *string                  `json:"lastLogin"`
		Notifications models.NotificationPrefs `json:"notifications"`
		WhiteLabel    models.WhiteLabel        `json:"whiteLabel"`
	} `json:"partners"`
	PartnerUsers []struct {
		ID        string `json:"id"`
		PartnerID string `json:"partnerId"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		Role      string `json:"role"`
	} `json:"partnerUsers"`
	SubAccounts []struct {
		ID              string  `json:"id"`
		PartnerID       string  `json:"partnerId"`
		CompanyName     string  `json:"companyName"`
		Status          string  `json:"status"`
		InstantlyAPIKey *string `json:"instantlyApiKey"`
		CreatedAt       string  `json:"createdAt"`
	} `json:"subAccounts"`
	APIKeys []struct {
		PartnerID  string  `json:"partnerId"`
		APIKey     string  `json:"apiKey"`
		WebhookURL *string `json:"webhookUrl"`
		CreatedAt  string  `json:"createdAt"`
	} `json:"apiKeys"`
	ScheduledReports []struct {
		ID         string   `json:"id"`
		PartnerID  string   `json:"partnerId"`
		ReportType string   `json:"reportType"`
		Frequency  string   `json:"frequency"`
		DayOfMonth int      `json:"dayOfMonth"`
		Recipients []string `json:"recipients"`
		Format     string   `json:"format"`
		CreatedAt  string   `json:"createdAt"`
	} `json:"scheduledReports"`
	MockData struct {
		Metrics   map[string][]models.DailyMetric `json:"metrics"`
		Campaigns map[string][]struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Status    string `json:"status"`
			Sent      int64  `json:"sent"`
			Opens     int64  `json:"opens"`
			Replies   int64  `json:"replies"`
			StartDate string `json:"startDate"`
		} `json:"campaigns"`
	} `json:"mockData"`
}

// ImportStats counts what an import created and skipped.
type ImportStats struct {
	Tenants     int `json:"tenants"`
	TeamMembers int `json:"teamMembers"`
	SubAccounts int `json:"subAccounts"`
	Campaigns   int `json:"campaigns"`
	Metrics     int `json:"metrics"`
	Schedules   int `json:"schedules"`
	Skipped     int `json:"skipped"`
}

// ImportLegacy loads a legacy JSON document into store. Records that already
// exist are skipped, so running it twice is harmless. Metrics and campaigns
// are upserted.
func ImportLegacy(ctx context.Context, store *storage.Store, r io.Reader, logger *zap.Logger) (*ImportStats, error) {
	var doc legacyDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode legacy document: %w", err)
	}
	if len(doc.Partners) == 0 {
		return nil, validationError("legacy document has no partners")
	}

	now := time.Now().UTC()
	stats := &ImportStats{}
	skip := func(kind, id string, err error) error {
		if errors.Is(err, storage.ErrConflict) {
			stats.Skipped++
			logger.Debug("legacy record exists, skipping", zap.String("kind", kind), zap.String("id", id))
			return nil
		}
		return fmt.Errorf("import %s %s: %w", kind, id, err)
	}

	for _, p := range doc.Partners {
		t := &models.Tenant{
			ID:            p.ID,
			Email:         p.Email,
			PasswordHash:  p.Password,
			Name:          p.Name,
			LogoURL:       p.LogoURL,
			ContactEmail:  p.ContactEmail,
			Phone:         p.Phone,
			Notifications: p.Notifications,
			WhiteLabel:    p.WhiteLabel,
			CreatedAt:     parseLegacyTime(p.CreatedAt, now),
		}
		if err := t.Validate(); err != nil {
			return nil, validationError("partner %s: %v", p.ID, err)
		}
		if err := store.Tenants.Create(ctx, t); err != nil {
			if err := skip("tenant", t.ID, err); err != nil {
				return nil, err
			}
			continue
		}
		stats.Tenants++
	}

	for _, u := range doc.PartnerUsers {
		m := &models.TeamMember{
			ID:        u.ID,
			TenantID:  u.PartnerID,
			Name:      u.Name,
			Email:     u.Email,
			Role:      u.Role,
			CreatedAt: now,
		}
		if err := m.Validate(); err != nil {
			return nil, validationError("user %s: %v", u.ID, err)
		}
		if err := store.Team.Create(ctx, m); err != nil {
			if err := skip("team member", m.ID, err); err != nil {
				return nil, err
			}
			continue
		}
		stats.TeamMembers++
	}

	for _, k := range doc.APIKeys {
		if k.APIKey == "" {
			continue
		}
		if err := store.APIKeys.Upsert(ctx, &models.TenantAPIKey{
			TenantID:   k.PartnerID,
			APIKey:     k.APIKey,
			WebhookURL: k.WebhookURL,
			CreatedAt:  parseLegacyTime(k.CreatedAt, now),
		}); err != nil {
			return nil, fmt.Errorf("import api key for %s: %w", k.PartnerID, err)
		}
	}

	for _, s := range doc.SubAccounts {
		sub := &models.SubAccount{
			ID:          s.ID,
			TenantID:    s.PartnerID,
			CompanyName: s.CompanyName,
			Status:      s.Status,
			CreatedAt:   parseLegacyTime(s.CreatedAt, now),
		}
		if s.InstantlyAPIKey != nil {
			sub.ProviderAPIKey = *s.InstantlyAPIKey
		}
		if err := sub.Validate(); err != nil {
			return nil, validationError("sub-account %s: %v", s.ID, err)
		}
		if err := store.SubAccounts.Create(ctx, sub); err != nil {
			if err := skip("sub-account", sub.ID, err); err != nil {
				return nil, err
			}
			continue
		}
		stats.SubAccounts++
	}

	subIDs := make([]string, 0, len(doc.MockData.Metrics))
	for id := range doc.MockData.Metrics {
		subIDs = append(subIDs, id)
	}
	sort.Strings(subIDs)
	for _, subID := range subIDs {
		rows := make([]models.DailyMetric, 0, len(doc.MockData.Metrics[subID]))
		for _, m := range doc.MockData.Metrics[subID] {
			if m.Sent == 0 && m.Opens == 0 && m.Replies == 0 && m.Bounces == 0 {
				continue
			}
			m.SubAccountID = subID
			rows = append(rows, m)
		}
		if len(rows) == 0 {
			continue
		}
		if err := store.Metrics.Upsert(ctx, rows); err != nil {
			return nil, fmt.Errorf("import metrics for %s: %w", subID, err)
		}
		stats.Metrics += len(rows)
	}

	for subID, list := range doc.MockData.Campaigns {
		for _, c := range list {
			camp := &models.Campaign{
				ID:           c.ID,
				SubAccountID: subID,
				Name:         c.Name,
				Status:       c.Status,
				Sent:         c.Sent,
				Opens:        c.Opens,
				Replies:      c.Replies,
				StartDate:    c.StartDate,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := camp.Validate(); err != nil {
				return nil, validationError("campaign %s: %v", c.ID, err)
			}
			if err := store.Campaigns.Upsert(ctx, camp); err != nil {
				return nil, fmt.Errorf("import campaign %s: %w", c.ID, err)
			}
			stats.Campaigns++
		}
	}

	for _, s := range doc.ScheduledReports {
		sched := &models.ScheduledReport{
			ID:         s.ID,
			TenantID:   s.PartnerID,
			ReportType: s.ReportType,
			Frequency:  s.Frequency,
			DayOfMonth: s.DayOfMonth,
			Recipients: s.Recipients,
			Format:     s.Format,
			CreatedAt:  parseLegacyTime(s.CreatedAt, now),
		}
		if err := sched.Validate(); err != nil {
			logger.Warn("skipping invalid legacy schedule", zap.String("id", s.ID), zap.Error(err))
			stats.Skipped++
			continue
		}
		if err := store.Schedules.Create(ctx, sched); err != nil {
			if err := skip("schedule", sched.ID, err); err != nil {
				return nil, err
			}
			continue
		}
		stats.Schedules++
	}

	logger.Info("legacy import finished",
		zap.Int("tenants", stats.Tenants),
		zap.Int("sub_accounts", stats.SubAccounts),
		zap.Int("campaigns", stats.Campaigns),
		zap.Int("metrics", stats.Metrics),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

func parseLegacyTime(s string, fallback time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return fallback
}

package portal

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/radiusdt/partner-portal/internal/storage"
	"go.uber.org/zap"
)

// SubAccountService creates sub-accounts and manages their provider keys.
type SubAccountService struct {
	subs   storage.SubAccountRepo
	logger *zap.Logger
	now    func() time.Time
}

func NewSubAccountService(subs storage.SubAccountRepo, logger *zap.Logger) *SubAccountService {
	return &SubAccountService{subs: subs, logger: logger, now: time.Now}
}

// Create adds an onboarding sub-account for the tenant.
func (s *SubAccountService) Create(ctx context.Context, tenantID, companyName string) (*models.SubAccount, error) {
	companyName = strings.TrimSpace(companyName)
	if companyName == "" {
		return nil, validationError("company name required")
	}

	sub := &models.SubAccount{
		ID:          "sub_" + uuid.NewString(),
		TenantID:    tenantID,
		CompanyName: companyName,
		Status:      models.SubAccountOnboarding,
		CreatedAt:   s.now().UTC(),
	}
	if err := sub.Validate(); err != nil {
		return nil, validationError("%v", err)
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, storageError(err, "create sub-account")
	}

	s.logger.Info("sub-account created",
		zap.String("tenant_id", tenantID),
		zap.String("sub_account_id", sub.ID),
	)
	return sub, nil
}

// SetProviderKey sets or, with an empty key, clears the sub-account's
// provider API key. This switches its metrics between live and stored.
func (s *SubAccountService) SetProviderKey(ctx context.Context, tenantID, id, apiKey string) (*models.SubAccount, error) {
	apiKey = strings.TrimSpace(apiKey)
	if strings.ContainsAny(apiKey, " \t\r\n") {
		return nil, validationError("api key must not contain whitespace")
	}
	if err := s.subs.UpdateProviderKey(ctx, tenantID, id, apiKey); err != nil {
		return nil, storageError(err, "update provider key")
	}
	sub, err := s.subs.GetForTenant(ctx, tenantID, id)
	if err != nil {
		return nil, storageError(err, "get sub-account")
	}

	s.logger.Info("sub-account provider key updated",
		zap.String("tenant_id", tenantID),
		zap.String("sub_account_id", id),
		zap.Bool("live", sub.IsLive()),
	)
	return sub, nil
}

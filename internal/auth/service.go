package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/radiusdt/partner-portal/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned for a missing, invalid, expired or revoked token.
	ErrUnauthorized = errors.New("unauthorized")
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Tenant    *models.Tenant `json:"partner"`
}

// Service authenticates tenants and manages their sessions.
type Service struct {
	tenants  storage.TenantRepo
	sessions SessionStore
	issuer   *TokenIssuer
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(tenants storage.TenantRepo, sessions SessionStore, issuer *TokenIssuer, logger *zap.Logger) *Service {
	return &Service{
		tenants:  tenants,
		sessions: sessions,
		issuer:   issuer,
		logger:   logger,
		now:      time.Now,
	}
}

// Login checks credentials and opens a new session.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	tenant, err := s.tenants.GetByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up tenant: %w", err)
	}
	if !CheckPassword(password, tenant.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, claims, err := s.issuer.Issue(tenant.ID, uuid.NewString())
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        claims.SessionID,
		TenantID:  tenant.ID,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.tenants.TouchLastLogin(ctx, tenant.ID, now); err != nil {
		s.logger.Warn("failed to record last login", zap.String("tenant_id", tenant.ID), zap.Error(err))
	} else {
		tenant.LastLoginAt = &now
	}

	s.logger.Info("tenant logged in",
		zap.String("tenant_id", tenant.ID),
		zap.String("session_id", sess.ID),
	)

	return &LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
		Tenant:    tenant,
	}, nil
}

// Authenticate resolves a token to its live session.
func (s *Service) Authenticate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if sess.TenantID != claims.TenantID {
		return nil, ErrUnauthorized
	}
	return sess, nil
}

// Logout revokes the session behind token. Unknown sessions are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return ErrUnauthorized
	}
	if err := s.sessions.Delete(ctx, claims.SessionID); err != nil {
		return err
	}
	s.logger.Info("tenant logged out",
		zap.String("tenant_id", claims.TenantID),
		zap.String("session_id", claims.SessionID),
	)
	return nil
}

package middleware

import (
	"context"
	"net/http"

	"github.com/radiusdt/partner-portal/internal/auth"
	"go.uber.org/zap"
)

// Authenticator resolves a bearer token to a live session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Session, error)
}

// AuthMiddleware rejects requests without a valid session and stores the
// tenant in the request context.
type AuthMiddleware struct {
	authn      Authenticator
	cookieName string
	logger     *zap.Logger
}

func NewAuthMiddleware(authn Authenticator, cookieName string, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{authn: authn, cookieName: cookieName, logger: logger}
}

func (a *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractToken(r, a.cookieName)
		if token == "" {
			a.unauthorized(w, "authentication required")
			return
		}

		sess, err := a.authn.Authenticate(r.Context(), token)
		if err != nil {
			a.logger.Debug("session rejected",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			a.unauthorized(w, "invalid or expired session")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

func (a *AuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, message)
}

// WithSession stores sess and its tenant in ctx.
func WithSession(ctx context.Context, sess *auth.Session) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, sess)
	return context.WithValue(ctx, tenantIDContextKey, sess.TenantID)
}

// TenantIDFromContext returns the authenticated tenant, or "".
func TenantIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(tenantIDContextKey).(string)
	return id
}

// SessionFromContext returns the authenticated session, or nil.
func SessionFromContext(ctx context.Context) *auth.Session {
	s, _ := ctx.Value(sessionContextKey).(*auth.Session)
	return s
}

// Package middleware provides HTTP middleware for the back office API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/auth"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/user"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/errors"
	internalhttputil "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/httputil"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/logging"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

// TokenValidator validates a bearer token and resolves its claims.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*auth.Claims, error)
}

// AuthMiddleware authenticates requests with bearer tokens.
type AuthMiddleware struct {
	validator TokenValidator
	logger    *logger.Logger
	skipPaths map[string]bool
}

func NewAuthMiddleware(validator TokenValidator, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	if log == nil {
		log = logger.NewDefault("middleware")
	}
	return &AuthMiddleware{
		validator: validator,
		logger:    log,
		skipPaths: skip,
	}
}

// Handler returns the authentication middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			m.respondError(w, r, errors.Unauthorized("missing or malformed Authorization header"))
			return
		}

		claims, err := m.validator.Validate(r.Context(), token)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		ctx := logging.WithUserID(r.Context(), claims.UserID)
		ctx = logging.WithUsername(ctx, claims.Username)
		ctx = logging.WithRole(ctx, claims.Role)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from the Authorization header, or the
// access_token query parameter for endpoints that cannot set headers, such
// as websocket clients.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("authentication failed", err)
	}

	internalhttputil.WriteErrorResponse(w, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("authentication failed")
}

// GetUserID extracts the authenticated user ID from context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetUsername extracts the authenticated username from context.
func GetUsername(ctx context.Context) string {
	return logging.GetUsername(ctx)
}

// GetUserRole extracts the authenticated role from context.
func GetUserRole(ctx context.Context) user.Role {
	return user.Role(logging.GetRole(ctx))
}

// RequireRole rejects requests whose authenticated role ranks below min.
func RequireRole(min user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetUserRole(r.Context())
			if role == "" {
				internalhttputil.Unauthorized(w, "")
				return
			}
			if role.Rank() < min.Rank() {
				serviceErr := errors.Forbidden("insufficient role")
				internalhttputil.WriteErrorResponse(w, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

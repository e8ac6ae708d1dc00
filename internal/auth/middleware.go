package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/finagent/identity/internal/models"
	httputil "github.com/finagent/identity/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
	// TokenContextKey is the key for storing the raw bearer token in context
	TokenContextKey contextKey = "token"
)

// RevocationChecker reports whether a token has been revoked, either
// individually by jti or by a per-user watermark covering its issue time.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error)
}

// Middleware validates bearer tokens, rejects revoked ones and injects the
// claims into the request context. Revocation lookups fail closed: if the
// ledger cannot be reached the request is denied.
func Middleware(tm *TokenManager, revocations RevocationChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteUnauthorized(w, "missing authorization header")
				return
			}

			// Parse Bearer token
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				httputil.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tm.Verify(parts[1], models.TokenKindAccess)
			if err != nil {
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			if revocations != nil {
				issuedAt := time.Time{}
				if claims.IssuedAt != nil {
					issuedAt = claims.IssuedAt.Time
				}

				revoked, err := revocations.IsRevoked(r.Context(), claims.ID, claims.UserID, issuedAt)
				if err != nil {
					httputil.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "unable to verify token status")
					return
				}
				if revoked {
					httputil.WriteUnauthorized(w, "token has been revoked")
					return
				}
			}

			// Inject claims and raw token into context
			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			ctx = context.WithValue(ctx, TokenContextKey, parts[1])
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole enforces role-based access control. Roles are ordered
// (user < admin < sysadmin) and any role at or above the required one
// passes. The role is taken from the verified claims rather than re-read
// from the database, so a role change takes effect on the next token issue.
func RequireRole(required models.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Must be used after Middleware
			claims := GetUserFromContext(r)
			if claims == nil {
				httputil.WriteUnauthorized(w, "unauthorized")
				return
			}

			role := models.Role(claims.Role)
			if !role.AtLeast(required) {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetTokenFromContext extracts the raw bearer token from request context
func GetTokenFromContext(r *http.Request) string {
	token, ok := r.Context().Value(TokenContextKey).(string)
	if !ok {
		return ""
	}
	return token
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"meter_gateway/internal/auth"
	"meter_gateway/internal/config"
	"meter_gateway/internal/utils"
)

// Context keys for storing admin authentication data
const (
	AdminClaimsKey   ContextKey = "adminClaims"
	AdminAuthTypeKey ContextKey = "adminAuthType"
	AdminIDKey       ContextKey = "adminID"
	AdminRolesKey    ContextKey = "adminRoles"
)

// AdminJWTMiddleware validates admin JWTs and enforces the required role
// through the authorizer before the wrapped handler runs.
func AdminJWTMiddleware(cfg *config.Config, authorizer auth.Authorizer, required auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication token")
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			claims, err := auth.ValidateAdminJWT(tokenString, cfg)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			decision := authorizer.Authorize(claims, required)
			if !decision.Allowed {
				utils.RespondWithError(w, http.StatusForbidden, decision.Reason)
				return
			}

			ctx := context.WithValue(r.Context(), AdminClaimsKey, claims)
			ctx = context.WithValue(ctx, AdminAuthTypeKey, claims.AuthType)
			ctx = context.WithValue(ctx, AdminIDKey, claims.AdminID)
			ctx = context.WithValue(ctx, AdminRolesKey, claims.Roles)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminClaims retrieves the admin claims from the request context
func GetAdminClaims(ctx context.Context) (*auth.AdminClaims, bool) {
	claims, ok := ctx.Value(AdminClaimsKey).(*auth.AdminClaims)
	return claims, ok
}

// GetAdminID retrieves the admin ID from the request context
func GetAdminID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(AdminIDKey).(string)
	return id, ok
}

// GetAdminRoles retrieves the admin roles from the request context
func GetAdminRoles(ctx context.Context) ([]string, bool) {
	roles, ok := ctx.Value(AdminRolesKey).([]string)
	return roles, ok
}

// HasRole checks if the admin has a specific role
func HasRole(ctx context.Context, role string) bool {
	roles, ok := GetAdminRoles(ctx)
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

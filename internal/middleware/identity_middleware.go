package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"meter_gateway/internal/apperrors"
	"meter_gateway/internal/auth"
	"meter_gateway/internal/models"
	"meter_gateway/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// CallerKey is the context key for the resolved caller record
	CallerKey ContextKey = "caller"
	// CredentialKey is the context key for the presented credential, set
	// only on bearer-token requests
	CredentialKey ContextKey = "credential"
	// RequestIDKey is the context key for the per-request identifier
	RequestIDKey ContextKey = "requestID"
)

// CredentialResolver turns a presented bearer value into its stored
// credential, rejecting expired or revoked ones.
type CredentialResolver interface {
	Lookup(ctx context.Context, value string) (*models.Credential, error)
}

// CallerByIDStore resolves a credential's owner into a caller record.
type CallerByIDStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Caller, error)
}

// IdentityMiddleware resolves the caller for metered routes. An X-API-Key
// header wins; otherwise the Authorization bearer value is treated as an
// issued credential and its owner becomes the caller. Inactive callers
// fail with 401 even when the key or credential itself checks out.
func IdentityMiddleware(apiKeys auth.CallerStore, credentials CredentialResolver, callers CallerByIDStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				caller, err := apiKeys.Lookup(ctx, apiKey)
				if err != nil {
					if err == auth.ErrUnknownAPIKey {
						utils.RespondWithError(w, http.StatusUnauthorized, "Invalid API key")
						return
					}
					utils.RespondWithError(w, http.StatusInternalServerError, "Error validating API key")
					return
				}
				if !caller.IsActive() {
					utils.RespondWithError(w, http.StatusUnauthorized, "Caller is inactive")
					return
				}

				ctx = context.WithValue(ctx, CallerKey, caller)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing API key or bearer credential")
				return
			}

			cred, err := credentials.Lookup(ctx, strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				switch {
				case apperrors.IsAuthentication(err):
					utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired credential")
				case apperrors.IsProvider(err):
					utils.RespondWithError(w, http.StatusBadGateway, "Identity provider unavailable")
				default:
					utils.RespondWithError(w, http.StatusInternalServerError, "Error validating credential")
				}
				return
			}

			caller, err := callers.GetByID(ctx, cred.OwnerID)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "Credential owner not found")
				return
			}
			if !caller.IsActive() {
				utils.RespondWithError(w, http.StatusUnauthorized, "Caller is inactive")
				return
			}

			ctx = context.WithValue(ctx, CallerKey, caller)
			ctx = context.WithValue(ctx, CredentialKey, cred)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCaller retrieves the resolved caller from the request context
func GetCaller(ctx context.Context) (*models.Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(*models.Caller)
	return caller, ok
}

// GetCredential retrieves the presented credential from the request
// context; absent on API-key requests
func GetCredential(ctx context.Context) (*models.Credential, bool) {
	cred, ok := ctx.Value(CredentialKey).(*models.Credential)
	return cred, ok
}

package middleware

import (
	"context"
	"net/http"

	"meter_gateway/internal/auth"
	"meter_gateway/internal/utils"
)

// APIKeyMiddleware authenticates requests with the caller's static API key
// only. Credential-management routes use this instead of IdentityMiddleware
// so an issued bearer token can never manage its own lifecycle.
func APIKeyMiddleware(apiKeys auth.CallerStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing API key")
				return
			}

			caller, err := apiKeys.Lookup(r.Context(), apiKey)
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

			ctx := context.WithValue(r.Context(), CallerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

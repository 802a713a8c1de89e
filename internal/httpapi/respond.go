package httpapi

import (
	"errors"
	"net/http"

	"meter_gateway/internal/apperrors"
	"meter_gateway/internal/auth"
	"meter_gateway/internal/middleware"
	"meter_gateway/internal/utils"
)

// apiError is the JSON error body returned to clients. Code is a stable
// machine-readable string; Error is the human-readable message.
type apiError struct {
	Code      string `json:"code"`
	Error     string `json:"error"`
	Remaining *int64 `json:"remaining,omitempty"`
}

// writeAuthorizer decides the write-level role floor. The same role
// hierarchy the route middleware consults, so admin-implies-viewer is
// defined in exactly one place.
var writeAuthorizer auth.Authorizer = auth.NewRoleAuthorizer()

// requireAdminRole enforces the write-level role on top of the viewer-level
// route middleware. It writes the 403 itself and reports false when denied.
func requireAdminRole(w http.ResponseWriter, r *http.Request) bool {
	claims, _ := middleware.GetAdminClaims(r.Context())
	if writeAuthorizer.Authorize(claims, auth.RoleAdmin).Allowed {
		return true
	}
	utils.RespondWithJSON(w, http.StatusForbidden, apiError{
		Code:  "forbidden",
		Error: "admin role required",
	})
	return false
}

// respondAppError maps an error's kind onto an HTTP status and a stable
// error code. Unrecognized errors are reported as internal.
func respondAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	var remaining *int64

	switch apperrors.KindOf(err) {
	case apperrors.KindAuthentication:
		status = http.StatusUnauthorized
		code = "authentication_failed"
	case apperrors.KindAuthorization:
		status = http.StatusForbidden
		code = "forbidden"
	case apperrors.KindQuotaExceeded:
		status = http.StatusPaymentRequired
		code = "quota_exceeded"
		var qe *apperrors.QuotaError
		if errors.As(err, &qe) {
			r := qe.Remaining
			remaining = &r
		}
	case apperrors.KindPolicyViolation:
		status = http.StatusConflict
		code = "policy_violation"
	case apperrors.KindProvider:
		status = http.StatusBadGateway
		code = "provider_unavailable"
	case apperrors.KindConfiguration:
		status = http.StatusInternalServerError
		code = "configuration_error"
	case apperrors.KindStorage:
		status = http.StatusServiceUnavailable
		code = "storage_unavailable"
	}

	utils.RespondWithJSON(w, status, apiError{
		Code:      code,
		Error:     err.Error(),
		Remaining: remaining,
	})
}

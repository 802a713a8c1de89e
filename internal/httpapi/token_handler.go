package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"meter_gateway/internal/apperrors"
	"meter_gateway/internal/credential"
	"meter_gateway/internal/metrics"
	"meter_gateway/internal/middleware"
	"meter_gateway/internal/models"
	"meter_gateway/internal/utils"
)

// CredentialFinder resolves a stored credential by its plaintext value,
// without the liveness probe the request pipeline performs.
type CredentialFinder interface {
	GetByValue(ctx context.Context, value string) (*models.Credential, error)
}

// TokenHandler serves the credential lifecycle routes. All routes are
// authenticated with the caller's static API key.
type TokenHandler struct {
	issuer  *credential.Issuer
	store   CredentialFinder
	scope   string
	metrics metrics.Metrics
	logger  *utils.Logger
}

// NewTokenHandler creates the credential lifecycle handler. scope is the
// OAuth2 scope requested from the identity provider on issuance.
func NewTokenHandler(issuer *credential.Issuer, store CredentialFinder, scope string, m metrics.Metrics) *TokenHandler {
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &TokenHandler{
		issuer:  issuer,
		store:   store,
		scope:   scope,
		metrics: m,
		logger:  utils.NewLogger("tokens"),
	}
}

// TokenResponse is the representation of an issued credential. The value is
// returned to the owning caller; only hash and ciphertext are stored.
type TokenResponse struct {
	ID         string  `json:"id"`
	Token      string  `json:"token"`
	Scope      string  `json:"scope"`
	IssuedAt   string  `json:"issued_at"`
	ExpiresAt  string  `json:"expires_at"`
	LineageRef *string `json:"lineage_ref,omitempty"`
}

// RefreshTokenRequest carries the credential value to refresh.
type RefreshTokenRequest struct {
	Token string `json:"token"`
}

func tokenResponse(cred *models.Credential) TokenResponse {
	resp := TokenResponse{
		ID:        cred.ID.String(),
		Token:     cred.Value,
		Scope:     cred.Scope,
		IssuedAt:  cred.IssuedAt.UTC().Format(time.RFC3339),
		ExpiresAt: cred.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if cred.LineageRef != nil {
		ref := cred.LineageRef.String()
		resp.LineageRef = &ref
	}
	return resp
}

// Issue handles POST /v1/tokens.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetCaller(r.Context())
	if !ok {
		respondAppError(w, apperrors.New(apperrors.KindAuthentication, "caller identity missing"))
		return
	}

	cred, err := h.issuer.IssueToken(r.Context(), caller.ID, h.scope)
	if err != nil {
		h.logger.Error("token issuance failed", "caller_id", caller.ID, "error", err)
		respondAppError(w, err)
		return
	}
	h.metrics.RecordCredentialIssued(false)
	h.logger.Info("token issued", "caller_id", caller.ID, "credential_id", cred.ID)

	utils.RespondWithJSON(w, http.StatusCreated, tokenResponse(cred))
}

// Refresh handles POST /v1/tokens/refresh.
func (h *TokenHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetCaller(r.Context())
	if !ok {
		respondAppError(w, apperrors.New(apperrors.KindAuthentication, "caller identity missing"))
		return
	}

	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Request body must include a token")
		return
	}

	// Ownership is checked before refresh so a cross-caller value never
	// results in an issuance. Mismatch reports the same way as unknown.
	existing, err := h.store.GetByValue(r.Context(), req.Token)
	if err != nil || existing.OwnerID != caller.ID {
		respondAppError(w, apperrors.New(apperrors.KindAuthentication, "unknown credential"))
		return
	}

	cred, err := h.issuer.RefreshToken(r.Context(), req.Token)
	if err != nil {
		h.logger.Warn("token refresh rejected", "caller_id", caller.ID, "error", err)
		respondAppError(w, err)
		return
	}
	h.metrics.RecordCredentialIssued(true)
	h.logger.Info("token refreshed", "caller_id", caller.ID,
		"credential_id", cred.ID, "lineage_ref", cred.LineageRef)

	utils.RespondWithJSON(w, http.StatusCreated, tokenResponse(cred))
}

// Current handles GET /v1/tokens/current.
func (h *TokenHandler) Current(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetCaller(r.Context())
	if !ok {
		respondAppError(w, apperrors.New(apperrors.KindAuthentication, "caller identity missing"))
		return
	}

	cred, err := h.issuer.CurrentFor(r.Context(), caller.ID)
	if err != nil {
		if apperrors.IsAuthentication(err) {
			utils.RespondWithJSON(w, http.StatusNotFound, apiError{
				Code:  "no_active_credential",
				Error: "no unexpired credential for caller",
			})
			return
		}
		respondAppError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, tokenResponse(cred))
}

package httpapi

import (
	"encoding/json"
	"net/http"

	"meter_gateway/internal/auth"
	"meter_gateway/internal/config"
	"meter_gateway/internal/utils"
)

// AdminAuthHandler serves the operator authentication endpoints.
type AdminAuthHandler struct {
	store  auth.AdminStore
	cfg    *config.Config
	logger *utils.Logger
}

// NewAdminAuthHandler creates the admin authentication handler.
func NewAdminAuthHandler(store auth.AdminStore, cfg *config.Config) *AdminAuthHandler {
	return &AdminAuthHandler{
		store:  store,
		cfg:    cfg,
		logger: utils.NewLogger("admin-auth"),
	}
}

// LoginRequest is the email/password login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenAuthRequest is the service-token login payload.
type TokenAuthRequest struct {
	ServiceName string `json:"service_name"`
	Token       string `json:"token"`
}

// AuthResponse carries the short-lived admin JWT.
type AuthResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// Login handles POST /admin/auth/login.
func (h *AdminAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	token, expiresAt, err := auth.GenerateAdminJWTWithPassword(r.Context(), req.Email, req.Password, h.store, h.cfg)
	if err != nil {
		h.logger.Warn("admin login rejected", "email", req.Email)
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	h.logger.Info("admin login", "email", req.Email)

	utils.RespondWithJSON(w, http.StatusOK, AuthResponse{Token: token, ExpiresAt: expiresAt})
}

// TokenAuth handles POST /admin/auth/token.
func (h *AdminAuthHandler) TokenAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req TokenAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ServiceName == "" || req.Token == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Service name and token are required")
		return
	}

	token, expiresAt, err := auth.GenerateAdminJWTWithToken(r.Context(), req.ServiceName, req.Token, h.store, h.cfg)
	if err != nil {
		h.logger.Warn("admin token auth rejected", "service_name", req.ServiceName)
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	h.logger.Info("admin token auth", "service_name", req.ServiceName)

	utils.RespondWithJSON(w, http.StatusOK, AuthResponse{Token: token, ExpiresAt: expiresAt})
}

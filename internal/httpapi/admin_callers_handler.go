package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"meter_gateway/internal/ledger"
	"meter_gateway/internal/middleware"
	"meter_gateway/internal/models"
	"meter_gateway/internal/storage"
	"meter_gateway/internal/utils"
)

// AdminCallersHandler handles caller management endpoints
type AdminCallersHandler struct {
	db     *storage.DB
	ledger ledger.Service
}

// NewAdminCallersHandler creates a new admin callers handler
func NewAdminCallersHandler(db *storage.DB, ledgerSvc ledger.Service) *AdminCallersHandler {
	return &AdminCallersHandler{
		db:     db,
		ledger: ledgerSvc,
	}
}

// CreateCallerRequest represents the request to register a new caller
type CreateCallerRequest struct {
	Name               string `json:"name"`
	Scope              int    `json:"scope"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	Active             *bool  `json:"active,omitempty"`
}

// UpdateCallerRequest represents a partial caller update
type UpdateCallerRequest struct {
	Name               *string `json:"name,omitempty"`
	Scope              *int    `json:"scope,omitempty"`
	RateLimitPerMinute *int    `json:"rate_limit_per_minute,omitempty"`
	Active             *bool   `json:"active,omitempty"`
}

// CallerResponse represents a caller (without key hash)
type CallerResponse struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Scope              int    `json:"scope"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	Active             bool   `json:"active"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

// CallerCreatedResponse represents the response when registering a caller.
// This is the ONLY time the plaintext API key is returned.
type CallerCreatedResponse struct {
	CallerResponse
	APIKey string `json:"api_key"`
}

// BalanceResponse represents a caller's current-month balance
type BalanceResponse struct {
	CallerID       string `json:"caller_id"`
	Month          string `json:"month"`
	CurrentBalance int64  `json:"current_balance"`
	UpdatedAt      string `json:"updated_at"`
}

// SetBalanceRequest represents an operator balance override
type SetBalanceRequest struct {
	CurrentBalance *int64 `json:"current_balance"`
}

// TransactionResponse represents a single balance movement
type TransactionResponse struct {
	ID           string  `json:"id"`
	EndpointID   *string `json:"endpoint_id,omitempty"`
	Delta        int64   `json:"delta"`
	BalanceAfter int64   `json:"balance_after"`
	Reason       string  `json:"reason"`
	Note         *string `json:"note,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// generateAPIKey generates a cryptographically secure random API key
// Format: mk-<32 random hex characters>
func generateAPIKey() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "mk-" + hex.EncodeToString(bytes), nil
}

func (h *AdminCallersHandler) toCallerResponse(caller *models.Caller) CallerResponse {
	return CallerResponse{
		ID:                 caller.ID.String(),
		Name:               caller.Name,
		Scope:              caller.Scope,
		RateLimitPerMinute: caller.RateLimitPerMinute,
		Active:             caller.Active,
		CreatedAt:          caller.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          caller.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toBalanceResponse(balance *models.MonthlyBalance) BalanceResponse {
	return BalanceResponse{
		CallerID:       balance.CallerID.String(),
		Month:          balance.Month.UTC().Format("2006-01-02"),
		CurrentBalance: balance.CurrentBalance,
		UpdatedAt:      balance.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Create handles POST /admin/callers - Register a new caller
func (h *AdminCallersHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !requireAdminRole(w, r) {
		return
	}

	var req CreateCallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if req.RateLimitPerMinute < 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "rate_limit_per_minute must not be negative")
		return
	}

	tierRepo := h.db.NewTierRepository()
	if _, err := tierRepo.GetByScope(r.Context(), req.Scope); err != nil {
		if errors.Is(err, storage.ErrTierNotFound) {
			utils.RespondWithError(w, http.StatusBadRequest, "Unknown scope")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to validate scope")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	plaintextKey, err := generateAPIKey()
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate API key")
		return
	}

	caller := &models.Caller{
		ID:                 uuid.New(),
		Name:               req.Name,
		APIKeyHash:         utils.HashString(plaintextKey),
		Scope:              req.Scope,
		RateLimitPerMinute: req.RateLimitPerMinute,
		Active:             active,
	}

	callerRepo := h.db.NewCallerRepository()
	if err := callerRepo.Create(r.Context(), caller); err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			utils.RespondWithError(w, http.StatusConflict, "Caller already exists")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create caller")
		return
	}

	// Plaintext key is returned exactly once; only the hash is stored.
	response := &CallerCreatedResponse{
		CallerResponse: h.toCallerResponse(caller),
		APIKey:         plaintextKey,
	}

	utils.RespondWithJSON(w, http.StatusCreated, response)
}

// List handles GET /admin/callers - List all callers
func (h *AdminCallersHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	callerRepo := h.db.NewCallerRepository()
	callers, err := callerRepo.List(r.Context(), activeOnly)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list callers")
		return
	}

	responses := make([]CallerResponse, 0, len(callers))
	for _, caller := range callers {
		responses = append(responses, h.toCallerResponse(caller))
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items":       responses,
		"total_count": len(responses),
	})
}

// GetByID handles GET /admin/callers/:id - Get caller details
func (h *AdminCallersHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.callerIDFromPath(w, r)
	if !ok {
		return
	}

	callerRepo := h.db.NewCallerRepository()
	caller, err := callerRepo.GetByID(r.Context(), callerID)
	if err != nil {
		if errors.Is(err, storage.ErrCallerNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Caller not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get caller")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, h.toCallerResponse(caller))
}

// Update handles PATCH /admin/callers/:id - Update caller fields
func (h *AdminCallersHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !requireAdminRole(w, r) {
		return
	}

	callerID, ok := h.callerIDFromPath(w, r)
	if !ok {
		return
	}

	var req UpdateCallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	callerRepo := h.db.NewCallerRepository()
	caller, err := callerRepo.GetByID(r.Context(), callerID)
	if err != nil {
		if errors.Is(err, storage.ErrCallerNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Caller not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get caller")
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			utils.RespondWithError(w, http.StatusBadRequest, "Name must not be empty")
			return
		}
		caller.Name = *req.Name
	}
	if req.Scope != nil {
		tierRepo := h.db.NewTierRepository()
		if _, err := tierRepo.GetByScope(r.Context(), *req.Scope); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Unknown scope")
			return
		}
		caller.Scope = *req.Scope
	}
	if req.RateLimitPerMinute != nil {
		if *req.RateLimitPerMinute < 0 {
			utils.RespondWithError(w, http.StatusBadRequest, "rate_limit_per_minute must not be negative")
			return
		}
		caller.RateLimitPerMinute = *req.RateLimitPerMinute
	}
	if req.Active != nil {
		caller.Active = *req.Active
	}

	if err := callerRepo.Update(r.Context(), caller); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update caller")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, h.toCallerResponse(caller))
}

// GetBalance handles GET /admin/callers/:id/balance
func (h *AdminCallersHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.callerIDFromPath(w, r)
	if !ok {
		return
	}

	balance, err := h.ledger.GetCurrentBalance(r.Context(), callerID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, toBalanceResponse(balance))
}

// SetBalance handles PUT /admin/callers/:id/balance - Operator override
func (h *AdminCallersHandler) SetBalance(w http.ResponseWriter, r *http.Request) {
	if !requireAdminRole(w, r) {
		return
	}

	callerID, ok := h.callerIDFromPath(w, r)
	if !ok {
		return
	}

	var req SetBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CurrentBalance == nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Request body must include current_balance")
		return
	}
	if *req.CurrentBalance < 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "current_balance must not be negative")
		return
	}

	adminID, _ := middleware.GetAdminID(r.Context())
	balance, err := h.ledger.AdminSetBalance(r.Context(), callerID, *req.CurrentBalance, adminID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, toBalanceResponse(balance))
}

// ListTransactions handles GET /admin/callers/:id/transactions
func (h *AdminCallersHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.callerIDFromPath(w, r)
	if !ok {
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	balanceRepo := h.db.NewBalanceRepository()
	transactions, err := balanceRepo.ListTransactions(r.Context(), callerID, limit)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	responses := make([]TransactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		resp := TransactionResponse{
			ID:           tx.ID.String(),
			Delta:        tx.Delta,
			BalanceAfter: tx.BalanceAfter,
			Reason:       tx.Reason,
			Note:         tx.Note,
			CreatedAt:    tx.CreatedAt.UTC().Format(time.RFC3339),
		}
		if tx.EndpointID != nil {
			id := tx.EndpointID.String()
			resp.EndpointID = &id
		}
		responses = append(responses, resp)
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items":       responses,
		"total_count": len(responses),
	})
}

// callerIDFromPath extracts the caller ID from /admin/callers/:id[/...]
func (h *AdminCallersHandler) callerIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid caller ID")
		return uuid.Nil, false
	}
	callerID, err := uuid.Parse(pathParts[2])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid caller ID format")
		return uuid.Nil, false
	}
	return callerID, true
}

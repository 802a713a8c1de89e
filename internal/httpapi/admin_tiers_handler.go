package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"meter_gateway/internal/models"
	"meter_gateway/internal/storage"
	"meter_gateway/internal/utils"
)

// AdminTiersHandler handles tier (scope allotment) management endpoints
type AdminTiersHandler struct {
	db *storage.DB
}

// NewAdminTiersHandler creates a new admin tiers handler
func NewAdminTiersHandler(db *storage.DB) *AdminTiersHandler {
	return &AdminTiersHandler{db: db}
}

// UpsertTierRequest represents the request to create or replace a tier
type UpsertTierRequest struct {
	Name             string `json:"name"`
	MonthlyAllotment *int64 `json:"monthly_allotment"`
}

// TierResponse represents a tier
type TierResponse struct {
	Scope            int    `json:"scope"`
	Name             string `json:"name"`
	MonthlyAllotment int64  `json:"monthly_allotment"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

func toTierResponse(tier *models.Tier) TierResponse {
	return TierResponse{
		Scope:            tier.Scope,
		Name:             tier.Name,
		MonthlyAllotment: tier.MonthlyAllotment,
		CreatedAt:        tier.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        tier.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// List handles GET /admin/tiers - List all tiers
func (h *AdminTiersHandler) List(w http.ResponseWriter, r *http.Request) {
	tierRepo := h.db.NewTierRepository()
	tiers, err := tierRepo.List(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list tiers")
		return
	}

	responses := make([]TierResponse, 0, len(tiers))
	for _, tier := range tiers {
		responses = append(responses, toTierResponse(tier))
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items":       responses,
		"total_count": len(responses),
	})
}

// Upsert handles PUT /admin/tiers/:scope - Create or replace a tier.
// New allotments apply from the next monthly provisioning; balances already
// provisioned for the current month are not rewritten.
func (h *AdminTiersHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	if !requireAdminRole(w, r) {
		return
	}

	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid tier scope")
		return
	}
	scope, err := strconv.Atoi(pathParts[2])
	if err != nil || scope < 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Tier scope must be a non-negative integer")
		return
	}

	var req UpsertTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if req.MonthlyAllotment == nil || *req.MonthlyAllotment < 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "monthly_allotment must be a non-negative integer")
		return
	}

	tier := &models.Tier{
		Scope:            scope,
		Name:             req.Name,
		MonthlyAllotment: *req.MonthlyAllotment,
	}

	tierRepo := h.db.NewTierRepository()
	if err := tierRepo.Upsert(r.Context(), tier); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to save tier")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, toTierResponse(tier))
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"meter_gateway/internal/models"
	"meter_gateway/internal/storage"
	"meter_gateway/internal/utils"
)

// AdminEndpointsHandler handles endpoint-cost management endpoints
type AdminEndpointsHandler struct {
	db *storage.DB
}

// NewAdminEndpointsHandler creates a new admin endpoints handler
func NewAdminEndpointsHandler(db *storage.DB) *AdminEndpointsHandler {
	return &AdminEndpointsHandler{db: db}
}

// CreateEndpointRequest represents the request to register an endpoint cost
type CreateEndpointRequest struct {
	Path   string `json:"path"`
	Cost   *int64 `json:"cost"`
	Active *bool  `json:"active,omitempty"`
}

// UpdateEndpointRequest represents a partial endpoint update
type UpdateEndpointRequest struct {
	Path   *string `json:"path,omitempty"`
	Cost   *int64  `json:"cost,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// EndpointResponse represents an endpoint cost entry
type EndpointResponse struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Cost      int64  `json:"cost"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toEndpointResponse(endpoint *models.Endpoint) EndpointResponse {
	return EndpointResponse{
		ID:        endpoint.ID.String(),
		Path:      endpoint.Path,
		Cost:      endpoint.Cost,
		Active:    endpoint.Active,
		CreatedAt: endpoint.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: endpoint.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Create handles POST /admin/endpoints - Register an endpoint cost
func (h *AdminEndpointsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !requireAdminRole(w, r) {
		return
	}

	var req CreateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Path == "" || !strings.HasPrefix(req.Path, "/") {
		utils.RespondWithError(w, http.StatusBadRequest, "Path is required and must start with /")
		return
	}
	if req.Cost == nil || *req.Cost <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Cost must be a positive integer")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	endpoint := &models.Endpoint{
		ID:     uuid.New(),
		Path:   req.Path,
		Cost:   *req.Cost,
		Active: active,
	}

	endpointRepo := h.db.NewEndpointRepository()
	if err := endpointRepo.Create(r.Context(), endpoint); err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			utils.RespondWithError(w, http.StatusConflict, "Endpoint path already registered")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create endpoint")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, toEndpointResponse(endpoint))
}

// List handles GET /admin/endpoints - List registered endpoint costs
func (h *AdminEndpointsHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	endpointRepo := h.db.NewEndpointRepository()
	endpoints, err := endpointRepo.List(r.Context(), activeOnly)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list endpoints")
		return
	}

	responses := make([]EndpointResponse, 0, len(endpoints))
	for _, endpoint := range endpoints {
		responses = append(responses, toEndpointResponse(endpoint))
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items":       responses,
		"total_count": len(responses),
	})
}

// GetByID handles GET /admin/endpoints/:id - Get endpoint details
func (h *AdminEndpointsHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	endpointID, ok := endpointIDFromPath(w, r)
	if !ok {
		return
	}

	endpointRepo := h.db.NewEndpointRepository()
	endpoint, err := endpointRepo.GetByID(r.Context(), endpointID)
	if err != nil {
		if errors.Is(err, storage.ErrEndpointNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Endpoint not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get endpoint")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, toEndpointResponse(endpoint))
}

// Update handles PATCH /admin/endpoints/:id - Update endpoint fields.
// The repository invalidates the path cache entry so the new cost takes
// effect on the next request.
func (h *AdminEndpointsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !requireAdminRole(w, r) {
		return
	}

	endpointID, ok := endpointIDFromPath(w, r)
	if !ok {
		return
	}

	var req UpdateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	endpointRepo := h.db.NewEndpointRepository()
	endpoint, err := endpointRepo.GetByID(r.Context(), endpointID)
	if err != nil {
		if errors.Is(err, storage.ErrEndpointNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Endpoint not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get endpoint")
		return
	}

	if req.Path != nil {
		if !strings.HasPrefix(*req.Path, "/") {
			utils.RespondWithError(w, http.StatusBadRequest, "Path must start with /")
			return
		}
		endpoint.Path = *req.Path
	}
	if req.Cost != nil {
		if *req.Cost <= 0 {
			utils.RespondWithError(w, http.StatusBadRequest, "Cost must be a positive integer")
			return
		}
		endpoint.Cost = *req.Cost
	}
	if req.Active != nil {
		endpoint.Active = *req.Active
	}

	if err := endpointRepo.Update(r.Context(), endpoint); err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			utils.RespondWithError(w, http.StatusConflict, "Endpoint path already registered")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update endpoint")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, toEndpointResponse(endpoint))
}

// endpointIDFromPath extracts the endpoint ID from /admin/endpoints/:id
func endpointIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid endpoint ID")
		return uuid.Nil, false
	}
	endpointID, err := uuid.Parse(pathParts[2])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid endpoint ID format")
		return uuid.Nil, false
	}
	return endpointID, true
}

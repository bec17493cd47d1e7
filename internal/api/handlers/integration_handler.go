package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"stayspot/internal/pkg/errors"
	"stayspot/internal/platform/models"
	"stayspot/internal/platform/repositories"
)

type IntegrationHandler struct {
	integrations *repositories.IntegrationRepository
}

func NewIntegrationHandler(integrationRepo *repositories.IntegrationRepository) *IntegrationHandler {
	return &IntegrationHandler{integrations: integrationRepo}
}

// redactedConfigKeys are stripped from integration config before it leaves
// the API. The relay secret stays readable so operators can configure the
// upstream provider.
var redactedConfigKeys = []string{"apiKey", "secretKey", "password", "accessToken", "refreshToken"}

func redactConfig(integration *models.Integration) *models.Integration {
	if integration == nil || integration.Config == nil {
		return integration
	}
	clean := *integration
	clean.Config = make(map[string]interface{}, len(integration.Config))
	for key, value := range integration.Config {
		clean.Config[key] = value
	}
	for _, key := range redactedConfigKeys {
		delete(clean.Config, key)
	}
	return &clean
}

func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	page, limit, offset := parsePagination(r)

	q := r.URL.Query()
	filter := repositories.IntegrationFilter{
		CompanyID: claims.CompanyID,
		Type:      q.Get("type"),
		Status:    q.Get("status"),
		Search:    q.Get("search"),
		Limit:     limit,
		Offset:    offset,
	}

	list, total, err := h.integrations.List(filter)
	if err != nil {
		h.internalError(w, err, "failed to list integrations")
		return
	}
	for i, integration := range list {
		list[i] = redactConfig(integration)
	}

	writeJSON(w, http.StatusOK, struct {
		Success    bool                  `json:"success"`
		Data       []*models.Integration `json:"data"`
		Pagination pagination            `json:"pagination"`
	}{true, list, newPagination(total, page, limit)})
}

func (h *IntegrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	integration, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool                `json:"success"`
		Data    *models.Integration `json:"data"`
	}{true, redactConfig(integration)})
}

func (h *IntegrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	var req struct {
		Name        string                 `json:"name"`
		Provider    string                 `json:"provider"`
		Type        string                 `json:"type"`
		Description string                 `json:"description"`
		Config      map[string]interface{} `json:"config"`
		IsActive    bool                   `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Name == "" || req.Provider == "" || req.Type == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Name, provider and type are required", nil)
		return
	}

	if req.IsActive {
		duplicate, err := h.integrations.FindActiveDuplicate(claims.CompanyID, req.Provider, req.Type, "")
		if err != nil {
			h.internalError(w, err, "failed to check for duplicate integration")
			return
		}
		if duplicate != nil {
			errors.WriteError(w, http.StatusConflict, errors.ErrCodeInvalidState, "An active integration for this provider and type already exists", nil)
			return
		}
	}

	integration := &models.Integration{
		CompanyID:   claims.CompanyID,
		Name:        req.Name,
		Provider:    req.Provider,
		Type:        req.Type,
		Description: req.Description,
		Config:      req.Config,
		IsActive:    req.IsActive,
		Status:      statusForActive(req.IsActive),
		CreatedByID: claims.UserID,
	}
	if integration.Config == nil {
		integration.Config = map[string]interface{}{}
	}

	if err := h.integrations.Create(integration); err != nil {
		h.internalError(w, err, "failed to create integration")
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Success bool                `json:"success"`
		Message string              `json:"message"`
		Data    *models.Integration `json:"data"`
	}{true, "Integration created successfully", redactConfig(integration)})
}

func (h *IntegrationHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	integration, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        *string                `json:"name"`
		Description *string                `json:"description"`
		Config      map[string]interface{} `json:"config"`
		IsActive    *bool                  `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if req.Name != nil {
		integration.Name = *req.Name
	}
	if req.Description != nil {
		integration.Description = *req.Description
	}
	if req.Config != nil {
		// Merge so callers can update a single key without resubmitting
		// the redacted ones.
		if integration.Config == nil {
			integration.Config = map[string]interface{}{}
		}
		for key, value := range req.Config {
			integration.Config[key] = value
		}
	}
	if req.IsActive != nil {
		if *req.IsActive && !integration.IsActive {
			duplicate, err := h.integrations.FindActiveDuplicate(integration.CompanyID, integration.Provider, integration.Type, integration.ID)
			if err != nil {
				h.internalError(w, err, "failed to check for duplicate integration")
				return
			}
			if duplicate != nil {
				errors.WriteError(w, http.StatusConflict, errors.ErrCodeInvalidState, "An active integration for this provider and type already exists", nil)
				return
			}
		}
		integration.IsActive = *req.IsActive
		integration.Status = statusForActive(*req.IsActive)
	}
	integration.UpdatedByID = claims.UserID

	if err := h.integrations.Update(integration); err != nil {
		h.internalError(w, err, "failed to update integration")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool                `json:"success"`
		Message string              `json:"message"`
		Data    *models.Integration `json:"data"`
	}{true, "Integration updated successfully", redactConfig(integration)})
}

func (h *IntegrationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	integration, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	if err := h.integrations.SoftDelete(integration.ID, claims.UserID); err != nil {
		h.internalError(w, err, "failed to delete integration")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{true, "Integration deleted successfully"})
}

func (h *IntegrationHandler) loadOwned(w http.ResponseWriter, r *http.Request) (*models.Integration, bool) {
	claims := getClaims(r)

	integration, err := h.integrations.GetByID(getParam(r, "id"))
	if err != nil {
		h.internalError(w, err, "failed to load integration")
		return nil, false
	}
	if integration == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Integration not found", nil)
		return nil, false
	}
	if !canAccess(claims, integration.CompanyID) {
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "You do not have permission to access this integration", nil)
		return nil, false
	}
	return integration, true
}

func (h *IntegrationHandler) internalError(w http.ResponseWriter, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "An internal error occurred", nil)
}

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"stayspot/internal/engine/webhooks"
	"stayspot/internal/pkg/errors"
	"stayspot/internal/platform/models"
	"stayspot/internal/platform/repositories"
)

type WebhookHandler struct {
	webhooks     *repositories.WebhookRepository
	integrations *repositories.IntegrationRepository
	deliveries   *repositories.DeliveryRepository
	dispatcher   *webhooks.Dispatcher
	client       *webhooks.Client
}

func NewWebhookHandler(
	webhookRepo *repositories.WebhookRepository,
	integrationRepo *repositories.IntegrationRepository,
	deliveryRepo *repositories.DeliveryRepository,
	dispatcher *webhooks.Dispatcher,
	client *webhooks.Client,
) *WebhookHandler {
	return &WebhookHandler{
		webhooks:     webhookRepo,
		integrations: integrationRepo,
		deliveries:   deliveryRepo,
		dispatcher:   dispatcher,
		client:       client,
	}
}

// webhookWithSecret is the one response shape that carries the plaintext
// secret: returned on create and on explicit regenerate, never on reads.
type webhookWithSecret struct {
	*models.Webhook
	SecretKey string `json:"secretKey"`
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	page, limit, offset := parsePagination(r)

	q := r.URL.Query()
	filter := repositories.WebhookFilter{
		CompanyID:     claims.CompanyID,
		IntegrationID: q.Get("integrationId"),
		EventType:     q.Get("eventType"),
		Status:        q.Get("status"),
		Search:        q.Get("search"),
		Limit:         limit,
		Offset:        offset,
	}

	list, total, err := h.webhooks.List(filter)
	if err != nil {
		h.internalError(w, err, "failed to list webhooks")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success    bool              `json:"success"`
		Data       []*models.Webhook `json:"data"`
		Pagination pagination        `json:"pagination"`
	}{true, list, newPagination(total, page, limit)})
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	webhook, ok := h.loadOwned(w, r, "view")
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool            `json:"success"`
		Data    *models.Webhook `json:"data"`
	}{true, webhook})
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	var req struct {
		IntegrationID string                 `json:"integrationId"`
		Name          string                 `json:"name"`
		URL           string                 `json:"url"`
		EventType     string                 `json:"eventType"`
		Description   string                 `json:"description"`
		IsActive      bool                   `json:"isActive"`
		Headers       map[string]string      `json:"headers"`
		RetryConfig   *models.RetryPolicy    `json:"retryConfig"`
		Filters       map[string]interface{} `json:"filters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	integration, err := h.integrations.GetByID(req.IntegrationID)
	if err != nil {
		h.internalError(w, err, "failed to load integration")
		return
	}
	if integration == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Integration not found", nil)
		return
	}
	if !canAccess(claims, integration.CompanyID) {
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "You do not have permission to create webhook for this integration", nil)
		return
	}

	if !isValidURL(req.URL) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid URL format", nil)
		return
	}
	if !webhooks.ValidEventType(req.EventType) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput,
			fmt.Sprintf("Invalid event type. Must be one of: %s", strings.Join(webhooks.EventTypes, ", ")), nil)
		return
	}

	secretKey, err := webhooks.NewSecretKey()
	if err != nil {
		h.internalError(w, err, "failed to generate secret key")
		return
	}

	webhook := &models.Webhook{
		IntegrationID: req.IntegrationID,
		CompanyID:     claims.CompanyID,
		Name:          req.Name,
		URL:           req.URL,
		EventType:     req.EventType,
		Description:   req.Description,
		SecretKey:     secretKey,
		Headers:       req.Headers,
		Filters:       req.Filters,
		IsActive:      req.IsActive,
		Status:        statusForActive(req.IsActive),
		CreatedByID:   claims.UserID,
	}
	if req.RetryConfig != nil {
		webhook.RetryConfig = *req.RetryConfig
	} else {
		webhook.RetryConfig = models.DefaultRetryPolicy()
	}
	if webhook.Headers == nil {
		webhook.Headers = map[string]string{}
	}
	if webhook.Filters == nil {
		webhook.Filters = map[string]interface{}{}
	}

	if err := h.webhooks.Create(webhook); err != nil {
		h.internalError(w, err, "failed to create webhook")
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Success bool               `json:"success"`
		Message string             `json:"message"`
		Data    *webhookWithSecret `json:"data"`
	}{true, "Webhook created successfully", &webhookWithSecret{webhook, secretKey}})
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	webhook, ok := h.loadOwned(w, r, "update")
	if !ok {
		return
	}

	var req struct {
		Name             *string                `json:"name"`
		URL              *string                `json:"url"`
		EventType        *string                `json:"eventType"`
		Description      *string                `json:"description"`
		IsActive         *bool                  `json:"isActive"`
		Headers          map[string]string      `json:"headers"`
		RetryConfig      *models.RetryPolicy    `json:"retryConfig"`
		Filters          map[string]interface{} `json:"filters"`
		RegenerateSecret bool                   `json:"regenerateSecret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if req.URL != nil {
		if !isValidURL(*req.URL) {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid URL format", nil)
			return
		}
		webhook.URL = *req.URL
	}
	if req.EventType != nil {
		if !webhooks.ValidEventType(*req.EventType) {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput,
				fmt.Sprintf("Invalid event type. Must be one of: %s", strings.Join(webhooks.EventTypes, ", ")), nil)
			return
		}
		webhook.EventType = *req.EventType
	}
	if req.Name != nil {
		webhook.Name = *req.Name
	}
	if req.Description != nil {
		webhook.Description = *req.Description
	}
	if req.Headers != nil {
		webhook.Headers = req.Headers
	}
	if req.RetryConfig != nil {
		webhook.RetryConfig = *req.RetryConfig
	}
	if req.Filters != nil {
		webhook.Filters = req.Filters
	}
	// Status always follows the active flag
	if req.IsActive != nil {
		webhook.IsActive = *req.IsActive
		webhook.Status = statusForActive(*req.IsActive)
	}

	if req.RegenerateSecret {
		secretKey, err := webhooks.NewSecretKey()
		if err != nil {
			h.internalError(w, err, "failed to regenerate secret key")
			return
		}
		webhook.SecretKey = secretKey
	}
	webhook.UpdatedByID = claims.UserID

	if err := h.webhooks.Update(webhook); err != nil {
		h.internalError(w, err, "failed to update webhook")
		return
	}

	if req.RegenerateSecret {
		writeJSON(w, http.StatusOK, struct {
			Success bool               `json:"success"`
			Message string             `json:"message"`
			Data    *webhookWithSecret `json:"data"`
		}{true, "Webhook updated successfully", &webhookWithSecret{webhook, webhook.SecretKey}})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    *models.Webhook `json:"data"`
	}{true, "Webhook updated successfully", webhook})
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	webhook, ok := h.loadOwned(w, r, "delete")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	if err := h.webhooks.SoftDelete(webhook.ID, req.Reason, claims.UserID); err != nil {
		h.internalError(w, err, "failed to delete webhook")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{true, "Webhook deleted successfully"})
}

func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	webhook, ok := h.loadOwned(w, r, "test")
	if !ok {
		return
	}

	var req struct {
		Payload map[string]interface{} `json:"payload"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	payload := req.Payload
	if payload == nil {
		payload = map[string]interface{}{
			"event":     webhook.EventType,
			"webhookId": webhook.ID,
			"test":      true,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"data": map[string]interface{}{
				"message":     "Test webhook payload",
				"companyId":   webhook.CompanyID,
				"triggeredBy": claims.Name,
			},
		}
	}

	result, err := h.dispatcher.DispatchOne(webhook, payload)
	if err == webhooks.ErrWebhookInactive {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidState, "Webhook is not active", nil)
		return
	}
	if err != nil {
		h.internalError(w, err, "failed to test webhook")
		return
	}

	message := "Webhook test failed"
	if result.Success {
		message = "Webhook test successful"
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool                     `json:"success"`
		Message string                   `json:"message"`
		Data    *webhooks.DeliveryResult `json:"data"`
	}{true, message, result})
}

func (h *WebhookHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	webhook, ok := h.loadOwned(w, r, "view deliveries for")
	if !ok {
		return
	}

	page, limit, offset := parsePagination(r)
	q := r.URL.Query()
	filter := repositories.DeliveryFilter{
		WebhookID: webhook.ID,
		Status:    q.Get("status"),
		Since:     parseDateParam(q.Get("startDate")),
		Until:     parseDateParam(q.Get("endDate")),
		Limit:     limit,
		Offset:    offset,
	}

	list, total, err := h.deliveries.List(filter)
	if err != nil {
		h.internalError(w, err, "failed to list deliveries")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success    bool               `json:"success"`
		Data       []*models.Delivery `json:"data"`
		Pagination pagination         `json:"pagination"`
	}{true, list, newPagination(total, page, limit)})
}

func (h *WebhookHandler) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	webhook, ok := h.loadOwned(w, r, "retry deliveries for")
	if !ok {
		return
	}

	delivery, err := h.deliveries.GetByID(getParam(r, "delivery_id"))
	if err != nil {
		h.internalError(w, err, "failed to load delivery")
		return
	}
	if delivery == nil || delivery.WebhookID != webhook.ID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Delivery not found", nil)
		return
	}
	if delivery.Status != "failed" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidState, "Can only retry failed deliveries", nil)
		return
	}
	maxAttempts := webhook.RetryConfig.MaxAttempts
	if maxAttempts > 0 && delivery.Attempts >= maxAttempts {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidState, "Delivery has exhausted its retry attempts", nil)
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(delivery.Payload), &payload); err != nil {
		h.internalError(w, err, "stored delivery payload is not valid JSON")
		return
	}

	result := h.client.Deliver(webhook, payload)

	status := "failed"
	errMsg := result.Message
	if result.Success {
		status = "success"
		errMsg = ""
	}
	if err := h.deliveries.UpdateAttempt(delivery.ID, delivery.Attempts+1, status, result.StatusCode, result.Response, errMsg, time.Now().Unix()); err != nil {
		h.internalError(w, err, "failed to update delivery")
		return
	}

	message := "Webhook delivery failed on retry"
	if result.Success {
		message = "Webhook delivery retried successfully"
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool                     `json:"success"`
		Message string                   `json:"message"`
		Data    *webhooks.DeliveryResult `json:"data"`
	}{true, message, result})
}

func (h *WebhookHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	q := r.URL.Query()
	integrationID := q.Get("integrationId")
	eventType := q.Get("eventType")

	byStatus, err := h.webhooks.CountByStatus(claims.CompanyID, integrationID, eventType)
	if err != nil {
		h.internalError(w, err, "failed to count webhooks by status")
		return
	}
	total := 0
	for _, count := range byStatus {
		total += count
	}

	byEventType, err := h.webhooks.CountByEventType(claims.CompanyID, integrationID)
	if err != nil {
		h.internalError(w, err, "failed to count webhooks by event type")
		return
	}

	since := time.Now().Add(-24 * time.Hour).Unix()
	recentTotal, recentSuccess, recentFailed, err := h.deliveries.RecentStats(claims.CompanyID, since)
	if err != nil {
		h.internalError(w, err, "failed to load delivery stats")
		return
	}
	successRate := 0.0
	if recentTotal > 0 {
		successRate = float64(recentSuccess) / float64(recentTotal) * 100
	}

	mostActive, err := h.webhooks.MostRecent(claims.CompanyID, 5)
	if err != nil {
		h.internalError(w, err, "failed to load recent webhooks")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}{true, map[string]interface{}{
		"totalWebhooks": total,
		"byStatus":      byStatus,
		"byEventType":   byEventType,
		"recentDeliveries": map[string]int{
			"total":   recentTotal,
			"success": recentSuccess,
			"failed":  recentFailed,
		},
		"successRate": float64(int(successRate*100)) / 100,
		"mostActive":  mostActive,
	}})
}

// loadOwned fetches the webhook from the :id route param and enforces company
// scoping, writing the error response itself when the check fails.
func (h *WebhookHandler) loadOwned(w http.ResponseWriter, r *http.Request, action string) (*models.Webhook, bool) {
	claims := getClaims(r)

	webhook, err := h.webhooks.GetByID(getParam(r, "id"))
	if err != nil {
		h.internalError(w, err, "failed to load webhook")
		return nil, false
	}
	if webhook == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Webhook not found", nil)
		return nil, false
	}
	if !canAccess(claims, webhook.CompanyID) {
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden,
			fmt.Sprintf("You do not have permission to %s this webhook", action), nil)
		return nil, false
	}
	return webhook, true
}

// internalError logs the underlying error and returns a generic message so
// internal details never reach the client.
func (h *WebhookHandler) internalError(w http.ResponseWriter, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "An internal error occurred", nil)
}

func isValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.IsAbs() && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func statusForActive(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func parseDateParam(value string) int64 {
	if value == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0
	}
	return t.Unix()
}

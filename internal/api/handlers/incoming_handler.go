package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"stayspot/internal/engine/webhooks"
	"stayspot/internal/pkg/errors"
)

// IncomingHandler receives webhooks pushed to us by external providers and
// relays them to the integration's subscribed endpoints.
type IncomingHandler struct {
	dispatcher *webhooks.Dispatcher
}

func NewIncomingHandler(dispatcher *webhooks.Dispatcher) *IncomingHandler {
	return &IncomingHandler{dispatcher: dispatcher}
}

func (h *IncomingHandler) Receive(w http.ResponseWriter, r *http.Request) {
	integrationID := getParam(r, "id")
	signature := r.Header.Get("X-Webhook-Signature")
	timestamp := r.Header.Get("X-Webhook-Timestamp")

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	results, err := h.dispatcher.DispatchIncoming(integrationID, payload, signature, timestamp)
	switch err {
	case nil:
	case webhooks.ErrIntegrationNotFound:
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Integration not found", nil)
		return
	case webhooks.ErrIntegrationInactive:
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidState, "Integration is not active", nil)
		return
	case webhooks.ErrMissingCredentials:
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Missing signature or timestamp", nil)
		return
	case webhooks.ErrInvalidSignature:
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid signature", nil)
		return
	default:
		log.Error().Err(err).Str("integration_id", integrationID).Msg("failed to process incoming webhook")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "An internal error occurred", nil)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool                           `json:"success"`
		Message string                         `json:"message"`
		Data    []*webhooks.SubscriptionResult `json:"data"`
	}{true, fmt.Sprintf("Processed webhook for %d endpoints", len(results)), results})
}

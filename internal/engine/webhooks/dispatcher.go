package webhooks

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"stayspot/internal/platform/models"
	"stayspot/internal/platform/repositories"
)

var (
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrIntegrationInactive = errors.New("integration is not active")
	ErrWebhookInactive     = errors.New("webhook is not active")
	ErrMissingCredentials  = errors.New("missing signature or timestamp")
	ErrInvalidSignature    = errors.New("invalid signature")
)

// AuditLogger records inbound relay calls and their dispatch results. The
// dispatcher depends on this interface rather than writing its own audit
// side channel.
type AuditLogger interface {
	LogIncoming(integrationID string, payload, results interface{})
}

// SubscriptionResult is the per-webhook outcome of an inbound relay fan-out.
type SubscriptionResult struct {
	WebhookID   string `json:"webhookId"`
	WebhookName string `json:"webhookName"`
	Success     bool   `json:"success"`
	StatusCode  int    `json:"statusCode"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

type Dispatcher struct {
	webhooks     *repositories.WebhookRepository
	integrations *repositories.IntegrationRepository
	deliveries   *repositories.DeliveryRepository
	client       *Client
	audit        AuditLogger
}

func NewDispatcher(
	webhooks *repositories.WebhookRepository,
	integrations *repositories.IntegrationRepository,
	deliveries *repositories.DeliveryRepository,
	client *Client,
	audit AuditLogger,
) *Dispatcher {
	return &Dispatcher{
		webhooks:     webhooks,
		integrations: integrations,
		deliveries:   deliveries,
		client:       client,
		audit:        audit,
	}
}

// DispatchOne delivers a payload to a single webhook (manual test or delivery
// retry trigger). The webhook must be active. The outcome is persisted on the
// webhook record and as a delivery row.
func (d *Dispatcher) DispatchOne(webhook *models.Webhook, payload interface{}) (*DeliveryResult, error) {
	if !webhook.IsActive {
		return nil, ErrWebhookInactive
	}

	result := d.client.Deliver(webhook, payload)
	d.recordDelivery(webhook, payload, result)

	status := "failed"
	if result.Success {
		status = "success"
	}
	resultJSON, _ := json.Marshal(result)
	if err := d.webhooks.UpdateTestResult(webhook.ID, time.Now().Unix(), status, string(resultJSON)); err != nil {
		log.Error().Err(err).Str("webhook_id", webhook.ID).Msg("failed to record test result")
	}

	return result, nil
}

// DispatchIncoming relays a payload received from an external provider to
// every matching webhook registered under the integration, sequentially in
// registration order. If the integration's config declares a webhookSecret,
// the inbound signature is verified against that shared secret (not against
// each webhook's own key). Per-webhook delivery failures are collected, not
// escalated; the audit log records payload and results regardless of outcome.
func (d *Dispatcher) DispatchIncoming(integrationID string, payload map[string]interface{}, signature, timestamp string) ([]*SubscriptionResult, error) {
	integration, err := d.integrations.GetByID(integrationID)
	if err != nil {
		return nil, err
	}
	if integration == nil {
		return nil, ErrIntegrationNotFound
	}
	if !integration.IsActive {
		return nil, ErrIntegrationInactive
	}

	if secret, ok := integration.Config["webhookSecret"].(string); ok && secret != "" {
		if signature == "" || timestamp == "" {
			return nil, ErrMissingCredentials
		}
		if !Verify(payload, timestamp, secret, signature) {
			return nil, ErrInvalidSignature
		}
	}

	subscriptions, err := d.webhooks.ListActiveByIntegration(integrationID, integration.CompanyID)
	if err != nil {
		return nil, err
	}

	eventType := Classify(payload)
	results := make([]*SubscriptionResult, 0, len(subscriptions))

	for _, webhook := range subscriptions {
		if webhook.EventType != eventType {
			continue
		}
		if !Matches(payload, webhook.Filters) {
			continue
		}

		result := d.client.Deliver(webhook, payload)
		d.recordDelivery(webhook, payload, result)

		subResult := &SubscriptionResult{
			WebhookID:   webhook.ID,
			WebhookName: webhook.Name,
			Success:     result.Success,
			StatusCode:  result.StatusCode,
			Message:     result.Message,
		}
		if !result.Success {
			subResult.Error = result.Message
			log.Warn().
				Str("webhook_id", webhook.ID).
				Int("status_code", result.StatusCode).
				Msg("webhook delivery failed")
		}
		results = append(results, subResult)
	}

	if d.audit != nil {
		d.audit.LogIncoming(integrationID, payload, results)
	}

	return results, nil
}

func (d *Dispatcher) recordDelivery(webhook *models.Webhook, payload interface{}, result *DeliveryResult) {
	payloadJSON, err := CanonicalJSON(payload)
	if err != nil {
		return
	}

	status := "failed"
	if result.Success {
		status = "success"
	}
	delivery := &models.Delivery{
		WebhookID:  webhook.ID,
		EventType:  webhook.EventType,
		Payload:    string(payloadJSON),
		Attempts:   1,
		Status:     status,
		StatusCode: result.StatusCode,
		Response:   result.Response,
	}
	if !result.Success {
		delivery.Error = result.Message
	}

	if err := d.deliveries.Create(delivery); err != nil {
		log.Error().Err(err).Str("webhook_id", webhook.ID).Msg("failed to record delivery attempt")
	}
}

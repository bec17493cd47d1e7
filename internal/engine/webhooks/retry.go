package webhooks

import (
	"encoding/json"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"stayspot/internal/platform/models"
	"stayspot/internal/platform/repositories"
)

// maxBackoff caps the exponential growth so a large backoff factor cannot
// push retries out indefinitely.
const maxBackoff = 15 * time.Minute

// Backoff returns how long to wait after the given attempt number before the
// next try: RetryDelay * BackoffFactor^(attempt-1), with ±25% jitter.
func Backoff(policy models.RetryPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(policy.RetryDelay) * math.Pow(policy.BackoffFactor, float64(attempt-1))
	base := time.Duration(delay) * time.Millisecond
	if base > maxBackoff {
		base = maxBackoff
	}

	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(base) * jitter)
}

// Retrier re-delivers failed deliveries according to each webhook's retry
// policy. It wraps the stateless Client; the worker binary drives it on a
// ticker.
type Retrier struct {
	webhooks   *repositories.WebhookRepository
	deliveries *repositories.DeliveryRepository
	client     *Client
	batchSize  int
}

func NewRetrier(
	webhooks *repositories.WebhookRepository,
	deliveries *repositories.DeliveryRepository,
	client *Client,
	batchSize int,
) *Retrier {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Retrier{
		webhooks:   webhooks,
		deliveries: deliveries,
		client:     client,
		batchSize:  batchSize,
	}
}

// Run scans failed deliveries and retries the ones whose backoff window has
// elapsed. Deliveries stop retrying once the webhook's MaxAttempts is
// reached, or when the webhook is no longer active. Returns how many
// deliveries were retried.
func (r *Retrier) Run(now time.Time) (int, error) {
	failed, err := r.deliveries.ListFailed(r.batchSize)
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, delivery := range failed {
		webhook, err := r.webhooks.GetByID(delivery.WebhookID)
		if err != nil {
			log.Error().Err(err).Str("delivery_id", delivery.ID).Msg("failed to load webhook for retry")
			continue
		}
		if webhook == nil || !webhook.IsActive || webhook.Status == "deleted" {
			continue
		}

		policy := webhook.RetryConfig
		if policy.MaxAttempts <= 0 {
			policy = models.DefaultRetryPolicy()
		}
		if delivery.Attempts >= policy.MaxAttempts {
			continue
		}

		due := time.Unix(delivery.LastAttemptAt, 0).Add(Backoff(policy, delivery.Attempts))
		if now.Before(due) {
			continue
		}

		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(delivery.Payload), &payload); err != nil {
			log.Error().Err(err).Str("delivery_id", delivery.ID).Msg("stored payload is not valid JSON, skipping retry")
			continue
		}

		result := r.client.Deliver(webhook, payload)

		status := "failed"
		errMsg := result.Message
		if result.Success {
			status = "success"
			errMsg = ""
		}
		if err := r.deliveries.UpdateAttempt(delivery.ID, delivery.Attempts+1, status, result.StatusCode, result.Response, errMsg, now.Unix()); err != nil {
			log.Error().Err(err).Str("delivery_id", delivery.ID).Msg("failed to update delivery after retry")
			continue
		}

		retried++
		log.Info().
			Str("delivery_id", delivery.ID).
			Str("webhook_id", webhook.ID).
			Int("attempt", delivery.Attempts+1).
			Bool("success", result.Success).
			Msg("retried webhook delivery")
	}

	return retried, nil
}

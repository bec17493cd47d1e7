package workers

import (
	"time"

	"github.com/rs/zerolog/log"
	"stayspot/internal/engine/webhooks"
)

// RetryFailedDeliveries runs one retry sweep over failed webhook deliveries.
func RetryFailedDeliveries(retrier *webhooks.Retrier) {
	start := time.Now()
	retried, err := retrier.Run(start)
	if err != nil {
		log.Error().Err(err).Msg("webhook retry sweep failed")
		return
	}
	if retried > 0 {
		log.Info().
			Int("retried", retried).
			Dur("took", time.Since(start)).
			Msg("webhook retry sweep completed")
	}
}

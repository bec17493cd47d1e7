package audit

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// IncomingLog is the persisted audit record for one inbound relay call:
// the raw payload and the per-subscription dispatch results, keyed by
// integration and receive time.
type IncomingLog struct {
	ID            string `json:"id"`
	IntegrationID string `json:"integration_id"`
	Payload       string `json:"payload"`
	Results       string `json:"results"`
	ReceivedAt    int64  `json:"received_at"`
}

type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// LogIncoming records an inbound relay and its dispatch outcome. The write is
// asynchronous and best-effort; dispatch results are never blocked on it.
func (l *Logger) LogIncoming(integrationID string, payload, results interface{}) {
	payloadJSON, _ := json.Marshal(payload)
	resultsJSON, _ := json.Marshal(results)

	entry := &IncomingLog{
		ID:            "inlog_" + uuid.New().String(),
		IntegrationID: integrationID,
		Payload:       string(payloadJSON),
		Results:       string(resultsJSON),
		ReceivedAt:    time.Now().Unix(),
	}

	go func() {
		query := `
			INSERT INTO incoming_webhook_logs (id, integration_id, payload, results, received_at)
			VALUES (?, ?, ?, ?, ?)
		`
		if _, err := l.db.Exec(query, entry.ID, entry.IntegrationID, entry.Payload, entry.Results, entry.ReceivedAt); err != nil {
			log.Error().Err(err).Str("integration_id", integrationID).Msg("failed to write incoming webhook log")
		}
	}()

	log.Info().
		Str("integration_id", integrationID).
		Int("payload_bytes", len(entry.Payload)).
		Msg("incoming webhook processed")
}

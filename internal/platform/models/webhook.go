package models

// RetryPolicy bounds how often a failed delivery is retried by the worker.
// Delays are milliseconds; the effective delay for attempt n is
// RetryDelay * BackoffFactor^(n-1).
type RetryPolicy struct {
	MaxAttempts   int     `json:"maxAttempts"`
	RetryDelay    int64   `json:"retryDelay"`
	BackoffFactor float64 `json:"backoffFactor"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		RetryDelay:    5000,
		BackoffFactor: 2,
	}
}

// Webhook is a registered outbound endpoint subscribed to one event type.
// SecretKey is generated once at creation and only regenerated on explicit
// request; it never appears in JSON output, handlers return it exactly once.
type Webhook struct {
	ID             string                 `json:"id"`
	IntegrationID  string                 `json:"integration_id"`
	CompanyID      string                 `json:"company_id"`
	Name           string                 `json:"name"`
	URL            string                 `json:"url"`
	EventType      string                 `json:"event_type"`
	Description    string                 `json:"description,omitempty"`
	SecretKey      string                 `json:"-"`
	Headers        map[string]string      `json:"headers,omitempty"`      // JSON object in DB
	RetryConfig    RetryPolicy            `json:"retry_config"`           // JSON object in DB
	Filters        map[string]interface{} `json:"filters,omitempty"`      // JSON object in DB
	IsActive       bool                   `json:"is_active"`
	Status         string                 `json:"status"` // active, inactive, deleted
	CreatedByID    string                 `json:"created_by_id,omitempty"`
	UpdatedByID    string                 `json:"updated_by_id,omitempty"`
	LastTestedAt   *int64                 `json:"last_tested_at,omitempty"`
	LastTestStatus string                 `json:"last_test_status,omitempty"`
	LastTestResult string                 `json:"last_test_result,omitempty"` // JSON snapshot of the last DeliveryResult
	DeletedAt      *int64                 `json:"deleted_at,omitempty"`
	DeletedBy      string                 `json:"deleted_by,omitempty"`
	DeletionReason string                 `json:"deletion_reason,omitempty"`
	CreatedAt      int64                  `json:"created_at"`
	UpdatedAt      int64                  `json:"updated_at"`
}

// Delivery is one logical delivery of a payload to a webhook. Attempts counts
// tries so far; the retry worker keeps re-delivering failed rows until
// Attempts reaches the webhook's RetryPolicy.MaxAttempts.
type Delivery struct {
	ID            string `json:"id"`
	WebhookID     string `json:"webhook_id"`
	EventType     string `json:"event_type"`
	Payload       string `json:"payload"` // raw JSON as delivered
	Attempts      int    `json:"attempts"`
	Status        string `json:"status"` // success, failed
	StatusCode    int    `json:"status_code"`
	Response      string `json:"response,omitempty"`
	Error         string `json:"error,omitempty"`
	LastAttemptAt int64  `json:"last_attempt_at"`
	CreatedAt     int64  `json:"created_at"`
}

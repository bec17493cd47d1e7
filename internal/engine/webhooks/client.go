package webhooks

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"stayspot/internal/platform/models"
)

const (
	defaultUserAgent       = "StaySpot-Webhook/1.0"
	defaultDeliveryTimeout = 10 * time.Second
	maxResponseSnippet     = 2048
)

// DeliveryResult is the outcome of one delivery try. Failure is an expected,
// routine outcome: the client never returns a Go error, every failure mode
// lands in the result. StatusCode is 0 when no HTTP response was received.
type DeliveryResult struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Response   string `json:"response,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

type Client struct {
	httpClient *http.Client
	userAgent  string
}

func NewClient(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// Deliver POSTs the payload to the webhook's URL with signed headers. The
// signature covers the exact bytes sent on the wire.
func (c *Client) Deliver(webhook *models.Webhook, payload interface{}) *DeliveryResult {
	body, err := CanonicalJSON(payload)
	if err != nil {
		return failureResult(0, err.Error())
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := SignBytes(body, timestamp, webhook.SecretKey)

	headers := map[string]string{
		"Content-Type":        "application/json",
		"User-Agent":          c.userAgent,
		"X-Webhook-Signature": signature,
		"X-Webhook-Timestamp": timestamp,
		"X-Webhook-Id":        webhook.ID,
		"X-Webhook-Event":     webhook.EventType,
	}
	// Custom headers merge last so a subscription can override the computed set.
	for name, value := range webhook.Headers {
		headers[name] = value
	}

	req, err := http.NewRequest(http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return failureResult(0, err.Error())
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failureResult(0, err.Error())
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnippet))

	result := &DeliveryResult{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Response:   string(snippet),
		Timestamp:  time.Now().UnixMilli(),
	}
	if result.Success {
		result.Message = fmt.Sprintf("Webhook delivered successfully (%d)", resp.StatusCode)
	} else {
		result.Message = fmt.Sprintf("Webhook delivery failed (HTTP %d)", resp.StatusCode)
	}
	return result
}

func failureResult(statusCode int, message string) *DeliveryResult {
	return &DeliveryResult{
		Success:    false,
		StatusCode: statusCode,
		Message:    message,
		Timestamp:  time.Now().UnixMilli(),
	}
}

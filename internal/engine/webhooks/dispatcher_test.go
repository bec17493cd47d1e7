package webhooks

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"stayspot/internal/platform/models"
	"stayspot/internal/platform/repositories"
)

const testSchema = `
CREATE TABLE integrations (
	id TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	name TEXT NOT NULL,
	provider TEXT NOT NULL,
	type TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	config TEXT NOT NULL DEFAULT '{}',
	is_active INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'inactive',
	created_by TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT '',
	deleted_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE webhooks (
	id TEXT PRIMARY KEY,
	integration_id TEXT NOT NULL,
	company_id TEXT NOT NULL,
	name TEXT NOT NULL,
	url TEXT NOT NULL,
	event_type TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	secret_key TEXT NOT NULL,
	headers TEXT NOT NULL DEFAULT '{}',
	retry_config TEXT NOT NULL DEFAULT '{}',
	filters TEXT NOT NULL DEFAULT '{}',
	is_active INTEGER NOT NULL DEFAULT 1,
	status TEXT NOT NULL DEFAULT 'active',
	created_by TEXT NOT NULL DEFAULT '',
	updated_by TEXT NOT NULL DEFAULT '',
	last_tested_at INTEGER,
	last_test_status TEXT NOT NULL DEFAULT '',
	last_test_result TEXT NOT NULL DEFAULT '',
	deleted_at INTEGER,
	deleted_by TEXT NOT NULL DEFAULT '',
	deletion_reason TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE webhook_deliveries (
	id TEXT PRIMARY KEY,
	webhook_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	attempts INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	status_code INTEGER NOT NULL DEFAULT 0,
	response TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	last_attempt_at INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE TABLE incoming_webhook_logs (
	id TEXT PRIMARY KEY,
	integration_id TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	results TEXT NOT NULL DEFAULT '[]',
	received_at INTEGER NOT NULL
);
`

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test db: %v", err)
	}
	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type capturedAudit struct {
	mu            sync.Mutex
	integrationID string
	results       interface{}
	calls         int
}

func (c *capturedAudit) LogIncoming(integrationID string, payload, results interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.integrationID = integrationID
	c.results = results
	c.calls++
}

type dispatcherEnv struct {
	db           *sql.DB
	webhooks     *repositories.WebhookRepository
	integrations *repositories.IntegrationRepository
	deliveries   *repositories.DeliveryRepository
	audit        *capturedAudit
	dispatcher   *Dispatcher
}

func newDispatcherEnv(t *testing.T) *dispatcherEnv {
	t.Helper()
	db := newTestDB(t)
	env := &dispatcherEnv{
		db:           db,
		webhooks:     repositories.NewWebhookRepository(db),
		integrations: repositories.NewIntegrationRepository(db),
		deliveries:   repositories.NewDeliveryRepository(db),
		audit:        &capturedAudit{},
	}
	env.dispatcher = NewDispatcher(env.webhooks, env.integrations, env.deliveries, NewClient(5*time.Second, ""), env.audit)
	return env
}

func (env *dispatcherEnv) createIntegration(t *testing.T, config map[string]interface{}, active bool) *models.Integration {
	t.Helper()
	status := "inactive"
	if active {
		status = "active"
	}
	integration := &models.Integration{
		CompanyID: "comp_1",
		Name:      "Payments",
		Provider:  "stripe",
		Type:      "payment",
		Config:    config,
		IsActive:  active,
		Status:    status,
	}
	if err := env.integrations.Create(integration); err != nil {
		t.Fatalf("Failed to create integration: %v", err)
	}
	return integration
}

func (env *dispatcherEnv) createWebhook(t *testing.T, integrationID, name, url, eventType string, filters map[string]interface{}, active bool) *models.Webhook {
	t.Helper()
	status := "inactive"
	if active {
		status = "active"
	}
	webhook := &models.Webhook{
		IntegrationID: integrationID,
		CompanyID:     "comp_1",
		Name:          name,
		URL:           url,
		EventType:     eventType,
		SecretKey:     "wh-secret-" + name,
		Filters:       filters,
		RetryConfig:   models.DefaultRetryPolicy(),
		IsActive:      active,
		Status:        status,
	}
	if err := env.webhooks.Create(webhook); err != nil {
		t.Fatalf("Failed to create webhook: %v", err)
	}
	return webhook
}

func TestDispatchIncomingFanOut(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	env := newDispatcherEnv(t)
	integration := env.createIntegration(t, map[string]interface{}{"webhookSecret": "s3cr3t"}, true)

	matching := env.createWebhook(t, integration.ID, "matching", server.URL+"/match", "tenant.created",
		map[string]interface{}{"tenant.id": float64(1)}, true)
	env.createWebhook(t, integration.ID, "wrong-event", server.URL+"/wrong-event", "payment.created", nil, true)
	env.createWebhook(t, integration.ID, "inactive", server.URL+"/inactive", "tenant.created", nil, false)
	env.createWebhook(t, integration.ID, "filter-miss", server.URL+"/filter-miss", "tenant.created",
		map[string]interface{}{"tenant.id": float64(2)}, true)

	payload := map[string]interface{}{"tenant": map[string]interface{}{"id": float64(1)}}
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig := SignBytes(mustJSON(t, payload), timestamp, "s3cr3t")

	results, err := env.dispatcher.DispatchIncoming(integration.ID, payload, sig, timestamp)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].WebhookID != matching.ID || !results[0].Success {
		t.Errorf("Unexpected result: %+v", results[0])
	}

	mu.Lock()
	if hits["/match"] != 1 {
		t.Errorf("Expected exactly one delivery to /match, got %d", hits["/match"])
	}
	if len(hits) != 1 {
		t.Errorf("Expected no other endpoints to be hit, got %v", hits)
	}
	mu.Unlock()

	// Exactly one delivery row, for the matching webhook
	deliveries, total, err := env.deliveries.List(repositories.DeliveryFilter{WebhookID: matching.ID, Limit: 10})
	if err != nil {
		t.Fatalf("Failed to list deliveries: %v", err)
	}
	if total != 1 || len(deliveries) != 1 {
		t.Fatalf("Expected 1 delivery row, got %d", total)
	}
	if deliveries[0].Status != "success" || deliveries[0].Attempts != 1 {
		t.Errorf("Unexpected delivery row: %+v", deliveries[0])
	}

	if env.audit.calls != 1 || env.audit.integrationID != integration.ID {
		t.Errorf("Expected one audit entry for the integration, got %+v", env.audit)
	}
}

func TestDispatchIncomingIntegrationErrors(t *testing.T) {
	env := newDispatcherEnv(t)

	if _, err := env.dispatcher.DispatchIncoming("int_missing", map[string]interface{}{}, "", ""); err != ErrIntegrationNotFound {
		t.Errorf("Expected ErrIntegrationNotFound, got %v", err)
	}

	inactive := env.createIntegration(t, nil, false)
	if _, err := env.dispatcher.DispatchIncoming(inactive.ID, map[string]interface{}{}, "", ""); err != ErrIntegrationInactive {
		t.Errorf("Expected ErrIntegrationInactive, got %v", err)
	}
}

func TestDispatchIncomingSignatureChecks(t *testing.T) {
	env := newDispatcherEnv(t)
	integration := env.createIntegration(t, map[string]interface{}{"webhookSecret": "s3cr3t"}, true)
	payload := map[string]interface{}{"tenant": map[string]interface{}{"id": float64(1)}}
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	// Missing both headers
	if _, err := env.dispatcher.DispatchIncoming(integration.ID, payload, "", ""); err != ErrMissingCredentials {
		t.Errorf("Expected ErrMissingCredentials, got %v", err)
	}

	// Missing timestamp only
	sig := SignBytes(mustJSON(t, payload), timestamp, "s3cr3t")
	if _, err := env.dispatcher.DispatchIncoming(integration.ID, payload, sig, ""); err != ErrMissingCredentials {
		t.Errorf("Expected ErrMissingCredentials, got %v", err)
	}

	// Wrong secret
	bad := SignBytes(mustJSON(t, payload), timestamp, "wrong")
	if _, err := env.dispatcher.DispatchIncoming(integration.ID, payload, bad, timestamp); err != ErrInvalidSignature {
		t.Errorf("Expected ErrInvalidSignature, got %v", err)
	}

	// No secret configured: relay is open, no headers required
	open := env.createIntegration(t, map[string]interface{}{}, true)
	if _, err := env.dispatcher.DispatchIncoming(open.ID, payload, "", ""); err != nil {
		t.Errorf("Expected open relay to accept unsigned payload, got %v", err)
	}
}

func TestDispatchOne(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	env := newDispatcherEnv(t)
	integration := env.createIntegration(t, nil, true)

	inactive := env.createWebhook(t, integration.ID, "off", server.URL, "payment.created", nil, false)
	if _, err := env.dispatcher.DispatchOne(inactive, map[string]interface{}{"test": true}); err != ErrWebhookInactive {
		t.Errorf("Expected ErrWebhookInactive, got %v", err)
	}

	active := env.createWebhook(t, integration.ID, "on", server.URL, "payment.created", nil, true)
	result, err := env.dispatcher.DispatchOne(active, map[string]interface{}{"test": true})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("Expected success, got %+v", result)
	}

	// Outcome is persisted on the webhook and as a delivery row
	stored, err := env.webhooks.GetByID(active.ID)
	if err != nil || stored == nil {
		t.Fatalf("Failed to reload webhook: %v", err)
	}
	if stored.LastTestStatus != "success" {
		t.Errorf("Expected last test status success, got %q", stored.LastTestStatus)
	}
	if stored.LastTestedAt == nil {
		t.Error("Expected last tested timestamp to be set")
	}

	_, total, err := env.deliveries.List(repositories.DeliveryFilter{WebhookID: active.ID, Limit: 10})
	if err != nil {
		t.Fatalf("Failed to list deliveries: %v", err)
	}
	if total != 1 {
		t.Errorf("Expected 1 delivery row, got %d", total)
	}
}

func mustJSON(t *testing.T, payload interface{}) []byte {
	t.Helper()
	body, err := CanonicalJSON(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return body
}

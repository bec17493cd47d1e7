package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	_ "github.com/mattn/go-sqlite3"
	apiContext "stayspot/internal/api/context"
	"stayspot/internal/engine/webhooks"
	"stayspot/internal/platform/auth"
	"stayspot/internal/platform/models"
	"stayspot/internal/platform/repositories"
)

const handlerTestSchema = `
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

type handlerEnv struct {
	db           *sql.DB
	webhooks     *repositories.WebhookRepository
	integrations *repositories.IntegrationRepository
	deliveries   *repositories.DeliveryRepository
	handler      *WebhookHandler
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test db: %v", err)
	}
	if _, err := db.Exec(handlerTestSchema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &handlerEnv{
		db:           db,
		webhooks:     repositories.NewWebhookRepository(db),
		integrations: repositories.NewIntegrationRepository(db),
		deliveries:   repositories.NewDeliveryRepository(db),
	}
	client := webhooks.NewClient(5*time.Second, "")
	dispatcher := webhooks.NewDispatcher(env.webhooks, env.integrations, env.deliveries, client, nil)
	env.handler = NewWebhookHandler(env.webhooks, env.integrations, env.deliveries, dispatcher, client)
	return env
}

func (env *handlerEnv) createIntegration(t *testing.T) *models.Integration {
	t.Helper()
	integration := &models.Integration{
		CompanyID: "comp_1",
		Name:      "Payments",
		Provider:  "stripe",
		Type:      "payment",
		IsActive:  true,
		Status:    "active",
	}
	if err := env.integrations.Create(integration); err != nil {
		t.Fatalf("Failed to create integration: %v", err)
	}
	return integration
}

func testClaims() *auth.Claims {
	return &auth.Claims{
		UserID:    "usr_1",
		CompanyID: "comp_1",
		Role:      "admin",
		Email:     "admin@example.com",
		Name:      "Ada Admin",
	}
}

func newAuthedRequest(method, target string, body interface{}, params httprouter.Params) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := context.WithValue(req.Context(), apiContext.Claims, testClaims())
	if params != nil {
		ctx = context.WithValue(ctx, apiContext.Params, params)
	}
	return req.WithContext(ctx)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response is not valid JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestWebhookCreateReturnsSecretOnce(t *testing.T) {
	env := newHandlerEnv(t)
	integration := env.createIntegration(t)

	req := newAuthedRequest(http.MethodPost, "/api/v1/webhooks", map[string]interface{}{
		"integrationId": integration.ID,
		"name":          "Payment hook",
		"url":           "https://example.com/hook",
		"eventType":     "payment.created",
		"isActive":      true,
	}, nil)
	rec := httptest.NewRecorder()
	env.handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	secret, _ := data["secretKey"].(string)
	if len(secret) != 64 {
		t.Fatalf("Expected 64-char secret in create response, got %q", secret)
	}
	webhookID := data["id"].(string)

	// Subsequent reads never expose the secret
	getReq := newAuthedRequest(http.MethodGet, "/api/v1/webhooks/"+webhookID, nil,
		httprouter.Params{{Key: "id", Value: webhookID}})
	getRec := httptest.NewRecorder()
	env.handler.Get(getRec, getReq)

	if getRec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", getRec.Code)
	}
	getData := decodeBody(t, getRec)["data"].(map[string]interface{})
	if _, exposed := getData["secretKey"]; exposed {
		t.Error("Secret key exposed on read")
	}
}

func TestWebhookCreateValidation(t *testing.T) {
	env := newHandlerEnv(t)
	integration := env.createIntegration(t)

	// Unknown integration
	req := newAuthedRequest(http.MethodPost, "/api/v1/webhooks", map[string]interface{}{
		"integrationId": "int_missing",
		"name":          "x",
		"url":           "https://example.com",
		"eventType":     "payment.created",
	}, nil)
	rec := httptest.NewRecorder()
	env.handler.Create(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown integration, got %d", rec.Code)
	}

	// Bad URL scheme
	req = newAuthedRequest(http.MethodPost, "/api/v1/webhooks", map[string]interface{}{
		"integrationId": integration.ID,
		"name":          "x",
		"url":           "ftp://example.com",
		"eventType":     "payment.created",
	}, nil)
	rec = httptest.NewRecorder()
	env.handler.Create(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad URL, got %d", rec.Code)
	}

	// Unknown event type
	req = newAuthedRequest(http.MethodPost, "/api/v1/webhooks", map[string]interface{}{
		"integrationId": integration.ID,
		"name":          "x",
		"url":           "https://example.com",
		"eventType":     "payment.exploded",
	}, nil)
	rec = httptest.NewRecorder()
	env.handler.Create(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown event type, got %d", rec.Code)
	}
}

func TestWebhookCreateAllowsDuplicates(t *testing.T) {
	env := newHandlerEnv(t)
	integration := env.createIntegration(t)

	payload := map[string]interface{}{
		"integrationId": integration.ID,
		"name":          "Same endpoint",
		"url":           "https://example.com/hook",
		"eventType":     "payment.created",
		"isActive":      true,
	}

	var secrets []string
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		env.handler.Create(rec, newAuthedRequest(http.MethodPost, "/api/v1/webhooks", payload, nil))
		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d", rec.Code)
		}
		data := decodeBody(t, rec)["data"].(map[string]interface{})
		secrets = append(secrets, data["secretKey"].(string))
	}
	if secrets[0] == secrets[1] {
		t.Error("Expected duplicate registrations to get distinct secrets")
	}
}

func TestWebhookUpdateRegenerateSecret(t *testing.T) {
	env := newHandlerEnv(t)
	integration := env.createIntegration(t)

	webhook := &models.Webhook{
		IntegrationID: integration.ID,
		CompanyID:     "comp_1",
		Name:          "hook",
		URL:           "https://example.com/hook",
		EventType:     "payment.created",
		SecretKey:     "old-secret",
		IsActive:      true,
		Status:        "active",
	}
	if err := env.webhooks.Create(webhook); err != nil {
		t.Fatalf("Failed to create webhook: %v", err)
	}

	params := httprouter.Params{{Key: "id", Value: webhook.ID}}

	// Plain update: no secret in response
	rec := httptest.NewRecorder()
	env.handler.Update(rec, newAuthedRequest(http.MethodPut, "/api/v1/webhooks/"+webhook.ID,
		map[string]interface{}{"name": "renamed"}, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	if _, exposed := data["secretKey"]; exposed {
		t.Error("Secret key exposed on plain update")
	}

	// Regenerate: new secret returned, old one replaced
	rec = httptest.NewRecorder()
	env.handler.Update(rec, newAuthedRequest(http.MethodPut, "/api/v1/webhooks/"+webhook.ID,
		map[string]interface{}{"regenerateSecret": true}, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	data = decodeBody(t, rec)["data"].(map[string]interface{})
	secret, _ := data["secretKey"].(string)
	if len(secret) != 64 || secret == "old-secret" {
		t.Errorf("Expected fresh secret, got %q", secret)
	}

	stored, err := env.webhooks.GetByID(webhook.ID)
	if err != nil || stored == nil {
		t.Fatalf("Failed to reload webhook: %v", err)
	}
	if stored.SecretKey != secret {
		t.Error("Stored secret does not match returned secret")
	}
	if stored.Name != "renamed" {
		t.Errorf("Earlier update lost: %q", stored.Name)
	}
}

func TestWebhookTestInactive(t *testing.T) {
	env := newHandlerEnv(t)
	integration := env.createIntegration(t)

	webhook := &models.Webhook{
		IntegrationID: integration.ID,
		CompanyID:     "comp_1",
		Name:          "off",
		URL:           "https://example.com/hook",
		EventType:     "payment.created",
		SecretKey:     "s",
		IsActive:      false,
		Status:        "inactive",
	}
	if err := env.webhooks.Create(webhook); err != nil {
		t.Fatalf("Failed to create webhook: %v", err)
	}

	rec := httptest.NewRecorder()
	env.handler.Test(rec, newAuthedRequest(http.MethodPost, "/api/v1/webhooks/"+webhook.ID+"/test", nil,
		httprouter.Params{{Key: "id", Value: webhook.ID}}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for inactive webhook, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["message"] != "Webhook is not active" {
		t.Errorf("Unexpected message: %v", body["message"])
	}
}

func TestWebhookDeleteSoft(t *testing.T) {
	env := newHandlerEnv(t)
	integration := env.createIntegration(t)

	webhook := &models.Webhook{
		IntegrationID: integration.ID,
		CompanyID:     "comp_1",
		Name:          "doomed",
		URL:           "https://example.com/hook",
		EventType:     "payment.created",
		SecretKey:     "s",
		IsActive:      true,
		Status:        "active",
	}
	if err := env.webhooks.Create(webhook); err != nil {
		t.Fatalf("Failed to create webhook: %v", err)
	}

	rec := httptest.NewRecorder()
	env.handler.Delete(rec, newAuthedRequest(http.MethodDelete, "/api/v1/webhooks/"+webhook.ID,
		map[string]interface{}{"reason": "migrating endpoints"},
		httprouter.Params{{Key: "id", Value: webhook.ID}}))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	stored, err := env.webhooks.GetByID(webhook.ID)
	if err != nil || stored == nil {
		t.Fatalf("Expected soft-deleted row to remain: %v", err)
	}
	if stored.Status != "deleted" || stored.DeletionReason != "migrating endpoints" || stored.DeletedBy != "usr_1" {
		t.Errorf("Deletion metadata wrong: %+v", stored)
	}
}

func TestWebhookGetForbiddenAcrossCompanies(t *testing.T) {
	env := newHandlerEnv(t)
	integration := env.createIntegration(t)

	webhook := &models.Webhook{
		IntegrationID: integration.ID,
		CompanyID:     "comp_other",
		Name:          "foreign",
		URL:           "https://example.com/hook",
		EventType:     "payment.created",
		SecretKey:     "s",
		IsActive:      true,
		Status:        "active",
	}
	if err := env.webhooks.Create(webhook); err != nil {
		t.Fatalf("Failed to create webhook: %v", err)
	}

	rec := httptest.NewRecorder()
	env.handler.Get(rec, newAuthedRequest(http.MethodGet, "/api/v1/webhooks/"+webhook.ID, nil,
		httprouter.Params{{Key: "id", Value: webhook.ID}}))

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for another company's webhook, got %d", rec.Code)
	}
}

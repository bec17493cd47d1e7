package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"stayspot/internal/platform/models"
)

const webhookColumns = `id, integration_id, company_id, name, url, event_type, description, secret_key,
	headers, retry_config, filters, is_active, status, created_by, updated_by,
	last_tested_at, last_test_status, last_test_result,
	deleted_at, deleted_by, deletion_reason, created_at, updated_at`

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// WebhookFilter narrows List the way the API's query parameters do.
type WebhookFilter struct {
	CompanyID     string
	IntegrationID string
	EventType     string
	Status        string
	Search        string
	Limit         int
	Offset        int
}

func (r *WebhookRepository) Create(webhook *models.Webhook) error {
	if webhook.ID == "" {
		webhook.ID = "wh_" + uuid.New().String()
	}
	now := time.Now().Unix()
	webhook.CreatedAt = now
	webhook.UpdatedAt = now

	headersJSON, err := json.Marshal(webhook.Headers)
	if err != nil {
		return err
	}
	retryJSON, err := json.Marshal(webhook.RetryConfig)
	if err != nil {
		return err
	}
	filtersJSON, err := json.Marshal(webhook.Filters)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO webhooks (id, integration_id, company_id, name, url, event_type, description, secret_key,
			headers, retry_config, filters, is_active, status, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		webhook.ID, webhook.IntegrationID, webhook.CompanyID, webhook.Name, webhook.URL,
		webhook.EventType, webhook.Description, webhook.SecretKey,
		string(headersJSON), string(retryJSON), string(filtersJSON),
		webhook.IsActive, webhook.Status, webhook.CreatedByID, webhook.CreatedAt, webhook.UpdatedAt)
	return err
}

func (r *WebhookRepository) GetByID(id string) (*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = ?`
	webhook, err := scanWebhook(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return webhook, err
}

func (r *WebhookRepository) List(filter WebhookFilter) ([]*models.Webhook, int, error) {
	where := []string{"company_id = ?"}
	args := []interface{}{filter.CompanyID}

	if filter.IntegrationID != "" {
		where = append(where, "integration_id = ?")
		args = append(args, filter.IntegrationID)
	}
	if filter.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	} else {
		where = append(where, "status != 'deleted'")
	}
	if filter.Search != "" {
		where = append(where, "(name LIKE ? OR url LIKE ? OR description LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM webhooks WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM webhooks WHERE %s ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		webhookColumns, whereClause)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var webhooks []*models.Webhook
	for rows.Next() {
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, 0, err
		}
		webhooks = append(webhooks, webhook)
	}
	return webhooks, total, rows.Err()
}

func (r *WebhookRepository) Update(webhook *models.Webhook) error {
	headersJSON, err := json.Marshal(webhook.Headers)
	if err != nil {
		return err
	}
	retryJSON, err := json.Marshal(webhook.RetryConfig)
	if err != nil {
		return err
	}
	filtersJSON, err := json.Marshal(webhook.Filters)
	if err != nil {
		return err
	}
	webhook.UpdatedAt = time.Now().Unix()

	query := `
		UPDATE webhooks
		SET name = ?, url = ?, event_type = ?, description = ?, secret_key = ?,
			headers = ?, retry_config = ?, filters = ?, is_active = ?, status = ?,
			updated_by = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = r.db.Exec(query,
		webhook.Name, webhook.URL, webhook.EventType, webhook.Description, webhook.SecretKey,
		string(headersJSON), string(retryJSON), string(filtersJSON),
		webhook.IsActive, webhook.Status, webhook.UpdatedByID, webhook.UpdatedAt, webhook.ID)
	return err
}

// SoftDelete marks the webhook deleted and inactive. Rows are never removed;
// deleted webhooks are excluded from dispatch and from ListActiveByIntegration.
func (r *WebhookRepository) SoftDelete(id, reason, deletedBy string) error {
	now := time.Now().Unix()
	query := `
		UPDATE webhooks
		SET status = 'deleted', is_active = 0, deleted_at = ?, deleted_by = ?, deletion_reason = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query, now, deletedBy, reason, now, id)
	return err
}

// ListActiveByIntegration returns active, non-deleted webhooks in registration
// order, the order DispatchIncoming fans out in.
func (r *WebhookRepository) ListActiveByIntegration(integrationID, companyID string) ([]*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks
		WHERE integration_id = ? AND company_id = ? AND is_active = 1 AND status != 'deleted'
		ORDER BY created_at ASC`
	rows, err := r.db.Query(query, integrationID, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var webhooks []*models.Webhook
	for rows.Next() {
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, webhook)
	}
	return webhooks, rows.Err()
}

func (r *WebhookRepository) UpdateTestResult(id string, testedAt int64, status, resultJSON string) error {
	query := `UPDATE webhooks SET last_tested_at = ?, last_test_status = ?, last_test_result = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.Exec(query, testedAt, status, resultJSON, time.Now().Unix(), id)
	return err
}

func (r *WebhookRepository) CountByStatus(companyID, integrationID, eventType string) (map[string]int, error) {
	where, args := statsWhere(companyID, integrationID, eventType)
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM webhooks WHERE `+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

type EventTypeCount struct {
	EventType string `json:"eventType"`
	Count     int    `json:"count"`
}

func (r *WebhookRepository) CountByEventType(companyID, integrationID string) ([]EventTypeCount, error) {
	where, args := statsWhere(companyID, integrationID, "")
	query := `SELECT event_type, COUNT(*) AS count FROM webhooks WHERE ` + where + `
		GROUP BY event_type ORDER BY count DESC LIMIT 10`
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []EventTypeCount
	for rows.Next() {
		var c EventTypeCount
		if err := rows.Scan(&c.EventType, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *WebhookRepository) MostRecent(companyID string, limit int) ([]*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks
		WHERE company_id = ? AND status != 'deleted' ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.Query(query, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var webhooks []*models.Webhook
	for rows.Next() {
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, webhook)
	}
	return webhooks, rows.Err()
}

func statsWhere(companyID, integrationID, eventType string) (string, []interface{}) {
	where := []string{"company_id = ?"}
	args := []interface{}{companyID}
	if integrationID != "" {
		where = append(where, "integration_id = ?")
		args = append(args, integrationID)
	}
	if eventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, eventType)
	}
	return strings.Join(where, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWebhook(row rowScanner) (*models.Webhook, error) {
	var w models.Webhook
	var description, headersStr, retryStr, filtersStr sql.NullString
	var createdBy, updatedBy, lastTestStatus, lastTestResult sql.NullString
	var deletedBy, deletionReason sql.NullString
	var lastTestedAt, deletedAt sql.NullInt64

	err := row.Scan(&w.ID, &w.IntegrationID, &w.CompanyID, &w.Name, &w.URL, &w.EventType,
		&description, &w.SecretKey, &headersStr, &retryStr, &filtersStr,
		&w.IsActive, &w.Status, &createdBy, &updatedBy,
		&lastTestedAt, &lastTestStatus, &lastTestResult,
		&deletedAt, &deletedBy, &deletionReason, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	w.Description = description.String
	w.CreatedByID = createdBy.String
	w.UpdatedByID = updatedBy.String
	w.LastTestStatus = lastTestStatus.String
	w.LastTestResult = lastTestResult.String
	w.DeletedBy = deletedBy.String
	w.DeletionReason = deletionReason.String
	if lastTestedAt.Valid {
		w.LastTestedAt = &lastTestedAt.Int64
	}
	if deletedAt.Valid {
		w.DeletedAt = &deletedAt.Int64
	}

	if headersStr.Valid && headersStr.String != "" {
		json.Unmarshal([]byte(headersStr.String), &w.Headers)
	}
	if retryStr.Valid && retryStr.String != "" {
		json.Unmarshal([]byte(retryStr.String), &w.RetryConfig)
	}
	if filtersStr.Valid && filtersStr.String != "" {
		json.Unmarshal([]byte(filtersStr.String), &w.Filters)
	}

	return &w, nil
}

package repositories

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"stayspot/internal/platform/models"
)

const deliveryColumns = `id, webhook_id, event_type, payload, attempts, status, status_code, response, error, last_attempt_at, created_at`

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) Create(delivery *models.Delivery) error {
	if delivery.ID == "" {
		delivery.ID = "del_" + uuid.New().String()
	}
	now := time.Now().Unix()
	if delivery.CreatedAt == 0 {
		delivery.CreatedAt = now
	}
	if delivery.LastAttemptAt == 0 {
		delivery.LastAttemptAt = now
	}

	query := `
		INSERT INTO webhook_deliveries (id, webhook_id, event_type, payload, attempts, status, status_code, response, error, last_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		delivery.ID, delivery.WebhookID, delivery.EventType, delivery.Payload,
		delivery.Attempts, delivery.Status, delivery.StatusCode,
		delivery.Response, delivery.Error, delivery.LastAttemptAt, delivery.CreatedAt)
	return err
}

func (r *DeliveryRepository) GetByID(id string) (*models.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = ?`
	delivery, err := scanDelivery(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return delivery, err
}

type DeliveryFilter struct {
	WebhookID string
	Status    string
	Since     int64
	Until     int64
	Limit     int
	Offset    int
}

func (r *DeliveryRepository) List(filter DeliveryFilter) ([]*models.Delivery, int, error) {
	where := []string{"webhook_id = ?"}
	args := []interface{}{filter.WebhookID}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Since > 0 {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since)
	}
	if filter.Until > 0 {
		where = append(where, "created_at <= ?")
		args = append(args, filter.Until)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM webhook_deliveries WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE ` + whereClause + `
		ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, err
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries, total, rows.Err()
}

func (r *DeliveryRepository) UpdateAttempt(id string, attempts int, status string, statusCode int, response, errMsg string, lastAttemptAt int64) error {
	query := `
		UPDATE webhook_deliveries
		SET attempts = ?, status = ?, status_code = ?, response = ?, error = ?, last_attempt_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query, attempts, status, statusCode, response, errMsg, lastAttemptAt, id)
	return err
}

// ListFailed returns failed deliveries oldest-first for the retry worker.
func (r *DeliveryRepository) ListFailed(limit int) ([]*models.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
		WHERE status = 'failed' ORDER BY last_attempt_at ASC LIMIT ?`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries, rows.Err()
}

// RecentStats counts deliveries since the given timestamp for webhooks owned
// by the company.
func (r *DeliveryRepository) RecentStats(companyID string, since int64) (total, success, failed int, err error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN d.status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN d.status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM webhook_deliveries d
		JOIN webhooks w ON w.id = d.webhook_id
		WHERE w.company_id = ? AND d.created_at >= ?
	`
	err = r.db.QueryRow(query, companyID, since).Scan(&total, &success, &failed)
	return
}

func scanDelivery(row rowScanner) (*models.Delivery, error) {
	var d models.Delivery
	var response, errStr sql.NullString

	err := row.Scan(&d.ID, &d.WebhookID, &d.EventType, &d.Payload, &d.Attempts,
		&d.Status, &d.StatusCode, &response, &errStr, &d.LastAttemptAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}

	d.Response = response.String
	d.Error = errStr.String
	return &d, nil
}

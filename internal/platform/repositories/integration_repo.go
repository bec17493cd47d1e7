package repositories

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"stayspot/internal/platform/models"
)

const integrationColumns = `id, company_id, name, provider, type, description, config, is_active, status, created_by, updated_by, deleted_at, created_at, updated_at`

type IntegrationRepository struct {
	db *sql.DB
}

func NewIntegrationRepository(db *sql.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

func (r *IntegrationRepository) Create(integration *models.Integration) error {
	if integration.ID == "" {
		integration.ID = "int_" + uuid.New().String()
	}
	now := time.Now().Unix()
	integration.CreatedAt = now
	integration.UpdatedAt = now

	configJSON, err := json.Marshal(integration.Config)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO integrations (id, company_id, name, provider, type, description, config, is_active, status, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		integration.ID, integration.CompanyID, integration.Name, integration.Provider,
		integration.Type, integration.Description, string(configJSON),
		integration.IsActive, integration.Status, integration.CreatedByID,
		integration.CreatedAt, integration.UpdatedAt)
	return err
}

func (r *IntegrationRepository) GetByID(id string) (*models.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE id = ?`
	integration, err := scanIntegration(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return integration, err
}

type IntegrationFilter struct {
	CompanyID string
	Type      string
	Status    string
	Search    string
	Limit     int
	Offset    int
}

func (r *IntegrationRepository) List(filter IntegrationFilter) ([]*models.Integration, int, error) {
	where := []string{"company_id = ?"}
	args := []interface{}{filter.CompanyID}

	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	} else {
		where = append(where, "status != 'deleted'")
	}
	if filter.Search != "" {
		where = append(where, "(name LIKE ? OR provider LIKE ? OR description LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM integrations WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE ` + whereClause + `
		ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var integrations []*models.Integration
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, 0, err
		}
		integrations = append(integrations, integration)
	}
	return integrations, total, rows.Err()
}

func (r *IntegrationRepository) Update(integration *models.Integration) error {
	configJSON, err := json.Marshal(integration.Config)
	if err != nil {
		return err
	}
	integration.UpdatedAt = time.Now().Unix()

	query := `
		UPDATE integrations
		SET name = ?, provider = ?, type = ?, description = ?, config = ?, is_active = ?, status = ?, updated_by = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = r.db.Exec(query,
		integration.Name, integration.Provider, integration.Type, integration.Description,
		string(configJSON), integration.IsActive, integration.Status,
		integration.UpdatedByID, integration.UpdatedAt, integration.ID)
	return err
}

func (r *IntegrationRepository) SoftDelete(id, deletedBy string) error {
	now := time.Now().Unix()
	query := `UPDATE integrations SET status = 'deleted', is_active = 0, deleted_at = ?, updated_by = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.Exec(query, now, deletedBy, now, id)
	return err
}

// FindActiveDuplicate reports whether the company already has an active
// integration for the same provider and type.
func (r *IntegrationRepository) FindActiveDuplicate(companyID, provider, integrationType, excludeID string) (*models.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations
		WHERE company_id = ? AND provider = ? AND type = ? AND is_active = 1 AND status = 'active' AND id != ?
		LIMIT 1`
	integration, err := scanIntegration(r.db.QueryRow(query, companyID, provider, integrationType, excludeID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return integration, err
}

func scanIntegration(row rowScanner) (*models.Integration, error) {
	var i models.Integration
	var description, configStr, createdBy, updatedBy sql.NullString
	var deletedAt sql.NullInt64

	err := row.Scan(&i.ID, &i.CompanyID, &i.Name, &i.Provider, &i.Type,
		&description, &configStr, &i.IsActive, &i.Status,
		&createdBy, &updatedBy, &deletedAt, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}

	i.Description = description.String
	i.CreatedByID = createdBy.String
	i.UpdatedByID = updatedBy.String
	if deletedAt.Valid {
		i.DeletedAt = &deletedAt.Int64
	}
	if configStr.Valid && configStr.String != "" {
		json.Unmarshal([]byte(configStr.String), &i.Config)
	}

	return &i, nil
}

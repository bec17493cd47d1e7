package models

type Company struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

type User struct {
	ID           string `json:"id"`
	CompanyID    string `json:"company_id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Role         string `json:"role"`
	LastLoginAt  *int64 `json:"last_login_at,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// Integration is a connection to an external provider (payment gateway,
// listing site, etc). Config holds provider credentials as arbitrary JSON;
// config["webhookSecret"], when set, is the shared secret used to verify
// inbound relay calls for this integration.
type Integration struct {
	ID          string                 `json:"id"`
	CompanyID   string                 `json:"company_id"`
	Name        string                 `json:"name"`
	Provider    string                 `json:"provider"`
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Config      map[string]interface{} `json:"config,omitempty"` // JSON object in DB
	IsActive    bool                   `json:"is_active"`
	Status      string                 `json:"status"` // active, inactive, deleted
	CreatedByID string                 `json:"created_by_id,omitempty"`
	UpdatedByID string                 `json:"updated_by_id,omitempty"`
	DeletedAt   *int64                 `json:"deleted_at,omitempty"`
	CreatedAt   int64                  `json:"created_at"`
	UpdatedAt   int64                  `json:"updated_at"`
}

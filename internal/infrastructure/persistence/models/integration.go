package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ledgerflow/backend/internal/domain/integration"
)

// CredentialModel is the persistence model for integration.Credential.
// Tokens are stored sealed; the repository seals and opens them.
type CredentialModel struct {
	AggregateModel
	UserID        uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex:idx_credential_user_integration,priority:1"`
	Integration   integration.Integration `gorm:"type:varchar(32);not null;uniqueIndex:idx_credential_user_integration,priority:2"`
	AccessToken   string                  `gorm:"type:text;not null"`
	RefreshToken  string                  `gorm:"type:text;not null"`
	Scope         string                  `gorm:"type:varchar(255)"`
	ExpiresAt     time.Time               `gorm:"not null"`
	LastRefreshAt *time.Time
	RefreshCount  int `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (CredentialModel) TableName() string {
	return "integration_credentials"
}

// ToDomain converts the model; accessToken and refreshToken are the opened values.
func (m *CredentialModel) ToDomain(accessToken, refreshToken string) *integration.Credential {
	return &integration.Credential{
		ID:            m.ID,
		Key:           integration.CredentialKey{UserID: m.UserID, Integration: m.Integration},
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		Scope:         m.Scope,
		ExpiresAt:     m.ExpiresAt,
		LastRefreshAt: m.LastRefreshAt,
		RefreshCount:  m.RefreshCount,
		Version:       m.Version,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// CredentialModelFromDomain creates a model carrying already sealed tokens.
func CredentialModelFromDomain(c *integration.Credential, sealedAccess, sealedRefresh string) *CredentialModel {
	return &CredentialModel{
		AggregateModel: AggregateModel{
			BaseModel: BaseModel{ID: c.ID, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt},
			Version:   c.Version,
		},
		UserID:        c.Key.UserID,
		Integration:   c.Key.Integration,
		AccessToken:   sealedAccess,
		RefreshToken:  sealedRefresh,
		Scope:         c.Scope,
		ExpiresAt:     c.ExpiresAt,
		LastRefreshAt: c.LastRefreshAt,
		RefreshCount:  c.RefreshCount,
	}
}

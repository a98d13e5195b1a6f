package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ledgerflow/backend/internal/domain/integration"
	"github.com/ledgerflow/backend/internal/infrastructure/persistence/models"
)

// GormCredentialRepository implements integration.CredentialRepository using GORM
type GormCredentialRepository struct {
	db     *gorm.DB
	cipher *TokenCipher
}

// NewGormCredentialRepository creates a new GormCredentialRepository. cipher may be nil.
func NewGormCredentialRepository(db *gorm.DB, cipher *TokenCipher) *GormCredentialRepository {
	return &GormCredentialRepository{db: db, cipher: cipher}
}

// Find loads the credential of a (user, integration) pair.
func (r *GormCredentialRepository) Find(ctx context.Context, key integration.CredentialKey) (*integration.Credential, error) {
	var model models.CredentialModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND integration = ?", key.UserID, key.Integration).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("find credential %s: %w", key, err)
	}
	return r.toDomain(&model)
}

// Create inserts the first credential of a key.
func (r *GormCredentialRepository) Create(ctx context.Context, cred *integration.Credential) error {
	model, err := r.toModel(cred)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return integration.ErrCredentialExists
		}
		return fmt.Errorf("create credential %s: %w", cred.Key, err)
	}
	return nil
}

// CompareAndSwap updates the stored credential only while its version equals expectedVersion.
func (r *GormCredentialRepository) CompareAndSwap(ctx context.Context, expectedVersion int, next *integration.Credential) error {
	model, err := r.toModel(next)
	if err != nil {
		return err
	}
	newVersion := expectedVersion + 1
	result := r.db.WithContext(ctx).
		Model(&models.CredentialModel{}).
		Where("id = ? AND version = ?", next.ID, expectedVersion).
		Updates(map[string]any{
			"access_token":    model.AccessToken,
			"refresh_token":   model.RefreshToken,
			"scope":           model.Scope,
			"expires_at":      model.ExpiresAt,
			"last_refresh_at": model.LastRefreshAt,
			"refresh_count":   model.RefreshCount,
			"version":         newVersion,
			"updated_at":      model.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("update credential %s: %w", next.Key, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.CredentialModel{}).
			Where("id = ?", next.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("check credential %s: %w", next.Key, err)
		}
		if count == 0 {
			return integration.ErrCredentialNotFound
		}
		return integration.ErrCredentialConflict
	}
	next.Version = newVersion
	return nil
}

func (r *GormCredentialRepository) toModel(cred *integration.Credential) (*models.CredentialModel, error) {
	access, err := r.cipher.Seal(cred.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := r.cipher.Seal(cred.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}
	return models.CredentialModelFromDomain(cred, access, refresh), nil
}

func (r *GormCredentialRepository) toDomain(model *models.CredentialModel) (*integration.Credential, error) {
	access, err := r.cipher.Open(model.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	refresh, err := r.cipher.Open(model.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	return model.ToDomain(access, refresh), nil
}

var _ integration.CredentialRepository = (*GormCredentialRepository)(nil)

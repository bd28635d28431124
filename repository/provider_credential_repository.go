package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/mspace-dashboard/models"
	"github.com/amirphl/mspace-dashboard/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProviderCredentialRepositoryImpl implements ProviderCredentialRepository interface
type ProviderCredentialRepositoryImpl struct {
	*BaseRepository[models.ProviderCredential, models.ProviderCredentialFilter]
}

// NewProviderCredentialRepository creates a new provider credential repository
func NewProviderCredentialRepository(db *gorm.DB) ProviderCredentialRepository {
	return &ProviderCredentialRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ProviderCredential, models.ProviderCredentialFilter](db, applyProviderCredentialFilter),
	}
}

// ByUserID retrieves the credential owned by a user
func (r *ProviderCredentialRepositoryImpl) ByUserID(ctx context.Context, userID uuid.UUID) (*models.ProviderCredential, error) {
	db := r.getDB(ctx)

	var cred models.ProviderCredential
	err := db.Where("user_id = ?", userID).Take(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find provider credential: %w", err)
	}

	return &cred, nil
}

// Upsert inserts or replaces the credential of a user
func (r *ProviderCredentialRepositoryImpl) Upsert(ctx context.Context, cred *models.ProviderCredential) error {
	cred.UpdatedAt = utils.UTCNow()
	return r.write(ctx, func(db *gorm.DB) error {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "password_encrypted", "api_key_encrypted", "sender_id", "updated_at"}),
		}).Create(cred).Error
		if err != nil {
			return fmt.Errorf("failed to upsert provider credential: %w", err)
		}
		return nil
	})
}

func applyProviderCredentialFilter(db *gorm.DB, filter models.ProviderCredentialFilter) *gorm.DB {
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.Username != nil {
		db = db.Where("username = ?", *filter.Username)
	}
	return db
}

// PlatformSettingRepositoryImpl implements PlatformSettingRepository interface
type PlatformSettingRepositoryImpl struct {
	*BaseRepository[models.PlatformSetting, models.PlatformSettingFilter]
}

// NewPlatformSettingRepository creates a new platform setting repository
func NewPlatformSettingRepository(db *gorm.DB) PlatformSettingRepository {
	return &PlatformSettingRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PlatformSetting, models.PlatformSettingFilter](db, func(db *gorm.DB, f models.PlatformSettingFilter) *gorm.DB {
			if f.Key != nil {
				db = db.Where("key = ?", *f.Key)
			}
			return db
		}),
	}
}

// ByKey retrieves a setting by key
func (r *PlatformSettingRepositoryImpl) ByKey(ctx context.Context, key string) (*models.PlatformSetting, error) {
	db := r.getDB(ctx)

	var setting models.PlatformSetting
	err := db.Where("key = ?", key).Take(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find platform setting %q: %w", key, err)
	}

	return &setting, nil
}

// Upsert inserts or replaces a setting value
func (r *PlatformSettingRepositoryImpl) Upsert(ctx context.Context, setting *models.PlatformSetting) error {
	setting.UpdatedAt = utils.UTCNow()
	return r.write(ctx, func(db *gorm.DB) error {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
		}).Create(setting).Error
		if err != nil {
			return fmt.Errorf("failed to upsert platform setting: %w", err)
		}
		return nil
	})
}

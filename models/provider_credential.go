package models

import (
	"time"

	"github.com/google/uuid"
)

// ProviderCredential holds a tenant's Mspace account. Secrets are sealed by the credential cipher.
type ProviderCredential struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_provider_credentials_user_id" json:"user_id"`
	Username          string    `gorm:"size:128;not null" json:"username"`
	PasswordEncrypted []byte    `gorm:"type:bytea" json:"-"`
	APIKeyEncrypted   []byte    `gorm:"type:bytea" json:"-"`
	SenderID          *string   `gorm:"size:32" json:"sender_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ProviderCredential) TableName() string { return "provider_credentials" }

// ProviderCredentialFilter represents filter criteria for credential queries
type ProviderCredentialFilter struct {
	UserID   *uuid.UUID
	Username *string
}

// PlatformSetting is a key/value row for platform-wide configuration owned by admins
type PlatformSetting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"size:128;not null;uniqueIndex:uk_platform_settings_key" json:"key"`
	Value     []byte    `gorm:"type:bytea;not null" json:"-"`
	UpdatedBy *string   `gorm:"size:64" json:"updated_by,omitempty"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PlatformSetting) TableName() string { return "platform_settings" }

// PlatformSettingKeyMspaceCredentials stores the sealed platform Mspace account
const PlatformSettingKeyMspaceCredentials = "mspace_credentials"

// PlatformSettingFilter represents filter criteria for platform setting queries
type PlatformSettingFilter struct {
	Key *string
}

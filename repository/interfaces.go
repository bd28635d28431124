// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/mspace-dashboard/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	// Update and Delete only touch a campaign that is still draft or scheduled.
	// They report whether a row changed.
	Update(ctx context.Context, campaign *models.Campaign) (bool, error)
	Delete(ctx context.Context, id uint) (bool, error)
	// TransitionStatus moves a campaign to next only if its current status is one of from.
	// It reports whether a row changed.
	TransitionStatus(ctx context.Context, id uint, from []models.CampaignStatus, next models.CampaignStatus, updates map[string]any) (bool, error)
	IncrementCounters(ctx context.Context, id uint, delta models.CampaignCounterDelta) error
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error)
	ListStuckSending(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.Campaign, error)
}

// DataModelRepository defines operations for user-defined data models
type DataModelRepository interface {
	Repository[models.DataModel, models.DataModelFilter]
	ByUUID(ctx context.Context, id uuid.UUID) (*models.DataModel, error)
}

// RecordRepository defines operations for data model records
type RecordRepository interface {
	Repository[models.Record, models.RecordFilter]
	ListByDataModel(ctx context.Context, dataModelID uint) ([]*models.Record, error)
	ByIDs(ctx context.Context, ids []uint) ([]*models.Record, error)
}

// CampaignDeliveryRepository defines operations for per-recipient campaign outcomes
type CampaignDeliveryRepository interface {
	Repository[models.CampaignDelivery, models.CampaignDeliveryFilter]
	ProcessedRecordIDs(ctx context.Context, campaignID uint) (map[uint]struct{}, error)
}

// ProviderCredentialRepository defines operations for tenant provider credentials
type ProviderCredentialRepository interface {
	Repository[models.ProviderCredential, models.ProviderCredentialFilter]
	ByUserID(ctx context.Context, userID uuid.UUID) (*models.ProviderCredential, error)
	Upsert(ctx context.Context, cred *models.ProviderCredential) error
}

// PlatformSettingRepository defines operations for platform-wide settings
type PlatformSettingRepository interface {
	ByKey(ctx context.Context, key string) (*models.PlatformSetting, error)
	Upsert(ctx context.Context, setting *models.PlatformSetting) error
}

// CreditAccountRepository defines operations for running credit balances
type CreditAccountRepository interface {
	Repository[models.CreditAccount, models.CreditAccountFilter]
	ByUserID(ctx context.Context, userID uuid.UUID) (*models.CreditAccount, error)
	// EnsureForUpdate creates the account when missing and returns it row-locked.
	EnsureForUpdate(ctx context.Context, userID uuid.UUID) (*models.CreditAccount, error)
	// UpdateBalance writes newBalance only when the stored version still equals expectedVersion.
	UpdateBalance(ctx context.Context, id uint, expectedVersion int64, newBalance int64) (bool, error)
}

// CreditTransactionRepository defines operations for the ledger log
type CreditTransactionRepository interface {
	Repository[models.CreditTransaction, models.CreditTransactionFilter]
	SumByAccount(ctx context.Context, accountID uint) (int64, error)
}

// MessageHistoryRepository defines operations for message history
type MessageHistoryRepository interface {
	Repository[models.MessageHistory, models.MessageHistoryFilter]
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

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

// CreditAccountRepositoryImpl implements CreditAccountRepository interface
type CreditAccountRepositoryImpl struct {
	*BaseRepository[models.CreditAccount, models.CreditAccountFilter]
}

// NewCreditAccountRepository creates a new credit account repository
func NewCreditAccountRepository(db *gorm.DB) CreditAccountRepository {
	return &CreditAccountRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CreditAccount, models.CreditAccountFilter](db, func(db *gorm.DB, f models.CreditAccountFilter) *gorm.DB {
			if f.UserID != nil {
				db = db.Where("user_id = ?", *f.UserID)
			}
			return db
		}),
	}
}

// ByUserID retrieves the account of a user without locking
func (r *CreditAccountRepositoryImpl) ByUserID(ctx context.Context, userID uuid.UUID) (*models.CreditAccount, error) {
	db := r.getDB(ctx)

	var account models.CreditAccount
	err := db.Where("user_id = ?", userID).Take(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find credit account: %w", err)
	}

	return &account, nil
}

// EnsureForUpdate must run inside a transaction for the row lock to be meaningful
func (r *CreditAccountRepositoryImpl) EnsureForUpdate(ctx context.Context, userID uuid.UUID) (*models.CreditAccount, error) {
	db := r.getDB(ctx)

	now := utils.UTCNow()
	seed := models.CreditAccount{UserID: userID, CreatedAt: now, UpdatedAt: now}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&seed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create credit account: %w", err)
	}

	var account models.CreditAccount
	err = db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Take(&account).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock credit account: %w", err)
	}

	return &account, nil
}

// UpdateBalance is a compare-and-swap on the version column
func (r *CreditAccountRepositoryImpl) UpdateBalance(ctx context.Context, id uint, expectedVersion int64, newBalance int64) (bool, error) {
	var updated bool
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.CreditAccount{}).
			Where("id = ? AND version = ?", id, expectedVersion).
			Updates(map[string]any{
				"balance":    newBalance,
				"version":    expectedVersion + 1,
				"updated_at": utils.UTCNow(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update credit balance: %w", res.Error)
		}
		updated = res.RowsAffected == 1
		return nil
	})

	return updated, err
}

// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/mspace-dashboard/models"
	"github.com/amirphl/mspace-dashboard/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db, applyCampaignFilter),
	}
}

// ByUUID retrieves a campaign by its public identifier
func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaign models.Campaign
	err := db.Where("uuid = ?", id).Take(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find campaign by UUID: %w", err)
	}

	return &campaign, nil
}

// Update persists the editable fields of a campaign that has not started sending
func (r *CampaignRepositoryImpl) Update(ctx context.Context, campaign *models.Campaign) (bool, error) {
	var changed bool
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Campaign{}).
			Where("id = ? AND status IN ?", campaign.ID, models.EditableCampaignStatuses).
			Updates(map[string]any{
				"title":         campaign.Title,
				"message":       campaign.Message,
				"sender_id":     campaign.SenderID,
				"data_model_id": campaign.DataModelID,
				"criteria":      campaign.Criteria,
				"status":        campaign.Status,
				"scheduled_at":  campaign.ScheduledAt,
				"updated_at":    utils.UTCNow(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update campaign: %w", res.Error)
		}
		changed = res.RowsAffected == 1
		return nil
	})

	return changed, err
}

// Delete removes a campaign row that has not started sending
func (r *CampaignRepositoryImpl) Delete(ctx context.Context, id uint) (bool, error) {
	var deleted bool
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Where("id = ? AND status IN ?", id, models.EditableCampaignStatuses).Delete(&models.Campaign{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete campaign: %w", res.Error)
		}
		deleted = res.RowsAffected == 1
		return nil
	})

	return deleted, err
}

// TransitionStatus performs a guarded status change
func (r *CampaignRepositoryImpl) TransitionStatus(ctx context.Context, id uint, from []models.CampaignStatus, next models.CampaignStatus, updates map[string]any) (bool, error) {
	values := map[string]any{
		"status":     next,
		"updated_at": utils.UTCNow(),
	}
	for k, v := range updates {
		values[k] = v
	}

	var changed bool
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Campaign{}).
			Where("id = ? AND status IN ?", id, from).
			Updates(values)
		if res.Error != nil {
			return fmt.Errorf("failed to transition campaign %d to %s: %w", id, next, res.Error)
		}
		changed = res.RowsAffected == 1
		return nil
	})

	return changed, err
}

// IncrementCounters adds a delivery outcome to the campaign counters
func (r *CampaignRepositoryImpl) IncrementCounters(ctx context.Context, id uint, delta models.CampaignCounterDelta) error {
	return r.write(ctx, func(db *gorm.DB) error {
		err := db.Model(&models.Campaign{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"sent_count":      gorm.Expr("sent_count + ?", delta.Sent),
				"delivered_count": gorm.Expr("delivered_count + ?", delta.Delivered),
				"failed_count":    gorm.Expr("failed_count + ?", delta.Failed),
				"updated_at":      utils.UTCNow(),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to increment campaign counters: %w", err)
		}
		return nil
	})
}

// ListDueScheduled lists scheduled campaigns whose send time has passed
func (r *CampaignRepositoryImpl) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	status := models.CampaignStatusScheduled
	return r.ByFilter(ctx, models.CampaignFilter{Status: &status, ScheduledBefore: &now}, "scheduled_at ASC", limit, 0)
}

// ListStuckSending lists campaigns left in sending without progress since updatedBefore
func (r *CampaignRepositoryImpl) ListStuckSending(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.Campaign, error) {
	status := models.CampaignStatusSending
	return r.ByFilter(ctx, models.CampaignFilter{Status: &status, UpdatedBefore: &updatedBefore}, "updated_at ASC", limit, 0)
}

func applyCampaignFilter(db *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if len(filter.Statuses) > 0 {
		db = db.Where("status IN ?", filter.Statuses)
	}
	if filter.DataModelID != nil {
		db = db.Where("data_model_id = ?", *filter.DataModelID)
	}
	if filter.ScheduledBefore != nil {
		db = db.Where("scheduled_at <= ?", *filter.ScheduledBefore)
	}
	if filter.UpdatedBefore != nil {
		db = db.Where("updated_at < ?", *filter.UpdatedBefore)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}

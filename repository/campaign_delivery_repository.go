package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/mspace-dashboard/models"
	"gorm.io/gorm"
)

// CampaignDeliveryRepositoryImpl implements CampaignDeliveryRepository interface
type CampaignDeliveryRepositoryImpl struct {
	*BaseRepository[models.CampaignDelivery, models.CampaignDeliveryFilter]
}

// NewCampaignDeliveryRepository creates a new campaign delivery repository
func NewCampaignDeliveryRepository(db *gorm.DB) CampaignDeliveryRepository {
	return &CampaignDeliveryRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CampaignDelivery, models.CampaignDeliveryFilter](db, applyCampaignDeliveryFilter),
	}
}

// ProcessedRecordIDs returns the set of records that already have an outcome for the campaign
func (r *CampaignDeliveryRepositoryImpl) ProcessedRecordIDs(ctx context.Context, campaignID uint) (map[uint]struct{}, error) {
	db := r.getDB(ctx)

	var ids []uint
	err := db.Model(&models.CampaignDelivery{}).
		Where("campaign_id = ?", campaignID).
		Pluck("record_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list processed records: %w", err)
	}

	out := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func applyCampaignDeliveryFilter(db *gorm.DB, filter models.CampaignDeliveryFilter) *gorm.DB {
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.RecordID != nil {
		db = db.Where("record_id = ?", *filter.RecordID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	return db
}

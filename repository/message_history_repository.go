package repository

import (
	"github.com/amirphl/mspace-dashboard/models"
	"gorm.io/gorm"
)

// MessageHistoryRepositoryImpl implements MessageHistoryRepository interface
type MessageHistoryRepositoryImpl struct {
	*BaseRepository[models.MessageHistory, models.MessageHistoryFilter]
}

// NewMessageHistoryRepository creates a new message history repository
func NewMessageHistoryRepository(db *gorm.DB) MessageHistoryRepository {
	return &MessageHistoryRepositoryImpl{
		BaseRepository: NewBaseRepository[models.MessageHistory, models.MessageHistoryFilter](db, applyMessageHistoryFilter),
	}
}

func applyMessageHistoryFilter(db *gorm.DB, filter models.MessageHistoryFilter) *gorm.DB {
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.Recipient != nil {
		db = db.Where("recipient = ?", *filter.Recipient)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}

package models

import (
	"time"
)

// DeliveryStatus is the final outcome of one campaign recipient
type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// CampaignDelivery records the outcome for one (campaign, record) pair.
// The unique index is the idempotency key that lets an interrupted run resume.
type CampaignDelivery struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	CampaignID        uint           `gorm:"not null;uniqueIndex:uk_campaign_deliveries_campaign_record,priority:1" json:"campaign_id"`
	RecordID          uint           `gorm:"not null;uniqueIndex:uk_campaign_deliveries_campaign_record,priority:2" json:"record_id"`
	Phone             *string        `gorm:"size:32" json:"phone,omitempty"`
	Status            DeliveryStatus `gorm:"type:varchar(20);not null" json:"status"`
	Delivered         bool           `gorm:"not null;default:false" json:"delivered"`
	ProviderMessageID *string        `gorm:"size:128" json:"provider_message_id,omitempty"`
	ErrorKind         *string        `gorm:"size:32" json:"error_kind,omitempty"`
	ErrorMessage      *string        `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (CampaignDelivery) TableName() string { return "campaign_deliveries" }

// CounterDelta returns the campaign counter increments this outcome contributes
func (d *CampaignDelivery) CounterDelta() CampaignCounterDelta {
	if d.Status == DeliveryStatusSent {
		delta := CampaignCounterDelta{Sent: 1}
		if d.Delivered {
			delta.Delivered = 1
		}
		return delta
	}
	return CampaignCounterDelta{Failed: 1}
}

// CampaignDeliveryFilter represents filter criteria for delivery queries
type CampaignDeliveryFilter struct {
	CampaignID *uint
	RecordID   *uint
	Status     *DeliveryStatus
}

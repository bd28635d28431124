// Package models contains domain entities persisted by the gateway
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusSending,
		CampaignStatusCompleted, CampaignStatusFailed:
		return true
	default:
		return false
	}
}

// Sendable reports whether a send run may start from this status
func (s CampaignStatus) Sendable() bool {
	return s == CampaignStatusDraft || s == CampaignStatusScheduled
}

// EditableCampaignStatuses are the statuses in which content may still change
var EditableCampaignStatuses = []CampaignStatus{CampaignStatusDraft, CampaignStatusScheduled}

// Editable reports whether campaign content may still change
func (s CampaignStatus) Editable() bool {
	return s == CampaignStatusDraft || s == CampaignStatusScheduled
}

// Final reports whether no further transition is possible
func (s CampaignStatus) Final() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusFailed
}

var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:     {CampaignStatusScheduled, CampaignStatusSending},
	CampaignStatusScheduled: {CampaignStatusDraft, CampaignStatusSending},
	CampaignStatusSending:   {CampaignStatusCompleted, CampaignStatusFailed},
}

// CanTransitionTo reports whether moving from s to next is allowed
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	for _, allowed := range campaignTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// CampaignType is the delivery channel of a campaign. Only sms is sent today.
type CampaignType string

const (
	CampaignTypeSMS CampaignType = "sms"
)

// Campaign is a single bulk or single-recipient send job
type Campaign struct {
	ID       uint           `gorm:"primaryKey" json:"id"`
	UUID     uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	UserID   uuid.UUID      `gorm:"type:uuid;not null;index:idx_campaigns_user_id" json:"user_id"`
	Title    string         `gorm:"size:255;not null" json:"title"`
	Type     CampaignType   `gorm:"type:varchar(20);not null;default:'sms'" json:"type"`
	Status   CampaignStatus `gorm:"type:varchar(20);not null;default:'draft';index:idx_campaigns_status" json:"status"`
	Message  string         `gorm:"type:text;not null" json:"message"`
	SenderID string         `gorm:"size:32" json:"sender_id"`

	// OwnerRole selects the provider account the campaign is sent from
	OwnerRole string `gorm:"size:20;not null;default:'user'" json:"owner_role"`

	// Audience selection
	DataModelID       *uint           `gorm:"index:idx_campaigns_data_model_id" json:"data_model_id,omitempty"`
	Criteria          json.RawMessage `gorm:"type:jsonb" json:"criteria,omitempty"`
	RecipientSnapshot pq.Int64Array   `gorm:"type:bigint[]" json:"-"`

	// Counters
	RecipientCount int `gorm:"not null;default:0" json:"recipient_count"`
	SentCount      int `gorm:"not null;default:0" json:"sent_count"`
	DeliveredCount int `gorm:"not null;default:0" json:"delivered_count"`
	FailedCount    int `gorm:"not null;default:0" json:"failed_count"`

	ScheduledAt   *time.Time `gorm:"index:idx_campaigns_scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FailureReason *string    `gorm:"type:text" json:"failure_reason,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_campaigns_updated_at" json:"updated_at"`

	DataModel *DataModel `gorm:"foreignKey:DataModelID" json:"data_model,omitempty"`
}

func (Campaign) TableName() string { return "campaigns" }

// BeforeCreate ensures UUID is set
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Type == "" {
		c.Type = CampaignTypeSMS
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	return nil
}

// Processed returns the number of recipients that reached a final outcome
func (c *Campaign) Processed() int {
	return c.SentCount + c.FailedCount
}

// CampaignFilter represents filter criteria for campaign queries
type CampaignFilter struct {
	ID              *uint
	UUID            *uuid.UUID
	UserID          *uuid.UUID
	Status          *CampaignStatus
	Statuses        []CampaignStatus
	DataModelID     *uint
	ScheduledBefore *time.Time
	UpdatedBefore   *time.Time
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
}

// CampaignCounterDelta carries the counter increments applied together with a delivery row
type CampaignCounterDelta struct {
	Sent      int
	Delivered int
	Failed    int
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus is the provider outcome of one outbound message
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
)

// MessageHistory is one row per provider send attempt, ad-hoc or campaign driven
type MessageHistory struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	UserID            uuid.UUID     `gorm:"type:uuid;not null;index:idx_message_history_user_id" json:"user_id"`
	CampaignID        *uint         `gorm:"index:idx_message_history_campaign_id" json:"campaign_id,omitempty"`
	Recipient         string        `gorm:"size:32;not null" json:"recipient"`
	Message           string        `gorm:"type:text;not null" json:"message"`
	SenderID          string        `gorm:"size:32" json:"sender_id"`
	Segments          int           `gorm:"not null;default:1" json:"segments"`
	Cost              int64         `gorm:"not null;default:0" json:"cost"`
	Status            MessageStatus `gorm:"type:varchar(20);not null;index:idx_message_history_status" json:"status"`
	ProviderMessageID *string       `gorm:"size:128" json:"provider_message_id,omitempty"`
	ErrorKind         *string       `gorm:"size:32" json:"error_kind,omitempty"`
	ErrorMessage      *string       `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_message_history_created_at" json:"created_at"`
}

func (MessageHistory) TableName() string { return "message_history" }

// MessageHistoryFilter represents filter criteria for message history queries
type MessageHistoryFilter struct {
	UserID        *uuid.UUID
	CampaignID    *uint
	Status        *MessageStatus
	Recipient     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

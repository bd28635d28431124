package dto

import (
	"encoding/json"
	"time"
)

// CreateCampaignRequest represents the request to create a new campaign
type CreateCampaignRequest struct {
	Title         string          `json:"title" validate:"required,max=255"`
	Message       string          `json:"message" validate:"required,max=1600"`
	SenderID      *string         `json:"sender_id,omitempty" validate:"omitempty,max=11"`
	DataModelUUID string          `json:"data_model_uuid" validate:"required,uuid"`
	Criteria      json.RawMessage `json:"criteria,omitempty"`
	ScheduledAt   *time.Time      `json:"scheduled_at,omitempty"`
}

// UpdateCampaignRequest represents the request to update an existing campaign.
// Nil fields are left unchanged.
type UpdateCampaignRequest struct {
	UUID          string          `json:"-"`
	Title         *string         `json:"title,omitempty" validate:"omitempty,max=255"`
	Message       *string         `json:"message,omitempty" validate:"omitempty,max=1600"`
	SenderID      *string         `json:"sender_id,omitempty" validate:"omitempty,max=11"`
	DataModelUUID *string         `json:"data_model_uuid,omitempty" validate:"omitempty,uuid"`
	Criteria      json.RawMessage `json:"criteria,omitempty"`
	ScheduledAt   *time.Time      `json:"scheduled_at,omitempty"`
	Unschedule    bool            `json:"unschedule,omitempty"`
}

// ListCampaignsRequest represents campaign list filters
type ListCampaignsRequest struct {
	PaginationRequest
	Status *string `query:"status" validate:"omitempty,oneof=draft scheduled sending completed failed"`
}

// CampaignResponse represents a campaign in responses
type CampaignResponse struct {
	UUID           string          `json:"uuid"`
	Title          string          `json:"title"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	Message        string          `json:"message"`
	SenderID       string          `json:"sender_id,omitempty"`
	DataModelUUID  *string         `json:"data_model_uuid,omitempty"`
	Criteria       json.RawMessage `json:"criteria,omitempty"`
	RecipientCount int             `json:"recipient_count"`
	SentCount      int             `json:"sent_count"`
	DeliveredCount int             `json:"delivered_count"`
	FailedCount    int             `json:"failed_count"`
	ScheduledAt    *string         `json:"scheduled_at,omitempty"`
	StartedAt      *string         `json:"started_at,omitempty"`
	CompletedAt    *string         `json:"completed_at,omitempty"`
	FailureReason  *string         `json:"failure_reason,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

// ListCampaignsResponse is a page of campaigns
type ListCampaignsResponse struct {
	Items      []CampaignResponse `json:"items"`
	Pagination PaginationInfo     `json:"pagination"`
}

// SendSummaryResponse is the outcome of one pipeline run
type SendSummaryResponse struct {
	CampaignUUID string `json:"campaign_uuid"`
	Recipients   int    `json:"recipients"`
	Sent         int    `json:"sent"`
	Delivered    int    `json:"delivered"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	Status       string `json:"status"`
}

package dto

import "encoding/json"

// FieldDefinitionDTO is one declared field of a data model
type FieldDefinitionDTO struct {
	Name string `json:"name" validate:"required,max=64"`
	Type string `json:"type" validate:"required,oneof=string number boolean date"`
}

// CreateDataModelRequest represents the request to create a data model
type CreateDataModelRequest struct {
	Name        string               `json:"name" validate:"required,max=255"`
	Description *string              `json:"description,omitempty" validate:"omitempty,max=1000"`
	Fields      []FieldDefinitionDTO `json:"fields" validate:"omitempty,max=100,dive"`
	Tags        []string             `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=64"`
}

// DataModelResponse represents a data model in responses
type DataModelResponse struct {
	UUID        string               `json:"uuid"`
	Name        string               `json:"name"`
	Description *string              `json:"description,omitempty"`
	Fields      []FieldDefinitionDTO `json:"fields"`
	Tags        []string             `json:"tags"`
	RecordCount int64                `json:"record_count"`
	CreatedAt   string               `json:"created_at"`
}

// ListDataModelsRequest represents data model list filters
type ListDataModelsRequest struct {
	PaginationRequest
	Tag *string `query:"tag"`
}

// ListDataModelsResponse is a page of data models
type ListDataModelsResponse struct {
	Items      []DataModelResponse `json:"items"`
	Pagination PaginationInfo      `json:"pagination"`
}

// AddRecordsRequest carries a batch of JSON object records
type AddRecordsRequest struct {
	Records []json.RawMessage `json:"records" validate:"required,min=1,max=1000"`
}

// AddRecordsResponse reports the inserted batch
type AddRecordsResponse struct {
	Inserted int `json:"inserted"`
}

// RecordResponse represents one record
type RecordResponse struct {
	ID        uint            `json:"id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt string          `json:"created_at"`
}

// ListRecordsResponse is a page of records
type ListRecordsResponse struct {
	Items      []RecordResponse `json:"items"`
	Pagination PaginationInfo   `json:"pagination"`
}

// PreviewRecipientsRequest evaluates criteria without creating a campaign
type PreviewRecipientsRequest struct {
	Criteria json.RawMessage `json:"criteria,omitempty"`
	Limit    int             `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
}

// RecipientPreview is one matched record and its extracted phone
type RecipientPreview struct {
	RecordID uint            `json:"record_id"`
	Phone    *string         `json:"phone,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// PreviewRecipientsResponse reports how many records match
type PreviewRecipientsResponse struct {
	Count         int                `json:"count"`
	WithoutPhone  int                `json:"without_phone"`
	Recipients    []RecipientPreview `json:"recipients"`
	EstimatedCost int64              `json:"estimated_cost,omitempty"`
}

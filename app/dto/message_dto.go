package dto

// ListMessagesRequest represents message history filters
type ListMessagesRequest struct {
	PaginationRequest
	CampaignUUID *string `query:"campaign_uuid" validate:"omitempty,uuid"`
	Status       *string `query:"status" validate:"omitempty,oneof=sent delivered failed"`
}

// MessageResponse represents one message history row
type MessageResponse struct {
	ID                uint    `json:"id"`
	Recipient         string  `json:"recipient"`
	Message           string  `json:"message"`
	SenderID          string  `json:"sender_id"`
	Segments          int     `json:"segments"`
	Cost              int64   `json:"cost"`
	Status            string  `json:"status"`
	ProviderMessageID *string `json:"provider_message_id,omitempty"`
	ErrorKind         *string `json:"error_kind,omitempty"`
	ErrorMessage      *string `json:"error_message,omitempty"`
	CreatedAt         string  `json:"created_at"`
}

// ListMessagesResponse is a page of message history
type ListMessagesResponse struct {
	Items      []MessageResponse `json:"items"`
	Pagination PaginationInfo    `json:"pagination"`
}

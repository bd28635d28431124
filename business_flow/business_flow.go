// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"encoding/json"
	"log"

	"github.com/amirphl/mspace-dashboard/app/dto"
	"github.com/amirphl/mspace-dashboard/models"
	"github.com/amirphl/mspace-dashboard/repository"
	"github.com/amirphl/mspace-dashboard/utils"
	"github.com/google/uuid"
)

const RequestIDKey = "X-Request-ID"

// Roles issued by the auth platform
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Actor is the authenticated caller of a flow
type Actor struct {
	UserID uuid.UUID
	Role   string
}

// IsAdmin reports whether the actor may act on other users' data
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Owns reports whether the actor may read or change a row owned by userID
func (a Actor) Owns(userID uuid.UUID) bool {
	return a.IsAdmin() || a.UserID == userID
}

// ClientMetadata holds all client-related information for audit logging
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// normalizePagination applies defaults and returns limit and offset
func normalizePagination(req dto.PaginationRequest) (page, pageSize, offset int, err error) {
	page, pageSize = req.Page, req.PageSize
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = utils.DefaultPageSize
	}
	if page < 1 {
		return 0, 0, 0, ErrInvalidPage
	}
	if pageSize < 1 || pageSize > utils.MaxPageSize {
		return 0, 0, 0, ErrInvalidPageSize
	}
	return page, pageSize, (page - 1) * pageSize, nil
}

func paginationInfo(page, pageSize int, total int64) dto.PaginationInfo {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return dto.PaginationInfo{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}

// createAuditLog writes an audit row. Failures are logged and swallowed.
func createAuditLog(ctx context.Context, auditRepo repository.AuditLogRepository, userID *uuid.UUID, action, description string, success bool, errorMsg *string, metadata *ClientMetadata, extra map[string]any) error {
	if auditRepo == nil {
		return nil
	}

	entry := &models.AuditLog{
		UserID:       userID,
		Action:       action,
		Description:  &description,
		Success:      &success,
		ErrorMessage: errorMsg,
		CreatedAt:    utils.UTCNow(),
	}
	if metadata != nil {
		entry.IPAddress = utils.ToPtr(metadata.IPAddress)
		entry.UserAgent = utils.ToPtr(metadata.UserAgent)
		if metadata.RequestID != "" {
			entry.RequestID = utils.ToPtr(metadata.RequestID)
		}
	}
	if len(extra) > 0 {
		if raw, err := json.Marshal(extra); err == nil {
			entry.Metadata = raw
		}
	}

	if err := auditRepo.Save(ctx, entry); err != nil {
		log.Printf("failed to write audit log %s: %v", action, err)
		return err
	}
	return nil
}

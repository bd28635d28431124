package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/mspace-dashboard/app/dto"
	"github.com/amirphl/mspace-dashboard/models"
	"github.com/amirphl/mspace-dashboard/repository"
	"github.com/amirphl/mspace-dashboard/utils"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const messageExportSheet = "Messages"

var messageExportHeader = []any{
	"ID", "Campaign", "Recipient", "Sender ID", "Message", "Segments", "Cost",
	"Status", "Provider Message ID", "Error Kind", "Error Message", "Created At",
}

// MessageHistoryFlow lists and exports provider send attempts
type MessageHistoryFlow interface {
	ListMessages(ctx context.Context, actor Actor, req *dto.ListMessagesRequest) (*dto.ListMessagesResponse, error)
	ExportMessages(ctx context.Context, actor Actor, req *dto.ListMessagesRequest) ([]byte, string, error)
}

// MessageHistoryFlowImpl implements MessageHistoryFlow
type MessageHistoryFlowImpl struct {
	historyRepo  repository.MessageHistoryRepository
	campaignRepo repository.CampaignRepository
}

// NewMessageHistoryFlow creates a new message history flow
func NewMessageHistoryFlow(historyRepo repository.MessageHistoryRepository, campaignRepo repository.CampaignRepository) *MessageHistoryFlowImpl {
	return &MessageHistoryFlowImpl{historyRepo: historyRepo, campaignRepo: campaignRepo}
}

func (f *MessageHistoryFlowImpl) ListMessages(ctx context.Context, actor Actor, req *dto.ListMessagesRequest) (*dto.ListMessagesResponse, error) {
	page, pageSize, offset, err := normalizePagination(req.PaginationRequest)
	if err != nil {
		return nil, NewBusinessError("INVALID_PAGINATION", "Invalid pagination", err)
	}
	filter, err := f.filter(ctx, actor, req)
	if err != nil {
		return nil, err
	}

	total, err := f.historyRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("MESSAGE_LIST_FAILED", "Failed to list messages", err)
	}
	rows, err := f.historyRepo.ByFilter(ctx, filter, "id DESC", pageSize, offset)
	if err != nil {
		return nil, NewBusinessError("MESSAGE_LIST_FAILED", "Failed to list messages", err)
	}

	items := make([]dto.MessageResponse, 0, len(rows))
	for _, m := range rows {
		items = append(items, dto.MessageResponse{
			ID:                m.ID,
			Recipient:         m.Recipient,
			Message:           m.Message,
			SenderID:          m.SenderID,
			Segments:          m.Segments,
			Cost:              m.Cost,
			Status:            string(m.Status),
			ProviderMessageID: m.ProviderMessageID,
			ErrorKind:         m.ErrorKind,
			ErrorMessage:      m.ErrorMessage,
			CreatedAt:         m.CreatedAt.Format(time.RFC3339),
		})
	}
	return &dto.ListMessagesResponse{Items: items, Pagination: paginationInfo(page, pageSize, total)}, nil
}

// ExportMessages renders matching history, newest first, into an XLSX workbook
func (f *MessageHistoryFlowImpl) ExportMessages(ctx context.Context, actor Actor, req *dto.ListMessagesRequest) ([]byte, string, error) {
	filter, err := f.filter(ctx, actor, req)
	if err != nil {
		return nil, "", err
	}

	rows, err := f.historyRepo.ByFilter(ctx, filter, "id DESC", utils.MaxExportRows, 0)
	if err != nil {
		return nil, "", NewBusinessError("MESSAGE_EXPORT_FAILED", "Failed to load messages", err)
	}

	content, err := renderMessagesXLSX(rows)
	if err != nil {
		return nil, "", NewBusinessError("MESSAGE_EXPORT_FAILED", "Failed to build export", err)
	}
	name := fmt.Sprintf("messages-%s.xlsx", utils.UTCNow().Format("20060102-150405"))
	return content, name, nil
}

func renderMessagesXLSX(rows []*models.MessageHistory) ([]byte, error) {
	xf := excelize.NewFile()
	defer func() { _ = xf.Close() }()

	if err := xf.SetSheetName("Sheet1", messageExportSheet); err != nil {
		return nil, err
	}
	if err := xf.SetSheetRow(messageExportSheet, "A1", &messageExportHeader); err != nil {
		return nil, err
	}

	for i, m := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		var campaignID any
		if m.CampaignID != nil {
			campaignID = *m.CampaignID
		}
		row := []any{
			m.ID, campaignID, m.Recipient, m.SenderID, m.Message, m.Segments, m.Cost,
			string(m.Status), utils.Deref(m.ProviderMessageID), utils.Deref(m.ErrorKind),
			utils.Deref(m.ErrorMessage), m.CreatedAt.Format(time.RFC3339),
		}
		if err := xf.SetSheetRow(messageExportSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := xf.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *MessageHistoryFlowImpl) filter(ctx context.Context, actor Actor, req *dto.ListMessagesRequest) (models.MessageHistoryFilter, error) {
	filter := models.MessageHistoryFilter{}
	if !actor.IsAdmin() {
		filter.UserID = &actor.UserID
	}
	if req.Status != nil {
		status := models.MessageStatus(*req.Status)
		filter.Status = &status
	}
	if req.CampaignUUID != nil {
		id, err := uuid.Parse(*req.CampaignUUID)
		if err != nil {
			return filter, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
		}
		campaign, err := f.campaignRepo.ByUUID(ctx, id)
		if err != nil {
			return filter, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
		}
		if campaign == nil {
			return filter, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
		}
		if !actor.Owns(campaign.UserID) {
			return filter, NewBusinessError("CAMPAIGN_ACCESS_DENIED", "Campaign access denied", ErrCampaignAccessDenied)
		}
		filter.CampaignID = &campaign.ID
	}
	return filter, nil
}

package businessflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirphl/mspace-dashboard/app/dto"
	"github.com/amirphl/mspace-dashboard/models"
	"github.com/amirphl/mspace-dashboard/repository"
	"github.com/amirphl/mspace-dashboard/utils"
	"github.com/google/uuid"
)

// CampaignFlow handles the campaign business logic
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, actor Actor, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CampaignResponse, error)
	UpdateCampaign(ctx context.Context, actor Actor, req *dto.UpdateCampaignRequest, metadata *ClientMetadata) (*dto.CampaignResponse, error)
	GetCampaign(ctx context.Context, actor Actor, campaignUUID string) (*dto.CampaignResponse, error)
	ListCampaigns(ctx context.Context, actor Actor, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error)
	DeleteCampaign(ctx context.Context, actor Actor, campaignUUID string, metadata *ClientMetadata) error
	StartCampaign(ctx context.Context, actor Actor, campaignUUID string, metadata *ClientMetadata) (*dto.CampaignResponse, error)
	ResumeCampaign(ctx context.Context, actor Actor, campaignUUID string, metadata *ClientMetadata) (*dto.CampaignResponse, error)
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo  repository.CampaignRepository
	dataModelRepo repository.DataModelRepository
	auditRepo     repository.AuditLogRepository
	sender        CampaignSender
	// async runs pipeline work outside the request
	async func(fn func())
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	dataModelRepo repository.DataModelRepository,
	auditRepo repository.AuditLogRepository,
	sender CampaignSender,
) *CampaignFlowImpl {
	return &CampaignFlowImpl{
		campaignRepo:  campaignRepo,
		dataModelRepo: dataModelRepo,
		auditRepo:     auditRepo,
		sender:        sender,
		async:         func(fn func()) { go fn() },
	}
}

// CreateCampaign creates a draft, or a scheduled campaign when a send time is given
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, actor Actor, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CampaignResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", ErrCampaignMessageRequired)
	}
	if _, err := ParseCriteria(req.Criteria); err != nil {
		return nil, NewBusinessError("INVALID_CRITERIA", "Campaign criteria are invalid", err)
	}

	dataModel, err := s.ownedDataModel(ctx, actor, req.DataModelUUID)
	if err != nil {
		return nil, err
	}

	campaign := &models.Campaign{
		UserID:      actor.UserID,
		OwnerRole:   actor.Role,
		Title:       req.Title,
		Type:        models.CampaignTypeSMS,
		Status:      models.CampaignStatusDraft,
		Message:     req.Message,
		SenderID:    utils.Deref(req.SenderID),
		DataModelID: &dataModel.ID,
		Criteria:    req.Criteria,
		CreatedAt:   utils.UTCNow(),
		UpdatedAt:   utils.UTCNow(),
	}
	if req.ScheduledAt != nil {
		if !req.ScheduledAt.After(utils.UTCNow()) {
			return nil, NewBusinessError("INVALID_SCHEDULE_TIME", "Schedule time must be in the future", ErrScheduleTimeInPast)
		}
		campaign.ScheduledAt = utils.TimeToUTCPtr(req.ScheduledAt)
		campaign.Status = models.CampaignStatusScheduled
	}

	if err := s.campaignRepo.Save(ctx, campaign); err != nil {
		errMsg := fmt.Sprintf("Campaign creation failed: %s", err.Error())
		_ = createAuditLog(ctx, s.auditRepo, &actor.UserID, models.AuditActionCampaignCreated, errMsg, false, &errMsg, metadata, nil)
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	msg := fmt.Sprintf("Campaign created successfully: %s", campaign.UUID.String())
	_ = createAuditLog(ctx, s.auditRepo, &actor.UserID, models.AuditActionCampaignCreated, msg, true, nil, metadata, nil)

	return toCampaignResponse(campaign, utils.ToPtr(dataModel.UUID.String())), nil
}

// UpdateCampaign changes a campaign that has not started sending
func (s *CampaignFlowImpl) UpdateCampaign(ctx context.Context, actor Actor, req *dto.UpdateCampaignRequest, metadata *ClientMetadata) (*dto.CampaignResponse, error) {
	if req.Title == nil && req.Message == nil && req.SenderID == nil && req.DataModelUUID == nil &&
		req.Criteria == nil && req.ScheduledAt == nil && !req.Unschedule {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_VALIDATION_FAILED", "Campaign update validation failed", ErrCampaignUpdateRequired)
	}

	campaign, err := s.ownedCampaign(ctx, actor, req.UUID)
	if err != nil {
		return nil, err
	}
	if !campaign.Status.Editable() {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_NOT_ALLOWED", "Campaign cannot be updated in current status", ErrCampaignNotEditable)
	}

	if req.Title != nil {
		campaign.Title = *req.Title
	}
	if req.Message != nil {
		if strings.TrimSpace(*req.Message) == "" {
			return nil, NewBusinessError("CAMPAIGN_UPDATE_VALIDATION_FAILED", "Campaign update validation failed", ErrCampaignMessageRequired)
		}
		campaign.Message = *req.Message
	}
	if req.SenderID != nil {
		campaign.SenderID = *req.SenderID
	}
	if req.Criteria != nil {
		if _, err := ParseCriteria(req.Criteria); err != nil {
			return nil, NewBusinessError("INVALID_CRITERIA", "Campaign criteria are invalid", err)
		}
		campaign.Criteria = req.Criteria
	}

	var dataModelUUID *string
	if req.DataModelUUID != nil {
		dataModel, err := s.ownedDataModel(ctx, actor, *req.DataModelUUID)
		if err != nil {
			return nil, err
		}
		campaign.DataModelID = &dataModel.ID
		dataModelUUID = utils.ToPtr(dataModel.UUID.String())
	}

	switch {
	case req.Unschedule:
		campaign.ScheduledAt = nil
		campaign.Status = models.CampaignStatusDraft
	case req.ScheduledAt != nil:
		if !req.ScheduledAt.After(utils.UTCNow()) {
			return nil, NewBusinessError("INVALID_SCHEDULE_TIME", "Schedule time must be in the future", ErrScheduleTimeInPast)
		}
		campaign.ScheduledAt = utils.TimeToUTCPtr(req.ScheduledAt)
		campaign.Status = models.CampaignStatusScheduled
	}

	updated, err := s.campaignRepo.Update(ctx, campaign)
	if err != nil {
		errMsg := fmt.Sprintf("Campaign update failed: %s", err.Error())
		_ = createAuditLog(ctx, s.auditRepo, &actor.UserID, models.AuditActionCampaignUpdated, errMsg, false, &errMsg, metadata, nil)
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Campaign update failed", err)
	}
	if !updated {
		// a send run claimed the campaign after it was read
		return nil, NewBusinessError("CAMPAIGN_UPDATE_NOT_ALLOWED", "Campaign cannot be updated in current status", ErrCampaignNotEditable)
	}
	campaign.UpdatedAt = utils.UTCNow()

	msg := fmt.Sprintf("Campaign updated successfully: %s", campaign.UUID.String())
	_ = createAuditLog(ctx, s.auditRepo, &actor.UserID, models.AuditActionCampaignUpdated, msg, true, nil, metadata, nil)

	if dataModelUUID == nil {
		dataModelUUID = s.dataModelUUID(ctx, campaign.DataModelID, nil)
	}
	return toCampaignResponse(campaign, dataModelUUID), nil
}

func (s *CampaignFlowImpl) GetCampaign(ctx context.Context, actor Actor, campaignUUID string) (*dto.CampaignResponse, error) {
	campaign, err := s.ownedCampaign(ctx, actor, campaignUUID)
	if err != nil {
		return nil, err
	}
	return toCampaignResponse(campaign, s.dataModelUUID(ctx, campaign.DataModelID, nil)), nil
}

// ListCampaigns lists the actor's campaigns; admins see every campaign
func (s *CampaignFlowImpl) ListCampaigns(ctx context.Context, actor Actor, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error) {
	page, pageSize, offset, err := normalizePagination(req.PaginationRequest)
	if err != nil {
		return nil, NewBusinessError("INVALID_PAGINATION", "Invalid pagination", err)
	}

	filter := models.CampaignFilter{}
	if !actor.IsAdmin() {
		filter.UserID = &actor.UserID
	}
	if req.Status != nil {
		status := models.CampaignStatus(*req.Status)
		filter.Status = &status
	}

	total, err := s.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}
	campaigns, err := s.campaignRepo.ByFilter(ctx, filter, "id DESC", pageSize, offset)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}

	known := make(map[uint]string)
	items := make([]dto.CampaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		items = append(items, *toCampaignResponse(c, s.dataModelUUID(ctx, c.DataModelID, known)))
	}

	return &dto.ListCampaignsResponse{Items: items, Pagination: paginationInfo(page, pageSize, total)}, nil
}

func (s *CampaignFlowImpl) DeleteCampaign(ctx context.Context, actor Actor, campaignUUID string, metadata *ClientMetadata) error {
	campaign, err := s.ownedCampaign(ctx, actor, campaignUUID)
	if err != nil {
		return err
	}
	if !campaign.Status.Editable() {
		return NewBusinessError("CAMPAIGN_DELETE_NOT_ALLOWED", "Campaign cannot be deleted in current status", ErrCampaignNotEditable)
	}

	deleted, err := s.campaignRepo.Delete(ctx, campaign.ID)
	if err != nil {
		return NewBusinessError("CAMPAIGN_DELETE_FAILED", "Campaign deletion failed", err)
	}
	if !deleted {
		return NewBusinessError("CAMPAIGN_DELETE_NOT_ALLOWED", "Campaign cannot be deleted in current status", ErrCampaignNotEditable)
	}

	msg := fmt.Sprintf("Campaign deleted: %s", campaign.UUID.String())
	_ = createAuditLog(ctx, s.auditRepo, &actor.UserID, models.AuditActionCampaignDeleted, msg, true, nil, metadata, nil)
	return nil
}

// StartCampaign hands a sendable campaign to the pipeline and returns without waiting
func (s *CampaignFlowImpl) StartCampaign(ctx context.Context, actor Actor, campaignUUID string, metadata *ClientMetadata) (*dto.CampaignResponse, error) {
	campaign, err := s.ownedCampaign(ctx, actor, campaignUUID)
	if err != nil {
		return nil, err
	}
	if !campaign.Status.Sendable() {
		return nil, NewBusinessErrorf("INVALID_CAMPAIGN_STATE", "Campaign in status %s cannot be sent", ErrCampaignNotSendable, campaign.Status)
	}

	s.dispatch(ctx, campaign, s.sender.Send)
	return toCampaignResponse(campaign, s.dataModelUUID(ctx, campaign.DataModelID, nil)), nil
}

// ResumeCampaign restarts the pipeline of a campaign left in sending
func (s *CampaignFlowImpl) ResumeCampaign(ctx context.Context, actor Actor, campaignUUID string, metadata *ClientMetadata) (*dto.CampaignResponse, error) {
	campaign, err := s.ownedCampaign(ctx, actor, campaignUUID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusSending {
		return nil, NewBusinessErrorf("INVALID_CAMPAIGN_STATE", "Campaign in status %s cannot be resumed", ErrCampaignNotResumable, campaign.Status)
	}

	s.dispatch(ctx, campaign, s.sender.Resume)
	return toCampaignResponse(campaign, s.dataModelUUID(ctx, campaign.DataModelID, nil)), nil
}

func (s *CampaignFlowImpl) dispatch(ctx context.Context, campaign *models.Campaign, run func(context.Context, uint) (*SendSummary, error)) {
	runCtx := context.WithoutCancel(ctx)
	id, campaignUUID := campaign.ID, campaign.UUID
	s.async(func() {
		summary, err := run(runCtx, id)
		if err != nil {
			log.Printf("campaign %s run failed: %v", campaignUUID, err)
			return
		}
		log.Printf("campaign %s run finished: status=%s sent=%d failed=%d skipped=%d",
			campaignUUID, summary.Status, summary.Sent, summary.Failed, summary.Skipped)
	})
}

func (s *CampaignFlowImpl) ownedCampaign(ctx context.Context, actor Actor, campaignUUID string) (*models.Campaign, error) {
	id, err := uuid.Parse(campaignUUID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	campaign, err := s.campaignRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	if !actor.Owns(campaign.UserID) {
		return nil, NewBusinessError("CAMPAIGN_ACCESS_DENIED", "Campaign access denied", ErrCampaignAccessDenied)
	}
	return campaign, nil
}

func (s *CampaignFlowImpl) ownedDataModel(ctx context.Context, actor Actor, dataModelUUID string) (*models.DataModel, error) {
	id, err := uuid.Parse(dataModelUUID)
	if err != nil {
		return nil, NewBusinessError("DATA_MODEL_NOT_FOUND", "Data model not found", ErrDataModelNotFound)
	}
	dataModel, err := s.dataModelRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("DATA_MODEL_LOOKUP_FAILED", "Failed to lookup data model", err)
	}
	if dataModel == nil {
		return nil, NewBusinessError("DATA_MODEL_NOT_FOUND", "Data model not found", ErrDataModelNotFound)
	}
	if !actor.Owns(dataModel.UserID) {
		return nil, NewBusinessError("DATA_MODEL_ACCESS_DENIED", "Data model access denied", ErrDataModelAccessDenied)
	}
	return dataModel, nil
}

// dataModelUUID resolves the public id of a campaign's data model, memoising into known when given
func (s *CampaignFlowImpl) dataModelUUID(ctx context.Context, id *uint, known map[uint]string) *string {
	if id == nil {
		return nil
	}
	if v, ok := known[*id]; ok {
		return &v
	}
	dataModel, err := s.dataModelRepo.ByID(ctx, *id)
	if err != nil || dataModel == nil {
		return nil
	}
	v := dataModel.UUID.String()
	if known != nil {
		known[*id] = v
	}
	return &v
}

func toCampaignResponse(c *models.Campaign, dataModelUUID *string) *dto.CampaignResponse {
	return &dto.CampaignResponse{
		UUID:           c.UUID.String(),
		Title:          c.Title,
		Type:           string(c.Type),
		Status:         string(c.Status),
		Message:        c.Message,
		SenderID:       c.SenderID,
		DataModelUUID:  dataModelUUID,
		Criteria:       c.Criteria,
		RecipientCount: c.RecipientCount,
		SentCount:      c.SentCount,
		DeliveredCount: c.DeliveredCount,
		FailedCount:    c.FailedCount,
		ScheduledAt:    utils.FormatTimePtr(c.ScheduledAt),
		StartedAt:      utils.FormatTimePtr(c.StartedAt),
		CompletedAt:    utils.FormatTimePtr(c.CompletedAt),
		FailureReason:  c.FailureReason,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      c.UpdatedAt.Format(time.RFC3339),
	}
}

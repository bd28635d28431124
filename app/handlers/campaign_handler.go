package handlers

import (
	"strconv"

	"github.com/amirphl/mspace-dashboard/app/dto"
	businessflow "github.com/amirphl/mspace-dashboard/business_flow"
	"github.com/gofiber/fiber/v3"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	UpdateCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	ListCampaigns(c fiber.Ctx) error
	DeleteCampaign(c fiber.Ctx) error
	SendCampaign(c fiber.Ctx) error
	ResumeCampaign(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	baseHandler
	campaignFlow businessflow.CampaignFlow
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow) *CampaignHandler {
	return &CampaignHandler{
		baseHandler:  newBaseHandler(),
		campaignFlow: campaignFlow,
	}
}

// paginationQuery reads page and page_size; malformed values fall back to defaults
func paginationQuery(c fiber.Ctx) dto.PaginationRequest {
	var p dto.PaginationRequest
	if v, err := strconv.Atoi(c.Query("page")); err == nil {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil {
		p.PageSize = v
	}
	return p
}

func optionalQuery(c fiber.Ctx, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}

// CreateCampaign handles the campaign creation process
// @Summary Create Campaign
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param request body dto.CreateCampaignRequest true "Campaign creation data"
// @Success 201 {object} dto.APIResponse{data=dto.CampaignResponse}
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.CreateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns")
	defer cancel()

	result, err := h.campaignFlow.CreateCampaign(ctx, actor, &req, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Campaign creation failed", "CAMPAIGN_CREATION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", result)
}

// UpdateCampaign handles the campaign update process
// @Summary Update Campaign
// @Tags Campaigns
// @Param uuid path string true "Campaign UUID"
// @Param request body dto.UpdateCampaignRequest true "Campaign update data"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignResponse}
// @Router /api/v1/campaigns/{uuid} [put]
func (h *CampaignHandler) UpdateCampaign(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	var req dto.UpdateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UUID = campaignUUID
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/"+campaignUUID)
	defer cancel()

	result, err := h.campaignFlow.UpdateCampaign(ctx, actor, &req, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Campaign update failed", "CAMPAIGN_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign updated successfully", result)
}

// GetCampaign returns one campaign with its counters
// @Router /api/v1/campaigns/{uuid} [get]
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/"+c.Params("uuid"))
	defer cancel()

	result, err := h.campaignFlow.GetCampaign(ctx, actor, c.Params("uuid"))
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to get campaign", "GET_CAMPAIGN_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", result)
}

// ListCampaigns returns the caller's campaigns with filters and pagination
// @Param page query int false "Page number"
// @Param page_size query int false "Items per page (max 100)"
// @Param status query string false "Filter by status (draft|scheduled|sending|completed|failed)"
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	req := dto.ListCampaignsRequest{
		PaginationRequest: paginationQuery(c),
		Status:            optionalQuery(c, "status"),
	}
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns")
	defer cancel()

	result, err := h.campaignFlow.ListCampaigns(ctx, actor, &req)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to list campaigns", "LIST_CAMPAIGNS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaigns retrieved successfully", result)
}

// DeleteCampaign removes a campaign that has not started sending
// @Router /api/v1/campaigns/{uuid} [delete]
func (h *CampaignHandler) DeleteCampaign(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/"+c.Params("uuid"))
	defer cancel()

	if err := h.campaignFlow.DeleteCampaign(ctx, actor, c.Params("uuid"), h.metadata(c)); err != nil {
		return h.businessErrorResponse(c, err, "Campaign deletion failed", "CAMPAIGN_DELETE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign deleted successfully", nil)
}

// SendCampaign starts the send pipeline. The run continues after the response.
// @Router /api/v1/campaigns/{uuid}/send [post]
func (h *CampaignHandler) SendCampaign(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/"+c.Params("uuid")+"/send")
	defer cancel()

	result, err := h.campaignFlow.StartCampaign(ctx, actor, c.Params("uuid"), h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Campaign send failed", "CAMPAIGN_SEND_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusAccepted, "Campaign send started", result)
}

// ResumeCampaign continues an interrupted run
// @Router /api/v1/campaigns/{uuid}/resume [post]
func (h *CampaignHandler) ResumeCampaign(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/campaigns/"+c.Params("uuid")+"/resume")
	defer cancel()

	result, err := h.campaignFlow.ResumeCampaign(ctx, actor, c.Params("uuid"), h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Campaign resume failed", "CAMPAIGN_RESUME_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusAccepted, "Campaign resume started", result)
}

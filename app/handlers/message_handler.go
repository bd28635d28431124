package handlers

import (
	"fmt"

	"github.com/amirphl/mspace-dashboard/app/dto"
	businessflow "github.com/amirphl/mspace-dashboard/business_flow"
	"github.com/gofiber/fiber/v3"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// MessageHandler serves the message history
type MessageHandler struct {
	baseHandler
	historyFlow businessflow.MessageHistoryFlow
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(historyFlow businessflow.MessageHistoryFlow) *MessageHandler {
	return &MessageHandler{
		baseHandler: newBaseHandler(),
		historyFlow: historyFlow,
	}
}

func (h *MessageHandler) listRequest(c fiber.Ctx) dto.ListMessagesRequest {
	return dto.ListMessagesRequest{
		PaginationRequest: paginationQuery(c),
		CampaignUUID:      optionalQuery(c, "campaign_uuid"),
		Status:            optionalQuery(c, "status"),
	}
}

// ListMessages pages through sent messages, newest first
// @Param campaign_uuid query string false "Only messages of this campaign"
// @Param status query string false "sent|delivered|failed"
// @Router /api/v1/messages [get]
func (h *MessageHandler) ListMessages(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	req := h.listRequest(c)
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/messages")
	defer cancel()

	result, err := h.historyFlow.ListMessages(ctx, actor, &req)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to list messages", "MESSAGE_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Messages retrieved successfully", result)
}

// ExportMessages downloads the filtered history as an XLSX workbook
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Router /api/v1/messages/export [get]
func (h *MessageHandler) ExportMessages(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	req := h.listRequest(c)
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/messages/export")
	defer cancel()

	content, filename, err := h.historyFlow.ExportMessages(ctx, actor, &req)
	if err != nil {
		return h.businessErrorResponse(c, err, "Message export failed", "MESSAGE_EXPORT_FAILED")
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(content)
}

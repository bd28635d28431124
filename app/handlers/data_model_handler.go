package handlers

import (
	"github.com/amirphl/mspace-dashboard/app/dto"
	businessflow "github.com/amirphl/mspace-dashboard/business_flow"
	"github.com/gofiber/fiber/v3"
)

// DataModelHandlerInterface defines the contract for data model handlers
type DataModelHandlerInterface interface {
	CreateDataModel(c fiber.Ctx) error
	ListDataModels(c fiber.Ctx) error
	GetDataModel(c fiber.Ctx) error
	AddRecords(c fiber.Ctx) error
	ListRecords(c fiber.Ctx) error
	PreviewRecipients(c fiber.Ctx) error
}

// DataModelHandler handles data models and their records
type DataModelHandler struct {
	baseHandler
	dataModelFlow businessflow.DataModelFlow
}

// NewDataModelHandler creates a new data model handler
func NewDataModelHandler(dataModelFlow businessflow.DataModelFlow) *DataModelHandler {
	return &DataModelHandler{
		baseHandler:   newBaseHandler(),
		dataModelFlow: dataModelFlow,
	}
}

// CreateDataModel declares a new data model
// @Param request body dto.CreateDataModelRequest true "Data model"
// @Success 201 {object} dto.APIResponse{data=dto.DataModelResponse}
// @Router /api/v1/data-models [post]
func (h *DataModelHandler) CreateDataModel(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.CreateDataModelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/data-models")
	defer cancel()

	result, err := h.dataModelFlow.CreateDataModel(ctx, actor, &req, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Data model creation failed", "DATA_MODEL_CREATION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Data model created successfully", result)
}

// ListDataModels lists the caller's data models
// @Param tag query string false "Only models carrying this tag"
// @Router /api/v1/data-models [get]
func (h *DataModelHandler) ListDataModels(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	req := dto.ListDataModelsRequest{PaginationRequest: paginationQuery(c), Tag: optionalQuery(c, "tag")}
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/data-models")
	defer cancel()

	result, err := h.dataModelFlow.ListDataModels(ctx, actor, &req)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to list data models", "DATA_MODEL_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Data models retrieved successfully", result)
}

// GetDataModel returns one data model and its record count
// @Router /api/v1/data-models/{uuid} [get]
func (h *DataModelHandler) GetDataModel(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/data-models/"+c.Params("uuid"))
	defer cancel()

	result, err := h.dataModelFlow.GetDataModel(ctx, actor, c.Params("uuid"))
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to get data model", "DATA_MODEL_LOOKUP_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Data model retrieved successfully", result)
}

// AddRecords appends a batch of records
// @Param request body dto.AddRecordsRequest true "Records"
// @Router /api/v1/data-models/{uuid}/records [post]
func (h *DataModelHandler) AddRecords(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.AddRecordsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/data-models/"+c.Params("uuid")+"/records")
	defer cancel()

	result, err := h.dataModelFlow.AddRecords(ctx, actor, c.Params("uuid"), &req)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to add records", "RECORD_CREATION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Records added successfully", result)
}

// ListRecords pages through a data model's records
// @Router /api/v1/data-models/{uuid}/records [get]
func (h *DataModelHandler) ListRecords(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/data-models/"+c.Params("uuid")+"/records")
	defer cancel()

	result, err := h.dataModelFlow.ListRecords(ctx, actor, c.Params("uuid"), paginationQuery(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to list records", "RECORD_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Records retrieved successfully", result)
}

// PreviewRecipients evaluates criteria against the data model
// @Param request body dto.PreviewRecipientsRequest true "Criteria"
// @Router /api/v1/data-models/{uuid}/preview [post]
func (h *DataModelHandler) PreviewRecipients(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.PreviewRecipientsRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/data-models/"+c.Params("uuid")+"/preview")
	defer cancel()

	result, err := h.dataModelFlow.PreviewRecipients(ctx, actor, c.Params("uuid"), &req)
	if err != nil {
		return h.businessErrorResponse(c, err, "Recipient preview failed", "PREVIEW_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Recipients previewed successfully", result)
}

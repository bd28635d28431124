package handlers

import (
	"strconv"

	"github.com/amirphl/mspace-dashboard/app/dto"
	businessflow "github.com/amirphl/mspace-dashboard/business_flow"
	"github.com/gofiber/fiber/v3"
)

// ProviderHandlerInterface defines the contract for provider handlers
type ProviderHandlerInterface interface {
	SendSMS(c fiber.Ctx) error
	CheckBalance(c fiber.Ctx) error
	ListSubUsers(c fiber.Ctx) error
	ListResellerClients(c fiber.Ctx) error
	TopUpReseller(c fiber.Ctx) error
	TopUpSubAccount(c fiber.Ctx) error
	TestCredentials(c fiber.Ctx) error
	SaveCredentials(c fiber.Ctx) error
	CredentialStatus(c fiber.Ctx) error
}

// ProviderHandler exposes the SMS provider operations
type ProviderHandler struct {
	baseHandler
	providerFlow businessflow.ProviderFlow
}

// NewProviderHandler creates a new provider handler
func NewProviderHandler(providerFlow businessflow.ProviderFlow) *ProviderHandler {
	return &ProviderHandler{
		baseHandler:  newBaseHandler(),
		providerFlow: providerFlow,
	}
}

// SendSMS sends one message outside any campaign
// @Summary Send SMS
// @Tags Provider
// @Param request body dto.SendSMSRequest true "Message"
// @Success 200 {object} dto.APIResponse{data=dto.ProviderResult}
// @Failure 502 {object} dto.APIResponse "Provider refused the message"
// @Router /api/v1/provider/sms [post]
func (h *ProviderHandler) SendSMS(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.SendSMSRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/provider/sms")
	defer cancel()

	result, err := h.providerFlow.SendSMS(ctx, actor, &req, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "SMS send failed", "SMS_SEND_FAILED")
	}
	return h.providerResponse(c, "SMS sent successfully", result)
}

// CheckBalance returns the provider balance, from cache unless refresh=true
// @Param refresh query bool false "Bypass the balance cache"
// @Router /api/v1/provider/balance [get]
func (h *ProviderHandler) CheckBalance(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/provider/balance")
	defer cancel()

	refresh, _ := strconv.ParseBool(c.Query("refresh"))
	result, err := h.providerFlow.CheckBalance(ctx, actor, refresh)
	if err != nil {
		return h.businessErrorResponse(c, err, "Balance check failed", "BALANCE_CHECK_FAILED")
	}
	return h.providerResponse(c, "Balance retrieved successfully", result)
}

// ListSubUsers lists the sub-accounts of the provider account
// @Router /api/v1/provider/sub-users [get]
func (h *ProviderHandler) ListSubUsers(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/provider/sub-users")
	defer cancel()

	result, err := h.providerFlow.ListSubUsers(ctx, actor)
	if err != nil {
		return h.businessErrorResponse(c, err, "Sub-user listing failed", "SUB_USERS_FAILED")
	}
	return h.providerResponse(c, "Sub-users retrieved successfully", result)
}

// ListResellerClients lists the reseller clients of the provider account
// @Router /api/v1/provider/reseller-clients [get]
func (h *ProviderHandler) ListResellerClients(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/provider/reseller-clients")
	defer cancel()

	result, err := h.providerFlow.ListResellerClients(ctx, actor)
	if err != nil {
		return h.businessErrorResponse(c, err, "Reseller client listing failed", "RESELLER_CLIENTS_FAILED")
	}
	return h.providerResponse(c, "Reseller clients retrieved successfully", result)
}

// TopUpReseller moves SMS credits to a reseller client
// @Param request body dto.TopUpResellerRequest true "Top up"
// @Router /api/v1/provider/topups/reseller [post]
func (h *ProviderHandler) TopUpReseller(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.TopUpResellerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/provider/topups/reseller")
	defer cancel()

	result, err := h.providerFlow.TopUpReseller(ctx, actor, &req, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Top up failed", "TOP_UP_FAILED")
	}
	return h.providerResponse(c, "Top up completed", result)
}

// TopUpSubAccount moves SMS credits to a sub-account
// @Param request body dto.TopUpSubAccountRequest true "Top up"
// @Router /api/v1/provider/topups/sub-account [post]
func (h *ProviderHandler) TopUpSubAccount(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.TopUpSubAccountRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/provider/topups/sub-account")
	defer cancel()

	result, err := h.providerFlow.TopUpSub(ctx, actor, &req, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Top up failed", "TOP_UP_FAILED")
	}
	return h.providerResponse(c, "Top up completed", result)
}

// TestCredentials logs in to the provider with the stored credentials
// @Router /api/v1/provider/credentials/test [post]
func (h *ProviderHandler) TestCredentials(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/provider/credentials/test")
	defer cancel()

	result, err := h.providerFlow.TestCredentials(ctx, actor)
	if err != nil {
		return h.businessErrorResponse(c, err, "Credential test failed", "CREDENTIAL_TEST_FAILED")
	}
	return h.providerResponse(c, "Credentials are valid", result)
}

// SaveCredentials stores the caller's provider credentials
// @Param request body dto.SaveCredentialsRequest true "Credentials"
// @Success 200 {object} dto.APIResponse{data=dto.CredentialStatusResponse}
// @Router /api/v1/provider/credentials [put]
func (h *ProviderHandler) SaveCredentials(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	var req dto.SaveCredentialsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", nil)
	}
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/provider/credentials")
	defer cancel()

	result, err := h.providerFlow.SaveCredentials(ctx, actor, &req, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Saving credentials failed", "CREDENTIALS_SAVE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Credentials saved successfully", result)
}

// CredentialStatus reports whether credentials are configured, without secrets
// @Router /api/v1/provider/credentials [get]
func (h *ProviderHandler) CredentialStatus(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/provider/credentials")
	defer cancel()

	result, err := h.providerFlow.CredentialStatus(ctx, actor)
	if err != nil {
		return h.businessErrorResponse(c, err, "Credential status failed", "CREDENTIAL_STATUS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Credential status retrieved successfully", result)
}

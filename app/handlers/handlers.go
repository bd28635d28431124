// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/mspace-dashboard/app/dto"
	businessflow "github.com/amirphl/mspace-dashboard/business_flow"
	"github.com/amirphl/mspace-dashboard/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

const defaultRequestTimeout = 30 * time.Second

// baseHandler carries the response helpers every handler shares
type baseHandler struct {
	validator *validator.Validate
}

func newBaseHandler() baseHandler {
	return baseHandler{validator: validator.New()}
}

func (h baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validate runs struct validation and returns the error messages, or nil
func (h baseHandler) validate(req any) []string {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return messages
}

// actor reads the caller set by the auth middleware
func (h baseHandler) actor(c fiber.Ctx) (businessflow.Actor, bool) {
	userID, ok := c.Locals("user_id").(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return businessflow.Actor{}, false
	}
	role, _ := c.Locals("user_role").(string)
	return businessflow.Actor{UserID: userID, Role: role}, true
}

func (h baseHandler) metadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	if requestID := c.Get("X-Request-ID"); requestID != "" {
		metadata.SetRequestID(requestID)
	}
	return metadata
}

// requestContext creates a context with request-scoped values for observability and timeout
func (h baseHandler) requestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	return h.requestContextWithTimeout(c, endpoint, defaultRequestTimeout)
}

func (h baseHandler) requestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)

	return ctx, cancel
}

func (h baseHandler) unauthorized(c fiber.Ctx) error {
	return h.ErrorResponse(c, fiber.StatusUnauthorized, "User not found in context", "MISSING_USER", nil)
}

// providerResponse renders a provider outcome. Provider refusals are a bad gateway, not a server error.
func (h baseHandler) providerResponse(c fiber.Ctx, message string, result *dto.ProviderResult) error {
	if result.OK() {
		return h.SuccessResponse(c, fiber.StatusOK, message, result)
	}
	return h.ErrorResponse(c, fiber.StatusBadGateway, result.Error, "PROVIDER_ERROR", result)
}

// businessErrorResponse maps flow errors to HTTP statuses; anything unknown is logged as a server error
func (h baseHandler) businessErrorResponse(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	status := fiber.StatusInternalServerError
	switch {
	case businessflow.IsCampaignNotFound(err), businessflow.IsDataModelNotFound(err):
		status = fiber.StatusNotFound
	case businessflow.IsCampaignAccessDenied(err), businessflow.IsDataModelAccessDenied(err),
		businessflow.IsForbidden(err), businessflow.IsUnsupportedRole(err):
		status = fiber.StatusForbidden
	case businessflow.IsCampaignNotSendable(err), businessflow.IsCampaignNotResumable(err),
		businessflow.IsCampaignNotEditable(err), businessflow.IsCampaignBusy(err),
		businessflow.IsLedgerConflict(err):
		status = fiber.StatusConflict
	case businessflow.IsCredentialsNotConfigured(err):
		status = fiber.StatusPreconditionFailed
	case businessflow.IsCampaignUpdateRequired(err), businessflow.IsScheduleTimeInPast(err),
		businessflow.IsInvalidCriteria(err), businessflow.IsInvalidRecord(err),
		businessflow.IsTooManyRecords(err), businessflow.IsInvalidPhone(err),
		businessflow.IsRecipientPhoneMissing(err), businessflow.IsInvalidPage(err),
		businessflow.IsInvalidPageSize(err), businessflow.IsStartDateAfterEndDate(err),
		businessflow.IsInvalidLedgerEntry(err):
		status = fiber.StatusBadRequest
	case businessflow.IsProviderUnavailable(err):
		status = fiber.StatusBadGateway
	}

	var be *businessflow.BusinessError
	if status == fiber.StatusInternalServerError {
		log.Printf("%s: %v", fallbackMessage, err)
		if errors.As(err, &be) && be.Code != "" {
			return h.ErrorResponse(c, status, fallbackMessage, be.Code, nil)
		}
		return h.ErrorResponse(c, status, fallbackMessage, fallbackCode, nil)
	}

	if errors.As(err, &be) {
		details := any(nil)
		if be.Err != nil {
			details = be.Err.Error()
		}
		return h.ErrorResponse(c, status, be.Message, be.Code, details)
	}
	return h.ErrorResponse(c, status, err.Error(), fallbackCode, nil)
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "required_without":
		return err.Field() + " is required when " + err.Param() + " is missing"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "len":
		return err.Field() + " must be exactly " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "uuid":
		return err.Field() + " must be a valid UUID"
	case "numeric":
		return err.Field() + " must contain only numbers"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

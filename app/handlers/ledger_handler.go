package handlers

import (
	"time"

	"github.com/amirphl/mspace-dashboard/app/dto"
	businessflow "github.com/amirphl/mspace-dashboard/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// LedgerHandlerInterface defines the contract for ledger handlers
type LedgerHandlerInterface interface {
	Balance(c fiber.Ctx) error
	ListTransactions(c fiber.Ctx) error
	Sync(c fiber.Ctx) error
	Reconcile(c fiber.Ctx) error
}

// LedgerHandler exposes the credit ledger
type LedgerHandler struct {
	baseHandler
	ledgerFlow businessflow.LedgerFlow
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledgerFlow businessflow.LedgerFlow) *LedgerHandler {
	return &LedgerHandler{
		baseHandler: newBaseHandler(),
		ledgerFlow:  ledgerFlow,
	}
}

// Balance returns the caller's running credit balance
// @Router /api/v1/ledger/balance [get]
func (h *LedgerHandler) Balance(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/ledger/balance")
	defer cancel()

	result, err := h.ledgerFlow.Balance(ctx, actor)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to get ledger balance", "LEDGER_BALANCE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Ledger balance retrieved successfully", result)
}

// ListTransactions returns ledger entries newest first
// @Param type query string false "Entry type"
// @Param start_date query string false "RFC3339 lower bound"
// @Param end_date query string false "RFC3339 upper bound"
// @Router /api/v1/ledger/transactions [get]
func (h *LedgerHandler) ListTransactions(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	req := dto.ListTransactionsRequest{
		PaginationRequest: paginationQuery(c),
		Type:              optionalQuery(c, "type"),
	}
	for key, target := range map[string]**time.Time{"start_date": &req.StartDate, "end_date": &req.EndDate} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, key+" must be an RFC3339 timestamp", "VALIDATION_ERROR", nil)
		}
		*target = &t
	}
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/ledger/transactions")
	defer cancel()

	result, err := h.ledgerFlow.ListTransactions(ctx, actor, &req)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to list ledger transactions", "LEDGER_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Ledger transactions retrieved successfully", result)
}

// Sync records the gap between the provider balance and the ledger as one entry
// @Router /api/v1/ledger/sync [post]
func (h *LedgerHandler) Sync(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/ledger/sync")
	defer cancel()

	result, err := h.ledgerFlow.SyncFromProvider(ctx, actor, h.metadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Ledger sync failed", "LEDGER_SYNC_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Ledger synced successfully", result)
}

// Reconcile compares a user's running balance with the sum of their ledger entries
// @Router /api/v1/admin/ledger/{user_id}/reconcile [get]
func (h *LedgerHandler) Reconcile(c fiber.Ctx) error {
	actor, ok := h.actor(c)
	if !ok {
		return h.unauthorized(c)
	}

	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "user_id must be a UUID", "INVALID_USER_ID", nil)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/admin/ledger/"+userID.String()+"/reconcile")
	defer cancel()

	result, err := h.ledgerFlow.Reconcile(ctx, actor, userID)
	if err != nil {
		return h.businessErrorResponse(c, err, "Ledger reconcile failed", "LEDGER_RECONCILE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Ledger reconciled", result)
}

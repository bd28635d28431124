package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/mspace-dashboard/app/dto"
	"github.com/amirphl/mspace-dashboard/app/services"
	"github.com/amirphl/mspace-dashboard/models"
	"github.com/amirphl/mspace-dashboard/repository"
	"github.com/amirphl/mspace-dashboard/utils"
	"github.com/google/uuid"
)

const maxLedgerAttempts = 5

var errVersionConflict = errors.New("credit account version changed")

// LedgerEntry is one signed change to a user's SMS credit
type LedgerEntry struct {
	UserID      uuid.UUID
	Type        models.CreditTransactionType
	Amount      int64
	CampaignID  *uint
	Reference   *string
	Description string
	Metadata    map[string]any
}

// LedgerFlow handles credit bookkeeping
type LedgerFlow interface {
	Apply(ctx context.Context, entry LedgerEntry) (*models.CreditTransaction, error)
	Balance(ctx context.Context, actor Actor) (*dto.LedgerBalanceResponse, error)
	ListTransactions(ctx context.Context, actor Actor, req *dto.ListTransactionsRequest) (*dto.ListTransactionsResponse, error)
	Reconcile(ctx context.Context, actor Actor, userID uuid.UUID) (*dto.ReconcileResponse, error)
	SyncFromProvider(ctx context.Context, actor Actor, metadata *ClientMetadata) (*dto.SyncLedgerResponse, error)
}

// LedgerFlowImpl implements LedgerFlow. The transaction log is authoritative and
// credit_accounts.balance is kept equal to its sum inside the same transaction.
type LedgerFlowImpl struct {
	accountRepo repository.CreditAccountRepository
	txRepo      repository.CreditTransactionRepository
	auditRepo   repository.AuditLogRepository
	transact    repository.Transactor
	credentials CredentialStore
	provider    services.MspaceClient
}

// NewLedgerFlow creates a new ledger flow
func NewLedgerFlow(
	accountRepo repository.CreditAccountRepository,
	txRepo repository.CreditTransactionRepository,
	auditRepo repository.AuditLogRepository,
	transact repository.Transactor,
	credentials CredentialStore,
	provider services.MspaceClient,
) *LedgerFlowImpl {
	return &LedgerFlowImpl{
		accountRepo: accountRepo,
		txRepo:      txRepo,
		auditRepo:   auditRepo,
		transact:    transact,
		credentials: credentials,
		provider:    provider,
	}
}

// Apply appends an entry and moves the running balance with it.
// A lost race on the version column is retried; the balance may go negative.
func (l *LedgerFlowImpl) Apply(ctx context.Context, entry LedgerEntry) (*models.CreditTransaction, error) {
	if entry.UserID == uuid.Nil || !entry.Type.Valid() {
		return nil, ErrInvalidLedgerEntry
	}

	var metadata json.RawMessage
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidLedgerEntry, err)
		}
		metadata = raw
	}

	for attempt := 1; attempt <= maxLedgerAttempts; attempt++ {
		var applied *models.CreditTransaction
		err := l.transact(ctx, func(txCtx context.Context) error {
			account, err := l.accountRepo.EnsureForUpdate(txCtx, entry.UserID)
			if err != nil {
				return err
			}

			newBalance := account.Balance + entry.Amount
			updated, err := l.accountRepo.UpdateBalance(txCtx, account.ID, account.Version, newBalance)
			if err != nil {
				return err
			}
			if !updated {
				return errVersionConflict
			}

			row := &models.CreditTransaction{
				AccountID:     account.ID,
				UserID:        entry.UserID,
				Type:          entry.Type,
				Amount:        entry.Amount,
				BalanceBefore: account.Balance,
				BalanceAfter:  newBalance,
				CampaignID:    entry.CampaignID,
				Reference:     entry.Reference,
				Description:   entry.Description,
				Metadata:      metadata,
				CreatedAt:     utils.UTCNow(),
			}
			if err := l.txRepo.Save(txCtx, row); err != nil {
				return err
			}
			applied = row
			return nil
		})
		if err == nil {
			return applied, nil
		}
		if !errors.Is(err, errVersionConflict) {
			return nil, err
		}
		log.Printf("ledger version conflict for user %s, attempt %d/%d", entry.UserID, attempt, maxLedgerAttempts)
	}

	return nil, ErrLedgerConflict
}

func (l *LedgerFlowImpl) Balance(ctx context.Context, actor Actor) (*dto.LedgerBalanceResponse, error) {
	account, err := l.accountRepo.ByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, NewBusinessError("LEDGER_LOOKUP_FAILED", "Failed to read credit balance", err)
	}

	resp := &dto.LedgerBalanceResponse{UserID: actor.UserID.String()}
	if account != nil {
		resp.Balance = account.Balance
		resp.Version = account.Version
		resp.UpdatedAt = account.UpdatedAt.Format(time.RFC3339)
	}
	return resp, nil
}

func (l *LedgerFlowImpl) ListTransactions(ctx context.Context, actor Actor, req *dto.ListTransactionsRequest) (*dto.ListTransactionsResponse, error) {
	page, pageSize, offset, err := normalizePagination(req.PaginationRequest)
	if err != nil {
		return nil, NewBusinessError("INVALID_PAGINATION", "Invalid pagination", err)
	}
	if req.StartDate != nil && req.EndDate != nil && req.StartDate.After(*req.EndDate) {
		return nil, NewBusinessError("INVALID_DATE_RANGE", "Invalid date range", ErrStartDateAfterEndDate)
	}

	filter := models.CreditTransactionFilter{
		UserID:        &actor.UserID,
		CreatedAfter:  req.StartDate,
		CreatedBefore: req.EndDate,
	}
	if req.Type != nil {
		t := models.CreditTransactionType(*req.Type)
		filter.Type = &t
	}

	total, err := l.txRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LEDGER_LIST_FAILED", "Failed to list credit transactions", err)
	}
	rows, err := l.txRepo.ByFilter(ctx, filter, "id DESC", pageSize, offset)
	if err != nil {
		return nil, NewBusinessError("LEDGER_LIST_FAILED", "Failed to list credit transactions", err)
	}

	items := make([]dto.CreditTransactionResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.CreditTransactionResponse{
			UUID:          row.UUID.String(),
			Type:          string(row.Type),
			Amount:        row.Amount,
			BalanceBefore: row.BalanceBefore,
			BalanceAfter:  row.BalanceAfter,
			Reference:     row.Reference,
			Description:   row.Description,
			CreatedAt:     row.CreatedAt.Format(time.RFC3339),
		})
	}

	return &dto.ListTransactionsResponse{Items: items, Pagination: paginationInfo(page, pageSize, total)}, nil
}

// Reconcile reports drift between the log and the running balance
func (l *LedgerFlowImpl) Reconcile(ctx context.Context, actor Actor, userID uuid.UUID) (*dto.ReconcileResponse, error) {
	if !actor.Owns(userID) {
		return nil, NewBusinessError("FORBIDDEN", "Reconcile not permitted", ErrForbidden)
	}

	resp := &dto.ReconcileResponse{UserID: userID.String(), Consistent: true}
	account, err := l.accountRepo.ByUserID(ctx, userID)
	if err != nil {
		return nil, NewBusinessError("LEDGER_LOOKUP_FAILED", "Failed to read credit balance", err)
	}
	if account == nil {
		return resp, nil
	}

	sum, err := l.txRepo.SumByAccount(ctx, account.ID)
	if err != nil {
		return nil, NewBusinessError("LEDGER_LOOKUP_FAILED", "Failed to sum credit transactions", err)
	}

	resp.Balance = account.Balance
	resp.LedgerSum = sum
	resp.Drift = account.Balance - sum
	resp.Consistent = resp.Drift == 0
	if !resp.Consistent {
		log.Printf("ledger drift for user %s: balance=%d sum=%d", userID, account.Balance, sum)
	}
	return resp, nil
}

// SyncFromProvider appends a provider_sync entry so the local balance equals the provider's
func (l *LedgerFlowImpl) SyncFromProvider(ctx context.Context, actor Actor, metadata *ClientMetadata) (*dto.SyncLedgerResponse, error) {
	account, err := l.credentials.Load(ctx, actor)
	if err != nil {
		return nil, credentialBusinessError(err)
	}

	providerBalance, source, err := queryProviderBalance(ctx, l.provider, account)
	if err != nil {
		return nil, NewBusinessError("PROVIDER_ERROR", "Provider balance query failed", fmt.Errorf("%w: %v", ErrProviderUnavailable, err))
	}

	local, err := l.accountRepo.ByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, NewBusinessError("LEDGER_LOOKUP_FAILED", "Failed to read credit balance", err)
	}
	var before int64
	if local != nil {
		before = local.Balance
	}

	resp := &dto.SyncLedgerResponse{ProviderBalance: providerBalance, BalanceBefore: before, Delta: providerBalance - before}
	if resp.Delta == 0 {
		return resp, nil
	}

	_, err = l.Apply(ctx, LedgerEntry{
		UserID:      actor.UserID,
		Type:        models.CreditTransactionTypeProviderSync,
		Amount:      resp.Delta,
		Reference:   utils.ToPtr(account.Username),
		Description: fmt.Sprintf("Synced with provider balance %d", providerBalance),
		Metadata:    map[string]any{"source": source, "provider_balance": providerBalance},
	})
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, l.auditRepo, &actor.UserID, models.AuditActionLedgerSync, "Ledger sync failed", false, &errMsg, metadata, nil)
		return nil, NewBusinessError("LEDGER_SYNC_FAILED", "Failed to sync ledger", err)
	}
	resp.Applied = true

	msg := fmt.Sprintf("Ledger synced with provider, delta %d", resp.Delta)
	_ = createAuditLog(ctx, l.auditRepo, &actor.UserID, models.AuditActionLedgerSync, msg, true, nil, metadata, map[string]any{"delta": resp.Delta})
	return resp, nil
}

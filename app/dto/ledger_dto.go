package dto

import "time"

// LedgerBalanceResponse is the running credit balance of a user
type LedgerBalanceResponse struct {
	UserID    string `json:"user_id"`
	Balance   int64  `json:"balance"`
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ListTransactionsRequest represents ledger list filters
type ListTransactionsRequest struct {
	PaginationRequest
	Type      *string    `query:"type" validate:"omitempty,oneof=sms_send reseller_topup subaccount_topup provider_sync adjustment"`
	StartDate *time.Time `query:"start_date"`
	EndDate   *time.Time `query:"end_date"`
}

// CreditTransactionResponse represents one ledger entry
type CreditTransactionResponse struct {
	UUID          string  `json:"uuid"`
	Type          string  `json:"type"`
	Amount        int64   `json:"amount"`
	BalanceBefore int64   `json:"balance_before"`
	BalanceAfter  int64   `json:"balance_after"`
	Reference     *string `json:"reference,omitempty"`
	Description   string  `json:"description"`
	CreatedAt     string  `json:"created_at"`
}

// ListTransactionsResponse is a page of ledger entries
type ListTransactionsResponse struct {
	Items      []CreditTransactionResponse `json:"items"`
	Pagination PaginationInfo              `json:"pagination"`
}

// ReconcileResponse compares the ledger log with the running balance
type ReconcileResponse struct {
	UserID     string `json:"user_id"`
	Balance    int64  `json:"balance"`
	LedgerSum  int64  `json:"ledger_sum"`
	Drift      int64  `json:"drift"`
	Consistent bool   `json:"consistent"`
}

// SyncLedgerResponse reports a provider balance sync
type SyncLedgerResponse struct {
	ProviderBalance int64 `json:"provider_balance"`
	BalanceBefore   int64 `json:"balance_before"`
	Delta           int64 `json:"delta"`
	Applied         bool  `json:"applied"`
}

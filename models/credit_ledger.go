package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreditAccount is the denormalised running SMS credit balance of a user.
// The credit_transactions log is authoritative; Version guards concurrent writers.
type CreditAccount struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	UserID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_credit_accounts_user_id" json:"user_id"`
	Balance int64     `gorm:"not null;default:0" json:"balance"`
	Version int64     `gorm:"not null;default:0" json:"version"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (CreditAccount) TableName() string { return "credit_accounts" }

// CreditAccountFilter represents filter criteria for credit account queries
type CreditAccountFilter struct {
	UserID *uuid.UUID
}

// CreditTransactionType classifies a ledger entry
type CreditTransactionType string

const (
	CreditTransactionTypeSMSSend         CreditTransactionType = "sms_send"
	CreditTransactionTypeResellerTopUp   CreditTransactionType = "reseller_topup"
	CreditTransactionTypeSubAccountTopUp CreditTransactionType = "subaccount_topup"
	CreditTransactionTypeProviderSync    CreditTransactionType = "provider_sync"
	CreditTransactionTypeAdjustment      CreditTransactionType = "adjustment"
)

// Valid checks if the type is valid
func (t CreditTransactionType) Valid() bool {
	switch t {
	case CreditTransactionTypeSMSSend, CreditTransactionTypeResellerTopUp,
		CreditTransactionTypeSubAccountTopUp, CreditTransactionTypeProviderSync,
		CreditTransactionTypeAdjustment:
		return true
	default:
		return false
	}
}

// CreditTransaction is an append-only ledger row
type CreditTransaction struct {
	ID            uint                  `gorm:"primaryKey" json:"id"`
	UUID          uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:uk_credit_transactions_uuid" json:"uuid"`
	AccountID     uint                  `gorm:"not null;index:idx_credit_transactions_account_id" json:"account_id"`
	UserID        uuid.UUID             `gorm:"type:uuid;not null;index:idx_credit_transactions_user_id" json:"user_id"`
	Type          CreditTransactionType `gorm:"type:varchar(32);not null;index:idx_credit_transactions_type" json:"type"`
	Amount        int64                 `gorm:"not null" json:"amount"` // signed delta in SMS credits
	BalanceBefore int64                 `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64                 `gorm:"not null" json:"balance_after"`
	CampaignID    *uint                 `gorm:"index:idx_credit_transactions_campaign_id" json:"campaign_id,omitempty"`
	Reference     *string               `gorm:"size:255" json:"reference,omitempty"`
	Description   string                `gorm:"type:text" json:"description"`
	Metadata      json.RawMessage       `gorm:"type:jsonb;default:'{}'" json:"metadata"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_credit_transactions_created_at" json:"created_at"`
}

func (CreditTransaction) TableName() string { return "credit_transactions" }

// BeforeCreate ensures UUID is set
func (t *CreditTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	return nil
}

// CreditTransactionFilter represents filter criteria for ledger queries
type CreditTransactionFilter struct {
	UserID        *uuid.UUID
	AccountID     *uint
	Type          *CreditTransactionType
	CampaignID    *uint
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

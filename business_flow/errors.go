// Package businessflow contains the core business logic and use cases of the SMS gateway
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Actor errors
	ErrUnsupportedRole = errors.New("unsupported role")
	ErrForbidden       = errors.New("operation not permitted for this role")

	// Campaign-related errors
	ErrCampaignNotFound        = errors.New("campaign not found")
	ErrCampaignAccessDenied    = errors.New("campaign access denied")
	ErrCampaignNotSendable     = errors.New("campaign is not in a sendable state")
	ErrCampaignNotResumable    = errors.New("campaign is not sending")
	ErrCampaignNotEditable     = errors.New("campaign can no longer be changed")
	ErrCampaignBusy            = errors.New("campaign is already being sent")
	ErrCampaignUpdateRequired  = errors.New("at least one field must be provided for update")
	ErrScheduleTimeInPast      = errors.New("schedule time must be in the future")
	ErrCampaignMessageRequired = errors.New("campaign message is required")

	// Data model and recipient errors
	ErrDataModelNotFound     = errors.New("data model not found")
	ErrDataModelAccessDenied = errors.New("data model access denied")
	ErrInvalidCriteria       = errors.New("criteria must be a JSON object")
	ErrInvalidRecord         = errors.New("record must be a JSON object")
	ErrTooManyRecords        = errors.New("too many records in one batch")
	ErrRecipientPhoneMissing = errors.New("recipient has no phone field")
	ErrInvalidPhone          = errors.New("invalid phone number")

	// Provider credential errors
	ErrCredentialsNotConfigured = errors.New("provider credentials are not configured")
	ErrCredentialsCorrupt       = errors.New("stored provider credentials cannot be opened")

	// Ledger errors
	ErrLedgerConflict      = errors.New("ledger update conflict, retries exhausted")
	ErrInvalidLedgerEntry  = errors.New("invalid ledger entry")
	ErrProviderUnavailable = errors.New("provider call failed")

	// Filter errors
	ErrInvalidPage           = errors.New("page must be at least 1")
	ErrInvalidPageSize       = errors.New("page size must be between 1 and 100")
	ErrStartDateAfterEndDate = errors.New("start date cannot be after end date")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsUnsupportedRole(err error) bool {
	return errors.Is(err, ErrUnsupportedRole)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignAccessDenied(err error) bool {
	return errors.Is(err, ErrCampaignAccessDenied)
}

func IsCampaignNotSendable(err error) bool {
	return errors.Is(err, ErrCampaignNotSendable)
}

func IsCampaignNotResumable(err error) bool {
	return errors.Is(err, ErrCampaignNotResumable)
}

func IsCampaignNotEditable(err error) bool {
	return errors.Is(err, ErrCampaignNotEditable)
}

func IsCampaignBusy(err error) bool {
	return errors.Is(err, ErrCampaignBusy)
}

func IsCampaignUpdateRequired(err error) bool {
	return errors.Is(err, ErrCampaignUpdateRequired)
}

func IsScheduleTimeInPast(err error) bool {
	return errors.Is(err, ErrScheduleTimeInPast)
}

func IsDataModelNotFound(err error) bool {
	return errors.Is(err, ErrDataModelNotFound)
}

func IsDataModelAccessDenied(err error) bool {
	return errors.Is(err, ErrDataModelAccessDenied)
}

func IsInvalidCriteria(err error) bool {
	return errors.Is(err, ErrInvalidCriteria)
}

func IsInvalidRecord(err error) bool {
	return errors.Is(err, ErrInvalidRecord)
}

func IsTooManyRecords(err error) bool {
	return errors.Is(err, ErrTooManyRecords)
}

func IsRecipientPhoneMissing(err error) bool {
	return errors.Is(err, ErrRecipientPhoneMissing)
}

func IsInvalidPhone(err error) bool {
	return errors.Is(err, ErrInvalidPhone)
}

func IsCredentialsNotConfigured(err error) bool {
	return errors.Is(err, ErrCredentialsNotConfigured)
}

func IsLedgerConflict(err error) bool {
	return errors.Is(err, ErrLedgerConflict)
}

func IsInvalidLedgerEntry(err error) bool {
	return errors.Is(err, ErrInvalidLedgerEntry)
}

func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}

func IsStartDateAfterEndDate(err error) bool {
	return errors.Is(err, ErrStartDateAfterEndDate)
}

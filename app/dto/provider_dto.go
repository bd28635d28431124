package dto

// Provider result statuses
const (
	ProviderStatusSuccess = "success"
	ProviderStatusError   = "error"
)

// ProviderResult is the discriminated outcome of a provider operation
type ProviderResult struct {
	Status    string `json:"status"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// OK reports whether the provider accepted the operation
func (r *ProviderResult) OK() bool {
	return r != nil && r.Status == ProviderStatusSuccess
}

// SendSMSRequest represents a single ad-hoc SMS
type SendSMSRequest struct {
	Recipient string  `json:"recipient" validate:"required,max=32"`
	Message   string  `json:"message" validate:"required,max=1600"`
	SenderID  *string `json:"sender_id,omitempty" validate:"omitempty,max=11"`
}

// SendSMSData is returned when the provider accepted the message
type SendSMSData struct {
	MessageID string `json:"message_id"`
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
	Delivered bool   `json:"delivered"`
	Segments  int    `json:"segments"`
	Cost      int64  `json:"cost"`
}

// CheckBalanceRequest represents the balance query
type CheckBalanceRequest struct {
	Refresh bool `query:"refresh"`
}

// BalanceData is the provider balance
type BalanceData struct {
	Balance int64  `json:"balance"`
	Source  string `json:"source"`
	Cached  bool   `json:"cached"`
}

// AccountBalanceItem is a sub-user or reseller client
type AccountBalanceItem struct {
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

// TopUpResellerRequest represents a reseller client top-up
type TopUpResellerRequest struct {
	ClientName string `json:"clientname" validate:"required,max=128"`
	NoOfSMS    int    `json:"noofsms" validate:"required,min=1,max=10000000"`
}

// TopUpSubAccountRequest represents a sub-account top-up
type TopUpSubAccountRequest struct {
	SubAccName string `json:"subaccname" validate:"required,max=128"`
	NoOfSMS    int    `json:"noofsms" validate:"required,min=1,max=10000000"`
}

// TopUpData is returned after a successful top-up
type TopUpData struct {
	Target       string `json:"target"`
	NoOfSMS      int    `json:"noofsms"`
	Confirmation string `json:"confirmation"`
}

// SaveCredentialsRequest stores provider credentials. Either password or api key is required.
type SaveCredentialsRequest struct {
	Username string  `json:"username" validate:"required,max=128"`
	Password *string `json:"password,omitempty" validate:"required_without=APIKey,omitempty,max=256"`
	APIKey   *string `json:"api_key,omitempty" validate:"required_without=Password,omitempty,max=256"`
	SenderID *string `json:"sender_id,omitempty" validate:"omitempty,max=11"`
}

// CredentialStatusResponse never carries secrets
type CredentialStatusResponse struct {
	Configured  bool    `json:"configured"`
	Capability  string  `json:"capability"`
	Username    string  `json:"username,omitempty"`
	HasPassword bool    `json:"has_password"`
	HasAPIKey   bool    `json:"has_api_key"`
	SenderID    *string `json:"sender_id,omitempty"`
}

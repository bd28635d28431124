package businessflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/amirphl/mspace-dashboard/app/services"
	"github.com/amirphl/mspace-dashboard/models"
	"github.com/amirphl/mspace-dashboard/repository"
	"github.com/amirphl/mspace-dashboard/utils"
)

// Capability names the provider account a role operates on
type Capability string

const (
	CapabilityPlatformAccount Capability = "platform_account"
	CapabilityTenantAccount   Capability = "tenant_account"
)

var roleCapabilities = map[string]Capability{
	RoleAdmin: CapabilityPlatformAccount,
	RoleUser:  CapabilityTenantAccount,
}

// CapabilityFor resolves the capability of a role
func CapabilityFor(role string) (Capability, error) {
	capability, ok := roleCapabilities[role]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedRole, role)
	}
	return capability, nil
}

// CredentialOwner identifies whose stored credential an actor uses.
// Every admin shares the platform account; each tenant owns its own row.
func CredentialOwner(actor Actor) (string, error) {
	capability, err := CapabilityFor(actor.Role)
	if err != nil {
		return "", err
	}
	if capability == CapabilityPlatformAccount {
		return string(capability), nil
	}
	return string(capability) + ":" + actor.UserID.String(), nil
}

// ProviderAccount is a decrypted provider credential
type ProviderAccount struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	SenderID string `json:"sender_id,omitempty"`
}

// Credentials converts the account to the client's credential type
func (a *ProviderAccount) Credentials() services.MspaceCredentials {
	return services.MspaceCredentials{Username: a.Username, Password: a.Password, APIKey: a.APIKey}
}

// CredentialStrategy loads and stores the account behind one capability
type CredentialStrategy interface {
	Load(ctx context.Context, actor Actor) (*ProviderAccount, error)
	Save(ctx context.Context, actor Actor, account ProviderAccount) error
}

// CredentialStore dispatches credential access by the actor's capability
type CredentialStore interface {
	Load(ctx context.Context, actor Actor) (*ProviderAccount, error)
	Save(ctx context.Context, actor Actor, account ProviderAccount) error
}

// CredentialStoreImpl implements CredentialStore with one strategy per capability
type CredentialStoreImpl struct {
	strategies map[Capability]CredentialStrategy
}

// NewCredentialStore registers the platform and tenant strategies
func NewCredentialStore(credRepo repository.ProviderCredentialRepository, settingRepo repository.PlatformSettingRepository, cipher services.CredentialCipher) *CredentialStoreImpl {
	store := &CredentialStoreImpl{strategies: make(map[Capability]CredentialStrategy)}
	store.Register(CapabilityPlatformAccount, &platformCredentialStrategy{settingRepo: settingRepo, cipher: cipher})
	store.Register(CapabilityTenantAccount, &tenantCredentialStrategy{credRepo: credRepo, cipher: cipher})
	return store
}

// Register installs or replaces the strategy of a capability
func (s *CredentialStoreImpl) Register(capability Capability, strategy CredentialStrategy) {
	s.strategies[capability] = strategy
}

func (s *CredentialStoreImpl) strategy(actor Actor) (CredentialStrategy, error) {
	capability, err := CapabilityFor(actor.Role)
	if err != nil {
		return nil, err
	}
	strategy, ok := s.strategies[capability]
	if !ok {
		return nil, fmt.Errorf("%w: no credential strategy for %s", ErrUnsupportedRole, capability)
	}
	return strategy, nil
}

func (s *CredentialStoreImpl) Load(ctx context.Context, actor Actor) (*ProviderAccount, error) {
	strategy, err := s.strategy(actor)
	if err != nil {
		return nil, err
	}
	return strategy.Load(ctx, actor)
}

func (s *CredentialStoreImpl) Save(ctx context.Context, actor Actor, account ProviderAccount) error {
	strategy, err := s.strategy(actor)
	if err != nil {
		return err
	}
	return strategy.Save(ctx, actor, account)
}

// platformCredentialStrategy keeps one sealed JSON account in platform settings
type platformCredentialStrategy struct {
	settingRepo repository.PlatformSettingRepository
	cipher      services.CredentialCipher
}

func (p *platformCredentialStrategy) Load(ctx context.Context, actor Actor) (*ProviderAccount, error) {
	setting, err := p.settingRepo.ByKey(ctx, models.PlatformSettingKeyMspaceCredentials)
	if err != nil {
		return nil, err
	}
	if setting == nil || len(setting.Value) == 0 {
		return nil, ErrCredentialsNotConfigured
	}

	plain, err := p.cipher.Open(setting.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialsCorrupt, err)
	}
	var account ProviderAccount
	if err := json.Unmarshal(plain, &account); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialsCorrupt, err)
	}
	return &account, nil
}

func (p *platformCredentialStrategy) Save(ctx context.Context, actor Actor, account ProviderAccount) error {
	plain, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to encode platform credentials: %w", err)
	}
	sealed, err := p.cipher.Seal(plain)
	if err != nil {
		return err
	}
	return p.settingRepo.Upsert(ctx, &models.PlatformSetting{
		Key:       models.PlatformSettingKeyMspaceCredentials,
		Value:     sealed,
		UpdatedBy: utils.ToPtr(actor.UserID.String()),
		CreatedAt: utils.UTCNow(),
	})
}

// tenantCredentialStrategy keeps one row per user with sealed secrets
type tenantCredentialStrategy struct {
	credRepo repository.ProviderCredentialRepository
	cipher   services.CredentialCipher
}

func (t *tenantCredentialStrategy) Load(ctx context.Context, actor Actor) (*ProviderAccount, error) {
	row, err := t.credRepo.ByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrCredentialsNotConfigured
	}

	account := &ProviderAccount{Username: row.Username, SenderID: utils.Deref(row.SenderID)}
	if len(row.PasswordEncrypted) > 0 {
		plain, err := t.cipher.Open(row.PasswordEncrypted)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCredentialsCorrupt, err)
		}
		account.Password = string(plain)
	}
	if len(row.APIKeyEncrypted) > 0 {
		plain, err := t.cipher.Open(row.APIKeyEncrypted)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCredentialsCorrupt, err)
		}
		account.APIKey = string(plain)
	}
	return account, nil
}

func (t *tenantCredentialStrategy) Save(ctx context.Context, actor Actor, account ProviderAccount) error {
	row := &models.ProviderCredential{
		UserID:    actor.UserID,
		Username:  account.Username,
		CreatedAt: utils.UTCNow(),
	}
	if account.SenderID != "" {
		row.SenderID = utils.ToPtr(account.SenderID)
	}
	if account.Password != "" {
		sealed, err := t.cipher.Seal([]byte(account.Password))
		if err != nil {
			return err
		}
		row.PasswordEncrypted = sealed
	}
	if account.APIKey != "" {
		sealed, err := t.cipher.Seal([]byte(account.APIKey))
		if err != nil {
			return err
		}
		row.APIKeyEncrypted = sealed
	}
	return t.credRepo.Upsert(ctx, row)
}

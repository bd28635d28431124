package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/amirphl/mspace-dashboard/app/dto"
	"github.com/amirphl/mspace-dashboard/app/services"
	"github.com/amirphl/mspace-dashboard/config"
	"github.com/amirphl/mspace-dashboard/models"
	"github.com/amirphl/mspace-dashboard/repository"
	"github.com/amirphl/mspace-dashboard/utils"
)

// ProviderFlow is the operation surface over the SMS provider.
// Provider failures come back as error results; Go errors mean credentials or storage failed.
type ProviderFlow interface {
	SendSMS(ctx context.Context, actor Actor, req *dto.SendSMSRequest, metadata *ClientMetadata) (*dto.ProviderResult, error)
	CheckBalance(ctx context.Context, actor Actor, refresh bool) (*dto.ProviderResult, error)
	ListSubUsers(ctx context.Context, actor Actor) (*dto.ProviderResult, error)
	ListResellerClients(ctx context.Context, actor Actor) (*dto.ProviderResult, error)
	TopUpReseller(ctx context.Context, actor Actor, req *dto.TopUpResellerRequest, metadata *ClientMetadata) (*dto.ProviderResult, error)
	TopUpSub(ctx context.Context, actor Actor, req *dto.TopUpSubAccountRequest, metadata *ClientMetadata) (*dto.ProviderResult, error)
	TestCredentials(ctx context.Context, actor Actor) (*dto.ProviderResult, error)
	SaveCredentials(ctx context.Context, actor Actor, req *dto.SaveCredentialsRequest, metadata *ClientMetadata) (*dto.CredentialStatusResponse, error)
	CredentialStatus(ctx context.Context, actor Actor) (*dto.CredentialStatusResponse, error)
}

// ProviderFlowImpl implements ProviderFlow
type ProviderFlowImpl struct {
	credentials CredentialStore
	provider    services.MspaceClient
	ledger      LedgerFlow
	historyRepo repository.MessageHistoryRepository
	auditRepo   repository.AuditLogRepository
	cache       services.BalanceCache
	throttle    *services.SendThrottle
	cfg         config.MspaceConfig
}

// NewProviderFlow creates a new provider flow
func NewProviderFlow(
	credentials CredentialStore,
	provider services.MspaceClient,
	ledger LedgerFlow,
	historyRepo repository.MessageHistoryRepository,
	auditRepo repository.AuditLogRepository,
	cache services.BalanceCache,
	throttle *services.SendThrottle,
	cfg config.MspaceConfig,
) *ProviderFlowImpl {
	if cache == nil {
		cache = services.NoopBalanceCache{}
	}
	return &ProviderFlowImpl{
		credentials: credentials,
		provider:    provider,
		ledger:      ledger,
		historyRepo: historyRepo,
		auditRepo:   auditRepo,
		cache:       cache,
		throttle:    throttle,
		cfg:         cfg,
	}
}

func providerSuccess(data any) *dto.ProviderResult {
	return &dto.ProviderResult{Status: dto.ProviderStatusSuccess, Data: data}
}

// providerFailure converts a client error to an error result
func providerFailure(err error) *dto.ProviderResult {
	if perr, ok := services.AsProviderError(err); ok {
		return &dto.ProviderResult{Status: dto.ProviderStatusError, Error: perr.Message, ErrorKind: string(perr.Kind)}
	}
	return &dto.ProviderResult{Status: dto.ProviderStatusError, Error: err.Error(), ErrorKind: string(services.ErrorKindUnknown)}
}

func credentialBusinessError(err error) error {
	switch {
	case IsUnsupportedRole(err):
		return NewBusinessError("UNSUPPORTED_ROLE", "Role cannot use the provider", err)
	case IsCredentialsNotConfigured(err):
		return NewBusinessError("CREDENTIALS_NOT_CONFIGURED", "Provider credentials are not configured", err)
	default:
		return NewBusinessError("CREDENTIALS_LOOKUP_FAILED", "Failed to load provider credentials", err)
	}
}

// queryProviderBalance prefers the api key endpoint when a key is stored
func queryProviderBalance(ctx context.Context, client services.MspaceClient, account *ProviderAccount) (int64, string, error) {
	if account.APIKey != "" {
		balance, err := client.QueryBalanceV2(ctx, account.Credentials())
		return balance, "v2", err
	}
	balance, err := client.QueryBalance(ctx, account.Credentials())
	return balance, "v1", err
}

func (p *ProviderFlowImpl) senderFor(account *ProviderAccount, requested *string) string {
	if requested != nil && *requested != "" {
		return *requested
	}
	if account.SenderID != "" {
		return account.SenderID
	}
	return p.cfg.DefaultSenderID
}

func (p *ProviderFlowImpl) SendSMS(ctx context.Context, actor Actor, req *dto.SendSMSRequest, metadata *ClientMetadata) (*dto.ProviderResult, error) {
	account, err := p.credentials.Load(ctx, actor)
	if err != nil {
		return nil, credentialBusinessError(err)
	}

	phone, err := utils.NormalizePhone(req.Recipient, p.cfg.DefaultRegion)
	if err != nil {
		return nil, NewBusinessError("INVALID_PHONE", "Invalid recipient phone number", fmt.Errorf("%w: %v", ErrInvalidPhone, err))
	}

	if p.throttle != nil {
		if err := p.throttle.Wait(ctx, account.Username); err != nil {
			return providerFailure(&services.ProviderError{Kind: services.ErrorKindTransport, Message: "send cancelled", Err: err}), nil
		}
	}

	senderID := p.senderFor(account, req.SenderID)
	segments := utils.SMSSegments(req.Message)
	cost := int64(segments) * p.cfg.CostPerSegment

	result, sendErr := p.provider.SendText(ctx, account.Credentials(), senderID, phone, req.Message)

	history := &models.MessageHistory{
		UserID:    actor.UserID,
		Recipient: phone,
		Message:   req.Message,
		SenderID:  senderID,
		Segments:  segments,
		CreatedAt: utils.UTCNow(),
	}
	if sendErr != nil {
		history.Status = models.MessageStatusFailed
		fillHistoryError(history, sendErr)
	} else {
		history.Status = models.MessageStatusSent
		if result.Delivered {
			history.Status = models.MessageStatusDelivered
		}
		history.Cost = cost
		history.ProviderMessageID = utils.ToPtr(result.MessageID)
	}
	if err := p.historyRepo.Save(ctx, history); err != nil {
		log.Printf("failed to record message history for %s: %v", actor.UserID, err)
	}

	if sendErr != nil {
		return providerFailure(sendErr), nil
	}

	if cost > 0 {
		_, err := p.ledger.Apply(ctx, LedgerEntry{
			UserID:      actor.UserID,
			Type:        models.CreditTransactionTypeSMSSend,
			Amount:      -cost,
			Reference:   utils.ToPtr(result.MessageID),
			Description: fmt.Sprintf("SMS to %s", phone),
		})
		if err != nil {
			log.Printf("failed to debit ledger for message %s: %v", result.MessageID, err)
		}
	}
	p.invalidateBalance(ctx, actor)

	return providerSuccess(dto.SendSMSData{
		MessageID: result.MessageID,
		Recipient: phone,
		Status:    result.Status,
		Delivered: result.Delivered,
		Segments:  segments,
		Cost:      cost,
	}), nil
}

func (p *ProviderFlowImpl) invalidateBalance(ctx context.Context, actor Actor) {
	owner, err := CredentialOwner(actor)
	if err != nil {
		return
	}
	if err := p.cache.Invalidate(ctx, owner); err != nil {
		log.Printf("balance cache invalidation failed: %v", err)
	}
}

func fillHistoryError(history *models.MessageHistory, err error) {
	kind := string(services.ErrorKindUnknown)
	msg := err.Error()
	if perr, ok := services.AsProviderError(err); ok {
		kind = string(perr.Kind)
		msg = perr.Message
	}
	history.ErrorKind = &kind
	history.ErrorMessage = &msg
}

func (p *ProviderFlowImpl) CheckBalance(ctx context.Context, actor Actor, refresh bool) (*dto.ProviderResult, error) {
	account, err := p.credentials.Load(ctx, actor)
	if err != nil {
		return nil, credentialBusinessError(err)
	}

	owner, err := CredentialOwner(actor)
	if err != nil {
		return nil, credentialBusinessError(err)
	}

	if !refresh {
		cached, hit, err := p.cache.Get(ctx, owner)
		if err != nil {
			log.Printf("balance cache read failed: %v", err)
		}
		if hit {
			return providerSuccess(dto.BalanceData{Balance: cached, Source: "cache", Cached: true}), nil
		}
	}

	balance, source, err := queryProviderBalance(ctx, p.provider, account)
	if err != nil {
		return providerFailure(err), nil
	}
	if err := p.cache.Set(ctx, owner, balance); err != nil {
		log.Printf("balance cache write failed: %v", err)
	}

	return providerSuccess(dto.BalanceData{Balance: balance, Source: source}), nil
}

func (p *ProviderFlowImpl) ListSubUsers(ctx context.Context, actor Actor) (*dto.ProviderResult, error) {
	account, err := p.credentials.Load(ctx, actor)
	if err != nil {
		return nil, credentialBusinessError(err)
	}
	users, err := p.provider.QuerySubUsers(ctx, account.Credentials())
	if err != nil {
		return providerFailure(err), nil
	}
	return providerSuccess(toAccountBalanceItems(users)), nil
}

func (p *ProviderFlowImpl) ListResellerClients(ctx context.Context, actor Actor) (*dto.ProviderResult, error) {
	account, err := p.credentials.Load(ctx, actor)
	if err != nil {
		return nil, credentialBusinessError(err)
	}
	clients, err := p.provider.QueryResellerClients(ctx, account.Credentials())
	if err != nil {
		return providerFailure(err), nil
	}
	return providerSuccess(toAccountBalanceItems(clients)), nil
}

func toAccountBalanceItems(in []services.AccountBalance) []dto.AccountBalanceItem {
	out := make([]dto.AccountBalanceItem, 0, len(in))
	for _, b := range in {
		out = append(out, dto.AccountBalanceItem{Name: b.Name, Balance: b.Balance})
	}
	return out
}

func (p *ProviderFlowImpl) TopUpReseller(ctx context.Context, actor Actor, req *dto.TopUpResellerRequest, metadata *ClientMetadata) (*dto.ProviderResult, error) {
	return p.topUp(ctx, actor, models.CreditTransactionTypeResellerTopUp, req.ClientName, req.NoOfSMS, metadata,
		func(cred services.MspaceCredentials) (string, error) {
			return p.provider.TopUpResellerClient(ctx, cred, req.ClientName, req.NoOfSMS)
		})
}

func (p *ProviderFlowImpl) TopUpSub(ctx context.Context, actor Actor, req *dto.TopUpSubAccountRequest, metadata *ClientMetadata) (*dto.ProviderResult, error) {
	return p.topUp(ctx, actor, models.CreditTransactionTypeSubAccountTopUp, req.SubAccName, req.NoOfSMS, metadata,
		func(cred services.MspaceCredentials) (string, error) {
			return p.provider.TopUpSubAccount(ctx, cred, req.SubAccName, req.NoOfSMS)
		})
}

func (p *ProviderFlowImpl) topUp(ctx context.Context, actor Actor, txType models.CreditTransactionType, target string, noOfSMS int, metadata *ClientMetadata, call func(services.MspaceCredentials) (string, error)) (*dto.ProviderResult, error) {
	account, err := p.credentials.Load(ctx, actor)
	if err != nil {
		return nil, credentialBusinessError(err)
	}

	auditData := map[string]any{"target": target, "noofsms": noOfSMS, "type": string(txType)}
	confirmation, err := call(account.Credentials())
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, p.auditRepo, &actor.UserID, models.AuditActionTopUp, fmt.Sprintf("Top up of %d SMS to %s failed", noOfSMS, target), false, &errMsg, metadata, auditData)
		return providerFailure(err), nil
	}

	_, err = p.ledger.Apply(ctx, LedgerEntry{
		UserID:      actor.UserID,
		Type:        txType,
		Amount:      -int64(noOfSMS),
		Reference:   utils.ToPtr(target),
		Description: fmt.Sprintf("Top up of %d SMS to %s", noOfSMS, target),
		Metadata:    map[string]any{"confirmation": confirmation},
	})
	if err != nil {
		// the provider already moved the credits; the drift shows up in Reconcile
		log.Printf("failed to record top up for %s: %v", target, err)
		auditData["ledger_error"] = err.Error()
	}
	p.invalidateBalance(ctx, actor)

	_ = createAuditLog(ctx, p.auditRepo, &actor.UserID, models.AuditActionTopUp, fmt.Sprintf("Top up of %d SMS to %s", noOfSMS, target), true, nil, metadata, auditData)

	return providerSuccess(dto.TopUpData{Target: target, NoOfSMS: noOfSMS, Confirmation: confirmation}), nil
}

func (p *ProviderFlowImpl) TestCredentials(ctx context.Context, actor Actor) (*dto.ProviderResult, error) {
	account, err := p.credentials.Load(ctx, actor)
	if err != nil {
		return nil, credentialBusinessError(err)
	}
	if err := p.provider.Login(ctx, account.Credentials()); err != nil {
		return providerFailure(err), nil
	}
	return providerSuccess(map[string]bool{"valid": true}), nil
}

func (p *ProviderFlowImpl) SaveCredentials(ctx context.Context, actor Actor, req *dto.SaveCredentialsRequest, metadata *ClientMetadata) (*dto.CredentialStatusResponse, error) {
	capability, err := CapabilityFor(actor.Role)
	if err != nil {
		return nil, credentialBusinessError(err)
	}

	account := ProviderAccount{
		Username: req.Username,
		Password: utils.Deref(req.Password),
		APIKey:   utils.Deref(req.APIKey),
		SenderID: utils.Deref(req.SenderID),
	}
	if err := p.credentials.Save(ctx, actor, account); err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, p.auditRepo, &actor.UserID, models.AuditActionCredentialsUpdated, "Provider credentials update failed", false, &errMsg, metadata, nil)
		return nil, NewBusinessError("CREDENTIALS_SAVE_FAILED", "Failed to save provider credentials", err)
	}
	p.invalidateBalance(ctx, actor)

	_ = createAuditLog(ctx, p.auditRepo, &actor.UserID, models.AuditActionCredentialsUpdated, "Provider credentials updated", true, nil, metadata,
		map[string]any{"capability": string(capability), "username": account.Username})

	return credentialStatus(capability, &account), nil
}

func (p *ProviderFlowImpl) CredentialStatus(ctx context.Context, actor Actor) (*dto.CredentialStatusResponse, error) {
	capability, err := CapabilityFor(actor.Role)
	if err != nil {
		return nil, credentialBusinessError(err)
	}

	account, err := p.credentials.Load(ctx, actor)
	if errors.Is(err, ErrCredentialsNotConfigured) {
		return &dto.CredentialStatusResponse{Configured: false, Capability: string(capability)}, nil
	}
	if err != nil {
		return nil, credentialBusinessError(err)
	}
	return credentialStatus(capability, account), nil
}

func credentialStatus(capability Capability, account *ProviderAccount) *dto.CredentialStatusResponse {
	resp := &dto.CredentialStatusResponse{
		Configured:  true,
		Capability:  string(capability),
		Username:    account.Username,
		HasPassword: account.Password != "",
		HasAPIKey:   account.APIKey != "",
	}
	if account.SenderID != "" {
		resp.SenderID = utils.ToPtr(account.SenderID)
	}
	return resp
}

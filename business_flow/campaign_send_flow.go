package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/amirphl/mspace-dashboard/app/services"
	"github.com/amirphl/mspace-dashboard/config"
	"github.com/amirphl/mspace-dashboard/models"
	"github.com/amirphl/mspace-dashboard/repository"
	"github.com/amirphl/mspace-dashboard/utils"
	"github.com/lib/pq"
)

// Delivery error kinds recorded when no provider call was made
const (
	deliveryErrorMissingPhone = "missing_phone"
	deliveryErrorInvalidPhone = "invalid_phone"
)

// Recipient outcomes reported to metrics
const (
	recipientOutcomeSent    = "sent"
	recipientOutcomeFailed  = "failed"
	recipientOutcomeNoPhone = "no_phone"
	recipientOutcomeSkipped = "skipped"
)

// SendSummary is the outcome of one pipeline run
type SendSummary struct {
	Recipients int
	Sent       int
	Delivered  int
	Failed     int
	Skipped    int
	Status     models.CampaignStatus
}

// CampaignSender runs the campaign send pipeline
type CampaignSender interface {
	Send(ctx context.Context, campaignID uint) (*SendSummary, error)
	Resume(ctx context.Context, campaignID uint) (*SendSummary, error)
}

// CampaignSendFlowImpl implements CampaignSender
type CampaignSendFlowImpl struct {
	campaignRepo repository.CampaignRepository
	recordRepo   repository.RecordRepository
	deliveryRepo repository.CampaignDeliveryRepository
	historyRepo  repository.MessageHistoryRepository
	auditRepo    repository.AuditLogRepository
	transact     repository.Transactor
	resolver     RecipientResolver
	credentials  CredentialStore
	provider     services.MspaceClient
	ledger       LedgerFlow
	locker       services.CampaignLocker
	throttle     *services.SendThrottle
	events       services.EventPublisher
	cfg          config.MspaceConfig
}

// NewCampaignSendFlow creates a new campaign send flow
func NewCampaignSendFlow(
	campaignRepo repository.CampaignRepository,
	recordRepo repository.RecordRepository,
	deliveryRepo repository.CampaignDeliveryRepository,
	historyRepo repository.MessageHistoryRepository,
	auditRepo repository.AuditLogRepository,
	transact repository.Transactor,
	resolver RecipientResolver,
	credentials CredentialStore,
	provider services.MspaceClient,
	ledger LedgerFlow,
	locker services.CampaignLocker,
	throttle *services.SendThrottle,
	events services.EventPublisher,
	cfg config.MspaceConfig,
) *CampaignSendFlowImpl {
	if locker == nil {
		locker = services.NewLocalCampaignLocker()
	}
	if events == nil {
		events = services.NoopEventPublisher{}
	}
	if throttle == nil {
		throttle = services.NewSendThrottle(cfg.RequestsPerSecond, cfg.Burst)
	}
	return &CampaignSendFlowImpl{
		campaignRepo: campaignRepo,
		recordRepo:   recordRepo,
		deliveryRepo: deliveryRepo,
		historyRepo:  historyRepo,
		auditRepo:    auditRepo,
		transact:     transact,
		resolver:     resolver,
		credentials:  credentials,
		provider:     provider,
		ledger:       ledger,
		locker:       locker,
		throttle:     throttle,
		events:       events,
		cfg:          cfg,
	}
}

// sendRun carries the state of one pipeline run
type sendRun struct {
	campaign   *models.Campaign
	actor      Actor
	account    *ProviderAccount
	senderID   string
	segments   int
	cost       int64
	recipients []Recipient
	processed  map[uint]struct{}
}

// Send resolves the audience, freezes it on the campaign and sends to every recipient.
// Only draft and scheduled campaigns are accepted.
func (s *CampaignSendFlowImpl) Send(ctx context.Context, campaignID uint) (*SendSummary, error) {
	campaign, err := s.loadCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.Status.Sendable() {
		return nil, NewBusinessErrorf("INVALID_CAMPAIGN_STATE", "Campaign in status %s cannot be sent", ErrCampaignNotSendable, campaign.Status)
	}

	release, err := s.acquire(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	run, err := s.prepare(ctx, campaign)
	if err != nil {
		return nil, err
	}

	if campaign.DataModelID == nil {
		return nil, NewBusinessError("DATA_MODEL_NOT_FOUND", "Campaign has no data model", ErrDataModelNotFound)
	}
	recipients, err := s.resolver.Resolve(ctx, *campaign.DataModelID, campaign.Criteria)
	if err != nil {
		if IsInvalidCriteria(err) {
			return nil, NewBusinessError("INVALID_CRITERIA", "Campaign criteria are invalid", err)
		}
		return nil, NewBusinessError("RECIPIENT_RESOLUTION_FAILED", "Failed to resolve campaign recipients", err)
	}

	snapshot := make(pq.Int64Array, 0, len(recipients))
	for _, r := range recipients {
		snapshot = append(snapshot, int64(r.RecordID))
	}

	now := utils.UTCNow()
	changed, err := s.campaignRepo.TransitionStatus(ctx, campaign.ID,
		[]models.CampaignStatus{models.CampaignStatusDraft, models.CampaignStatusScheduled},
		models.CampaignStatusSending,
		map[string]any{
			"recipient_count":    len(recipients),
			"recipient_snapshot": snapshot,
			"started_at":         now,
		})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Failed to start campaign", err)
	}
	if !changed {
		return nil, NewBusinessError("INVALID_CAMPAIGN_STATE", "Campaign cannot be sent", ErrCampaignNotSendable)
	}
	campaign.Status = models.CampaignStatusSending
	campaign.RecipientCount = len(recipients)
	campaign.StartedAt = &now

	_ = createAuditLog(ctx, s.auditRepo, &campaign.UserID, models.AuditActionCampaignSendStarted,
		fmt.Sprintf("Campaign %s started with %d recipients", campaign.UUID, len(recipients)), true, nil, nil,
		map[string]any{"campaign_uuid": campaign.UUID.String(), "recipients": len(recipients)})

	run.recipients = recipients
	run.processed = map[uint]struct{}{}
	return s.run(ctx, run)
}

// Resume continues a campaign left in sending from its frozen snapshot.
// Recipients that already have a delivery row are skipped.
func (s *CampaignSendFlowImpl) Resume(ctx context.Context, campaignID uint) (*SendSummary, error) {
	campaign, err := s.loadCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusSending {
		return nil, NewBusinessErrorf("INVALID_CAMPAIGN_STATE", "Campaign in status %s cannot be resumed", ErrCampaignNotResumable, campaign.Status)
	}

	release, err := s.acquire(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	run, err := s.prepare(ctx, campaign)
	if err != nil {
		return nil, err
	}

	recipients, err := s.snapshotRecipients(ctx, campaign)
	if err != nil {
		return nil, NewBusinessError("RECIPIENT_RESOLUTION_FAILED", "Failed to load campaign recipients", err)
	}
	processed, err := s.deliveryRepo.ProcessedRecordIDs(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("DELIVERY_LOOKUP_FAILED", "Failed to load campaign deliveries", err)
	}

	log.Printf("resuming campaign %s: %d recipients, %d already processed", campaign.UUID, len(recipients), len(processed))
	run.recipients = recipients
	run.processed = processed
	return s.run(ctx, run)
}

func (s *CampaignSendFlowImpl) loadCampaign(ctx context.Context, campaignID uint) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to load campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	return campaign, nil
}

func (s *CampaignSendFlowImpl) acquire(ctx context.Context, campaignID uint) (func(), error) {
	release, err := s.locker.Acquire(ctx, campaignID, utils.CampaignLockTTL)
	if errors.Is(err, services.ErrLockHeld) {
		return nil, NewBusinessError("CAMPAIGN_BUSY", "Campaign is already being sent", ErrCampaignBusy)
	}
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOCK_FAILED", "Failed to lock campaign", err)
	}
	return release, nil
}

// prepare loads the owner's provider account and the per-message pricing
func (s *CampaignSendFlowImpl) prepare(ctx context.Context, campaign *models.Campaign) (*sendRun, error) {
	actor := Actor{UserID: campaign.UserID, Role: campaign.OwnerRole}
	account, err := s.credentials.Load(ctx, actor)
	if err != nil {
		return nil, credentialBusinessError(err)
	}

	senderID := campaign.SenderID
	if senderID == "" {
		senderID = account.SenderID
	}
	if senderID == "" {
		senderID = s.cfg.DefaultSenderID
	}

	segments := utils.SMSSegments(campaign.Message)
	return &sendRun{
		campaign: campaign,
		actor:    actor,
		account:  account,
		senderID: senderID,
		segments: segments,
		cost:     int64(segments) * s.cfg.CostPerSegment,
	}, nil
}

// snapshotRecipients rebuilds the frozen recipient list in snapshot order.
// A record deleted since the snapshot comes back with no data and fails on phone extraction.
func (s *CampaignSendFlowImpl) snapshotRecipients(ctx context.Context, campaign *models.Campaign) ([]Recipient, error) {
	ids := make([]uint, 0, len(campaign.RecipientSnapshot))
	for _, id := range campaign.RecipientSnapshot {
		ids = append(ids, uint(id))
	}

	records, err := s.recordRepo.ByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	recipients := make([]Recipient, 0, len(ids))
	for _, id := range ids {
		data := map[string]any{}
		if r, ok := byID[id]; ok {
			data = r.Fields()
		}
		recipients = append(recipients, Recipient{RecordID: id, Data: data})
	}
	return recipients, nil
}

func (s *CampaignSendFlowImpl) run(ctx context.Context, run *sendRun) (*SendSummary, error) {
	campaign := run.campaign
	summary := &SendSummary{Recipients: len(run.recipients), Status: models.CampaignStatusSending}
	consecutiveTransport := 0

	for _, recipient := range run.recipients {
		if _, done := run.processed[recipient.RecordID]; done {
			summary.Skipped++
			services.ObserveCampaignRecipient(recipientOutcomeSkipped)
			continue
		}
		if err := ctx.Err(); err != nil {
			log.Printf("campaign %s interrupted, left in sending: %v", campaign.UUID, err)
			return s.finishSummary(ctx, campaign, summary), err
		}

		delivery, history, sendErr := s.sendOne(ctx, run, recipient)
		if delivery == nil {
			log.Printf("campaign %s interrupted, left in sending: %v", campaign.UUID, sendErr)
			return s.finishSummary(ctx, campaign, summary), sendErr
		}

		if err := s.persistOutcome(context.WithoutCancel(ctx), run, delivery, history); err != nil {
			log.Printf("failed to record outcome of record %d in campaign %s: %v", recipient.RecordID, campaign.UUID, err)
			return s.finishSummary(ctx, campaign, summary), NewBusinessError("DELIVERY_RECORD_FAILED", "Failed to record campaign delivery", err)
		}

		if services.IsTransportError(sendErr) {
			consecutiveTransport++
		} else {
			consecutiveTransport = 0
		}

		limit := s.cfg.AbortAfterTransportFails
		if limit > 0 && consecutiveTransport >= limit {
			reason := fmt.Sprintf("aborted after %d consecutive transport failures: %v", consecutiveTransport, sendErr)
			s.fail(context.WithoutCancel(ctx), campaign, reason)
			summary = s.finishSummary(ctx, campaign, summary)
			summary.Status = models.CampaignStatusFailed
			return summary, nil
		}
	}

	return s.complete(context.WithoutCancel(ctx), campaign, summary), nil
}

// sendOne produces the delivery row for one recipient and, when the provider was called, its history row.
// A nil delivery means the throttle gave up and nothing was attempted.
func (s *CampaignSendFlowImpl) sendOne(ctx context.Context, run *sendRun, recipient Recipient) (*models.CampaignDelivery, *models.MessageHistory, error) {
	now := utils.UTCNow()
	delivery := &models.CampaignDelivery{
		CampaignID: run.campaign.ID,
		RecordID:   recipient.RecordID,
		CreatedAt:  now,
	}

	phone, err := RecipientPhone(recipient.Data, s.cfg.DefaultRegion)
	if err != nil {
		kind := deliveryErrorInvalidPhone
		if IsRecipientPhoneMissing(err) {
			kind = deliveryErrorMissingPhone
		}
		msg := err.Error()
		delivery.Status = models.DeliveryStatusFailed
		delivery.ErrorKind = &kind
		delivery.ErrorMessage = &msg
		services.ObserveCampaignRecipient(recipientOutcomeNoPhone)
		return delivery, nil, nil
	}
	delivery.Phone = &phone

	if err := s.throttle.Wait(ctx, run.account.Username); err != nil {
		return nil, nil, err
	}

	campaignID := run.campaign.ID
	history := &models.MessageHistory{
		UserID:     run.campaign.UserID,
		CampaignID: &campaignID,
		Recipient:  phone,
		Message:    run.campaign.Message,
		SenderID:   run.senderID,
		Segments:   run.segments,
		CreatedAt:  now,
	}

	result, sendErr := s.provider.SendText(ctx, run.account.Credentials(), run.senderID, phone, run.campaign.Message)
	if sendErr != nil {
		delivery.Status = models.DeliveryStatusFailed
		history.Status = models.MessageStatusFailed
		fillHistoryError(history, sendErr)
		delivery.ErrorKind = history.ErrorKind
		delivery.ErrorMessage = history.ErrorMessage
		services.ObserveCampaignRecipient(recipientOutcomeFailed)
		return delivery, history, sendErr
	}

	delivery.Status = models.DeliveryStatusSent
	delivery.Delivered = result.Delivered
	delivery.ProviderMessageID = utils.ToPtr(result.MessageID)
	history.Status = models.MessageStatusSent
	if result.Delivered {
		history.Status = models.MessageStatusDelivered
	}
	history.Cost = run.cost
	history.ProviderMessageID = delivery.ProviderMessageID
	services.ObserveCampaignRecipient(recipientOutcomeSent)
	return delivery, history, nil
}

// persistOutcome writes the delivery row, the history row, the counters and the debit together
func (s *CampaignSendFlowImpl) persistOutcome(ctx context.Context, run *sendRun, delivery *models.CampaignDelivery, history *models.MessageHistory) error {
	return s.transact(ctx, func(txCtx context.Context) error {
		if err := s.deliveryRepo.Save(txCtx, delivery); err != nil {
			return err
		}
		if history != nil {
			if err := s.historyRepo.Save(txCtx, history); err != nil {
				return err
			}
		}
		if err := s.campaignRepo.IncrementCounters(txCtx, run.campaign.ID, delivery.CounterDelta()); err != nil {
			return err
		}
		if delivery.Status != models.DeliveryStatusSent || run.cost <= 0 {
			return nil
		}

		campaignID := run.campaign.ID
		_, err := s.ledger.Apply(txCtx, LedgerEntry{
			UserID:      run.campaign.UserID,
			Type:        models.CreditTransactionTypeSMSSend,
			Amount:      -run.cost,
			CampaignID:  &campaignID,
			Reference:   delivery.ProviderMessageID,
			Description: fmt.Sprintf("Campaign %s to %s", run.campaign.UUID, utils.Deref(delivery.Phone)),
		})
		return err
	})
}

func (s *CampaignSendFlowImpl) complete(ctx context.Context, campaign *models.Campaign, summary *SendSummary) *SendSummary {
	now := utils.UTCNow()
	changed, err := s.campaignRepo.TransitionStatus(ctx, campaign.ID,
		[]models.CampaignStatus{models.CampaignStatusSending},
		models.CampaignStatusCompleted,
		map[string]any{"completed_at": now})
	if err != nil {
		log.Printf("failed to complete campaign %s: %v", campaign.UUID, err)
		return s.finishSummary(ctx, campaign, summary)
	}
	if !changed {
		log.Printf("campaign %s left sending before completion", campaign.UUID)
		return s.finishSummary(ctx, campaign, summary)
	}

	summary = s.finishSummary(ctx, campaign, summary)
	summary.Status = models.CampaignStatusCompleted

	_ = createAuditLog(ctx, s.auditRepo, &campaign.UserID, models.AuditActionCampaignCompleted,
		fmt.Sprintf("Campaign %s completed: %d sent, %d failed", campaign.UUID, summary.Sent, summary.Failed), true, nil, nil,
		map[string]any{"campaign_uuid": campaign.UUID.String(), "sent": summary.Sent, "failed": summary.Failed})
	s.publish(ctx, services.EventCampaignCompleted, campaign, summary, "")
	return summary
}

func (s *CampaignSendFlowImpl) fail(ctx context.Context, campaign *models.Campaign, reason string) {
	changed, err := s.campaignRepo.TransitionStatus(ctx, campaign.ID,
		[]models.CampaignStatus{models.CampaignStatusSending},
		models.CampaignStatusFailed,
		map[string]any{"completed_at": utils.UTCNow(), "failure_reason": reason})
	if err != nil {
		log.Printf("failed to mark campaign %s as failed: %v", campaign.UUID, err)
		return
	}
	if !changed {
		return
	}

	log.Printf("campaign %s failed: %s", campaign.UUID, reason)
	_ = createAuditLog(ctx, s.auditRepo, &campaign.UserID, models.AuditActionCampaignFailed,
		fmt.Sprintf("Campaign %s failed", campaign.UUID), false, &reason, nil,
		map[string]any{"campaign_uuid": campaign.UUID.String()})

	summary := s.finishSummary(ctx, campaign, &SendSummary{Status: models.CampaignStatusFailed})
	s.publish(ctx, services.EventCampaignFailed, campaign, summary, reason)
}

// finishSummary fills the totals from the stored counters so resumed runs report the whole campaign
func (s *CampaignSendFlowImpl) finishSummary(ctx context.Context, campaign *models.Campaign, summary *SendSummary) *SendSummary {
	current, err := s.campaignRepo.ByID(context.WithoutCancel(ctx), campaign.ID)
	if err != nil || current == nil {
		log.Printf("failed to reload campaign %s counters: %v", campaign.UUID, err)
		return summary
	}
	summary.Recipients = current.RecipientCount
	summary.Sent = current.SentCount
	summary.Delivered = current.DeliveredCount
	summary.Failed = current.FailedCount
	summary.Status = current.Status
	return summary
}

func (s *CampaignSendFlowImpl) publish(ctx context.Context, eventType string, campaign *models.Campaign, summary *SendSummary, reason string) {
	event := services.CampaignEvent{
		Type:         eventType,
		CampaignUUID: campaign.UUID,
		UserID:       campaign.UserID,
		Status:       string(summary.Status),
		Recipients:   summary.Recipients,
		Sent:         summary.Sent,
		Delivered:    summary.Delivered,
		Failed:       summary.Failed,
		Reason:       reason,
		OccurredAt:   utils.UTCNow(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		log.Printf("failed to publish %s for campaign %s: %v", eventType, campaign.UUID, err)
	}
}

package businessflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/mspace-dashboard/models"
	"github.com/amirphl/mspace-dashboard/repository"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// fakeRepo is an in-memory Repository[T, F]. Rows are copied in and out.
type fakeRepo[T any, F any] struct {
	mu      sync.Mutex
	rows    []*T
	nextID  uint
	idOf    func(*T) *uint
	match   func(*T, F) bool
	saveErr error
}

func newFakeRepo[T any, F any](idOf func(*T) *uint, match func(*T, F) bool) *fakeRepo[T, F] {
	return &fakeRepo[T, F]{idOf: idOf, match: match}
}

func (r *fakeRepo[T, F]) ByID(ctx context.Context, id uint) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if *r.idOf(row) == id {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo[T, F]) ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*T
	for _, row := range r.rows {
		if r.match == nil || r.match(row, filter) {
			cp := *row
			out = append(out, &cp)
		}
	}
	if offset > len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo[T, F]) Save(ctx context.Context, entity *T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked(entity)
}

func (r *fakeRepo[T, F]) saveLocked(entity *T) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	if hook, ok := any(entity).(interface{ BeforeCreate(*gorm.DB) error }); ok {
		if err := hook.BeforeCreate(nil); err != nil {
			return err
		}
	}
	r.nextID++
	*r.idOf(entity) = r.nextID
	cp := *entity
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *fakeRepo[T, F]) SaveBatch(ctx context.Context, entities []*T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entities {
		if err := r.saveLocked(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRepo[T, F]) Count(ctx context.Context, filter F) (int64, error) {
	rows, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeRepo[T, F]) Exists(ctx context.Context, filter F) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

// update runs fn on the stored row with the given id
func (r *fakeRepo[T, F]) update(id uint, fn func(*T)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if *r.idOf(row) == id {
			fn(row)
			return true
		}
	}
	return false
}

func (r *fakeRepo[T, F]) all() []*T {
	rows, _ := r.ByFilter(context.Background(), *new(F), "", 0, 0)
	return rows
}

// campaigns

type fakeCampaignRepo struct {
	*fakeRepo[models.Campaign, models.CampaignFilter]
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{newFakeRepo(
		func(c *models.Campaign) *uint { return &c.ID },
		func(c *models.Campaign, f models.CampaignFilter) bool {
			if f.UserID != nil && c.UserID != *f.UserID {
				return false
			}
			if f.Status != nil && c.Status != *f.Status {
				return false
			}
			if f.ScheduledBefore != nil && (c.ScheduledAt == nil || c.ScheduledAt.After(*f.ScheduledBefore)) {
				return false
			}
			if f.UpdatedBefore != nil && !c.UpdatedAt.Before(*f.UpdatedBefore) {
				return false
			}
			return true
		},
	)}
}

func (r *fakeCampaignRepo) ByUUID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	for _, c := range r.all() {
		if c.UUID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeCampaignRepo) Update(ctx context.Context, campaign *models.Campaign) (bool, error) {
	changed := false
	r.update(campaign.ID, func(c *models.Campaign) {
		if !c.Status.Editable() {
			return
		}
		changed = true
		c.Title = campaign.Title
		c.Message = campaign.Message
		c.SenderID = campaign.SenderID
		c.DataModelID = campaign.DataModelID
		c.Criteria = campaign.Criteria
		c.Status = campaign.Status
		c.ScheduledAt = campaign.ScheduledAt
	})
	return changed, nil
}

func (r *fakeCampaignRepo) Delete(ctx context.Context, id uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.rows {
		if c.ID == id && c.Status.Editable() {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCampaignRepo) TransitionStatus(ctx context.Context, id uint, from []models.CampaignStatus, next models.CampaignStatus, updates map[string]any) (bool, error) {
	changed := false
	r.update(id, func(c *models.Campaign) {
		allowed := false
		for _, s := range from {
			if c.Status == s {
				allowed = true
			}
		}
		if !allowed {
			return
		}
		c.Status = next
		c.UpdatedAt = time.Now().UTC()
		for k, v := range updates {
			switch k {
			case "recipient_count":
				c.RecipientCount = v.(int)
			case "recipient_snapshot":
				c.RecipientSnapshot = v.(pq.Int64Array)
			case "started_at":
				t := v.(time.Time)
				c.StartedAt = &t
			case "completed_at":
				t := v.(time.Time)
				c.CompletedAt = &t
			case "failure_reason":
				reason := v.(string)
				c.FailureReason = &reason
			}
		}
		changed = true
	})
	return changed, nil
}

func (r *fakeCampaignRepo) IncrementCounters(ctx context.Context, id uint, delta models.CampaignCounterDelta) error {
	r.update(id, func(c *models.Campaign) {
		c.SentCount += delta.Sent
		c.DeliveredCount += delta.Delivered
		c.FailedCount += delta.Failed
	})
	return nil
}

func (r *fakeCampaignRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	status := models.CampaignStatusScheduled
	return r.ByFilter(ctx, models.CampaignFilter{Status: &status, ScheduledBefore: &now}, "", limit, 0)
}

func (r *fakeCampaignRepo) ListStuckSending(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.Campaign, error) {
	status := models.CampaignStatusSending
	return r.ByFilter(ctx, models.CampaignFilter{Status: &status, UpdatedBefore: &updatedBefore}, "", limit, 0)
}

// data models and records

type fakeDataModelRepo struct {
	*fakeRepo[models.DataModel, models.DataModelFilter]
}

func newFakeDataModelRepo() *fakeDataModelRepo {
	return &fakeDataModelRepo{newFakeRepo(
		func(m *models.DataModel) *uint { return &m.ID },
		func(m *models.DataModel, f models.DataModelFilter) bool {
			return f.UserID == nil || m.UserID == *f.UserID
		},
	)}
}

func (r *fakeDataModelRepo) ByUUID(ctx context.Context, id uuid.UUID) (*models.DataModel, error) {
	for _, m := range r.all() {
		if m.UUID == id {
			return m, nil
		}
	}
	return nil, nil
}

type fakeRecordRepo struct {
	*fakeRepo[models.Record, models.RecordFilter]
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{newFakeRepo(
		func(r *models.Record) *uint { return &r.ID },
		func(r *models.Record, f models.RecordFilter) bool {
			return f.DataModelID == nil || r.DataModelID == *f.DataModelID
		},
	)}
}

func (r *fakeRecordRepo) ListByDataModel(ctx context.Context, dataModelID uint) ([]*models.Record, error) {
	return r.ByFilter(ctx, models.RecordFilter{DataModelID: &dataModelID}, "id ASC", 0, 0)
}

func (r *fakeRecordRepo) ByIDs(ctx context.Context, ids []uint) ([]*models.Record, error) {
	var out []*models.Record
	for _, id := range ids {
		rec, _ := r.ByID(ctx, id)
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// deliveries, history and audit

type fakeDeliveryRepo struct {
	*fakeRepo[models.CampaignDelivery, models.CampaignDeliveryFilter]
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{newFakeRepo(
		func(d *models.CampaignDelivery) *uint { return &d.ID },
		func(d *models.CampaignDelivery, f models.CampaignDeliveryFilter) bool {
			return f.CampaignID == nil || d.CampaignID == *f.CampaignID
		},
	)}
}

func (r *fakeDeliveryRepo) Save(ctx context.Context, d *models.CampaignDelivery) error {
	for _, existing := range r.all() {
		if existing.CampaignID == d.CampaignID && existing.RecordID == d.RecordID {
			return errors.New("duplicate key value violates unique constraint uk_campaign_deliveries_campaign_record")
		}
	}
	return r.fakeRepo.Save(ctx, d)
}

func (r *fakeDeliveryRepo) ProcessedRecordIDs(ctx context.Context, campaignID uint) (map[uint]struct{}, error) {
	out := map[uint]struct{}{}
	for _, d := range r.all() {
		if d.CampaignID == campaignID {
			out[d.RecordID] = struct{}{}
		}
	}
	return out, nil
}

type fakeHistoryRepo struct {
	*fakeRepo[models.MessageHistory, models.MessageHistoryFilter]
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{newFakeRepo(
		func(m *models.MessageHistory) *uint { return &m.ID },
		func(m *models.MessageHistory, f models.MessageHistoryFilter) bool {
			if f.UserID != nil && m.UserID != *f.UserID {
				return false
			}
			if f.CampaignID != nil && (m.CampaignID == nil || *m.CampaignID != *f.CampaignID) {
				return false
			}
			return f.Status == nil || m.Status == *f.Status
		},
	)}
}

type fakeAuditRepo struct {
	*fakeRepo[models.AuditLog, models.AuditLogFilter]
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{newFakeRepo[models.AuditLog, models.AuditLogFilter](
		func(a *models.AuditLog) *uint { return &a.ID }, nil,
	)}
}

func (r *fakeAuditRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	var out []*models.AuditLog
	for _, a := range r.all() {
		if a.UserID != nil && *a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) actions() []string {
	var out []string
	for _, a := range r.all() {
		out = append(out, a.Action)
	}
	return out
}

// ledger

// fakeAccountRepo keeps credit accounts with an optimistic version check.
// conflictsRemaining makes that many UpdateBalance calls lose the race.
type fakeAccountRepo struct {
	mu                 sync.Mutex
	accounts           map[uuid.UUID]*models.CreditAccount
	nextID             uint
	conflictsRemaining int
	updateCalls        int
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: map[uuid.UUID]*models.CreditAccount{}}
}

func (r *fakeAccountRepo) ByID(ctx context.Context, id uint) (*models.CreditAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) ByFilter(ctx context.Context, filter models.CreditAccountFilter, orderBy string, limit, offset int) ([]*models.CreditAccount, error) {
	return nil, nil
}

func (r *fakeAccountRepo) Save(ctx context.Context, entity *models.CreditAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entity.ID = r.nextID
	cp := *entity
	r.accounts[entity.UserID] = &cp
	return nil
}

func (r *fakeAccountRepo) SaveBatch(ctx context.Context, entities []*models.CreditAccount) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeAccountRepo) Count(ctx context.Context, filter models.CreditAccountFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.accounts)), nil
}

func (r *fakeAccountRepo) Exists(ctx context.Context, filter models.CreditAccountFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

func (r *fakeAccountRepo) ByUserID(ctx context.Context, userID uuid.UUID) (*models.CreditAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// EnsureForUpdate takes no lock, so concurrent callers race on the version column
func (r *fakeAccountRepo) EnsureForUpdate(ctx context.Context, userID uuid.UUID) (*models.CreditAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		r.nextID++
		a = &models.CreditAccount{ID: r.nextID, UserID: userID}
		r.accounts[userID] = a
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAccountRepo) UpdateBalance(ctx context.Context, id uint, expectedVersion int64, newBalance int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	if r.conflictsRemaining > 0 {
		r.conflictsRemaining--
		for _, a := range r.accounts {
			if a.ID == id {
				a.Version++
			}
		}
		return false, nil
	}
	for _, a := range r.accounts {
		if a.ID == id {
			if a.Version != expectedVersion {
				return false, nil
			}
			a.Balance = newBalance
			a.Version++
			return true, nil
		}
	}
	return false, fmt.Errorf("credit account %d not found", id)
}

type fakeCreditTxRepo struct {
	*fakeRepo[models.CreditTransaction, models.CreditTransactionFilter]
}

func newFakeCreditTxRepo() *fakeCreditTxRepo {
	return &fakeCreditTxRepo{newFakeRepo(
		func(t *models.CreditTransaction) *uint { return &t.ID },
		func(t *models.CreditTransaction, f models.CreditTransactionFilter) bool {
			if f.UserID != nil && t.UserID != *f.UserID {
				return false
			}
			if f.CampaignID != nil && (t.CampaignID == nil || *t.CampaignID != *f.CampaignID) {
				return false
			}
			return f.Type == nil || t.Type == *f.Type
		},
	)}
}

func (r *fakeCreditTxRepo) SumByAccount(ctx context.Context, accountID uint) (int64, error) {
	var sum int64
	for _, t := range r.all() {
		if t.AccountID == accountID {
			sum += t.Amount
		}
	}
	return sum, nil
}

// credentials

type fakeCredentialRepo struct {
	*fakeRepo[models.ProviderCredential, models.ProviderCredentialFilter]
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{newFakeRepo[models.ProviderCredential, models.ProviderCredentialFilter](
		func(c *models.ProviderCredential) *uint { return &c.ID }, nil,
	)}
}

func (r *fakeCredentialRepo) ByUserID(ctx context.Context, userID uuid.UUID) (*models.ProviderCredential, error) {
	for _, c := range r.all() {
		if c.UserID == userID {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeCredentialRepo) Upsert(ctx context.Context, cred *models.ProviderCredential) error {
	existing, _ := r.ByUserID(ctx, cred.UserID)
	if existing == nil {
		return r.Save(ctx, cred)
	}
	r.update(existing.ID, func(c *models.ProviderCredential) {
		c.Username = cred.Username
		c.PasswordEncrypted = cred.PasswordEncrypted
		c.APIKeyEncrypted = cred.APIKeyEncrypted
		c.SenderID = cred.SenderID
	})
	return nil
}

type fakeSettingRepo struct {
	mu       sync.Mutex
	settings map[string]*models.PlatformSetting
}

func newFakeSettingRepo() *fakeSettingRepo {
	return &fakeSettingRepo{settings: map[string]*models.PlatformSetting{}}
}

func (r *fakeSettingRepo) ByKey(ctx context.Context, key string) (*models.PlatformSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[key]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSettingRepo) Upsert(ctx context.Context, setting *models.PlatformSetting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *setting
	r.settings[setting.Key] = &cp
	return nil
}

// staticCredentials returns the same account for every actor
type staticCredentials struct {
	account *ProviderAccount
	err     error
}

func (s staticCredentials) Load(ctx context.Context, actor Actor) (*ProviderAccount, error) {
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.account
	return &cp, nil
}

func (s staticCredentials) Save(ctx context.Context, actor Actor, account ProviderAccount) error {
	return s.err
}

// passthroughTransactor runs fn without a database
func passthroughTransactor(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

var _ repository.Transactor = passthroughTransactor

var (
	_ repository.CampaignRepository           = (*fakeCampaignRepo)(nil)
	_ repository.DataModelRepository          = (*fakeDataModelRepo)(nil)
	_ repository.RecordRepository             = (*fakeRecordRepo)(nil)
	_ repository.CampaignDeliveryRepository   = (*fakeDeliveryRepo)(nil)
	_ repository.MessageHistoryRepository     = (*fakeHistoryRepo)(nil)
	_ repository.AuditLogRepository           = (*fakeAuditRepo)(nil)
	_ repository.CreditAccountRepository      = (*fakeAccountRepo)(nil)
	_ repository.CreditTransactionRepository  = (*fakeCreditTxRepo)(nil)
	_ repository.ProviderCredentialRepository = (*fakeCredentialRepo)(nil)
	_ repository.PlatformSettingRepository    = (*fakeSettingRepo)(nil)
)

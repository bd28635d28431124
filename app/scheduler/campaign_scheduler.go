// Package scheduler runs background jobs that drive campaigns without an HTTP caller
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	businessflow "github.com/amirphl/mspace-dashboard/business_flow"
	"github.com/amirphl/mspace-dashboard/config"
	"github.com/amirphl/mspace-dashboard/models"
	"github.com/amirphl/mspace-dashboard/utils"
	"github.com/robfig/cron/v3"
)

const (
	defaultDispatchSpec = "@every 1m"
	defaultSweepSpec    = "@every 5m"
	defaultStuckAfter   = 15 * time.Minute
	defaultMaxBackoff   = time.Hour
	retryBaseDelay      = time.Minute
	batchSize           = 50
	runTimeout          = 6 * time.Hour
)

// CampaignLister is the slice of the campaign repository the scheduler reads
type CampaignLister interface {
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error)
	ListStuckSending(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.Campaign, error)
}

// CampaignScheduler dispatches due scheduled campaigns and resumes campaigns stuck in sending
type CampaignScheduler struct {
	campaigns CampaignLister
	sender    businessflow.CampaignSender
	cfg       config.SchedulerConfig
	logger    *log.Logger
	now       func() time.Time

	cron    *cron.Cron
	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[uint]struct{}
	retries map[uint]retryState
}

// retryState holds the backoff of a campaign whose last run failed
type retryState struct {
	failures  int
	notBefore time.Time
}

// NewCampaignScheduler creates a scheduler. A nil logger falls back to a "scheduler " prefixed stdout logger.
func NewCampaignScheduler(campaigns CampaignLister, sender businessflow.CampaignSender, cfg config.SchedulerConfig, logger *log.Logger) *CampaignScheduler {
	if cfg.DispatchSpec == "" {
		cfg.DispatchSpec = defaultDispatchSpec
	}
	if cfg.SweepSpec == "" {
		cfg.SweepSpec = defaultSweepSpec
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = defaultStuckAfter
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if logger == nil {
		logger = log.New(log.Writer(), "scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
	}

	return &CampaignScheduler{
		campaigns: campaigns,
		sender:    sender,
		cfg:       cfg,
		logger:    logger,
		now:       utils.UTCNow,
		running:   make(map[uint]struct{}),
		retries:   make(map[uint]retryState),
	}
}

// Start registers the cron jobs and returns a stop function that waits for in-flight runs
func (s *CampaignScheduler) Start(parent context.Context) (func(), error) {
	ctx, cancel := context.WithCancel(parent)

	s.cron = cron.New(cron.WithLocation(time.UTC))
	if _, err := s.cron.AddFunc(s.cfg.DispatchSpec, func() { s.dispatch(ctx) }); err != nil {
		cancel()
		return nil, err
	}
	if _, err := s.cron.AddFunc(s.cfg.SweepSpec, func() { s.sweep(ctx) }); err != nil {
		cancel()
		return nil, err
	}
	s.cron.Start()
	s.logger.Printf("scheduler: started (dispatch=%q sweep=%q stuck_after=%s)", s.cfg.DispatchSpec, s.cfg.SweepSpec, s.cfg.StuckAfter)

	return func() {
		<-s.cron.Stop().Done()
		cancel()
		s.wg.Wait()
		s.logger.Printf("scheduler: stopped")
	}, nil
}

// dispatch starts every scheduled campaign whose send time has passed
func (s *CampaignScheduler) dispatch(ctx context.Context) {
	due, err := s.campaigns.ListDueScheduled(ctx, s.now(), batchSize)
	if err != nil {
		s.logger.Printf("scheduler: list due campaigns failed: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}
	s.logger.Printf("scheduler: %d scheduled campaigns due", len(due))

	for _, c := range due {
		s.launch(ctx, c.ID, "send", s.sender.Send)
	}
}

// sweep resumes campaigns left in sending by a crashed or interrupted run
func (s *CampaignScheduler) sweep(ctx context.Context) {
	stuck, err := s.campaigns.ListStuckSending(ctx, s.now().Add(-s.cfg.StuckAfter), batchSize)
	if err != nil {
		s.logger.Printf("scheduler: list stuck campaigns failed: %v", err)
		return
	}
	if len(stuck) == 0 {
		return
	}
	s.logger.Printf("scheduler: %d campaigns stuck in sending", len(stuck))

	for _, c := range stuck {
		s.launch(ctx, c.ID, "resume", s.sender.Resume)
	}
}

func (s *CampaignScheduler) launch(ctx context.Context, campaignID uint, op string, run func(context.Context, uint) (*businessflow.SendSummary, error)) {
	s.mu.Lock()
	if _, busy := s.running[campaignID]; busy {
		s.mu.Unlock()
		return
	}
	if retry, ok := s.retries[campaignID]; ok && s.now().Before(retry.notBefore) {
		s.mu.Unlock()
		return
	}
	s.running[campaignID] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, campaignID)
			s.mu.Unlock()
		}()

		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()

		summary, err := run(runCtx, campaignID)
		switch {
		case err == nil:
			s.clearRetry(campaignID)
			s.logger.Printf("scheduler: %s campaign id=%d finished status=%s sent=%d failed=%d skipped=%d",
				op, campaignID, summary.Status, summary.Sent, summary.Failed, summary.Skipped)
		case businessflow.IsCampaignBusy(err), businessflow.IsCampaignNotSendable(err), businessflow.IsCampaignNotResumable(err):
			s.clearRetry(campaignID)
			s.logger.Printf("scheduler: %s campaign id=%d skipped: %v", op, campaignID, err)
		default:
			attempt, delay := s.recordFailure(campaignID)
			s.logger.Printf("scheduler: %s campaign id=%d failed (attempt %d, retry in %s): %v", op, campaignID, attempt, delay, err)
		}
	}()
}

// recordFailure doubles the campaign's retry delay, starting at one minute and capped at MaxBackoff
func (s *CampaignScheduler) recordFailure(campaignID uint) (int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	retry := s.retries[campaignID]
	retry.failures++
	delay := retryBaseDelay
	for i := 1; i < retry.failures && delay < s.cfg.MaxBackoff; i++ {
		delay *= 2
	}
	if delay > s.cfg.MaxBackoff {
		delay = s.cfg.MaxBackoff
	}
	retry.notBefore = s.now().Add(delay)
	s.retries[campaignID] = retry
	return retry.failures, delay
}

func (s *CampaignScheduler) clearRetry(campaignID uint) {
	s.mu.Lock()
	delete(s.retries, campaignID)
	s.mu.Unlock()
}

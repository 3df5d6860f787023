package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/HeltonFraga01/cortexx-sub017/models"
	"github.com/HeltonFraga01/cortexx-sub017/utils"
)

// Options tunes the dispatcher. Zero values pick sane defaults.
type Options struct {
	// MaxActiveWorkers caps how many campaigns dispatch at once across
	// the whole process, bounding outbound traffic system-wide.
	MaxActiveWorkers int
	// SendTimeout bounds every single gateway call.
	SendTimeout time.Duration
	// SchedulerInterval is how often due scheduled campaigns are
	// scanned for.
	SchedulerInterval time.Duration
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Dispatcher owns the campaign lifecycle: it applies control
// transitions (start, pause, resume, cancel), runs one CampaignWorker
// goroutine per active campaign under a global cap, and recovers
// campaigns left running by a dead process.
type Dispatcher struct {
	store   Store
	quota   utils.QuotaGuard
	gateway utils.MessageGateway
	lease   Lease
	pacer   *utils.Pacer
	log     *logrus.Entry

	sendTimeout       time.Duration
	schedulerInterval time.Duration
	clock             func() time.Time
	slots             chan struct{}

	mu     sync.Mutex
	active map[uint]*CampaignWorker
	wg     sync.WaitGroup
}

func NewDispatcher(store Store, quota utils.QuotaGuard, gateway utils.MessageGateway, lease Lease, logger *logrus.Logger, opts Options) *Dispatcher {
	if opts.MaxActiveWorkers <= 0 {
		opts.MaxActiveWorkers = 25
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.SchedulerInterval <= 0 {
		opts.SchedulerInterval = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Dispatcher{
		store:             store,
		quota:             quota,
		gateway:           gateway,
		lease:             lease,
		pacer:             utils.NewPacer(0),
		log:               logger.WithField("component", "dispatcher"),
		sendTimeout:       opts.SendTimeout,
		schedulerInterval: opts.SchedulerInterval,
		clock:             opts.Clock,
		slots:             make(chan struct{}, opts.MaxActiveWorkers),
		active:            make(map[uint]*CampaignWorker),
	}
}

// Start moves a pending or scheduled campaign to running and launches
// its worker. A campaign in any other state is rejected with no side
// effects.
func (d *Dispatcher) Start(ctx context.Context, campaignID uint) error {
	campaign, err := d.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	ok, err := d.store.UpdateCampaignStatus(ctx, campaignID,
		[]string{models.CampaignStatusPending, models.CampaignStatusScheduled},
		models.CampaignStatusRunning)
	if err != nil {
		return err
	}
	if !ok {
		return utils.NewTransitionError(campaign.Status, models.CampaignStatusRunning)
	}

	if err := d.spawn(ctx, campaignID, campaign.Status); err != nil {
		return err
	}

	if campaign.StartedAt == nil {
		if err := d.store.MarkStarted(ctx, campaignID, d.clock()); err != nil {
			d.log.WithError(err).Error("Failed to stamp campaign start time")
		}
	}
	return nil
}

// Pause suspends a running campaign before its next send. The worker
// observes the new status at the top of its loop and halts without
// touching the in-flight contact's row.
func (d *Dispatcher) Pause(ctx context.Context, campaignID uint) error {
	campaign, err := d.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	ok, err := d.store.UpdateCampaignStatus(ctx, campaignID,
		sourcesOf(models.CampaignStatusPaused), models.CampaignStatusPaused)
	if err != nil {
		return err
	}
	if !ok {
		return utils.NewTransitionError(campaign.Status, models.CampaignStatusPaused)
	}

	d.poke(campaignID)
	d.log.WithField("campaign_id", campaignID).Info("Campaign paused")
	return nil
}

// Resume continues a paused campaign from its current position, never
// from the beginning.
func (d *Dispatcher) Resume(ctx context.Context, campaignID uint) error {
	campaign, err := d.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	ok, err := d.store.UpdateCampaignStatus(ctx, campaignID,
		[]string{models.CampaignStatusPaused}, models.CampaignStatusRunning)
	if err != nil {
		return err
	}
	if !ok {
		return utils.NewTransitionError(campaign.Status, models.CampaignStatusRunning)
	}

	d.log.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"position":    campaign.CurrentPosition,
	}).Info("Campaign resuming")
	return d.spawn(ctx, campaignID, models.CampaignStatusPaused)
}

// Cancel terminates any non-terminal campaign. Remaining pending
// contacts are marked cancelled; contacts already sent or failed are
// never touched, and the position freezes where it was.
func (d *Dispatcher) Cancel(ctx context.Context, campaignID uint) error {
	campaign, err := d.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	ok, err := d.store.UpdateCampaignStatus(ctx, campaignID,
		sourcesOf(models.CampaignStatusCancelled), models.CampaignStatusCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return utils.NewTransitionError(campaign.Status, models.CampaignStatusCancelled)
	}

	d.poke(campaignID)

	cancelled, err := d.store.CancelPendingContacts(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("campaign cancelled but contacts not marked: %w", err)
	}
	d.log.WithFields(logrus.Fields{
		"campaign_id":        campaignID,
		"contacts_cancelled": cancelled,
	}).Info("Campaign cancelled")
	return nil
}

// spawn acquires the campaign's lease and launches its worker under
// the global cap. If the lease is still held by a halting worker the
// acquisition is retried briefly before giving up and reverting the
// campaign to revertTo, so a failed control call leaves no trace.
func (d *Dispatcher) spawn(ctx context.Context, campaignID uint, revertTo string) error {
	acquired := false
	for attempt := 0; attempt < 20; attempt++ {
		ok, err := d.lease.Acquire(ctx, campaignID)
		if err != nil {
			return fmt.Errorf("lease acquisition failed: %w", err)
		}
		if ok {
			acquired = true
			break
		}
		if !utils.Sleep(ctx, 100*time.Millisecond, nil) {
			break
		}
	}
	if !acquired {
		// Another worker is dispatching this campaign. Undo the
		// transition so the operator can retry once it lets go.
		if _, err := d.store.UpdateCampaignStatus(ctx, campaignID,
			[]string{models.CampaignStatusRunning}, revertTo); err != nil {
			d.log.WithError(err).Error("Failed to revert campaign after lease contention")
		}
		return fmt.Errorf("campaign %d dispatch lease is held by another worker", campaignID)
	}

	w := newCampaignWorker(campaignID, d)
	d.mu.Lock()
	d.active[campaignID] = w
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.active, campaignID)
			d.mu.Unlock()
			d.lease.Release(context.Background(), campaignID)
		}()

		// Global cap: wait for a slot before dispatching.
		select {
		case d.slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-d.slots }()

		w.Run(ctx)
	}()
	return nil
}

// poke wakes the campaign's worker out of any sleep so it observes a
// status change immediately.
func (d *Dispatcher) poke(campaignID uint) {
	d.mu.Lock()
	w := d.active[campaignID]
	d.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}

// Recover handles campaigns left running by a previous process. With
// no live lease nobody is dispatching them, so they are parked as
// paused for an explicit resume; their position and per-contact rows
// already reflect exactly how far they got.
func (d *Dispatcher) Recover(ctx context.Context) error {
	campaigns, err := d.store.ListByStatus(ctx, models.CampaignStatusRunning)
	if err != nil {
		return err
	}
	for _, campaign := range campaigns {
		held, err := d.lease.Held(ctx, campaign.ID)
		if err != nil {
			return err
		}
		if held {
			continue
		}
		if _, err := d.store.UpdateCampaignStatus(ctx, campaign.ID,
			[]string{models.CampaignStatusRunning}, models.CampaignStatusPaused); err != nil {
			return err
		}
		d.log.WithFields(logrus.Fields{
			"campaign_id": campaign.ID,
			"position":    campaign.CurrentPosition,
		}).Warn("Found running campaign with no live lease, parking as paused")
	}
	return nil
}

// RunScheduler starts due scheduled campaigns until the context ends.
func (d *Dispatcher) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(d.schedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := d.store.ListDueScheduled(ctx, d.clock())
			if err != nil {
				d.log.WithError(err).Error("Failed to scan scheduled campaigns")
				continue
			}
			for _, campaign := range due {
				if err := d.Start(ctx, campaign.ID); err != nil {
					d.log.WithError(err).WithField("campaign_id", campaign.ID).
						Error("Failed to start scheduled campaign")
				}
			}
		}
	}
}

// Wait blocks until every worker goroutine has exited. Call after
// cancelling the dispatch context during shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

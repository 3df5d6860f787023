package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HeltonFraga01/cortexx-sub017/models"
	"github.com/HeltonFraga01/cortexx-sub017/utils"
)

// slowPacing keeps a second between sends so tests can interleave
// control calls deterministically.
var slowPacing = models.Humanization{DelayMinSeconds: 1, DelayMaxSeconds: 1}

func TestPauseAndResumeContinuesFromPosition(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	quota := newFakeQuota(10)
	d := testDispatcher(store, quota, gateway, Options{})

	id := seedCampaign(t, store, &models.Campaign{
		UserID:       1,
		InboxID:      "inbox-1",
		Humanization: slowPacing,
	}, []string{"+254700000001", "+254700000002", "+254700000003"})

	if err := d.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForSends(t, gateway, 1)

	if err := d.Pause(context.Background(), id); err != nil {
		t.Fatalf("pause: %v", err)
	}
	d.Wait()

	campaign, _ := store.GetCampaign(context.Background(), id)
	if campaign.Status != models.CampaignStatusPaused {
		t.Fatalf("status %s, want paused", campaign.Status)
	}
	if campaign.CurrentPosition != 1 || len(gateway.sends()) != 1 {
		t.Fatalf("position=%d sends=%d after pause", campaign.CurrentPosition, len(gateway.sends()))
	}

	if err := d.Resume(context.Background(), id); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitForStatus(t, store, id, models.CampaignStatusCompleted)
	d.Wait()

	sends := gateway.sends()
	if len(sends) != 3 {
		t.Fatalf("total sends = %d, want 3", len(sends))
	}
	// Resume never replays the contact sent before the pause.
	if sends[0].Phone != "+254700000001" || sends[1].Phone != "+254700000002" {
		t.Fatalf("unexpected send order: %v, %v", sends[0].Phone, sends[1].Phone)
	}
}

func TestCancelFreezesProgress(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	quota := newFakeQuota(10)
	d := testDispatcher(store, quota, gateway, Options{})

	id := seedCampaign(t, store, &models.Campaign{
		UserID:       1,
		InboxID:      "inbox-1",
		Humanization: slowPacing,
	}, []string{"+254700000001", "+254700000002", "+254700000003"})

	if err := d.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForSends(t, gateway, 1)

	if err := d.Cancel(context.Background(), id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	d.Wait()

	campaign, _ := store.GetCampaign(context.Background(), id)
	if campaign.Status != models.CampaignStatusCancelled {
		t.Fatalf("status %s, want cancelled", campaign.Status)
	}
	if campaign.SentCount != 1 || campaign.CancelledCount != 2 {
		t.Fatalf("sent=%d cancelled=%d", campaign.SentCount, campaign.CancelledCount)
	}

	contacts, _ := store.ListContacts(context.Background(), id)
	if contacts[0].Status != models.ContactStatusSent {
		t.Fatalf("sent contact was touched by cancel: %s", contacts[0].Status)
	}
	for _, contact := range contacts[1:] {
		if contact.Status != models.ContactStatusCancelled {
			t.Fatalf("contact %d status %s, want cancelled", contact.ProcessingOrder, contact.Status)
		}
	}

	// Terminal: a second cancel and a resume are both rejected.
	if err := d.Cancel(context.Background(), id); !isStateError(err) {
		t.Fatalf("second cancel: %v", err)
	}
	if err := d.Resume(context.Background(), id); !isStateError(err) {
		t.Fatalf("resume after cancel: %v", err)
	}
}

func TestCancelDuringInFlightSendFreezesPosition(t *testing.T) {
	store := newMemStore()
	gateway := newBlockingGateway()
	quota := newFakeQuota(10)
	d := testDispatcher(store, quota, gateway, Options{})

	id := seedCampaign(t, store, &models.Campaign{UserID: 1, InboxID: "inbox-1"},
		[]string{"+254700000001", "+254700000002", "+254700000003"})

	if err := d.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	// The first send is now in flight; cancel resolves its contact row
	// before the gateway call returns.
	<-gateway.entered

	if err := d.Cancel(context.Background(), id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	close(gateway.release)
	d.Wait()

	campaign, _ := store.GetCampaign(context.Background(), id)
	if campaign.CurrentPosition != 0 {
		t.Fatalf("position = %d, want 0 frozen at cancel", campaign.CurrentPosition)
	}
	if campaign.SentCount != 0 || campaign.CancelledCount != 3 {
		t.Fatalf("sent=%d cancelled=%d", campaign.SentCount, campaign.CancelledCount)
	}

	contacts, _ := store.ListContacts(context.Background(), id)
	if contacts[0].Status != models.ContactStatusCancelled {
		t.Fatalf("contact 0 status %s, want cancelled", contacts[0].Status)
	}

	// The in-flight reservation comes back untouched.
	if got := quota.committed(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("quota commits = %v", got)
	}
}

func TestControlRejectsIllegalTransitions(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	quota := newFakeQuota(10)
	d := testDispatcher(store, quota, gateway, Options{})

	id := seedCampaign(t, store, &models.Campaign{UserID: 1, InboxID: "inbox-1"},
		[]string{"+254700000001"})

	// pending campaign: pause and resume are illegal.
	if err := d.Pause(context.Background(), id); !isStateError(err) {
		t.Fatalf("pause pending: %v", err)
	}
	if err := d.Resume(context.Background(), id); !isStateError(err) {
		t.Fatalf("resume pending: %v", err)
	}

	if err := d.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, store, id, models.CampaignStatusCompleted)
	d.Wait()

	// completed campaign: everything is rejected.
	for name, op := range map[string]func(context.Context, uint) error{
		"start":  d.Start,
		"pause":  d.Pause,
		"resume": d.Resume,
		"cancel": d.Cancel,
	} {
		if err := op(context.Background(), id); !isStateError(err) {
			t.Fatalf("%s on completed campaign: %v", name, err)
		}
	}
}

func isStateError(err error) bool {
	var stateErr *utils.StateError
	return errors.As(err, &stateErr)
}

func TestStartIsExclusive(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	quota := newFakeQuota(10)
	d := testDispatcher(store, quota, gateway, Options{})

	id := seedCampaign(t, store, &models.Campaign{
		UserID:       1,
		InboxID:      "inbox-1",
		Humanization: slowPacing,
	}, []string{"+254700000001", "+254700000002"})

	if err := d.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	// The guarded transition makes the second start lose.
	if err := d.Start(context.Background(), id); !isStateError(err) {
		t.Fatalf("second start: %v", err)
	}

	if err := d.Cancel(context.Background(), id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	d.Wait()
}

func TestStartWithHeldLeaseLeavesNoSideEffects(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	quota := newFakeQuota(10)
	lease := NewLocalLease()
	d := testDispatcherWithLease(store, quota, gateway, lease, Options{})

	id := seedCampaign(t, store, &models.Campaign{UserID: 1, InboxID: "inbox-1"},
		[]string{"+254700000001"})

	// Another holder keeps the lease for the whole retry window.
	ok, err := lease.Acquire(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	if err := d.Start(context.Background(), id); err == nil {
		t.Fatal("expected start to fail while the lease is held")
	}

	campaign, _ := store.GetCampaign(context.Background(), id)
	if campaign.Status != models.CampaignStatusPending {
		t.Fatalf("status %s, want pending after failed start", campaign.Status)
	}
	if campaign.StartedAt != nil {
		t.Fatal("failed start must not stamp the start time")
	}
	if n := len(gateway.sends()); n != 0 {
		t.Fatalf("%d sends went out", n)
	}
}

func TestRecoverParksLeaselessRunningCampaigns(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	quota := newFakeQuota(10)
	d := testDispatcher(store, quota, gateway, Options{})

	// A previous process died mid-dispatch: running status, no lease.
	id := seedCampaign(t, store, &models.Campaign{
		UserID:  1,
		InboxID: "inbox-1",
		Status:  models.CampaignStatusRunning,
	}, []string{"+254700000001", "+254700000002"})

	if err := d.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	campaign, _ := store.GetCampaign(context.Background(), id)
	if campaign.Status != models.CampaignStatusPaused {
		t.Fatalf("status %s, want paused after recovery", campaign.Status)
	}

	// Resume picks the campaign back up from its position.
	if err := d.Resume(context.Background(), id); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitForStatus(t, store, id, models.CampaignStatusCompleted)
	d.Wait()
}

func TestSchedulerStartsDueCampaigns(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	quota := newFakeQuota(10)
	d := testDispatcher(store, quota, gateway, Options{SchedulerInterval: 10 * time.Millisecond})

	id := seedCampaign(t, store, &models.Campaign{
		UserID:   1,
		InboxID:  "inbox-1",
		Status:   models.CampaignStatusScheduled,
		Schedule: models.Schedule{ScheduledAt: utils.Pointer(time.Now().Add(-time.Minute))},
	}, []string{"+254700000001"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.RunScheduler(ctx)

	waitForStatus(t, store, id, models.CampaignStatusCompleted)
	cancel()
	d.Wait()

	if len(gateway.sends()) != 1 {
		t.Fatalf("sends = %d, want 1", len(gateway.sends()))
	}
}

func TestCounterInvariantAfterCompletion(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	gateway.failPhone("+254700000002", &utils.SendError{Reason: utils.ReasonGatewayError, Message: "boom"})
	quota := newFakeQuota(10)
	d := testDispatcher(store, quota, gateway, Options{})

	id := seedCampaign(t, store, &models.Campaign{UserID: 1, InboxID: "inbox-1"},
		[]string{"+254700000001", "+254700000002", "+254700000003", "+254700000004"})

	if err := d.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	campaign := waitForStatus(t, store, id, models.CampaignStatusCompleted)
	d.Wait()

	resolved := campaign.SentCount + campaign.FailedCount + campaign.CancelledCount
	if resolved != campaign.TotalContacts {
		t.Fatalf("resolved %d of %d contacts", resolved, campaign.TotalContacts)
	}
	if campaign.CurrentPosition != campaign.TotalContacts {
		t.Fatalf("position %d, want %d", campaign.CurrentPosition, campaign.TotalContacts)
	}
}

package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/HeltonFraga01/cortexx-sub017/models"
	"github.com/HeltonFraga01/cortexx-sub017/utils"
)

func TestCampaignRunsToCompletion(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	quota := newFakeQuota(10)
	d := testDispatcher(store, quota, gateway, Options{})

	id := seedCampaign(t, store, &models.Campaign{UserID: 1, InboxID: "inbox-1"},
		[]string{"+254700000001", "+254700000002", "+254700000003"})

	if err := d.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}

	campaign := waitForStatus(t, store, id, models.CampaignStatusCompleted)
	d.Wait()

	if campaign.SentCount != 3 || campaign.FailedCount != 0 {
		t.Fatalf("counters: sent=%d failed=%d", campaign.SentCount, campaign.FailedCount)
	}
	if campaign.CurrentPosition != 3 {
		t.Fatalf("position = %d, want 3", campaign.CurrentPosition)
	}
	if campaign.StartedAt == nil || campaign.CompletedAt == nil {
		t.Fatal("expected start and completion timestamps")
	}

	sends := gateway.sends()
	if len(sends) != 3 {
		t.Fatalf("gateway saw %d sends, want 3", len(sends))
	}
	// Strict queue order.
	for i, req := range sends {
		want := []string{"+254700000001", "+254700000002", "+254700000003"}[i]
		if req.Phone != want {
			t.Fatalf("send %d went to %s, want %s", i, req.Phone, want)
		}
	}

	contacts, _ := store.ListContacts(context.Background(), id)
	for _, contact := range contacts {
		if contact.Status != models.ContactStatusSent {
			t.Fatalf("contact %d status %s", contact.ProcessingOrder, contact.Status)
		}
		if contact.GatewayMessageID == "" || contact.SentAt == nil {
			t.Fatalf("contact %d missing gateway id or sent time", contact.ProcessingOrder)
		}
	}
}

func TestFailedSendDoesNotStopCampaign(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	gateway.failPhone("+254700000002", &utils.SendError{Reason: utils.ReasonInvalidNumber, Message: "bad number"})
	quota := newFakeQuota(10)
	d := testDispatcher(store, quota, gateway, Options{})

	id := seedCampaign(t, store, &models.Campaign{UserID: 1, InboxID: "inbox-1"},
		[]string{"+254700000001", "+254700000002", "+254700000003"})

	if err := d.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}

	campaign := waitForStatus(t, store, id, models.CampaignStatusCompleted)
	d.Wait()

	if campaign.SentCount != 2 || campaign.FailedCount != 1 {
		t.Fatalf("counters: sent=%d failed=%d", campaign.SentCount, campaign.FailedCount)
	}

	contacts, _ := store.ListContacts(context.Background(), id)
	failed := contacts[1]
	if failed.Status != models.ContactStatusFailed {
		t.Fatalf("contact 1 status %s, want failed", failed.Status)
	}
	if failed.ErrorReason != utils.ReasonInvalidNumber || failed.ErrorMessage == "" {
		t.Fatalf("contact 1 error not recorded: reason=%q message=%q", failed.ErrorReason, failed.ErrorMessage)
	}

	// Two full commits, one zero-cost commit refunding the failed
	// reservation.
	var full, refunds int
	for _, cost := range quota.committed() {
		if cost == 1 {
			full++
		} else {
			refunds++
		}
	}
	if full != 2 || refunds != 1 {
		t.Fatalf("quota commits = %v", quota.committed())
	}
}

func TestQuotaExhaustionAutoPauses(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	quota := newFakeQuota(1)
	d := testDispatcher(store, quota, gateway, Options{})

	id := seedCampaign(t, store, &models.Campaign{UserID: 1, InboxID: "inbox-1"},
		[]string{"+254700000001", "+254700000002", "+254700000003"})

	if err := d.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}

	campaign := waitForStatus(t, store, id, models.CampaignStatusPaused)
	d.Wait()

	if campaign.SentCount != 1 {
		t.Fatalf("sent = %d, want 1", campaign.SentCount)
	}
	if campaign.CurrentPosition != 1 {
		t.Fatalf("position = %d, want 1; denial must not consume a slot", campaign.CurrentPosition)
	}
	if !strings.Contains(campaign.LastError, "quota") {
		t.Fatalf("last error = %q", campaign.LastError)
	}

	contacts, _ := store.ListContacts(context.Background(), id)
	if contacts[1].Status != models.ContactStatusPending {
		t.Fatalf("contact 1 status %s, want pending after quota pause", contacts[1].Status)
	}
}

func TestWorkerPanicLeavesCampaignPaused(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	quota := newFakeQuota(10)
	d := testDispatcher(store, quota, gateway, Options{})

	// An empty template list makes the dispatch step panic.
	id := seedCampaign(t, store, &models.Campaign{
		UserID:    1,
		InboxID:   "inbox-1",
		Templates: []string{},
	}, []string{"+254700000001"})

	if err := d.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}

	campaign := waitForStatus(t, store, id, models.CampaignStatusPaused)
	d.Wait()

	if !strings.Contains(campaign.LastError, "crashed") {
		t.Fatalf("last error = %q", campaign.LastError)
	}
}

func TestSendingWindowSuspendsDispatch(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	quota := newFakeQuota(10)

	// Sunday 03:00, outside a Mon-Fri 9-18 window.
	frozen := time.Date(2026, 3, 8, 3, 0, 0, 0, time.UTC)
	d := testDispatcher(store, quota, gateway, Options{
		Clock: func() time.Time { return frozen },
	})

	id := seedCampaign(t, store, &models.Campaign{
		UserID:  1,
		InboxID: "inbox-1",
		Schedule: models.Schedule{
			SendingWindow: &models.SendingWindow{
				Days:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
				StartHour: 9,
				EndHour:   18,
			},
		},
	}, []string{"+254700000001"})

	if err := d.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if n := len(gateway.sends()); n != 0 {
		t.Fatalf("%d sends went out with the window closed", n)
	}
	campaign, _ := store.GetCampaign(context.Background(), id)
	if campaign.Status != models.CampaignStatusRunning {
		t.Fatalf("campaign status %s, want running while suspended", campaign.Status)
	}

	// Pause wakes the suspended worker so it exits promptly.
	if err := d.Pause(context.Background(), id); err != nil {
		t.Fatalf("pause: %v", err)
	}
	d.Wait()
}

func TestSendingWindowThatNeverOpensPausesCampaign(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	quota := newFakeQuota(10)
	d := testDispatcher(store, quota, gateway, Options{})

	// No allowed days, so the next opening can never advance past now.
	id := seedCampaign(t, store, &models.Campaign{
		UserID:  1,
		InboxID: "inbox-1",
		Schedule: models.Schedule{
			SendingWindow: &models.SendingWindow{StartHour: 9, EndHour: 18},
		},
	}, []string{"+254700000001"})

	if err := d.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}

	campaign := waitForStatus(t, store, id, models.CampaignStatusPaused)
	d.Wait()

	if !strings.Contains(campaign.LastError, "window") {
		t.Fatalf("last error = %q", campaign.LastError)
	}
	if n := len(gateway.sends()); n != 0 {
		t.Fatalf("%d sends went out", n)
	}
}

func TestMultipleTemplatesRotate(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	quota := newFakeQuota(10)
	d := testDispatcher(store, quota, gateway, Options{})

	id := seedCampaign(t, store, &models.Campaign{
		UserID:    1,
		InboxID:   "inbox-1",
		Templates: []string{"variant A", "variant B"},
	}, []string{"+254700000001", "+254700000002", "+254700000003"})

	if err := d.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, store, id, models.CampaignStatusCompleted)
	d.Wait()

	sends := gateway.sends()
	want := []string{"variant A", "variant B", "variant A"}
	for i, req := range sends {
		if req.Message != want[i] {
			t.Fatalf("send %d used %q, want %q", i, req.Message, want[i])
		}
	}
}

func TestIdempotencyKeyStablePerContact(t *testing.T) {
	store := newMemStore()
	gateway := newFakeGateway()
	quota := newFakeQuota(10)
	d := testDispatcher(store, quota, gateway, Options{})

	id := seedCampaign(t, store, &models.Campaign{UserID: 1, InboxID: "inbox-1"},
		[]string{"+254700000001", "+254700000002"})

	if err := d.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, store, id, models.CampaignStatusCompleted)
	d.Wait()

	seen := make(map[string]bool)
	for _, req := range gateway.sends() {
		if req.IdempotencyKey == "" {
			t.Fatal("missing idempotency key")
		}
		if seen[req.IdempotencyKey] {
			t.Fatalf("duplicate idempotency key %q", req.IdempotencyKey)
		}
		seen[req.IdempotencyKey] = true
	}
}

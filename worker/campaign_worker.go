package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/HeltonFraga01/cortexx-sub017/models"
	"github.com/HeltonFraga01/cortexx-sub017/utils"
)

// CampaignWorker drives one campaign's contact queue to completion in
// strictly ascending processing order. Exactly one worker runs per
// campaign at a time, enforced by the dispatch lease.
type CampaignWorker struct {
	campaignID uint

	store   Store
	quota   utils.QuotaGuard
	gateway utils.MessageGateway
	pacer   *utils.Pacer
	lease   Lease
	log     *logrus.Entry

	sendTimeout time.Duration
	clock       func() time.Time

	// Buffered by one; control calls poke it to interrupt any sleep so
	// the worker re-reads campaign state immediately.
	wake chan struct{}
}

func newCampaignWorker(campaignID uint, d *Dispatcher) *CampaignWorker {
	return &CampaignWorker{
		campaignID:  campaignID,
		store:       d.store,
		quota:       d.quota,
		gateway:     d.gateway,
		pacer:       d.pacer,
		lease:       d.lease,
		log:         d.log.WithField("campaign_id", campaignID),
		sendTimeout: d.sendTimeout,
		clock:       d.clock,
		wake:        make(chan struct{}, 1),
	}
}

// Wake interrupts the worker's current sleep, if any.
func (w *CampaignWorker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run executes the dispatch loop until the campaign leaves running or
// the context is cancelled. It never crashes the process: an unexpected
// panic leaves the campaign paused for an operator to inspect, never
// silently lost and never auto-cancelled.
func (w *CampaignWorker) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			sentry.CurrentHub().Recover(r)
			w.log.Errorf("Worker panic: %v", r)
			w.pauseWithError(fmt.Sprintf("worker crashed: %v", r))
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := w.lease.Refresh(ctx, w.campaignID); err != nil {
			w.log.WithError(err).Warn("Failed to refresh dispatch lease")
		}

		campaign, err := w.store.GetCampaign(ctx, w.campaignID)
		if err != nil {
			w.log.WithError(err).Error("Failed to reload campaign")
			w.pauseWithError(fmt.Sprintf("failed to reload campaign: %v", err))
			return
		}
		if campaign.Status != models.CampaignStatusRunning {
			w.log.WithField("status", campaign.Status).Info("Campaign no longer running, worker stopping")
			return
		}

		if campaign.CurrentPosition >= campaign.TotalContacts {
			w.complete(ctx, campaign)
			return
		}

		if win := campaign.Schedule.SendingWindow; win != nil {
			now := w.clock()
			if !win.Contains(now) {
				opening := win.NextOpening(now)
				if !opening.After(now) {
					// A window that never opens would otherwise spin
					// this loop at full speed.
					w.log.Error("Sending window never opens")
					w.pauseWithError("sending window never opens")
					return
				}
				w.log.WithField("opens_at", opening).Info("Outside sending window, suspending")
				// Interrupted or not, loop back and re-read state.
				utils.Sleep(ctx, opening.Sub(now), w.wake)
				continue
			}
		}

		contact, err := w.store.NextPendingContact(ctx, campaign.ID, campaign.CurrentPosition)
		if err != nil {
			w.log.WithError(err).Error("Failed to load next contact")
			w.pauseWithError(fmt.Sprintf("failed to load contact at position %d: %v", campaign.CurrentPosition, err))
			return
		}
		if contact == nil {
			// Slot already resolved (cancel race or restart mid-slot).
			if err := w.store.IncrementCounters(ctx, campaign.ID, 0, 0, 1); err != nil {
				w.pauseWithError(fmt.Sprintf("failed to advance position: %v", err))
				return
			}
			continue
		}

		decision, err := w.quota.CheckAndReserve(ctx, campaign.UserID, 1)
		if err != nil {
			w.log.WithError(err).Error("Quota check failed")
			w.pauseWithError(fmt.Sprintf("quota check failed: %v", err))
			return
		}
		if !decision.Allowed {
			// Exhausted quota pauses the campaign for later resumption.
			// No contact outcome is recorded for the denial.
			w.log.WithFields(logrus.Fields{
				"position":          campaign.CurrentPosition,
				"remaining_daily":   decision.RemainingDaily,
				"remaining_monthly": decision.RemainingMonthly,
			}).Warn("Quota exhausted, auto-pausing campaign")
			w.pauseWithError("send quota exhausted")
			return
		}

		w.dispatch(ctx, campaign, contact)

		// Skip the pacing wait after the last contact.
		if campaign.CurrentPosition+1 < campaign.TotalContacts {
			utils.Sleep(ctx, w.pacer.Delay(campaign.Humanization), w.wake)
		}
	}
}

// dispatch performs at most one send attempt for the contact and
// records the outcome. Sent or failed, the position advances and there
// is no inline retry; only a cancel landing mid-send leaves it frozen.
func (w *CampaignWorker) dispatch(ctx context.Context, campaign *models.Campaign, contact *models.CampaignContact) {
	template := campaign.Templates[contact.ProcessingOrder%len(campaign.Templates)]
	rendered, missing := utils.RenderTemplate(template, contactVariables(contact))

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	result, err := w.gateway.Send(sendCtx, utils.SendRequest{
		InboxID:        campaign.InboxID,
		Phone:          contact.Phone,
		Message:        rendered,
		IdempotencyKey: fmt.Sprintf("%d:%d", campaign.ID, contact.ID),
	})
	cancel()

	now := w.clock()
	if err == nil {
		applied, storeErr := w.store.ApplyContactOutcome(ctx, contact.ID, ContactOutcome{
			Status:           models.ContactStatusSent,
			SentAt:           &now,
			GatewayMessageID: result.MessageID,
			MissingVariables: missing,
		})
		if storeErr != nil {
			w.log.WithError(storeErr).Error("Failed to record sent contact")
		}
		if applied {
			w.advance(ctx, campaign.ID, 1, 0)
			w.commitQuota(ctx, campaign.UserID, 1)
		} else {
			// Contact was cancelled while we were sending; the
			// position stays where cancel froze it.
			w.commitQuota(ctx, campaign.UserID, 0)
		}
		return
	}

	reason, message := utils.SendFailure(err)
	w.log.WithFields(logrus.Fields{
		"position": contact.ProcessingOrder,
		"phone":    contact.Phone,
		"reason":   reason,
	}).Warn("Send failed")

	applied, storeErr := w.store.ApplyContactOutcome(ctx, contact.ID, ContactOutcome{
		Status:           models.ContactStatusFailed,
		ErrorMessage:     message,
		ErrorReason:      reason,
		MissingVariables: missing,
	})
	if storeErr != nil {
		w.log.WithError(storeErr).Error("Failed to record failed contact")
	}
	if applied {
		w.advance(ctx, campaign.ID, 0, 1)
	}
	// A failed send consumed no message; refund the reservation.
	w.commitQuota(ctx, campaign.UserID, 0)
}

func (w *CampaignWorker) advance(ctx context.Context, campaignID uint, sent, failed int) {
	if err := w.store.IncrementCounters(ctx, campaignID, sent, failed, 1); err != nil {
		w.log.WithError(err).Error("Failed to update campaign counters")
	}
}

func (w *CampaignWorker) commitQuota(ctx context.Context, userID uint, actualCost int) {
	if err := w.quota.Commit(ctx, userID, actualCost); err != nil {
		w.log.WithError(err).Error("Failed to commit quota usage")
	}
}

func (w *CampaignWorker) complete(ctx context.Context, campaign *models.Campaign) {
	ok, err := w.store.UpdateCampaignStatus(ctx, campaign.ID,
		[]string{models.CampaignStatusRunning}, models.CampaignStatusCompleted)
	if err != nil || !ok {
		w.log.WithError(err).Warn("Could not mark campaign completed")
		return
	}
	completedAt := w.clock()
	if err := w.store.MarkCompleted(ctx, campaign.ID, completedAt); err != nil {
		w.log.WithError(err).Error("Failed to stamp completion time")
	}

	contacts, err := w.store.ListContacts(ctx, campaign.ID)
	if err != nil {
		w.log.WithError(err).Error("Failed to load contacts for final report")
		return
	}
	campaign.CompletedAt = &completedAt
	report := utils.BuildReport(campaign, contacts)
	w.log.WithFields(logrus.Fields{
		"total":        report.TotalContacts,
		"sent":         report.SentCount,
		"failed":       report.FailedCount,
		"success_rate": report.SuccessRate,
		"duration":     utils.FormatDuration(time.Duration(report.DurationSeconds) * time.Second),
	}).Info("Campaign completed")
}

// pauseWithError leaves a running campaign paused with its last error
// set, so the operator can inspect and resume or cancel deliberately.
func (w *CampaignWorker) pauseWithError(message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := w.store.UpdateCampaignStatus(ctx, w.campaignID,
		[]string{models.CampaignStatusRunning}, models.CampaignStatusPaused); err != nil {
		w.log.WithError(err).Error("Failed to pause campaign after error")
		return
	}
	if err := w.store.SetLastError(ctx, w.campaignID, message); err != nil {
		w.log.WithError(err).Error("Failed to record campaign error")
	}
}

func contactVariables(contact *models.CampaignContact) map[string]string {
	vars := map[string]string{
		"name":  contact.Name,
		"phone": contact.Phone,
	}
	for k, v := range contact.Variables {
		vars[k] = v
	}
	return vars
}

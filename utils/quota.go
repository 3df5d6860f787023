package utils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/HeltonFraga01/cortexx-sub017/models"
)

// QuotaDecision is the outcome of a reservation attempt.
type QuotaDecision struct {
	Allowed          bool `json:"allowed"`
	RemainingDaily   int  `json:"remaining_daily"`
	RemainingMonthly int  `json:"remaining_monthly"`
	RemainingCredits int  `json:"remaining_credits"`
}

// QuotaGuard is the owner-scoped send allowance. CheckAndReserve must
// be atomic across all of an owner's concurrently running campaigns;
// Commit finalizes usage after the send, refunding any unused part of
// the reservation.
type QuotaGuard interface {
	CheckAndReserve(ctx context.Context, ownerID uint, cost int) (*QuotaDecision, error)
	Commit(ctx context.Context, ownerID uint, actualCost int) error
}

const (
	reserveSQL = "UPDATE users SET message_credits = message_credits - ?, sent_today = sent_today + ?, sent_this_month = sent_this_month + ? WHERE id = ? AND message_credits >= ? AND sent_today + ? <= daily_send_limit AND sent_this_month + ? <= monthly_send_limit"
	refundSQL  = "UPDATE users SET message_credits = message_credits + ?, sent_today = sent_today - ?, sent_this_month = sent_this_month - ? WHERE id = ?"
)

// staleReservationAge is how long a reservation may sit uncommitted
// before the reset loop treats its worker as dead and refunds it. A
// send takes seconds, so an hour is far past any legitimate commit.
const staleReservationAge = time.Hour

// reservation is one reserve still waiting for its commit.
type reservation struct {
	cost int
	at   time.Time
}

// CreditQuotaGuard enforces quota against the user's credit balance and
// daily/monthly counters. The reservation is a single conditional
// UPDATE, so two campaigns of the same owner racing for the last credit
// cannot both win.
type CreditQuotaGuard struct {
	DB     *gorm.DB
	Logger *logrus.Entry

	// Outstanding reservations per owner, oldest first. Commits
	// finalize them in order; the worker holds at most one between a
	// reserve and its commit. The queue is process-local, so a worker
	// dying mid-dispatch orphans its entry until aging refunds it.
	mu      sync.Mutex
	pending map[uint][]reservation
}

func NewCreditQuotaGuard(db *gorm.DB, logger *logrus.Entry) *CreditQuotaGuard {
	return &CreditQuotaGuard{
		DB:      db,
		Logger:  logger,
		pending: make(map[uint][]reservation),
	}
}

func (g *CreditQuotaGuard) CheckAndReserve(ctx context.Context, ownerID uint, cost int) (*QuotaDecision, error) {
	if cost <= 0 {
		return nil, fmt.Errorf("reservation cost must be positive, got %d", cost)
	}

	res := g.DB.WithContext(ctx).Exec(reserveSQL, cost, cost, cost, ownerID, cost, cost, cost)
	if res.Error != nil {
		return nil, fmt.Errorf("quota reservation failed: %w", res.Error)
	}
	allowed := res.RowsAffected == 1

	var user models.User
	if err := g.DB.WithContext(ctx).
		Select("message_credits", "sent_today", "sent_this_month", "daily_send_limit", "monthly_send_limit").
		First(&user, ownerID).Error; err != nil {
		return nil, fmt.Errorf("failed to load quota state for user %d: %w", ownerID, err)
	}

	if allowed {
		g.mu.Lock()
		g.pending[ownerID] = append(g.pending[ownerID], reservation{cost: cost, at: time.Now()})
		g.mu.Unlock()
	} else {
		g.Logger.WithFields(logrus.Fields{
			"user_id":          ownerID,
			"cost":             cost,
			"credits":          user.MessageCredits,
			"remaining_daily":  user.DailySendLimit - user.SentToday,
			"remaining_month":  user.MonthlySendLimit - user.SentThisMonth,
		}).Warn("Quota reservation denied")
	}

	return &QuotaDecision{
		Allowed:          allowed,
		RemainingDaily:   user.DailySendLimit - user.SentToday,
		RemainingMonthly: user.MonthlySendLimit - user.SentThisMonth,
		RemainingCredits: user.MessageCredits,
	}, nil
}

// Commit finalizes the owner's oldest outstanding reservation at
// actualCost. A smaller actual cost (zero for a failed send) refunds
// the unused part of the reservation.
func (g *CreditQuotaGuard) Commit(ctx context.Context, ownerID uint, actualCost int) error {
	g.mu.Lock()
	reserved := actualCost
	if queue := g.pending[ownerID]; len(queue) > 0 {
		reserved = queue[0].cost
		g.pending[ownerID] = queue[1:]
	}
	g.mu.Unlock()

	if refund := reserved - actualCost; refund > 0 {
		if err := g.DB.WithContext(ctx).Exec(refundSQL, refund, refund, refund, ownerID).Error; err != nil {
			return fmt.Errorf("quota refund failed: %w", err)
		}
	}

	if actualCost > 0 {
		usage := models.CreditUsage{
			UserID: ownerID,
			Amount: actualCost,
			Action: "send_message",
		}
		if err := g.DB.WithContext(ctx).Create(&usage).Error; err != nil {
			// The reservation already debited the balance; a missing
			// ledger row is not worth failing the dispatch over.
			g.Logger.WithError(err).Warn("Failed to record credit usage")
		}
	}
	return nil
}

// ResetDailyCounters resets sent_today at midnight and sent_this_month
// on the first of each month.
func (g *CreditQuotaGuard) ResetDailyCounters(ctx context.Context) {
	for {
		now := time.Now()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(nextMidnight)):
		}

		if err := g.DB.Model(&models.User{}).
			Where("sent_today > 0").
			Update("sent_today", 0).Error; err != nil {
			g.Logger.WithError(err).Error("Failed to reset daily send counters")
		} else {
			g.Logger.Info("Reset daily send counters")
		}

		if nextMidnight.Day() == 1 {
			if err := g.DB.Model(&models.User{}).
				Where("sent_this_month > 0").
				Update("sent_this_month", 0).Error; err != nil {
				g.Logger.WithError(err).Error("Failed to reset monthly send counters")
			}
		}

		g.releaseStaleReservations(ctx, staleReservationAge)
	}
}

// releaseStaleReservations refunds reservations whose commit never
// arrived, holds orphaned by a worker that died between the reserve
// and its commit.
func (g *CreditQuotaGuard) releaseStaleReservations(ctx context.Context, olderThan time.Duration) {
	cutoff := time.Now().Add(-olderThan)

	g.mu.Lock()
	stale := make(map[uint]int)
	for owner, queue := range g.pending {
		n := 0
		for n < len(queue) && queue[n].at.Before(cutoff) {
			stale[owner] += queue[n].cost
			n++
		}
		switch {
		case n == len(queue):
			delete(g.pending, owner)
		case n > 0:
			g.pending[owner] = queue[n:]
		}
	}
	g.mu.Unlock()

	for owner, amount := range stale {
		if err := g.DB.WithContext(ctx).Exec(refundSQL, amount, amount, amount, owner).Error; err != nil {
			g.Logger.WithError(err).WithField("user_id", owner).Error("Failed to refund stale reservations")
			continue
		}
		g.Logger.WithFields(logrus.Fields{
			"user_id": owner,
			"amount":  amount,
		}).Warn("Refunded stale quota reservations")
	}
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign lifecycle states
const (
	CampaignStatusPending   = "pending"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusRunning   = "running"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusCancelled = "cancelled"
)

// Per-contact dispatch states
const (
	ContactStatusPending   = "pending"
	ContactStatusSent      = "sent"
	ContactStatusFailed    = "failed"
	ContactStatusCancelled = "cancelled"
)

// Humanization controls the pacing between consecutive sends so a
// campaign does not fire messages at machine cadence.
type Humanization struct {
	DelayMinSeconds int  `json:"delay_min_seconds"`
	DelayMaxSeconds int  `json:"delay_max_seconds"`
	RandomizeOrder  bool `json:"randomize_order"`
}

// SendingWindow restricts dispatch to certain days and hours. A message
// may only go out when the time falls on an allowed weekday between
// StartHour (inclusive) and EndHour (exclusive).
type SendingWindow struct {
	Days      []time.Weekday `json:"days"`
	StartHour int            `json:"start_hour"`
	EndHour   int            `json:"end_hour"`
}

// Contains reports whether t falls inside the window.
func (w *SendingWindow) Contains(t time.Time) bool {
	if !w.allowsDay(t.Weekday()) {
		return false
	}
	h := t.Hour()
	return h >= w.StartHour && h < w.EndHour
}

// NextOpening returns the earliest instant at or after t when the
// window is open. If t is already inside the window it is returned
// unchanged. A window that never opens (no allowed days) also returns
// t; callers recognize it by the result failing to advance.
func (w *SendingWindow) NextOpening(t time.Time) time.Time {
	if w.Contains(t) {
		return t
	}
	for d := 0; d <= 7; d++ {
		day := t.AddDate(0, 0, d)
		open := time.Date(day.Year(), day.Month(), day.Day(), w.StartHour, 0, 0, 0, t.Location())
		if !w.allowsDay(open.Weekday()) {
			continue
		}
		if open.After(t) {
			return open
		}
	}
	return t
}

func (w *SendingWindow) allowsDay(d time.Weekday) bool {
	for _, allowed := range w.Days {
		if allowed == d {
			return true
		}
	}
	return false
}

// Schedule holds the optional start time and sending window.
type Schedule struct {
	ScheduledAt   *time.Time     `json:"scheduled_at,omitempty"`
	SendingWindow *SendingWindow `json:"sending_window,omitempty"`
}

// Campaign is a bulk WhatsApp send job: a fixed contact queue, one or
// more message template variants, humanization pacing and an optional
// schedule. The counter columns are denormalized for dashboards; the
// per-contact rows remain the source of truth.
type Campaign struct {
	gorm.Model
	UserID  uint   `gorm:"not null;index" json:"user_id"`
	InboxID string `gorm:"not null" json:"inbox_id"` // gateway instance the messages go out through

	Name      string   `gorm:"not null" json:"name"`
	Templates []string `gorm:"type:jsonb;serializer:json" json:"templates"`

	Status       string       `gorm:"default:'pending';index" json:"status"` // pending, scheduled, running, paused, completed, cancelled
	Humanization Humanization `gorm:"type:jsonb;serializer:json" json:"humanization"`
	Schedule     Schedule     `gorm:"type:jsonb;serializer:json" json:"schedule"`

	// Seed for the queue shuffle so a restart before the first send
	// reproduces the same order.
	OrderSeed int64 `json:"-"`

	// Dispatch progress (denormalized)
	TotalContacts   int `gorm:"default:0" json:"total_contacts"`
	SentCount       int `gorm:"default:0" json:"sent_count"`
	FailedCount     int `gorm:"default:0" json:"failed_count"`
	CancelledCount  int `gorm:"default:0" json:"cancelled_count"`
	CurrentPosition int `gorm:"default:0" json:"current_position"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	LastError   string     `json:"last_error,omitempty"`

	// Relations
	Contacts []CampaignContact `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"contacts,omitempty"`
}

// PendingCount derives the number of contacts still awaiting dispatch.
func (c *Campaign) PendingCount() int {
	return c.TotalContacts - c.SentCount - c.FailedCount - c.CancelledCount
}

// CampaignContact is one queued recipient. ProcessingOrder fixes its
// slot in the dispatch sequence; the set of orders across a campaign is
// always exactly 0..TotalContacts-1.
type CampaignContact struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index:idx_contact_queue,priority:1" json:"campaign_id"`

	Phone     string            `gorm:"not null" json:"phone"`
	Name      string            `json:"name,omitempty"`
	Email     string            `json:"email,omitempty"`
	Variables map[string]string `gorm:"type:jsonb;serializer:json" json:"variables,omitempty"`

	Status          string `gorm:"default:'pending';index" json:"status"` // pending, sent, failed, cancelled
	ProcessingOrder int    `gorm:"not null;index:idx_contact_queue,priority:2" json:"processing_order"`

	SentAt           *time.Time `json:"sent_at,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	ErrorReason      string     `json:"error_reason,omitempty"` // normalized bucket for reporting
	GatewayMessageID string     `json:"gateway_message_id,omitempty"`

	// Placeholders that had no value and rendered empty. Metadata only,
	// never a send failure.
	MissingVariables []string `gorm:"type:jsonb;serializer:json" json:"missing_variables,omitempty"`
}

// CampaignReport is a derived view recomputed from contact rows on
// demand. It is never persisted and never the source of truth.
type CampaignReport struct {
	CampaignID      uint           `json:"campaign_id"`
	TotalContacts   int            `json:"total_contacts"`
	SentCount       int            `json:"sent_count"`
	FailedCount     int            `json:"failed_count"`
	CancelledCount  int            `json:"cancelled_count"`
	SuccessRate     float64        `json:"success_rate"`
	DurationSeconds int            `json:"duration_seconds"`
	ErrorsByType    map[string]int `json:"errors_by_type"`
}

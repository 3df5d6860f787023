package worker

import (
	"context"
	"time"

	"github.com/HeltonFraga01/cortexx-sub017/models"
)

// ContactOutcome records the result of one dispatch attempt.
type ContactOutcome struct {
	Status           string
	SentAt           *time.Time
	GatewayMessageID string
	ErrorMessage     string
	ErrorReason      string
	MissingVariables []string
}

// Store is the persistence surface the dispatch engine runs against.
// Status updates are conditional on the current status so concurrent
// control calls and workers cannot clobber each other.
type Store interface {
	CreateCampaign(ctx context.Context, campaign *models.Campaign, contacts []models.CampaignContact) error
	GetCampaign(ctx context.Context, id uint) (*models.Campaign, error)

	// UpdateCampaignStatus moves the campaign to the given status only
	// if its current status is one of from. Returns false, with no side
	// effects, when the guard does not match.
	UpdateCampaignStatus(ctx context.Context, id uint, from []string, to string) (bool, error)
	MarkStarted(ctx context.Context, id uint, at time.Time) error
	MarkCompleted(ctx context.Context, id uint, at time.Time) error
	SetLastError(ctx context.Context, id uint, message string) error

	// NextPendingContact returns the pending contact at the given
	// processing order, or nil when that slot holds no pending contact.
	NextPendingContact(ctx context.Context, campaignID uint, position int) (*models.CampaignContact, error)

	// ApplyContactOutcome resolves a contact, but only from pending;
	// contact statuses never move backwards. Returns false when the
	// contact was already resolved (e.g. cancelled mid-send).
	ApplyContactOutcome(ctx context.Context, contactID uint, outcome ContactOutcome) (bool, error)

	// IncrementCounters bumps the campaign's denormalized counters and
	// advances current_position by the position delta.
	IncrementCounters(ctx context.Context, campaignID uint, sent, failed, position int) error

	// CancelPendingContacts marks every still-pending contact cancelled
	// and returns how many were affected. Sent and failed contacts are
	// never touched.
	CancelPendingContacts(ctx context.Context, campaignID uint) (int64, error)

	ListContacts(ctx context.Context, campaignID uint) ([]models.CampaignContact, error)
	ListByStatus(ctx context.Context, status string) ([]models.Campaign, error)
	ListDueScheduled(ctx context.Context, now time.Time) ([]models.Campaign, error)
}

package worker

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/HeltonFraga01/cortexx-sub017/models"
)

// GormStore implements Store over the console's Postgres database.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) CreateCampaign(ctx context.Context, campaign *models.Campaign, contacts []models.CampaignContact) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(campaign).Error; err != nil {
			return err
		}
		for i := range contacts {
			contacts[i].CampaignID = campaign.ID
		}
		return tx.CreateInBatches(contacts, 500).Error
	})
}

func (s *GormStore) GetCampaign(ctx context.Context, id uint) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := s.DB.WithContext(ctx).First(&campaign, id).Error; err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (s *GormStore) UpdateCampaignStatus(ctx context.Context, id uint, from []string, to string) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) MarkStarted(ctx context.Context, id uint, at time.Time) error {
	return s.DB.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ? AND started_at IS NULL", id).
		Update("started_at", at).Error
}

func (s *GormStore) MarkCompleted(ctx context.Context, id uint, at time.Time) error {
	return s.DB.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ?", id).
		Update("completed_at", at).Error
}

func (s *GormStore) SetLastError(ctx context.Context, id uint, message string) error {
	return s.DB.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ?", id).
		Update("last_error", message).Error
}

func (s *GormStore) NextPendingContact(ctx context.Context, campaignID uint, position int) (*models.CampaignContact, error) {
	var contact models.CampaignContact
	err := s.DB.WithContext(ctx).
		Where("campaign_id = ? AND processing_order = ? AND status = ?",
			campaignID, position, models.ContactStatusPending).
		First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (s *GormStore) ApplyContactOutcome(ctx context.Context, contactID uint, outcome ContactOutcome) (bool, error) {
	updates := map[string]interface{}{
		"status":             outcome.Status,
		"sent_at":            outcome.SentAt,
		"gateway_message_id": outcome.GatewayMessageID,
		"error_message":      outcome.ErrorMessage,
		"error_reason":       outcome.ErrorReason,
		"missing_variables":  outcome.MissingVariables,
	}
	res := s.DB.WithContext(ctx).Model(&models.CampaignContact{}).
		Where("id = ? AND status = ?", contactID, models.ContactStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) IncrementCounters(ctx context.Context, campaignID uint, sent, failed, position int) error {
	updates := map[string]interface{}{
		"current_position": gorm.Expr("current_position + ?", position),
	}
	if sent != 0 {
		updates["sent_count"] = gorm.Expr("sent_count + ?", sent)
	}
	if failed != 0 {
		updates["failed_count"] = gorm.Expr("failed_count + ?", failed)
	}
	return s.DB.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Updates(updates).Error
}

func (s *GormStore) CancelPendingContacts(ctx context.Context, campaignID uint) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.CampaignContact{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.ContactStatusPending).
		Update("status", models.ContactStatusCancelled)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		if err := s.DB.WithContext(ctx).Model(&models.Campaign{}).
			Where("id = ?", campaignID).
			Update("cancelled_count", gorm.Expr("cancelled_count + ?", res.RowsAffected)).Error; err != nil {
			return res.RowsAffected, err
		}
	}
	return res.RowsAffected, nil
}

func (s *GormStore) ListContacts(ctx context.Context, campaignID uint) ([]models.CampaignContact, error) {
	var contacts []models.CampaignContact
	err := s.DB.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("processing_order ASC").
		Find(&contacts).Error
	return contacts, err
}

func (s *GormStore) ListByStatus(ctx context.Context, status string) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := s.DB.WithContext(ctx).Where("status = ?", status).Find(&campaigns).Error
	return campaigns, err
}

func (s *GormStore) ListDueScheduled(ctx context.Context, now time.Time) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := s.DB.WithContext(ctx).
		Where("status = ? AND schedule->>'scheduled_at' IS NOT NULL AND (schedule->>'scheduled_at')::timestamptz <= ?",
			models.CampaignStatusScheduled, now).
		Find(&campaigns).Error
	return campaigns, err
}

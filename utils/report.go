package utils

import (
	"math"

	"github.com/HeltonFraga01/cortexx-sub017/models"
)

// BuildReport derives campaign statistics from the persisted contact
// rows. The rows are the only input; the campaign's denormalized
// counters are never trusted here, so the report can be recomputed at
// any time and always agrees with what actually happened.
func BuildReport(campaign *models.Campaign, contacts []models.CampaignContact) *models.CampaignReport {
	report := &models.CampaignReport{
		CampaignID:    campaign.ID,
		TotalContacts: len(contacts),
		ErrorsByType:  make(map[string]int),
	}

	for _, contact := range contacts {
		switch contact.Status {
		case models.ContactStatusSent:
			report.SentCount++
		case models.ContactStatusFailed:
			report.FailedCount++
			report.ErrorsByType[NormalizeReason(contact.ErrorReason)]++
		case models.ContactStatusCancelled:
			report.CancelledCount++
		}
	}

	if attempted := report.SentCount + report.FailedCount; attempted > 0 {
		report.SuccessRate = round2(float64(report.SentCount) / float64(attempted))
	}

	if campaign.StartedAt != nil && campaign.CompletedAt != nil {
		report.DurationSeconds = int(campaign.CompletedAt.Sub(*campaign.StartedAt).Seconds())
	}

	return report
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

package utils

import (
	"math/rand"

	"github.com/HeltonFraga01/cortexx-sub017/models"
)

// MaterializeQueue assigns each contact its processing order 0..N-1,
// fixing the dispatch sequence for the life of the campaign. With
// RandomizeOrder set, orders are shuffled with the campaign's stored
// seed so a restart before the first send reproduces the same sequence.
//
// A queue may only be materialized before the campaign first enters
// running; doing it later would reorder contacts under a live worker.
func MaterializeQueue(campaign *models.Campaign, contacts []models.CampaignContact) error {
	if campaign.StartedAt != nil ||
		(campaign.Status != models.CampaignStatusPending && campaign.Status != models.CampaignStatusScheduled) {
		return ErrCampaignAlreadyStarted
	}
	if len(contacts) == 0 {
		return &ValidationError{Message: "campaign has no contacts"}
	}

	for i := range contacts {
		contacts[i].ProcessingOrder = i
	}

	if campaign.Humanization.RandomizeOrder {
		rng := rand.New(rand.NewSource(campaign.OrderSeed))
		rng.Shuffle(len(contacts), func(i, j int) {
			contacts[i].ProcessingOrder, contacts[j].ProcessingOrder =
				contacts[j].ProcessingOrder, contacts[i].ProcessingOrder
		})
	}

	campaign.TotalContacts = len(contacts)
	campaign.CurrentPosition = 0
	return nil
}

package worker

import "github.com/HeltonFraga01/cortexx-sub017/models"

// Legal campaign status transitions. completed and cancelled are
// terminal; nothing leaves them.
var transitions = map[string][]string{
	models.CampaignStatusPending:   {models.CampaignStatusRunning, models.CampaignStatusCancelled},
	models.CampaignStatusScheduled: {models.CampaignStatusRunning, models.CampaignStatusCancelled},
	models.CampaignStatusRunning:   {models.CampaignStatusPaused, models.CampaignStatusCompleted, models.CampaignStatusCancelled},
	models.CampaignStatusPaused:    {models.CampaignStatusRunning, models.CampaignStatusCancelled},
	models.CampaignStatusCompleted: {},
	models.CampaignStatusCancelled: {},
}

// CanTransition reports whether from -> to is a legal status change.
// Redundant transitions (running -> running) are illegal, so a
// duplicate control call is rejected instead of silently absorbed.
func CanTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	return status == models.CampaignStatusCompleted || status == models.CampaignStatusCancelled
}

// sourcesOf returns every status that may legally move to the given
// one. The conditional status updates use this as their guard list so
// the transition table stays the single authority.
func sourcesOf(to string) []string {
	var from []string
	for status := range transitions {
		if CanTransition(status, to) {
			from = append(from, status)
		}
	}
	return from
}

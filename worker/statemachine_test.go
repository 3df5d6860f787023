package worker

import (
	"sort"
	"testing"

	"github.com/HeltonFraga01/cortexx-sub017/models"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]string]bool{
		{models.CampaignStatusPending, models.CampaignStatusRunning}:     true,
		{models.CampaignStatusPending, models.CampaignStatusCancelled}:   true,
		{models.CampaignStatusScheduled, models.CampaignStatusRunning}:   true,
		{models.CampaignStatusScheduled, models.CampaignStatusCancelled}: true,
		{models.CampaignStatusRunning, models.CampaignStatusPaused}:      true,
		{models.CampaignStatusRunning, models.CampaignStatusCompleted}:   true,
		{models.CampaignStatusRunning, models.CampaignStatusCancelled}:   true,
		{models.CampaignStatusPaused, models.CampaignStatusRunning}:      true,
		{models.CampaignStatusPaused, models.CampaignStatusCancelled}:    true,
	}

	statuses := []string{
		models.CampaignStatusPending,
		models.CampaignStatusScheduled,
		models.CampaignStatusRunning,
		models.CampaignStatusPaused,
		models.CampaignStatusCompleted,
		models.CampaignStatusCancelled,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]string{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestSelfTransitionsAreIllegal(t *testing.T) {
	for status := range transitions {
		if CanTransition(status, status) {
			t.Fatalf("%s -> %s must be illegal", status, status)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(models.CampaignStatusCompleted) || !IsTerminal(models.CampaignStatusCancelled) {
		t.Fatal("completed and cancelled are terminal")
	}
	for _, status := range []string{
		models.CampaignStatusPending,
		models.CampaignStatusScheduled,
		models.CampaignStatusRunning,
		models.CampaignStatusPaused,
	} {
		if IsTerminal(status) {
			t.Fatalf("%s must not be terminal", status)
		}
	}
}

func TestSourcesOf(t *testing.T) {
	got := sourcesOf(models.CampaignStatusCancelled)
	sort.Strings(got)
	want := []string{
		models.CampaignStatusPaused,
		models.CampaignStatusPending,
		models.CampaignStatusRunning,
		models.CampaignStatusScheduled,
	}
	if len(got) != len(want) {
		t.Fatalf("sourcesOf(cancelled) = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sourcesOf(cancelled) = %v, want %v", got, want)
		}
	}

	if got := sourcesOf(models.CampaignStatusPaused); len(got) != 1 || got[0] != models.CampaignStatusRunning {
		t.Fatalf("sourcesOf(paused) = %v", got)
	}
}

package controller

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/HeltonFraga01/cortexx-sub017/config"
	"github.com/HeltonFraga01/cortexx-sub017/models"
)

type progressFrame struct {
	CampaignID      uint   `json:"campaign_id"`
	Status          string `json:"status"`
	TotalContacts   int    `json:"total_contacts"`
	SentCount       int    `json:"sent_count"`
	FailedCount     int    `json:"failed_count"`
	CancelledCount  int    `json:"cancelled_count"`
	PendingCount    int    `json:"pending_count"`
	CurrentPosition int    `json:"current_position"`
	Percent         int    `json:"percent"`
	LastError       string `json:"last_error,omitempty"`
}

// HandleCampaignProgressWS streams progress frames for one campaign
// about once a second until the campaign reaches a terminal state or
// the client disconnects.
func HandleCampaignProgressWS(c *websocket.Conn) {
	defer c.Close()

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		log.Printf("Progress WS: invalid campaign ID %q", c.Params("id"))
		return
	}
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		log.Printf("Progress WS: missing authenticated user")
		return
	}

	for {
		var campaign models.Campaign
		if err := config.DB.Where("id = ? AND user_id = ?", id, userID).First(&campaign).Error; err != nil {
			log.Printf("Progress WS: campaign %d: %v", id, err)
			return
		}

		frame := progressFrame{
			CampaignID:      campaign.ID,
			Status:          campaign.Status,
			TotalContacts:   campaign.TotalContacts,
			SentCount:       campaign.SentCount,
			FailedCount:     campaign.FailedCount,
			CancelledCount:  campaign.CancelledCount,
			PendingCount:    campaign.PendingCount(),
			CurrentPosition: campaign.CurrentPosition,
			LastError:       campaign.LastError,
		}
		if campaign.TotalContacts > 0 {
			done := campaign.SentCount + campaign.FailedCount + campaign.CancelledCount
			frame.Percent = done * 100 / campaign.TotalContacts
		}

		if err := c.WriteJSON(frame); err != nil {
			return
		}

		if campaign.Status == models.CampaignStatusCompleted ||
			campaign.Status == models.CampaignStatusCancelled {
			return
		}

		time.Sleep(1 * time.Second)
	}
}

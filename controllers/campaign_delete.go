package controller

import (
	"github.com/gofiber/fiber/v2"

	"github.com/HeltonFraga01/cortexx-sub017/models"
)

// DeleteCampaign removes a campaign and its contacts. A running
// campaign must be paused or cancelled first.
func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
	campaign, err := cc.loadOwnedCampaign(c)
	if campaign == nil {
		return err
	}

	if campaign.Status == models.CampaignStatusRunning {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Cannot delete a running campaign, pause or cancel it first",
		})
	}

	tx := cc.DB.Begin()
	if err := tx.Where("campaign_id = ?", campaign.ID).Delete(&models.CampaignContact{}).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete campaign contacts",
		})
	}
	if err := tx.Delete(campaign).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete campaign",
		})
	}
	if err := tx.Commit().Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete campaign",
		})
	}

	cc.Logger.Printf("Campaign %d deleted", campaign.ID)
	return c.JSON(fiber.Map{
		"message": "Campaign deleted",
	})
}

package controller

import (
	"github.com/gofiber/fiber/v2"

	"github.com/HeltonFraga01/cortexx-sub017/utils"
)

// GetCampaignReport recomputes the delivery report from the contact
// rows. The denormalized campaign counters are for dashboards; the
// report always derives from the rows themselves.
func (cc *CampaignController) GetCampaignReport(c *fiber.Ctx) error {
	campaign, err := cc.loadOwnedCampaign(c)
	if campaign == nil {
		return err
	}

	contacts, err := cc.Store.ListContacts(c.Context(), campaign.ID)
	if err != nil {
		cc.Logger.Printf("Failed to load contacts for campaign %d report: %v", campaign.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build report",
		})
	}

	return c.JSON(utils.BuildReport(campaign, contacts))
}

package controller

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/HeltonFraga01/cortexx-sub017/models"
	"github.com/HeltonFraga01/cortexx-sub017/utils"
)

// StartCampaign begins dispatching a pending or scheduled campaign.
func (cc *CampaignController) StartCampaign(c *fiber.Ctx) error {
	return cc.control(c, "start", cc.Dispatcher.Start)
}

// PauseCampaign suspends a running campaign before its next send. The
// contact being dispatched right now still completes.
func (cc *CampaignController) PauseCampaign(c *fiber.Ctx) error {
	return cc.control(c, "pause", cc.Dispatcher.Pause)
}

// ResumeCampaign continues a paused campaign from where it stopped,
// never from the beginning.
func (cc *CampaignController) ResumeCampaign(c *fiber.Ctx) error {
	return cc.control(c, "resume", cc.Dispatcher.Resume)
}

// CancelCampaign terminates a campaign and freezes its progress.
func (cc *CampaignController) CancelCampaign(c *fiber.Ctx) error {
	return cc.control(c, "cancel", cc.Dispatcher.Cancel)
}

// control runs one dispatcher operation against an owned campaign and
// maps a rejected state transition to 409 with the machine-readable
// code clients branch on.
func (cc *CampaignController) control(c *fiber.Ctx, action string, op func(ctx context.Context, id uint) error) error {
	campaign, err := cc.loadOwnedCampaign(c)
	if campaign == nil {
		return err
	}

	// The worker outlives the request, so control operations run on a
	// background context rather than the request's.
	if err := op(context.Background(), campaign.ID); err != nil {
		var stateErr *utils.StateError
		if errors.As(err, &stateErr) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": stateErr.Error(),
				"code":  stateErr.Code,
				"from":  stateErr.From,
				"to":    stateErr.To,
			})
		}
		cc.Logger.Printf("Campaign %d %s failed: %v", campaign.ID, action, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to " + action + " campaign",
		})
	}

	var updated models.Campaign
	if err := cc.DB.First(&updated, campaign.ID).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reload campaign",
		})
	}

	return c.JSON(fiber.Map{
		"message":  "Campaign " + action + " accepted",
		"campaign": updated,
	})
}

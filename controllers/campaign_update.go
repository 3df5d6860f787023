package controller

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/HeltonFraga01/cortexx-sub017/models"
	"github.com/HeltonFraga01/cortexx-sub017/utils"
)

type UpdateCampaignRequest struct {
	Name         *string              `json:"name" validate:"omitempty,max=200"`
	Templates    []string             `json:"templates" validate:"omitempty,min=1"`
	Humanization *models.Humanization `json:"humanization"`
	Schedule     *models.Schedule     `json:"schedule"`
}

// UpdateCampaign edits a campaign that has not started yet. Once the
// first send happened the queue and settings are frozen.
func (cc *CampaignController) UpdateCampaign(c *fiber.Ctx) error {
	campaign, err := cc.loadOwnedCampaign(c)
	if campaign == nil {
		return err
	}

	if campaign.StartedAt != nil ||
		(campaign.Status != models.CampaignStatusPending && campaign.Status != models.CampaignStatusScheduled) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": utils.ErrCampaignAlreadyStarted.Error(),
			"code":  utils.CodeCampaignAlreadyStarted,
		})
	}

	var req UpdateCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if req.Name != nil {
		campaign.Name = *req.Name
	}
	if req.Templates != nil {
		for i, tmpl := range req.Templates {
			if err := utils.ValidateTemplate(tmpl); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": fmt.Sprintf("template %d: %v", i+1, err),
				})
			}
		}
		campaign.Templates = req.Templates
	}
	if req.Humanization != nil {
		if err := validateHumanization(*req.Humanization); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		campaign.Humanization = *req.Humanization
	}
	if req.Schedule != nil {
		if err := validateSendingWindow(req.Schedule.SendingWindow); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		campaign.Schedule = *req.Schedule
		if req.Schedule.ScheduledAt != nil && req.Schedule.ScheduledAt.After(time.Now()) {
			campaign.Status = models.CampaignStatusScheduled
		} else {
			campaign.Status = models.CampaignStatusPending
		}
	}

	if err := cc.DB.Save(campaign).Error; err != nil {
		cc.Logger.Printf("Failed to update campaign %d: %v", campaign.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update campaign",
		})
	}

	return c.JSON(campaign)
}

package controller

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/HeltonFraga01/cortexx-sub017/models"
)

// GetCampaigns lists the user's campaigns, newest first, with
// page/limit pagination.
func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := cc.DB.Model(&models.Campaign{}).Where("user_id = ?", user.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count campaigns",
		})
	}

	var campaigns []models.Campaign
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&campaigns).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaigns",
		})
	}

	return c.JSON(fiber.Map{
		"campaigns": campaigns,
		"total":     total,
		"page":      page,
		"limit":     limit,
	})
}

// GetCampaign returns one campaign with live progress counters.
func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	campaign, err := cc.loadOwnedCampaign(c)
	if campaign == nil {
		return err
	}

	return c.JSON(fiber.Map{
		"campaign": campaign,
		"progress": fiber.Map{
			"total_contacts":   campaign.TotalContacts,
			"sent_count":       campaign.SentCount,
			"failed_count":     campaign.FailedCount,
			"cancelled_count":  campaign.CancelledCount,
			"pending_count":    campaign.PendingCount(),
			"current_position": campaign.CurrentPosition,
		},
	})
}

// GetCampaignContacts lists a campaign's contacts in processing order.
func (cc *CampaignController) GetCampaignContacts(c *fiber.Ctx) error {
	campaign, err := cc.loadOwnedCampaign(c)
	if campaign == nil {
		return err
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}

	query := cc.DB.Model(&models.CampaignContact{}).Where("campaign_id = ?", campaign.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count contacts",
		})
	}

	var contacts []models.CampaignContact
	if err := query.Order("processing_order ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&contacts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch contacts",
		})
	}

	return c.JSON(fiber.Map{
		"contacts": contacts,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// loadOwnedCampaign fetches the campaign in the :id param and verifies
// it belongs to the authenticated user. On failure the error response
// is already written; callers bail out when the campaign is nil.
func (cc *CampaignController) loadOwnedCampaign(c *fiber.Ctx) (*models.Campaign, error) {
	user := c.Locals("user").(*models.User)

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid campaign ID",
		})
	}

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", id, user.ID).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Campaign not found",
			})
		}
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaign",
		})
	}

	return &campaign, nil
}

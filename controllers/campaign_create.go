package controller

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"

	"github.com/HeltonFraga01/cortexx-sub017/models"
	"github.com/HeltonFraga01/cortexx-sub017/utils"
)

type ContactInput struct {
	Phone     string            `json:"phone" validate:"required,phone"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	Variables map[string]string `json:"variables"`
}

type CreateCampaignRequest struct {
	Name         string              `json:"name" validate:"required,max=200"`
	InboxID      string              `json:"inbox_id" validate:"required"`
	Templates    []string            `json:"templates" validate:"required,min=1"`
	Contacts     []ContactInput      `json:"contacts" validate:"required,min=1"`
	Humanization models.Humanization `json:"humanization"`
	Schedule     models.Schedule     `json:"schedule"`
}

// CreateCampaign validates the request, materializes the contact queue
// and persists campaign plus contacts in one transaction. The campaign
// comes back pending, or scheduled when a future start time is set.
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateCampaignRequest
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

	if err := validateCampaignInput(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	status := models.CampaignStatusPending
	if req.Schedule.ScheduledAt != nil && req.Schedule.ScheduledAt.After(time.Now()) {
		status = models.CampaignStatusScheduled
	}

	campaign := models.Campaign{
		UserID:       user.ID,
		InboxID:      req.InboxID,
		Name:         req.Name,
		Templates:    req.Templates,
		Status:       status,
		Humanization: req.Humanization,
		Schedule:     req.Schedule,
		OrderSeed:    rand.Int63(),
	}

	contacts := make([]models.CampaignContact, len(req.Contacts))
	for i, in := range req.Contacts {
		contacts[i] = models.CampaignContact{
			Phone:     in.Phone,
			Name:      in.Name,
			Email:     in.Email,
			Variables: in.Variables,
			Status:    models.ContactStatusPending,
		}
	}

	if err := utils.MaterializeQueue(&campaign, contacts); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := cc.Store.CreateCampaign(c.Context(), &campaign, contacts); err != nil {
		cc.Logger.Printf("Failed to create campaign: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create campaign",
		})
	}

	cc.Logger.Printf("Campaign %d created with %d contacts (status %s)", campaign.ID, campaign.TotalContacts, campaign.Status)

	return c.Status(fiber.StatusCreated).JSON(campaign)
}

// validateCampaignInput enforces the rules BodyParser and struct tags
// cannot express: template syntax, pacing bounds, window sanity,
// duplicate and malformed recipients.
func validateCampaignInput(req *CreateCampaignRequest) error {
	for i, tmpl := range req.Templates {
		if err := utils.ValidateTemplate(tmpl); err != nil {
			return fmt.Errorf("template %d: %w", i+1, err)
		}
	}

	if err := validateHumanization(req.Humanization); err != nil {
		return err
	}
	if err := validateSendingWindow(req.Schedule.SendingWindow); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(req.Contacts))
	for i, contact := range req.Contacts {
		if !utils.ValidPhone(contact.Phone) {
			return fmt.Errorf("contact %d: invalid phone number %q", i+1, contact.Phone)
		}
		if _, dup := seen[contact.Phone]; dup {
			return fmt.Errorf("contact %d: duplicate phone number %q", i+1, contact.Phone)
		}
		seen[contact.Phone] = struct{}{}

		if contact.Email != "" {
			if err := checkmail.ValidateFormat(contact.Email); err != nil {
				return fmt.Errorf("contact %d: invalid email %q", i+1, contact.Email)
			}
		}
	}

	return nil
}

// validateHumanization and validateSendingWindow are shared with
// UpdateCampaign so an edit cannot smuggle in settings that creation
// rejects.
func validateHumanization(h models.Humanization) error {
	if h.DelayMinSeconds < 0 || h.DelayMaxSeconds < 0 {
		return &utils.ValidationError{Message: "humanization delays must not be negative"}
	}
	if h.DelayMaxSeconds < h.DelayMinSeconds {
		return &utils.ValidationError{Message: "humanization delay_max_seconds must be >= delay_min_seconds"}
	}
	return nil
}

func validateSendingWindow(w *models.SendingWindow) error {
	if w == nil {
		return nil
	}
	if len(w.Days) == 0 {
		return &utils.ValidationError{Message: "sending window must allow at least one day"}
	}
	if w.StartHour < 0 || w.EndHour > 24 || w.StartHour >= w.EndHour {
		return &utils.ValidationError{Message: "sending window hours must satisfy 0 <= start < end <= 24"}
	}
	for _, d := range w.Days {
		if d < time.Sunday || d > time.Saturday {
			return &utils.ValidationError{Message: "sending window contains an invalid weekday"}
		}
	}
	return nil
}

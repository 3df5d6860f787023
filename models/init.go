package models

import "gorm.io/gorm"

// Initialize default plans in your database migration
func CreateDefaultPlans(db *gorm.DB) error {
	defaultPlans := []Plan{
		{
			Name:             "free",
			Description:      "Free starter plan with 1,000 message credits",
			MessageCredits:   1000,
			Price:            0,
			DailySendLimit:   500,
			MonthlySendLimit: 10000,
			MaxInboxes:       1,
		},
		{
			Name:             "starter",
			Description:      "Starter plan with 20,000 message credits",
			MessageCredits:   20000,
			Price:            2000, // $20
			DailySendLimit:   1000,
			MonthlySendLimit: 30000,
			MaxInboxes:       3,
			DisplayPrice:     "$20",
		},
		{
			Name:             "grow",
			Description:      "Growth plan with 100,000 message credits",
			MessageCredits:   100000,
			Price:            6000, // $60
			DailySendLimit:   5000,
			MonthlySendLimit: 150000,
			MaxInboxes:       10,
			DisplayPrice:     "$60",
			IsPopular:        true,
			Recommended:      true,
		},
		{
			Name:             "enterprise",
			Description:      "Custom plan for high-volume senders",
			MessageCredits:   500000,
			Price:            20000, // $200
			DailySendLimit:   20000,
			MonthlySendLimit: 600000,
			MaxInboxes:       50,
			DisplayPrice:     "$200",
		},
	}
	for _, plan := range defaultPlans {
		if err := db.FirstOrCreate(&plan, "name = ?", plan.Name).Error; err != nil {
			return err
		}
	}
	return nil
}

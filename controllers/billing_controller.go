package controller

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"gorm.io/gorm"

	"github.com/HeltonFraga01/cortexx-sub017/config"
	"github.com/HeltonFraga01/cortexx-sub017/models"
	"github.com/HeltonFraga01/cortexx-sub017/utils"
)

func InitStripe() {
	stripe.Key = config.AppConfig.StripeSecretKey
}

type PaymentRequest struct {
	PlanID uint `json:"plan_id" validate:"required"`
}

// GetPlans lists the purchasable credit packages.
func GetPlans(c *fiber.Ctx) error {
	var plans []models.Plan
	if err := config.DB.Order("price ASC").Find(&plans).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch plans",
		})
	}
	for i := range plans {
		plans[i].DisplayPrice = "$" + strconv.Itoa(plans[i].Price/100)
	}
	return c.JSON(plans)
}

// CreatePaymentIntent creates a Stripe Payment Intent for a credit
// package purchase.
func CreatePaymentIntent(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req PaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.PlanID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Plan ID is required",
		})
	}

	// Get the plan from database
	var plan models.Plan
	if err := config.DB.First(&plan, req.PlanID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Plan not found",
		})
	}

	// Create or get Stripe customer
	customerID, err := getOrCreateStripeCustomer(user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process payment",
		})
	}

	// Create Payment Intent
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(plan.Price)),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		Customer: stripe.String(customerID),
		Metadata: map[string]string{
			"user_id": strconv.Itoa(int(user.ID)),
			"plan_id": strconv.Itoa(int(plan.ID)),
		},
		Description: stripe.String("Purchase of " + plan.Name + " plan"),
	}

	if plan.BillingInterval != "one_time" {
		params.SetupFutureUsage = stripe.String("off_session")
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process payment",
		})
	}

	// Create transaction record
	transaction := models.CreditTransaction{
		UserID:                user.ID,
		PlanID:                &plan.ID,
		MessageCredits:        plan.MessageCredits,
		Amount:                plan.Price,
		Currency:              "usd",
		PaymentStatus:         "requires_payment_method",
		StripePaymentIntentID: pi.ID,
		Description:           "Purchase of " + plan.Name + " plan",
	}

	if err := config.DB.Create(&transaction).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process transaction",
		})
	}

	return c.JSON(fiber.Map{
		"clientSecret":   pi.ClientSecret,
		"transaction_id": transaction.ID,
		"amount":         plan.Price,
		"currency":       "usd",
	})
}

// HandlePaymentWebhook handles Stripe webhook events. A succeeded
// payment credits the user's balance and applies the plan's send
// limits atomically.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	event, err := utils.ConstructStripeEvent(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid payment intent payload",
			})
		}
		if err := applyPaymentSucceeded(&pi); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to apply payment",
			})
		}
	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err == nil {
			config.DB.Model(&models.CreditTransaction{}).
				Where("stripe_payment_intent_id = ?", pi.ID).
				Update("payment_status", "failed")
		}
	}

	return c.JSON(fiber.Map{"received": true})
}

// applyPaymentSucceeded marks the transaction completed and grants the
// purchased credits plus the plan's limits in one transaction. A
// webhook redelivery is a no-op because the status guard only matches
// once.
func applyPaymentSucceeded(pi *stripe.PaymentIntent) error {
	return config.DB.Transaction(func(tx *gorm.DB) error {
		var transaction models.CreditTransaction
		if err := tx.Where("stripe_payment_intent_id = ? AND payment_status <> ?", pi.ID, "completed").
			First(&transaction).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}

		if err := tx.Model(&transaction).Update("payment_status", "completed").Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"message_credits": gorm.Expr("message_credits + ?", transaction.MessageCredits),
		}
		if transaction.PlanID != nil {
			var plan models.Plan
			if err := tx.First(&plan, *transaction.PlanID).Error; err == nil {
				updates["plan_id"] = plan.ID
				updates["plan_name"] = plan.Name
				updates["daily_send_limit"] = plan.DailySendLimit
				updates["monthly_send_limit"] = plan.MonthlySendLimit
			}
		}

		return tx.Model(&models.User{}).
			Where("id = ?", transaction.UserID).
			Updates(updates).Error
	})
}

func getOrCreateStripeCustomer(user *models.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Metadata: map[string]string{
			"user_id": strconv.Itoa(int(user.ID)),
		},
	}
	if user.Name != nil {
		params.Name = stripe.String(*user.Name)
	}

	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}

	if err := config.DB.Model(user).Update("stripe_customer_id", cust.ID).Error; err != nil {
		return "", err
	}
	user.StripeCustomerID = &cust.ID
	return cust.ID, nil
}

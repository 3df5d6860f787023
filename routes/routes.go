package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	controller "github.com/HeltonFraga01/cortexx-sub017/controllers"
	"github.com/HeltonFraga01/cortexx-sub017/middleware"
	"github.com/HeltonFraga01/cortexx-sub017/worker"
)

// SetupRoutes wires every HTTP and WebSocket endpoint.
func SetupRoutes(app *fiber.App, db *gorm.DB, store worker.Store, dispatcher *worker.Dispatcher) {
	SetupAuthRoutes(app)
	SetupAPIRoutes(app, db, store, dispatcher)
}

func SetupAuthRoutes(app *fiber.App) {
	authLogger := log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Auth routes group with logging middleware
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Public auth endpoints (no authentication required)
	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)
	auth.Post("/refresh", controller.RefreshToken)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Get("/me", controller.GetCurrentUser)

	// Billing routes
	billing := app.Group("/billing")
	billing.Get("/plans", controller.GetPlans)
	billing.Post("/webhook", controller.HandlePaymentWebhook)
	billing.Post("/create-intent", middleware.Protected(), controller.CreatePaymentIntent)

	authLogger.Println("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, store worker.Store, dispatcher *worker.Dispatcher) {
	campaignController := controller.NewCampaignController(
		db, log.New(os.Stdout, "CAMPAIGN: ", log.LstdFlags), store, dispatcher)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Campaign routes
	campaign := api.Group("/campaigns")
	campaign.Post("/", campaignController.CreateCampaign)
	campaign.Get("/", campaignController.GetCampaigns)
	campaign.Get("/:id", campaignController.GetCampaign)
	campaign.Put("/:id", campaignController.UpdateCampaign)
	campaign.Delete("/:id", campaignController.DeleteCampaign)
	campaign.Get("/:id/contacts", campaignController.GetCampaignContacts)
	campaign.Get("/:id/report", campaignController.GetCampaignReport)

	// Control endpoints take the dispatcher path and are rate limited
	// so clients cannot hammer start/pause/resume/cancel.
	control := campaign.Group("", middleware.DispatchRateLimiter())
	control.Post("/:id/start", campaignController.StartCampaign)
	control.Post("/:id/pause", campaignController.PauseCampaign)
	control.Post("/:id/resume", campaignController.ResumeCampaign)
	control.Post("/:id/cancel", campaignController.CancelCampaign)

	// WebSocket route for campaign progress
	app.Get("/api/v1/campaigns/:id/progress", middleware.Protected(), websocket.New(func(c *websocket.Conn) {
		controller.HandleCampaignProgressWS(c)
	}))
}

package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/HeltonFraga01/cortexx-sub017/config"
	controller "github.com/HeltonFraga01/cortexx-sub017/controllers"
	"github.com/HeltonFraga01/cortexx-sub017/middleware"
	"github.com/HeltonFraga01/cortexx-sub017/routes"
	"github.com/HeltonFraga01/cortexx-sub017/utils"
	"github.com/HeltonFraga01/cortexx-sub017/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "DISPATCH: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Initialize Sentry for panic reporting
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize Stripe
	controller.InitStripe()

	engineLog := logrus.New()
	engineLog.SetFormatter(&logrus.JSONFormatter{})

	// Dispatch lease: Redis when available so multiple instances never
	// double-dispatch a campaign, in-process otherwise.
	var lease worker.Lease
	if config.AppConfig.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.Redis.Address,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		})
		lease = worker.NewRedisLease(redisClient, uuid.NewString(), 30*time.Second)
	} else {
		lease = worker.NewLocalLease()
	}

	gateway := utils.NewWhatsAppGateway(
		config.AppConfig.Gateway.BaseURL,
		config.AppConfig.Gateway.APIKey,
		time.Duration(config.AppConfig.Gateway.TimeoutSeconds)*time.Second,
		engineLog.WithField("component", "gateway"),
	)
	quota := utils.NewCreditQuotaGuard(config.DB, engineLog.WithField("component", "quota"))
	store := worker.NewGormStore(config.DB)

	dispatcher := worker.NewDispatcher(store, quota, gateway, lease, engineLog, worker.Options{
		MaxActiveWorkers: config.AppConfig.MaxActiveWorkers,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Park campaigns a previous process left running.
	if err := dispatcher.Recover(ctx); err != nil {
		logger.Printf("Campaign recovery failed: %v", err)
	}

	// Start scheduled campaigns when they come due.
	go dispatcher.RunScheduler(ctx)

	// Reset per-user send counters at midnight.
	go quota.ResetDailyCounters(ctx)

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(app, config.DB, store, dispatcher)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}

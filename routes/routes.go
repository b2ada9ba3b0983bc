package routes

import (
	"log"
	"os"

	controller "meshline/controllers"
	"meshline/middleware"
	"meshline/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, processor *worker.InboundProcessor) {
	// Initialize controllers with their respective loggers
	authController := controller.NewAuthController(log.New(os.Stdout, "AUTH: ", log.LstdFlags))
	webhookController := controller.NewWebhookController(processor, log.New(os.Stdout, "WEBHOOK: ", log.LstdFlags))
	campaignController := controller.NewCampaignController(db, log.New(os.Stdout, "CAMPAIGN: ", log.LstdFlags))

	// Public auth endpoint for the dashboard
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	auth.Post("/token", authController.IssueToken)

	// Twilio webhook: unauthenticated, rate limited per sender. Twilio
	// retries on non-2xx, so the handler always answers 200 fast.
	twilio := app.Group("/twilio")
	twilio.Post("/inbound", middleware.WebhookRateLimiter(), webhookController.HandleInbound)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Campaign routes
	campaigns := api.Group("/campaigns")
	campaigns.Post("/", campaignController.CreateCampaign)
	campaigns.Get("/", campaignController.GetCampaigns)
	campaigns.Get("/:id", campaignController.GetCampaign)
	campaigns.Post("/:id/launch", campaignController.LaunchCampaign)
	campaigns.Post("/:id/pause", campaignController.PauseCampaign)
	campaigns.Get("/:id/conversations", campaignController.GetCampaignConversations)
	campaigns.Get("/:id/extractions", campaignController.GetCampaignExtractions)

	// Conversation routes
	conversations := api.Group("/conversations")
	conversations.Get("/:id", campaignController.GetConversation)

	log.Println("Routes initialized successfully")
}

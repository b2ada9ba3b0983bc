package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"meshline/config"
	"meshline/middleware"
	"meshline/routes"
	"meshline/utils"
	"meshline/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "MESHLINE: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize error reporting
	if config.AppConfig.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		})
		if err != nil {
			logger.Fatalf("Failed to initialize Sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Initialize the agent provider
	var agent utils.AgentProvider
	if config.AppConfig.GeminiAPIKey != "" {
		geminiAgent, err := utils.NewGeminiAgent(config.AppConfig.GeminiAPIKey, config.AppConfig.GeminiModel)
		if err != nil {
			logger.Fatalf("Failed to initialize Gemini agent: %v", err)
		}
		agent = geminiAgent
	} else {
		logger.Println("⚠️ GEMINI_API_KEY not set, agent replies disabled")
		agent = utils.DisabledAgent{}
	}

	// Initialize the WhatsApp sender
	sender := utils.NewTwilioClient(
		config.AppConfig.Twilio.AccountSID,
		config.AppConfig.Twilio.AuthToken,
		config.AppConfig.Twilio.WhatsAppFrom,
		"",
	)

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Inbound webhook processing happens off the request path
	processor := worker.NewInboundProcessor(
		config.DB, agent, sender,
		log.New(os.Stdout, "INBOUND: ", log.LstdFlags),
		config.AppConfig.MaxConcurrentAgentCalls,
	)

	// Initialize and start outreach worker
	outreachWorker := worker.NewOutreachWorker(
		config.DB, agent, sender,
		log.New(os.Stdout, "OUTREACH: ", log.LstdFlags),
		time.Duration(config.AppConfig.OutreachPollSeconds)*time.Second,
		config.AppConfig.OutreachBatchSize,
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go outreachWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, processor)

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
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

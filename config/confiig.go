package config

import (
	"fmt"
	"log"
	"meshline/models"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type TwilioConfig struct {
	AccountSID   string `json:"account_sid"`
	AuthToken    string `json:"-"`
	WhatsAppFrom string `json:"whatsapp_from"`
}

type Config struct {
	Environment    string       `json:"environment"`
	ServerPort     string       `json:"server_port"`
	EncryptionKey  string       `json:"-"`
	AdminAPIKey    string       `json:"-"`
	DBHost         string       `json:"db_host"`
	DBPort         string       `json:"db_port"`
	DBUser         string       `json:"db_user"`
	DBPassword     string       `json:"-"`
	DBName         string       `json:"db_name"`
	DBSSLMode      string       `json:"db_ssl_mode"`
	DBMaxIdleConns int          `json:"db_max_idle_conns"`
	DBMaxOpenConns int          `json:"db_max_open_conns"`
	Twilio         TwilioConfig `json:"twilio"`
	GeminiAPIKey   string       `json:"-"`
	GeminiModel    string       `json:"gemini_model"`
	SentryDSN      string       `json:"-"`

	// Outreach dispatch tuning
	OutreachRatePerMinute int `json:"outreach_rate_per_minute"`
	OutreachPollSeconds   int `json:"outreach_poll_seconds"`
	OutreachBatchSize     int `json:"outreach_batch_size"`

	// Upper bound on concurrent agent generations across all webhooks
	MaxConcurrentAgentCalls int `json:"max_concurrent_agent_calls"`

	RateLimitWebhook int         `json:"rate_limit_webhook"`
	Redis            RedisConfig `json:"redis"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
		AdminAPIKey:    getEnv("ADMIN_API_KEY", ""),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "meshline"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		Twilio: TwilioConfig{
			AccountSID:   getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
			WhatsAppFrom: getEnv("TWILIO_WHATSAPP_FROM", ""),
		},

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		SentryDSN:    getEnv("SENTRY_DSN", ""),

		OutreachRatePerMinute: getEnvAsInt("OUTREACH_RATE_PER_MINUTE", 10),
		OutreachPollSeconds:   getEnvAsInt("OUTREACH_POLL_SECONDS", 5),
		OutreachBatchSize:     getEnvAsInt("OUTREACH_BATCH_SIZE", 10),

		MaxConcurrentAgentCalls: getEnvAsInt("MAX_CONCURRENT_AGENT_CALLS", 8),

		RateLimitWebhook: getEnvAsInt("RATE_LIMIT_WEBHOOK", 30),
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if AppConfig.AdminAPIKey == "" {
		return fmt.Errorf("ADMIN_API_KEY is required")
	}
	if AppConfig.OutreachRatePerMinute <= 0 {
		return fmt.Errorf("OUTREACH_RATE_PER_MINUTE must be positive")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.Twilio.AccountSID == "" || AppConfig.Twilio.AuthToken == "" {
			return fmt.Errorf("Twilio credentials are required in production")
		}
		if AppConfig.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required in production")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Outreach: %d/min, poll %ds, batch %d",
		AppConfig.OutreachRatePerMinute,
		AppConfig.OutreachPollSeconds,
		AppConfig.OutreachBatchSize)
	log.Printf("Providers: Twilio(%t), Gemini(%t)",
		AppConfig.Twilio.AccountSID != "",
		AppConfig.GeminiAPIKey != "")
}

func migrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Campaign{},
		&models.Conversation{},
		&models.Message{},
		&models.OutreachQueueEntry{},
	); err != nil {
		return err
	}

	// AutoMigrate cannot express partial unique indexes, so they are created
	// by hand: one conversation per (campaign, phone) across all statuses, so
	// a re-launch never re-contacts a finished or opted-out recipient, and one
	// live onboarding/general thread (NULL campaign) per phone.
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`
            CREATE UNIQUE INDEX IF NOT EXISTS uniq_conversation_per_campaign
            ON conversations (campaign_id, phone_number)
            WHERE campaign_id IS NOT NULL
              AND deleted_at IS NULL
        `).Error; err != nil {
			return fmt.Errorf("failed to create campaign conversation index: %w", err)
		}

		if err := db.Exec(`
            CREATE UNIQUE INDEX IF NOT EXISTS uniq_live_conversation_no_campaign
            ON conversations (phone_number)
            WHERE campaign_id IS NULL
              AND status NOT IN ('completed', 'declined', 'abandoned', 'failed', 'expired')
              AND deleted_at IS NULL
        `).Error; err != nil {
			return fmt.Errorf("failed to create onboarding live-conversation index: %w", err)
		}
	}

	return nil
}

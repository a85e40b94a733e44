package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port             string
	Env              string
	LogLevel         string
	PublicWebhookURL string
	HotelName        string

	// Session persistence
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SessionTTL    time.Duration

	// Relational stores (conversation log, processed webhook events)
	DatabaseURL string

	// Reservation backend (PMS). Empty base URL selects the built-in mock.
	PMSBaseURL      string
	PMSAPIToken     string
	PMSTimeout      time.Duration
	PMSRetryBackoff time.Duration

	// Async pipeline. QueueBackend is "", "memory" or "sqs".
	QueueBackend          string
	WorkerCount           int
	ConversationQueueURL  string
	ConversationJobsTable string

	// AWS (SQS, DynamoDB, S3, SES; endpoint override points at LocalStack)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Completed-booking archive
	ArchiveBucket string

	// Outbound messaging (replies outside the webhook response)
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string

	// Confirmation email
	SendGridAPIKey string
	SESEnabled     bool
	EmailFrom      string
	EmailFromName  string

	// HTTP surface
	AdminAuthSecret    string
	WebhookRatePerMin  int
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		PublicWebhookURL: getEnv("PUBLIC_WEBHOOK_URL", ""),
		HotelName:        getEnv("HOTEL_NAME", "Stayline Grand Hotel"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", time.Hour),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		PMSBaseURL:      getEnv("PMS_BASE_URL", ""),
		PMSAPIToken:     getEnv("PMS_API_TOKEN", ""),
		PMSTimeout:      getEnvAsDuration("PMS_TIMEOUT", 10*time.Second),
		PMSRetryBackoff: getEnvAsDuration("PMS_RETRY_BACKOFF", 500*time.Millisecond),

		QueueBackend:          strings.ToLower(strings.TrimSpace(getEnv("QUEUE_BACKEND", ""))),
		WorkerCount:           getEnvAsInt("WORKER_COUNT", 2),
		ConversationQueueURL:  getEnv("CONVERSATION_QUEUE_URL", ""),
		ConversationJobsTable: getEnv("CONVERSATION_JOBS_TABLE", "conversation_jobs"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_URL", ""),

		ArchiveBucket: getEnv("ARCHIVE_BUCKET", ""),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:       getEnv("TWILIO_FROM", ""),

		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		SESEnabled:     getEnvAsBool("SES_ENABLED", false),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Stayline Grand Hotel"),

		AdminAuthSecret:    getEnv("ADMIN_AUTH_SECRET", ""),
		WebhookRatePerMin:  getEnvAsInt("WEBHOOK_RATE_PER_MIN", 30),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, dropping empties.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

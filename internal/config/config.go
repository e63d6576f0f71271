package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	// Ledger
	HoldTTL                time.Duration
	HoldSweepInterval      time.Duration
	HoldTombstoneRetention time.Duration
	PriceCurrency          string

	// Catalog
	SeedCatalog      bool
	SlotWindowDays   int
	SlotRolloverSpec string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	HoldRateLimit      float64
	HoldRateBurst      int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	VerificationBucket string
	VerificationDelay  time.Duration

	MeetingProviderURL string
	NotifyQueueURL     string
	DispatchWorkers    int

	// Email
	EmailProvider  string
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		HoldTTL:                getEnvAsDuration("HOLD_TTL", 120*time.Second),
		HoldSweepInterval:      getEnvAsDuration("HOLD_SWEEP_INTERVAL", 5*time.Second),
		HoldTombstoneRetention: getEnvAsDuration("HOLD_TOMBSTONE_RETENTION", time.Hour),
		PriceCurrency:          strings.ToUpper(getEnv("PRICE_CURRENCY", "USD")),

		SeedCatalog:      getEnvAsBool("SEED_CATALOG", true),
		SlotWindowDays:   getEnvAsInt("SLOT_WINDOW_DAYS", 7),
		SlotRolloverSpec: getEnv("SLOT_ROLLOVER_SPEC", "@daily"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		HoldRateLimit:      getEnvAsFloat("HOLD_RATE_LIMIT", 5),
		HoldRateBurst:      getEnvAsInt("HOLD_RATE_BURST", 10),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		VerificationBucket: getEnv("VERIFICATION_BUCKET", ""),
		VerificationDelay:  getEnvAsDuration("VERIFICATION_DELAY", 2*time.Second),

		MeetingProviderURL: getEnv("MEETING_PROVIDER_URL", ""),
		NotifyQueueURL:     getEnv("NOTIFY_QUEUE_URL", ""),
		DispatchWorkers:    getEnvAsInt("DISPATCH_WORKERS", 4),

		EmailProvider:  strings.ToLower(getEnv("EMAIL_PROVIDER", "stub")),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", "bookings@virevamind.com"),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "VirevaMind"),
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

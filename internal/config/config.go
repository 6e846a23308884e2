package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the flood control and media group settings.
const (
	DefaultMaxSubmissionsPerDay = 20
	DefaultSubmissionCooldown   = 2 * time.Second
	DefaultMediaGroupQuiet      = 2 * time.Second
)

// Config holds the application configuration.
type Config struct {
	AppEnv          string
	Debug           bool
	Version         string
	BotToken        string
	ChannelID       int64
	MainAdminID     int64
	SentryDSN       string
	MongoDBURI      string
	MongoDBDatabase string
	DefaultLanguage string

	MaxSubmissionsPerDay int
	SubmissionCooldown   time.Duration
	MediaGroupQuiet      time.Duration
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present but prioritizes
// actual environment variables set in the system (e.g., by Docker).
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (useful for development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	debug, _ := strconv.ParseBool(getEnv("DEBUG", "false"))

	channelID, err := parseInt64Env("CHANNEL_ID")
	if err != nil {
		return nil, err
	}
	mainAdminID, err := parseInt64Env("MAIN_ADMIN_ID")
	if err != nil {
		return nil, err
	}

	maxPerDay, err := parseIntEnv("MAX_SUBMISSIONS_PER_DAY", DefaultMaxSubmissionsPerDay)
	if err != nil {
		return nil, err
	}
	cooldown, err := parseSecondsEnv("SUBMISSION_COOLDOWN_SECONDS", DefaultSubmissionCooldown)
	if err != nil {
		return nil, err
	}
	quiet, err := parseSecondsEnv("MEDIA_GROUP_QUIET_SECONDS", DefaultMediaGroupQuiet)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Debug:                debug,
		Version:              getEnv("VERSION", "dev"),
		BotToken:             getEnv("TELEGRAM_BOT_TOKEN", ""),
		ChannelID:            channelID,
		MainAdminID:          mainAdminID,
		SentryDSN:            getEnv("SENTRY_DSN", ""),
		MongoDBURI:           getEnv("MONGODB_URI", ""),
		MongoDBDatabase:      getEnv("MONGODB_DATABASE", ""),
		DefaultLanguage:      getEnv("DEFAULT_LANGUAGE", "en"),
		MaxSubmissionsPerDay: maxPerDay,
		SubmissionCooldown:   cooldown,
		MediaGroupQuiet:      quiet,
	}

	// Basic validation for essential variables
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.ChannelID == 0 {
		return nil, fmt.Errorf("CHANNEL_ID is required")
	}
	if cfg.MainAdminID == 0 {
		return nil, fmt.Errorf("MAIN_ADMIN_ID is required")
	}
	if cfg.MongoDBURI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}
	if cfg.MongoDBDatabase == "" {
		return nil, fmt.Errorf("MONGODB_DATABASE is required")
	}
	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseInt64Env(key string) (int64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseSecondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(seconds) * time.Second, nil
}

package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	BotToken         string
	OpsPort          string
	APIEndpoint      string
	SubmitAttempts   int
	SubmitTimeout    time.Duration
	SubmitBackoff    time.Duration
	SubmitRatePerSec float64
	FetchAttempts    int
	FetchTimeout     time.Duration
	KeepFiles        bool
	StoragePath      string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		BotToken:         os.Getenv("BOT_TOKEN"),
		OpsPort:          getEnv("OPS_PORT", "8080"),
		APIEndpoint:      os.Getenv("TOON_API_ENDPOINT"),
		SubmitAttempts:   getEnvInt("SUBMIT_MAX_ATTEMPTS", 100),
		SubmitTimeout:    time.Second * time.Duration(getEnvInt("SUBMIT_TIMEOUT_SECONDS", 30)),
		SubmitBackoff:    time.Millisecond * time.Duration(getEnvInt("SUBMIT_BACKOFF_MS", 3000)),
		SubmitRatePerSec: getEnvFloat("SUBMIT_RATE_PER_SECOND", 0),
		FetchAttempts:    getEnvInt("FETCH_MAX_ATTEMPTS", 100),
		FetchTimeout:     time.Second * time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 10)),
		KeepFiles:        getEnvBool("KEEP_FILES", false),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

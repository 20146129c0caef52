// internal/config/config.go
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service settings. Values come from the environment,
// optionally seeded from a .env file, and can be overridden by flags.
type Config struct {
	// Reference data
	DatasetPath string

	// Storage
	DBPath string

	// Server
	Host string
	Port int

	// Recognition service
	GeminiAPIKey       string
	GeminiModel        string
	RecognitionTimeout time.Duration
	CacheSize          int

	// Logging
	LogLevel string
}

// Load reads envFile if it exists and builds a Config from the environment.
// Variables already set in the environment take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return &Config{
		DatasetPath: getEnv("DATASET_PATH", "data/food-impacts.csv"),
		DBPath:      getEnv("DB_PATH", "/data/meal-footprint.db"),

		Host: getEnv("HOST", "0.0.0.0"),
		Port: getIntEnv("PORT", 8011),

		GeminiAPIKey:       firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		RecognitionTimeout: getDurationEnv("RECOGNITION_TIMEOUT", 60*time.Second),
		CacheSize:          getIntEnv("RECOGNITION_CACHE_SIZE", 128),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

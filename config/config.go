package config

import (
	"os"
	"strconv"
	"time"

	"github.com/fenilmodi00/parcel-backend/shared"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort       string
	DatabaseURL      string
	AdminToken       string
	LogLevel         string
	APIBaseURL       string
	APIKey           string
	ScrapeBaseURL    string
	WorkerPoolSize   int
	ConnPoolSize     int
	RateLimitTokens  int
	RateLimitRefill  float64
	CacheTTLMinutes  int
	AcquireTimeoutMS int
	MaxRetryAttempts int
	RenderedScraping bool
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		AdminToken:       getEnv("ADMIN_TOKEN", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		APIBaseURL:       getEnv("RECORDS_API_BASE_URL", ""),
		APIKey:           getEnv("RECORDS_API_KEY", ""),
		ScrapeBaseURL:    getEnv("ASSESSOR_SEARCH_BASE_URL", ""),
		WorkerPoolSize:   getEnvInt("WORKER_POOL_SIZE", 4),
		ConnPoolSize:     getEnvInt("DB_POOL_SIZE", 10),
		RateLimitTokens:  getEnvInt("API_RATE_LIMIT_TOKENS", 10),
		RateLimitRefill:  getEnvFloat("API_RATE_LIMIT_REFILL", 2.0),
		CacheTTLMinutes:  getEnvInt("CACHE_TTL_MINUTES", 15),
		AcquireTimeoutMS: getEnvInt("DB_ACQUIRE_TIMEOUT_MS", 5000),
		MaxRetryAttempts: getEnvInt("MAX_RETRY_ATTEMPTS", 3),
		RenderedScraping: getEnvBool("ENABLE_RENDERED_SCRAPING", false),
	}
}

// ToUnified maps the environment configuration onto the unified typed
// configuration and applies defaults for anything missing or invalid.
func (c *Config) ToUnified() *shared.UnifiedConfiguration {
	unified := shared.NewDefaultUnifiedConfiguration()

	if c.APIBaseURL != "" {
		unified.API.BaseURL = c.APIBaseURL
	}
	if c.ScrapeBaseURL != "" {
		unified.Scrape.BaseURL = c.ScrapeBaseURL
	}
	unified.API.RateLimitCapacity = c.RateLimitTokens
	unified.API.RateLimitRefill = c.RateLimitRefill
	unified.API.MaxRetryAttempts = c.MaxRetryAttempts
	unified.Scrape.MaxRetryAttempts = c.MaxRetryAttempts
	unified.Scrape.EnableRenderedPage = c.RenderedScraping
	unified.Database.PoolSize = c.ConnPoolSize
	unified.Database.AcquireTimeout = time.Duration(c.AcquireTimeoutMS) * time.Millisecond
	unified.Cache.DefaultTTL = time.Duration(c.CacheTTLMinutes) * time.Minute
	unified.Scheduler.WorkerPoolSize = c.WorkerPoolSize
	unified.Logging.Level = c.LogLevel

	unified.ValidateAndApplyDefaults()
	return unified
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %g", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %v", key, value, fallback)
		return fallback
	}
	return parsed
}

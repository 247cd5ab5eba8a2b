package shared

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// UnifiedConfiguration holds all configuration parameters for the collection
// engine and its collaborators.
type UnifiedConfiguration struct {
	API       SourceConfig    `json:"api"`
	Scrape    SourceConfig    `json:"scrape"`
	Database  DatabaseConfig  `json:"database"`
	Cache     CacheConfig     `json:"cache"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
}

// SourceConfig holds per-source adapter configuration.
type SourceConfig struct {
	BaseURL            string        `json:"base_url"`
	HTTPRequestTimeout time.Duration `json:"http_timeout"`
	RateLimitCapacity  int           `json:"rate_limit_capacity"`
	RateLimitRefill    float64       `json:"rate_limit_refill_per_second"`
	MaxRetryAttempts   int           `json:"max_retries"`
	EnableRenderedPage bool          `json:"enable_rendered_page"`
}

// DatabaseConfig holds the durable store and connection pool configuration.
type DatabaseConfig struct {
	PoolSize       int           `json:"pool_size"`
	AcquireTimeout time.Duration `json:"acquire_timeout"`
	PingTimeout    time.Duration `json:"ping_timeout"`
	StalenessLimit time.Duration `json:"staleness_limit"`
}

// CacheConfig holds result cache configuration.
type CacheConfig struct {
	DefaultTTL    time.Duration `json:"default_ttl"`
	MaxSize       int           `json:"max_size"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

// SchedulerConfig holds worker pool configuration.
type SchedulerConfig struct {
	WorkerPoolSize int `json:"worker_pool_size"`
	QueueCapacity  int `json:"queue_capacity"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	ServiceName string `json:"service_name"`
}

// NewDefaultUnifiedConfiguration returns production-ready default configuration.
func NewDefaultUnifiedConfiguration() *UnifiedConfiguration {
	return &UnifiedConfiguration{
		API: SourceConfig{
			BaseURL:            "https://api.county-records.example.com",
			HTTPRequestTimeout: 30 * time.Second,
			RateLimitCapacity:  10,
			RateLimitRefill:    2.0,
			MaxRetryAttempts:   3,
		},
		Scrape: SourceConfig{
			BaseURL:            "https://propertysearch.example.gov",
			HTTPRequestTimeout: 30 * time.Second,
			RateLimitCapacity:  2,
			RateLimitRefill:    0.5, // More conservative for scraping
			MaxRetryAttempts:   3,
			EnableRenderedPage: false,
		},
		Database: DatabaseConfig{
			PoolSize:       10,
			AcquireTimeout: 5 * time.Second,
			PingTimeout:    5 * time.Second,
			StalenessLimit: 24 * time.Hour,
		},
		Cache: CacheConfig{
			DefaultTTL:    15 * time.Minute,
			MaxSize:       1000,
			SweepInterval: 5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			WorkerPoolSize: 4,
			QueueCapacity:  256,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "parcel-backend",
		},
	}
}

// ValidateAndApplyDefaults validates configuration and applies defaults for
// invalid values.
func (c *UnifiedConfiguration) ValidateAndApplyDefaults() {
	logger := logrus.WithField("component", "UnifiedConfiguration")
	defaults := NewDefaultUnifiedConfiguration()

	if c.API.HTTPRequestTimeout <= 0 {
		c.API.HTTPRequestTimeout = defaults.API.HTTPRequestTimeout
		logger.Debug("Applied default API.HTTPRequestTimeout")
	}
	if c.API.RateLimitCapacity <= 0 {
		c.API.RateLimitCapacity = defaults.API.RateLimitCapacity
		logger.Debug("Applied default API.RateLimitCapacity")
	}
	if c.API.RateLimitRefill <= 0 {
		c.API.RateLimitRefill = defaults.API.RateLimitRefill
		logger.Debug("Applied default API.RateLimitRefill")
	}
	if c.API.MaxRetryAttempts <= 0 {
		c.API.MaxRetryAttempts = defaults.API.MaxRetryAttempts
		logger.Debug("Applied default API.MaxRetryAttempts")
	}

	if c.Scrape.HTTPRequestTimeout <= 0 {
		c.Scrape.HTTPRequestTimeout = defaults.Scrape.HTTPRequestTimeout
		logger.Debug("Applied default Scrape.HTTPRequestTimeout")
	}
	if c.Scrape.RateLimitCapacity <= 0 {
		c.Scrape.RateLimitCapacity = defaults.Scrape.RateLimitCapacity
		logger.Debug("Applied default Scrape.RateLimitCapacity")
	}
	if c.Scrape.RateLimitRefill <= 0 {
		c.Scrape.RateLimitRefill = defaults.Scrape.RateLimitRefill
		logger.Debug("Applied default Scrape.RateLimitRefill")
	}
	if c.Scrape.MaxRetryAttempts <= 0 {
		c.Scrape.MaxRetryAttempts = defaults.Scrape.MaxRetryAttempts
		logger.Debug("Applied default Scrape.MaxRetryAttempts")
	}

	if c.Database.PoolSize <= 0 {
		c.Database.PoolSize = defaults.Database.PoolSize
		logger.Debug("Applied default Database.PoolSize")
	}
	if c.Database.AcquireTimeout <= 0 {
		c.Database.AcquireTimeout = defaults.Database.AcquireTimeout
		logger.Debug("Applied default Database.AcquireTimeout")
	}
	if c.Database.PingTimeout <= 0 {
		c.Database.PingTimeout = defaults.Database.PingTimeout
		logger.Debug("Applied default Database.PingTimeout")
	}
	if c.Database.StalenessLimit <= 0 {
		c.Database.StalenessLimit = defaults.Database.StalenessLimit
		logger.Debug("Applied default Database.StalenessLimit")
	}

	if c.Cache.DefaultTTL <= 0 {
		c.Cache.DefaultTTL = defaults.Cache.DefaultTTL
		logger.Debug("Applied default Cache.DefaultTTL")
	}
	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = defaults.Cache.MaxSize
		logger.Debug("Applied default Cache.MaxSize")
	}
	if c.Cache.SweepInterval <= 0 {
		c.Cache.SweepInterval = defaults.Cache.SweepInterval
		logger.Debug("Applied default Cache.SweepInterval")
	}

	if c.Scheduler.WorkerPoolSize <= 0 {
		c.Scheduler.WorkerPoolSize = defaults.Scheduler.WorkerPoolSize
		logger.Debug("Applied default Scheduler.WorkerPoolSize")
	}
	if c.Scheduler.QueueCapacity <= 0 {
		c.Scheduler.QueueCapacity = defaults.Scheduler.QueueCapacity
		logger.Debug("Applied default Scheduler.QueueCapacity")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
		logger.Debug("Applied default Logging.Level")
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
		logger.Debug("Applied default Logging.Format")
	}
	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = defaults.Logging.ServiceName
		logger.Debug("Applied default Logging.ServiceName")
	}
}

// ToJSON serializes the configuration to JSON.
func (c *UnifiedConfiguration) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// LoadFromJSON deserializes configuration from JSON.
func (c *UnifiedConfiguration) LoadFromJSON(jsonData []byte) error {
	if err := json.Unmarshal(jsonData, c); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	c.ValidateAndApplyDefaults()
	return nil
}

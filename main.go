package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fenilmodi00/parcel-backend/config"
	"github.com/fenilmodi00/parcel-backend/database"
	"github.com/fenilmodi00/parcel-backend/handlers"
	"github.com/fenilmodi00/parcel-backend/jobs"
	"github.com/fenilmodi00/parcel-backend/services"
	"github.com/fenilmodi00/parcel-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	cfg := config.LoadConfig()
	unified := cfg.ToUnified()

	// Logging setup
	level, err := logrus.ParseLevel(unified.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if unified.Logging.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL, &unified.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.Migrate(db, "database/schema.sql"); err != nil {
		log.Printf("Migration warning: %v", err)
	}

	// Connection pool over the database
	pool := database.NewConnectionPool(
		database.NewConnFactory(db),
		unified.Database.PoolSize,
		unified.Database.AcquireTimeout,
	)
	defer pool.Close()

	// Result cache with background expiry sweeper
	cache := services.NewResultCache(&unified.Cache)
	cache.StartSweeper()
	defer cache.Stop()

	// Durable record store
	recordService := services.NewRecordService(pool, unified.Database.StalenessLimit)

	// Source adapters
	clientFactory := shared.NewHTTPClientFactory(unified.API.HTTPRequestTimeout)
	apiClient := services.NewAPISourceClient(&unified.API, cfg.APIKey, clientFactory)
	scrapeClient := services.NewScrapeClient(&unified.Scrape)

	// Fallback resolution chain and the scheduler driving it
	resolver := services.NewFallbackResolver(cache, apiClient, scrapeClient, recordService)
	scheduler := services.NewCollectionScheduler(resolver, &unified.Scheduler)
	scheduler.Start()
	defer scheduler.Stop()

	logrus.WithFields(logrus.Fields{
		"workers":        unified.Scheduler.WorkerPoolSize,
		"db_pool_size":   unified.Database.PoolSize,
		"cache_ttl":      unified.Cache.DefaultTTL,
		"rate_capacity":  unified.API.RateLimitCapacity,
		"rate_refill":    unified.API.RateLimitRefill,
		"rendered_pages": unified.Scrape.EnableRenderedPage,
	}).Info("Property record acquisition services initialized")

	// Initialize background jobs
	cleanupJob := jobs.NewCacheCleanupJob(cache)
	refreshJob := jobs.NewStaleRecordRefreshJob(recordService, scheduler, unified.Database.StalenessLimit)

	// Initialize handlers
	lookupHandler := handlers.NewLookupHandler(scheduler)
	statsHandler := handlers.NewStatsHandler(cache, pool, scheduler)
	adminHandler := handlers.NewAdminHandler(cache, refreshJob, cleanupJob, cfg.AdminToken)

	// Start background jobs
	jobsDone := make(chan struct{})
	go func() {
		refreshTicker := time.NewTicker(6 * time.Hour)
		cleanupTicker := time.NewTicker(1 * time.Hour)
		defer refreshTicker.Stop()
		defer cleanupTicker.Stop()

		for {
			select {
			case <-refreshTicker.C:
				refreshJob.Run()
			case <-cleanupTicker.C:
				cleanupJob.Run()
			case <-jobsDone:
				return
			}
		}
	}()
	defer close(jobsDone)

	// Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		if err := database.HealthCheck(c.Context(), db); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	// Routes
	api := app.Group("/api/v1")

	// Lookup Routes
	api.Post("/lookups", lookupHandler.SubmitLookup)
	api.Get("/lookups/:id/wait", lookupHandler.WaitForLookup)
	api.Get("/lookups/:id", lookupHandler.GetLookupStatus)
	api.Delete("/lookups/:id", lookupHandler.CancelLookup)

	// Stats Routes
	api.Get("/stats/cache", statsHandler.GetCacheStats)
	api.Get("/stats/pool", statsHandler.GetPoolStats)
	api.Get("/stats/scheduler", statsHandler.GetSchedulerStats)

	// Admin Routes
	admin := api.Group("/admin", adminHandler.RequireToken)
	admin.Post("/refresh", adminHandler.TriggerStaleRefresh)
	admin.Post("/cache/sweep", adminHandler.TriggerCacheSweep)
	admin.Delete("/cache/:kind/:value", adminHandler.InvalidateCacheKey)
	admin.Delete("/cache", adminHandler.ClearCache)

	// Graceful shutdown on SIGINT/SIGTERM
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdown
		logrus.Info("Shutdown signal received, stopping server")
		if err := app.Shutdown(); err != nil {
			logrus.WithError(err).Error("Server shutdown error")
		}
	}()

	// Start server
	log.Printf("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

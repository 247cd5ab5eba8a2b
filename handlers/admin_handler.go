package handlers

import (
	"time"

	"github.com/fenilmodi00/parcel-backend/jobs"
	"github.com/fenilmodi00/parcel-backend/models"
	"github.com/fenilmodi00/parcel-backend/services"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type AdminHandler struct {
	Cache      *services.ResultCache
	RefreshJob *jobs.StaleRecordRefreshJob
	CleanupJob *jobs.CacheCleanupJob
	AdminToken string
}

func NewAdminHandler(cache *services.ResultCache, refreshJob *jobs.StaleRecordRefreshJob, cleanupJob *jobs.CacheCleanupJob, adminToken string) *AdminHandler {
	return &AdminHandler{
		Cache:      cache,
		RefreshJob: refreshJob,
		CleanupJob: cleanupJob,
		AdminToken: adminToken,
	}
}

// RequireToken is middleware guarding the admin group with a shared token.
func (h *AdminHandler) RequireToken(c *fiber.Ctx) error {
	if h.AdminToken == "" || c.Get("X-Admin-Token") != h.AdminToken {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Unauthorized",
		})
	}
	return c.Next()
}

// TriggerStaleRefresh manually runs the stale record refresh job.
func (h *AdminHandler) TriggerStaleRefresh(c *fiber.Ctx) error {
	logrus.Info("Manual stale record refresh triggered via admin endpoint")

	startTime := time.Now()
	h.RefreshJob.Run()
	duration := time.Since(startTime)

	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "Stale record refresh completed",
		"duration":  duration.String(),
		"timestamp": time.Now(),
	})
}

// ClearCache drops every cached record.
func (h *AdminHandler) ClearCache(c *fiber.Ctx) error {
	logrus.Info("Cache clear triggered via admin endpoint")
	h.Cache.Clear()
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Cache cleared",
	})
}

// InvalidateCacheKey drops a single cached record by kind and value.
func (h *AdminHandler) InvalidateCacheKey(c *fiber.Ctx) error {
	kind := c.Params("kind")
	value, err := models.NewLookupKey(models.KeyKind(kind), c.Params("value"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	h.Cache.Invalidate(value)
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Cache entry invalidated",
		"key":     value.String(),
	})
}

// TriggerCacheSweep manually runs the cache cleanup job.
func (h *AdminHandler) TriggerCacheSweep(c *fiber.Ctx) error {
	logrus.Info("Manual cache sweep triggered via admin endpoint")
	h.CleanupJob.Run()
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Cache sweep completed",
	})
}

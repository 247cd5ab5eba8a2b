package handlers

import (
	"github.com/fenilmodi00/parcel-backend/database"
	"github.com/fenilmodi00/parcel-backend/services"
	"github.com/gofiber/fiber/v2"
)

type StatsHandler struct {
	Cache     *services.ResultCache
	Pool      *database.ConnectionPool
	Scheduler *services.CollectionScheduler
}

func NewStatsHandler(cache *services.ResultCache, pool *database.ConnectionPool, scheduler *services.CollectionScheduler) *StatsHandler {
	return &StatsHandler{
		Cache:     cache,
		Pool:      pool,
		Scheduler: scheduler,
	}
}

func (h *StatsHandler) GetCacheStats(c *fiber.Ctx) error {
	stats := h.Cache.Stats()
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"metrics":  stats,
			"hit_rate": stats.GetHitRate(),
		},
	})
}

func (h *StatsHandler) GetPoolStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.Pool.Stats(),
	})
}

func (h *StatsHandler) GetSchedulerStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"metrics":     h.Scheduler.Stats(),
			"queue_depth": h.Scheduler.QueueDepth(),
		},
	})
}

package handlers

import (
	"time"

	"github.com/fenilmodi00/parcel-backend/models"
	"github.com/fenilmodi00/parcel-backend/services"
	"github.com/fenilmodi00/parcel-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// defaultWaitTimeout bounds the long-poll on /lookups/:id/wait.
const defaultWaitTimeout = 30 * time.Second

type LookupHandler struct {
	Scheduler *services.CollectionScheduler
}

func NewLookupHandler(scheduler *services.CollectionScheduler) *LookupHandler {
	return &LookupHandler{Scheduler: scheduler}
}

type lookupRequest struct {
	Kind     string `json:"kind"`
	Value    string `json:"value"`
	Priority int    `json:"priority"`
}

// SubmitLookup accepts a lookup request and returns 202 with the job id.
// Duplicate in-flight keys attach to the existing job and get its id back.
func (h *LookupHandler) SubmitLookup(c *fiber.Ctx) error {
	var req lookupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	key, err := models.NewLookupKey(models.KeyKind(req.Kind), req.Value)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	handle, err := h.Scheduler.Submit(key, req.Priority)
	if err != nil {
		status := fiber.StatusInternalServerError
		if shared.IsClass(err, shared.ErrorClassRateLimited) {
			status = fiber.StatusTooManyRequests
		} else if shared.IsClass(err, shared.ErrorClassCancelled) {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"job_id": handle.JobID,
			"key":    key.String(),
		},
	})
}

// GetLookupStatus returns the current snapshot of a job.
func (h *LookupHandler) GetLookupStatus(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid job id",
		})
	}

	status, found := h.Scheduler.Status(jobID)
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Job not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    status,
	})
}

// WaitForLookup long-polls for the job's terminal outcome. Returns 200 with
// the outcome when the job finishes within the window, or 202 with the
// current state when it does not.
func (h *LookupHandler) WaitForLookup(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid job id",
		})
	}

	subscription, err := h.Scheduler.Subscribe(jobID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Job not found",
		})
	}

	timer := time.NewTimer(defaultWaitTimeout)
	defer timer.Stop()

	select {
	case outcome := <-subscription:
		payload := fiber.Map{
			"job_id": outcome.JobID,
			"key":    outcome.Key.String(),
			"state":  outcome.State,
		}
		if outcome.Record != nil {
			payload["record"] = outcome.Record
			payload["stale"] = outcome.Stale
		}
		if outcome.Err != nil {
			payload["error"] = outcome.Err.Error()
		}
		return c.JSON(fiber.Map{
			"success": outcome.State == models.JobStateSucceeded,
			"data":    payload,
		})
	case <-timer.C:
		status, _ := h.Scheduler.Status(jobID)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"success": true,
			"data":    status,
			"message": "Job still in progress",
		})
	case <-c.Context().Done():
		return nil
	}
}

// CancelLookup cancels a queued or running job.
func (h *LookupHandler) CancelLookup(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid job id",
		})
	}

	if !h.Scheduler.Cancel(jobID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Job not found or already finished",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Cancellation requested",
	})
}

package scheduler

import (
	"github.com/gofiber/fiber/v2"
)

type SchedulerController struct {
	Service SchedulerService
}

func NewSchedulerController(service SchedulerService) *SchedulerController {
	return &SchedulerController{
		Service: service,
	}
}

// ScheduleJob godoc
func (ctrl *SchedulerController) ScheduleJob(c *fiber.Ctx) error {
	var req ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	jobID, err := ctrl.Service.ScheduleJob(req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Scheduled job created successfully",
		"job_id":  jobID,
	})
}

// ListJobs godoc
func (ctrl *SchedulerController) ListJobs(c *fiber.Ctx) error {
	jobs := ctrl.Service.GetJobs(
		Frequency(c.Query("frequency")),
		c.Query("entity_type"),
		c.QueryBool("enabled_only", false),
	)

	return c.JSON(fiber.Map{
		"data": jobs,
	})
}

// GetJob godoc
func (ctrl *SchedulerController) GetJob(c *fiber.Ctx) error {
	job, ok := ctrl.Service.GetJob(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Scheduled job not found",
		})
	}

	return c.JSON(job)
}

// UpdateJob godoc
func (ctrl *SchedulerController) UpdateJob(c *fiber.Ctx) error {
	var updates map[string]interface{}
	if err := c.BodyParser(&updates); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := ctrl.Service.UpdateJob(c.Params("id"), updates); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Scheduled job updated",
	})
}

// DeleteJob godoc
func (ctrl *SchedulerController) DeleteJob(c *fiber.Ctx) error {
	if err := ctrl.Service.DeleteJob(c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Scheduled job deleted",
	})
}

// EnableJob godoc
func (ctrl *SchedulerController) EnableJob(c *fiber.Ctx) error {
	if err := ctrl.Service.EnableJob(c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Scheduled job enabled",
	})
}

// DisableJob godoc
func (ctrl *SchedulerController) DisableJob(c *fiber.Ctx) error {
	if err := ctrl.Service.DisableJob(c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Scheduled job disabled",
	})
}

// RunJobNow godoc
func (ctrl *SchedulerController) RunJobNow(c *fiber.Ctx) error {
	if err := ctrl.Service.RunJobNow(c.Params("id")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Scheduled job queued for immediate run",
	})
}

// GetJobResults godoc
func (ctrl *SchedulerController) GetJobResults(c *fiber.Ctx) error {
	results, ok := ctrl.Service.GetJobResults(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Scheduled job not found",
		})
	}

	if runID := c.Query("run_id"); runID != "" {
		for _, result := range results {
			if result.RunID == runID {
				return c.JSON(result)
			}
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Run not found",
		})
	}

	return c.JSON(fiber.Map{
		"data": results,
	})
}

// Pause godoc
func (ctrl *SchedulerController) Pause(c *fiber.Ctx) error {
	ctrl.Service.Pause()
	return c.JSON(fiber.Map{
		"message": "Scheduler paused",
	})
}

// Resume godoc
func (ctrl *SchedulerController) Resume(c *fiber.Ctx) error {
	ctrl.Service.Resume()
	return c.JSON(fiber.Map{
		"message": "Scheduler resumed",
	})
}

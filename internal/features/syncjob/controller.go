package syncjob

import (
	"time"

	"go-syncbridge/internal/connectors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type SyncJobController struct {
	Manager Manager
}

func NewSyncJobController(manager Manager) *SyncJobController {
	return &SyncJobController{
		Manager: manager,
	}
}

// CreateSyncJob godoc
func (ctrl *SyncJobController) CreateSyncJob(c *fiber.Ctx) error {
	var req CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	jobID, err := ctrl.Manager.CreateSyncJob(c.Context(), req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Sync job created successfully",
		"job_id":  jobID,
	})
}

// ListSyncJobs godoc
func (ctrl *SyncJobController) ListSyncJobs(c *fiber.Ctx) error {
	var status *JobStatus
	if s := c.Query("status"); s != "" {
		js := JobStatus(s)
		status = &js
	}

	jobs, err := ctrl.Manager.GetSyncJobs(
		c.Context(),
		status,
		c.Query("entity_type"),
		c.QueryInt("limit", 50),
		c.QueryInt("offset", 0),
	)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"data": jobs,
	})
}

// GetSyncJob godoc
func (ctrl *SyncJobController) GetSyncJob(c *fiber.Ctx) error {
	job, ok := ctrl.Manager.GetSyncJob(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sync job not found",
		})
	}

	return c.JSON(job)
}

// CancelSyncJob godoc
func (ctrl *SyncJobController) CancelSyncJob(c *fiber.Ctx) error {
	if !ctrl.Manager.CancelSyncJob(c.Params("id")) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Job is not cancellable",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Sync job cancelled",
	})
}

// GetSyncStatus godoc
func (ctrl *SyncJobController) GetSyncStatus(c *fiber.Ctx) error {
	status := ctrl.Manager.GetSyncStatus(c.Context(), c.Params("type"), c.Params("id"))
	return c.JSON(status)
}

type markSyncedRequest struct {
	AData connectors.Entity `json:"a_data"`
	BData connectors.Entity `json:"b_data"`
}

// MarkEntitySynced godoc
func (ctrl *SyncJobController) MarkEntitySynced(c *fiber.Ctx) error {
	var req markSyncedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	status, err := ctrl.Manager.MarkEntitySynced(c.Context(), c.Params("type"), c.Params("id"), req.AData, req.BData)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(status)
}

type cleanupRequest struct {
	RetentionHours int `json:"retention_hours"`
}

// CleanupSyncHistory godoc
func (ctrl *SyncJobController) CleanupSyncHistory(c *fiber.Ctx) error {
	req := cleanupRequest{RetentionHours: 24 * 30}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	count, err := ctrl.Manager.CleanupOldSyncHistory(c.Context(), time.Duration(req.RetentionHours)*time.Hour)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"deleted": count,
	})
}

// StreamJob pushes job snapshots to the client every second until the job
// reaches a terminal state or the connection closes.
func (ctrl *SyncJobController) StreamJob(c *websocket.Conn) {
	jobID := c.Params("id")

	for {
		job, ok := ctrl.Manager.GetSyncJob(jobID)
		if !ok {
			c.WriteJSON(fiber.Map{"error": "Sync job not found"})
			return
		}

		if err := c.WriteJSON(job); err != nil {
			return
		}
		if job.Status.Terminal() {
			return
		}

		time.Sleep(time.Second)
	}
}
